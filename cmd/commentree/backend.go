package main

import (
	"context"
	"fmt"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/config"
	"github.com/VitaminP8/commentree/internal/post"
	"github.com/VitaminP8/commentree/internal/storage/memory"
	"github.com/VitaminP8/commentree/internal/storage/postgres"
	"github.com/VitaminP8/commentree/internal/storage/rest"
	"go.uber.org/zap"
)

// seedAuthor owns the posts created from SEED_POSTS.
const seedAuthor = 1

// openBackend builds the comment API selected by cfg. The returned func
// releases its resources.
func openBackend(ctx context.Context, cfg *config.App, log *zap.Logger) (comment.CommentStorage, func(), error) {
	seedCtx := auth.WithUserID(ctx, seedAuthor)

	switch cfg.Storage {
	case config.StoragePostgres:
		if err := postgres.InitDB(cfg.Database, log); err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if err := postgres.CloseDB(); err != nil {
				log.Warn("closing database", zap.Error(err))
			}
		}
		if err := post.EnsurePosts(seedCtx, postgres.NewPostPostgresStorage(), cfg.SeedPosts...); err != nil {
			closeDB()
			return nil, nil, err
		}
		log.Info("using postgres storage")
		return postgres.NewCommentPostgresStorage(), closeDB, nil

	case config.StorageMemory:
		posts := memory.NewPostMemoryStorage()
		if err := post.EnsurePosts(seedCtx, posts, cfg.SeedPosts...); err != nil {
			return nil, nil, err
		}
		log.Info("using in-memory storage", zap.Strings("posts", cfg.SeedPosts))
		return memory.NewCommentMemoryStorage(posts), func() {}, nil

	case config.StorageREST:
		log.Info("using remote comment api", zap.String("base_url", cfg.API.BaseURL))
		return rest.NewClient(cfg.API, log), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Storage)
	}
}

// viewerContext attaches the --user identity for backends that read it from
// the context. The rest backend acts as its configured account instead.
func viewerContext(ctx context.Context) context.Context {
	if userID == 0 {
		return ctx
	}
	return auth.WithUserID(ctx, userID)
}

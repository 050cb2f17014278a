package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/VitaminP8/commentree/internal/section"
	"github.com/VitaminP8/commentree/internal/tree"
	"github.com/spf13/cobra"
)

var (
	treeDepth int
	treePages int
)

var treeCmd = &cobra.Command{
	Use:   "tree <post>",
	Short: "Print the comment tree of a post",
	Args:  cobra.ExactArgs(1),
	RunE:  runTree,
}

func init() {
	treeCmd.Flags().IntVar(&treeDepth, "depth", 1, "Reply levels to expand below the roots")
	treeCmd.Flags().IntVar(&treePages, "pages", 1, "Root pages to load")
}

func runTree(cmd *cobra.Command, args []string) error {
	api, closeBackend, err := openBackend(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	ctx := viewerContext(cmd.Context())
	s := section.New(args[0], api, section.Config{PageSize: cfg.PageSize}, logger)

	if err := loadPages(ctx, s, treePages); err != nil {
		return err
	}
	if err := expandTo(ctx, s, treeDepth); err != nil {
		return err
	}
	printTree(cmd.OutOrStdout(), s.Snapshot())
	return nil
}

// loadPages loads up to pages root pages.
func loadPages(ctx context.Context, s *section.Section, pages int) error {
	_, hasMore, err := s.LoadRoots(ctx)
	for i := 1; err == nil && hasMore && i < pages; i++ {
		_, hasMore, err = s.LoadMoreRoots(ctx)
	}
	return err
}

// expandTo expands every expandable comment down to depth levels below the roots.
func expandTo(ctx context.Context, s *section.Section, depth int) error {
	level := s.Snapshot().Forest.Roots()
	for d := 0; d < depth && len(level) > 0; d++ {
		var next []*tree.Node
		for _, n := range level {
			if !n.HasReplies() {
				continue
			}
			children, err := s.Expand(ctx, n.ID)
			if err != nil {
				return err
			}
			next = append(next, children...)
		}
		level = next
	}
	return nil
}

// locate loads root pages and expands replies breadth-first until id is
// loaded, so that replies and votes can target any comment.
func locate(ctx context.Context, s *section.Section, id int64, maxDepth int) error {
	if _, ok := s.Snapshot().Forest.Find(id); ok {
		return nil
	}
	if err := loadPages(ctx, s, 1<<20); err != nil {
		return err
	}

	level := s.Snapshot().Forest.Roots()
	for d := 0; d <= maxDepth; d++ {
		if _, ok := s.Snapshot().Forest.Find(id); ok {
			return nil
		}
		var next []*tree.Node
		for _, n := range level {
			if !n.HasReplies() {
				continue
			}
			children, err := s.Expand(ctx, n.ID)
			if err != nil && !errors.Is(err, section.ErrNotExpandable) {
				return err
			}
			next = append(next, children...)
		}
		level = next
	}
	if _, ok := s.Snapshot().Forest.Find(id); ok {
		return nil
	}
	return fmt.Errorf("comment %d not found within %d levels", id, maxDepth)
}

func printTree(w io.Writer, v section.View) {
	fmt.Fprintf(w, "%s: %d comments loaded\n", v.PostID, v.Forest.Len())
	v.Forest.Walk(func(n *tree.Node, depth int) bool {
		indent := strings.Repeat("  ", depth)
		vote := ""
		switch n.UserVote {
		case tree.VoteUp:
			vote = " (you +1)"
		case tree.VoteDown:
			vote = " (you -1)"
		}
		fmt.Fprintf(w, "%s#%d %s [%+d]%s: %s\n", indent, n.ID, n.Author, n.SumRating, vote, n.Content)
		if !n.Children.IsLoaded() && n.RepliesCount > 0 {
			fmt.Fprintf(w, "%s  ... %d replies\n", indent, n.RepliesCount)
		}
		return true
	})
	if v.HasMore {
		fmt.Fprintln(w, "... more comments")
	}
}

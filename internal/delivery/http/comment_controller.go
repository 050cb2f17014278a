package http

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/constant"
	"github.com/VitaminP8/commentree/internal/delivery/http/middleware"
	"github.com/VitaminP8/commentree/internal/section"
	"github.com/VitaminP8/commentree/internal/storage/rest"
	"github.com/VitaminP8/commentree/internal/tree"
	"github.com/VitaminP8/commentree/internal/util"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type CommentController struct {
	Sections *section.Registry
	Log      *zap.Logger
	// flight collapses repeated load-more and expand triggers of one viewer
	// while the first is still running.
	flight singleflight.Group
}

func NewCommentController(sections *section.Registry, zap *zap.Logger) *CommentController {
	return &CommentController{
		Sections: sections,
		Log:      zap,
	}
}

// GetTree returns the loaded part of a post's comment tree, loading the first
// page of roots on first access.
func (controller *CommentController) GetTree(ctx *fiber.Ctx) error {
	s := controller.section(ctx)

	if !s.Snapshot().Loaded || ctx.QueryBool("reload") {
		_, _, err := s.LoadRoots(ctx.UserContext())
		if err != nil {
			return controller.fail(ctx, s, err)
		}
	}

	return util.SendSuccessResponseWithData(ctx, toTreeResponse(s.Snapshot()))
}

func (controller *CommentController) LoadMore(ctx *fiber.Ctx) error {
	s := controller.section(ctx)
	key := fmt.Sprintf("%d/%s/more", middleware.Viewer(ctx), s.PostID())

	v, err, _ := controller.flight.Do(key, func() (interface{}, error) {
		nodes, hasMore, err := s.LoadMoreRoots(ctx.UserContext())
		if err != nil {
			return nil, err
		}
		return &PageResponse{HasMore: hasMore, Comments: toResponses(nodes)}, nil
	})
	if err != nil {
		return controller.fail(ctx, s, err)
	}

	return util.SendSuccessResponseWithData(ctx, v)
}

func (controller *CommentController) Expand(ctx *fiber.Ctx) error {
	id, ok := commentID(ctx)
	if !ok {
		return util.SendErrorResponse(ctx, fiber.StatusBadRequest, constant.ERR_VALIDATION_CODE, "invalid comment id")
	}
	s := controller.section(ctx)
	key := fmt.Sprintf("%d/%s/expand/%d", middleware.Viewer(ctx), s.PostID(), id)

	v, err, _ := controller.flight.Do(key, func() (interface{}, error) {
		children, err := s.Expand(ctx.UserContext(), id)
		if err != nil {
			return nil, err
		}
		return toResponses(children), nil
	})
	if err != nil {
		return controller.fail(ctx, s, err)
	}

	return util.SendSuccessResponseWithData(ctx, fiber.Map{"comment_id": id, "children": v})
}

func (controller *CommentController) Reply(ctx *fiber.Ctx) error {
	var payload CreateCommentRequest
	if err := util.ReadRequestBody(ctx, &payload); err != nil {
		return util.SendErrorResponse(ctx, fiber.StatusBadRequest,
			constant.ERR_INVALID_REQUEST_BODY_ERROR_CODE,
			constant.ERR_INVALID_REQUEST_BODY_MESSAGE,
		)
	}

	parent := tree.Root
	if payload.ParentID != nil {
		parent = tree.Under(*payload.ParentID)
	}

	s := controller.section(ctx)
	node, err := s.Reply(ctx.UserContext(), parent, payload.Content)
	if err != nil {
		return controller.fail(ctx, s, err)
	}

	return util.SendCreatedResponseWithData(ctx, toResponse(node))
}

func (controller *CommentController) Vote(ctx *fiber.Ctx) error {
	id, ok := commentID(ctx)
	if !ok {
		return util.SendErrorResponse(ctx, fiber.StatusBadRequest, constant.ERR_VALIDATION_CODE, "invalid comment id")
	}

	var payload VoteRequest
	if err := util.ReadRequestBody(ctx, &payload); err != nil {
		return util.SendErrorResponse(ctx, fiber.StatusBadRequest,
			constant.ERR_INVALID_REQUEST_BODY_ERROR_CODE,
			constant.ERR_INVALID_REQUEST_BODY_MESSAGE,
		)
	}

	s := controller.section(ctx)
	node, err := s.Vote(ctx.UserContext(), id, payload.Value)
	if err != nil {
		return controller.fail(ctx, s, err)
	}

	return util.SendSuccessResponseWithData(ctx, toResponse(node))
}

func (controller *CommentController) RetractVote(ctx *fiber.Ctx) error {
	id, ok := commentID(ctx)
	if !ok {
		return util.SendErrorResponse(ctx, fiber.StatusBadRequest, constant.ERR_VALIDATION_CODE, "invalid comment id")
	}

	s := controller.section(ctx)
	node, err := s.RetractVote(ctx.UserContext(), id)
	if err != nil {
		return controller.fail(ctx, s, err)
	}

	return util.SendSuccessResponseWithData(ctx, toResponse(node))
}

func (controller *CommentController) section(ctx *fiber.Ctx) *section.Section {
	return controller.Sections.Get(middleware.Viewer(ctx), ctx.Params("slug"))
}

// fail drops a section that never got loaded before reporting err, so
// requests for unknown posts do not pile up in the registry.
func (controller *CommentController) fail(ctx *fiber.Ctx, s *section.Section, err error) error {
	controller.Sections.Release(middleware.Viewer(ctx), s)
	return controller.sendError(ctx, err)
}

func commentID(ctx *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Params("id"), 10, 64)
	return id, err == nil && id > 0
}

// sendError maps a section failure to a status code and error envelope.
func (controller *CommentController) sendError(ctx *fiber.Ctx, err error) error {
	var apiErr *rest.APIError

	switch {
	case errors.Is(err, section.ErrInvalidVote),
		errors.Is(err, section.ErrEmptyContent),
		errors.Is(err, section.ErrNotExpandable),
		errors.Is(err, comment.ErrInvalidContent),
		errors.Is(err, comment.ErrInvalidVote):
		return util.SendErrorResponse(ctx, fiber.StatusBadRequest, constant.ERR_VALIDATION_CODE, err.Error())
	case errors.Is(err, comment.ErrUnauthorized):
		return util.SendErrorResponse(ctx, fiber.StatusUnauthorized, constant.ERR_UNAUTHORIZED_ERROR, err.Error())
	case errors.Is(err, comment.ErrCommentsDisabled):
		return util.SendErrorResponse(ctx, fiber.StatusForbidden, constant.ERR_FORBIDDEN_ERROR, err.Error())
	case errors.Is(err, section.ErrNotLoaded),
		errors.Is(err, tree.ErrNotFound),
		errors.Is(err, comment.ErrPostNotFound),
		errors.Is(err, comment.ErrCommentNotFound):
		return util.SendErrorResponse(ctx, fiber.StatusNotFound, constant.ERR_NOT_FOUND_ERROR, err.Error())
	case errors.Is(err, tree.ErrDuplicate),
		errors.Is(err, section.ErrReloaded):
		return util.SendErrorResponse(ctx, fiber.StatusConflict, constant.ERR_CONFLICT_ERROR, err.Error())
	case errors.As(err, &apiErr):
		controller.Log.Warn("comment api failed", zap.Error(err))
		return util.SendErrorResponse(ctx, fiber.StatusBadGateway, constant.ERR_UPSTREAM_ERROR, err.Error())
	default:
		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}
}

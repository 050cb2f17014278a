package route

import (
	"github.com/VitaminP8/commentree/internal/delivery/http"
	"github.com/VitaminP8/commentree/internal/delivery/http/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RouteConfig struct {
	App               *fiber.App
	Log               *zap.Logger
	AuthMiddleware    *middleware.AuthMiddleware
	CommentController *http.CommentController
	EventController   *http.EventController
}

func (c *RouteConfig) SetupRoute() {
	c.App.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	c.App.Use(middleware.Recovery(c.Log))

	api := c.App.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	comments := api.Group("/posts/:slug/comments", c.AuthMiddleware.OptionalUser())
	comments.Get("/", c.CommentController.GetTree)
	comments.Post("/", c.CommentController.Reply)
	comments.Post("/more", c.CommentController.LoadMore)
	comments.Post("/:id/expand", c.CommentController.Expand)
	comments.Post("/:id/vote", c.CommentController.Vote)
	comments.Delete("/:id/vote", c.CommentController.RetractVote)

	c.App.Use("/ws", c.EventController.Upgrade)
	c.App.Get("/ws/posts/:slug", c.AuthMiddleware.OptionalUser(), websocket.New(c.EventController.Stream))
}

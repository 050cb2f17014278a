package http

import (
	"github.com/VitaminP8/commentree/internal/delivery/http/middleware"
	"github.com/VitaminP8/commentree/internal/subscription"
	"github.com/bytedance/sonic"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type EventController struct {
	Events subscription.Manager
	Log    *zap.Logger
}

func NewEventController(events subscription.Manager, zap *zap.Logger) *EventController {
	return &EventController{
		Events: events,
		Log:    zap,
	}
}

// Upgrade rejects plain HTTP requests to the event stream.
func (controller *EventController) Upgrade(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	return ctx.Next()
}

// Stream pushes every committed change of a post's sections to the socket
// until the client goes away. Votes are only shown to the viewer who cast them.
func (controller *EventController) Stream(conn *websocket.Conn) {
	slug := conn.Params("slug")
	viewer, _ := conn.Locals(middleware.UserIDLocal).(uint)
	events, cancel := controller.Events.Subscribe(slug, viewer)
	defer cancel()

	log := controller.Log.With(zap.String("post_id", slug), zap.Uint("viewer", viewer))
	log.Debug("event stream opened")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			log.Debug("event stream closed")
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			payload, err := sonic.Marshal(toEventResponse(e))
			if err != nil {
				log.Error("could not encode event", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug("event stream write failed", zap.Error(err))
				return
			}
		}
	}
}

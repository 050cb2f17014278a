package middleware

import (
	"fmt"

	"github.com/VitaminP8/commentree/internal/util"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func Recovery(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			var errMsg string
			switch v := r.(type) {
			case error:
				errMsg = v.Error()
			case string:
				errMsg = v
			default:
				errMsg = fmt.Sprintf("%v", v)
			}

			log.Error("panic occurred and recovered",
				zap.String("error", errMsg),
				zap.String("path", c.Path()),
				zap.Any("request_id", c.Locals("requestid")),
			)

			err = util.SendErrorResponseInternalServer(c, log, fmt.Errorf("panic: %s", errMsg))
		}()

		return c.Next()
	}
}

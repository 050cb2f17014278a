package middleware

import (
	"errors"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/constant"
	"github.com/VitaminP8/commentree/internal/util"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const UserIDLocal = "userId"

type AuthMiddleware struct {
	Log    *zap.Logger
	Secret string
}

func NewAuthMiddleware(log *zap.Logger, secret string) *AuthMiddleware {
	return &AuthMiddleware{
		Log:    log,
		Secret: secret,
	}
}

// OptionalUser lets anonymous requests through as viewer 0. A token that is
// present but invalid is rejected.
func (m *AuthMiddleware) OptionalUser() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		userID, err := auth.UserIDFromHeader(ctx.Get(fiber.HeaderAuthorization), m.Secret)
		if errors.Is(err, auth.ErrNoToken) {
			ctx.Locals(UserIDLocal, uint(0))
			return ctx.Next()
		}
		if err != nil {
			m.Log.Debug("rejected token", zap.Error(err))
			return util.SendErrorResponse(ctx, fiber.StatusUnauthorized, constant.ERR_UNAUTHORIZED_ERROR, "invalid access token")
		}

		ctx.Locals(UserIDLocal, userID)
		ctx.SetUserContext(auth.WithUserID(ctx.UserContext(), userID))
		return ctx.Next()
	}
}

// Viewer returns the id stored by OptionalUser.
func Viewer(ctx *fiber.Ctx) uint {
	id, _ := ctx.Locals(UserIDLocal).(uint)
	return id
}

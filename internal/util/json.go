package util

import (
	"github.com/VitaminP8/commentree/internal/constant"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func ReadRequestBody(ctx *fiber.Ctx, result interface{}) error {
	return ctx.BodyParser(result)
}

func SendSuccessResponseWithData(ctx *fiber.Ctx, data interface{}) error {
	return ctx.Status(fiber.StatusOK).JSON(data)
}

func SendCreatedResponseWithData(ctx *fiber.Ctx, data interface{}) error {
	return ctx.Status(fiber.StatusCreated).JSON(data)
}

// SendErrorResponse writes the {"error":{"code","message"}} envelope.
func SendErrorResponse(ctx *fiber.Ctx, status int, code, message string) error {
	return ctx.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

func SendErrorResponseInternalServer(ctx *fiber.Ctx, log *zap.Logger, err error) error {
	log.Error("internal server error occured", zap.Error(err))
	return SendErrorResponse(ctx, fiber.StatusInternalServerError,
		constant.ERR_INTERNAL_SERVER_ERROR_CODE,
		constant.ERR_INTERNAL_SERVER_ERROR_MESSAGE,
	)
}

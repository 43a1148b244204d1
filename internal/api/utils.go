package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/georgeshao/fleetctx/internal/opserr"
	"github.com/georgeshao/fleetctx/pkg/types"
)

func statusFor(kind opserr.Kind) int {
	switch kind {
	case opserr.NotFound:
		return fiber.StatusNotFound
	case opserr.InvalidParameter:
		return fiber.StatusBadRequest
	case opserr.StoreUnavailable:
		return fiber.StatusServiceUnavailable
	case opserr.Rejected:
		return fiber.StatusUnprocessableEntity
	case opserr.Timeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c *fiber.Ctx, err error) error {
	kind := opserr.KindOf(err)
	return c.Status(statusFor(kind)).JSON(types.ErrorResponse{
		Error: opserr.Message(err),
		Code:  string(kind),
	})
}

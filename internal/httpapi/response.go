// Package httpapi exposes the §6 EXTERNAL INTERFACES over gofiber/fiber,
// the way cmd/saas-api/main.go and internal/modules/saas/handlers wire
// the teacher's own REST surface: a fiber.App, route groups per
// resource, and fiber.Map JSON responses from handlers shaped
// func(c *fiber.Ctx) error.
package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/chatgw/chatgateway/internal/apperr"
)

// ResponseData is this gateway's response envelope: every success
// response carries the same {status, code, message, results} shape, the
// way the teacher's handlers return a flat fiber.Map but with a
// consistent status/code/message/results wrapper so every endpoint is
// shaped alike.
type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

func writeJSON(c *fiber.Ctx, status int, code, message string, results any) error {
	return c.Status(status).JSON(ResponseData{Status: status, Code: code, Message: message, Results: results})
}

func writeOK(c *fiber.Ctx, status int, message string, results any) error {
	return writeJSON(c, status, "SUCCESS", message, results)
}

// writeError classifies err through apperr's taxonomy into an HTTP
// status, the way the teacher's handlers return
// c.Status(fiber.StatusX).JSON(fiber.Map{"error": ...}) inline at each
// call site, done here once so every handler shares the mapping.
func writeError(log zerolog.Logger, c *fiber.Ctx, err error) error {
	appErr, ok := err.(*apperr.Error)
	if !ok {
		log.Error().Err(err).Msg("unclassified error reached httpapi")
		return writeJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal error", nil)
	}
	if appErr.Code == apperr.CodeInternal {
		log.Error().Err(appErr).Msg("internal error")
	}
	return writeJSON(c, appErr.HTTPStatus(), string(appErr.Code), appErr.Message, nil)
}

func decodeJSON(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.InvalidArgument("malformed request body: %v", err)
	}
	return nil
}

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatgw/chatgateway/internal/apperr"
)

func discardLog() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newErrorTestApp(err error) *fiber.App {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return writeError(discardLog(), c, err)
	})
	return app
}

func TestWriteError_MapsClassifiedErrorToItsStatus(t *testing.T) {
	app := newErrorTestApp(apperr.Conflict("profile %q already exists", "P1"))
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)

	assert.Equal(t, 409, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed ResponseData
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "conflict", parsed.Code)
}

func TestWriteError_FallsBackTo500ForUnclassifiedError(t *testing.T) {
	app := newErrorTestApp(errors.New("boom"))
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)

	assert.Equal(t, 500, resp.StatusCode)
}

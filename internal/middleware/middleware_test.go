package middleware

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"chirp/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	observability.ConfigureLogger(&buf, "test", level)
	t.Cleanup(func() { observability.ConfigureLogger(&bytes.Buffer{}, "test", "info") })
	return &buf
}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(requestid.New())
	app.Use(TracingMiddleware())
	app.Use(ContextMiddleware())
	app.Use(StructuredLogger())
	app.Get("/work", func(c *fiber.Ctx) error {
		observability.Logger.InfoContext(c.UserContext(), "handler ran")
		return c.SendString("ok")
	})
	app.Get("/health/live", func(c *fiber.Ctx) error { return c.SendString("up") })
	app.Get("/fail", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "nope") })
	return app
}

func TestStructuredLogger_CarriesRequestID(t *testing.T) {
	logs := captureLogs(t, "info")

	resp, err := newApp().Test(httptest.NewRequest("GET", "/work", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	out := logs.String()
	assert.Contains(t, out, "handler ran")
	assert.Contains(t, out, "request processed")
	rid := resp.Header.Get(fiber.HeaderXRequestID)
	require.NotEmpty(t, rid)
	assert.Equal(t, 2, strings.Count(out, "request_id="+rid))
}

func TestStructuredLogger_QuietProbesAndErrors(t *testing.T) {
	logs := captureLogs(t, "info")
	app := newApp()

	_, err := app.Test(httptest.NewRequest("GET", "/health/live", nil))
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "/health/live")

	_, err = app.Test(httptest.NewRequest("GET", "/fail", nil))
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "request failed")
}

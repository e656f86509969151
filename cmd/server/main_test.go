package main

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"prodbudget-backend/internal/auth"
	"prodbudget-backend/internal/engine"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineErrorBodyShape(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, uint(7))
		return c.Next()
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return engine.ErrCycleDetected
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "cycle_detected", body["code"])
	assert.Equal(t, "cycle_detected", body["error_type"])
	assert.Equal(t, float64(7), body["user_id"])
}

func TestEngineErrorBodyWithoutUser(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return engine.ErrPropagationTimedOut
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "propagation_timed_out", body["code"])
	_, present := body["user_id"]
	assert.False(t, present)
}

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextFieldsAreCarried(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "stationery-api", Level: zerolog.InfoLevel, Output: &buf})

	ctx := logg.WithRequestID(context.Background(), "req-1")
	ctx = logg.WithFields(ctx, map[string]any{"sale_id": "sale-1"})
	logg.Info(ctx, "checkout.complete")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "stationery-api", entry["service"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "sale-1", entry["sale_id"])
	assert.Equal(t, "checkout.complete", entry["message"])
}

func TestErrorAttachesCauseAndStack(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "svc", Output: &buf})

	logg.Error(context.Background(), "compensation failed", errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "boom", entry["error"])
	assert.NotEmpty(t, entry["stack"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logg *Logger
	ctx := logg.WithRequestID(context.Background(), "x")
	logg.Info(ctx, "ignored")
	logg.Error(ctx, "ignored", nil)
}

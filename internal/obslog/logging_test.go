package obslog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoCtxWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := New(slog.New(slog.NewJSONHandler(&buf, nil)))

	logger.InfoCtx(context.Background(), "chunk stored", "sensor_id", "abc123", "points", 42)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "chunk stored", rec["msg"])
	require.Equal(t, "abc123", rec["sensor_id"])
	require.EqualValues(t, 42, rec["points"])
}

func TestWithAddsPersistentAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(slog.New(slog.NewJSONHandler(&buf, nil))).With("box_id", "box-1")

	logger.WarnCtx(context.Background(), "skipped row")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "box-1", rec["box_id"])
}

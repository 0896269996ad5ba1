package tool

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageRecorderForwardsAndCaptures(t *testing.T) {
	var host bytes.Buffer
	recorder := newMessageRecorder(slog.NewTextHandler(&host, &slog.HandlerOptions{Level: slog.LevelWarn}))
	logger := slog.New(recorder).With("tool", "ugrid-from-fort14")

	logger.Debug("parsing header")
	logger.Info("read 120 nodes")
	logger.Warn("mesh is not geographic")
	logger.Error("no elements")

	assert.Equal(t, []string{
		"read 120 nodes",
		"warning: mesh is not geographic",
		"error: no elements",
	}, recorder.Messages())
	assert.NotContains(t, host.String(), "read 120 nodes")
	assert.Contains(t, host.String(), "mesh is not geographic")
	assert.Contains(t, host.String(), "tool=ugrid-from-fort14")
}

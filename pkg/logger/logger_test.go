package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGiveaway_Logger_New(t *testing.T) {
	t.Parallel()
	require.False(t, New(false).Enabled(nil, slog.LevelDebug))
	require.True(t, New(true).Enabled(nil, slog.LevelDebug))
}

func TestGiveaway_Logger_NewComponentTagsRecords(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	NewComponent(log, "cycle").Info("hello")
	require.Contains(t, buf.String(), "component=cycle")
}

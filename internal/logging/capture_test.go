package logging_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tripstream-systems/tripstream/internal/logging"
)

func TestCapture_BuffersRecords(t *testing.T) {
	base := logging.New(slog.LevelInfo, "text")
	capture := logging.NewCapture(base)
	logger := capture.Logger()

	logger.Info("scan complete", "records", 42)
	logger.Warn("skipping record", "entity_id", "t7")

	out := string(capture.Bytes())
	assert.Contains(t, out, "scan complete")
	assert.Contains(t, out, "records=42")
	assert.Contains(t, out, "entity_id=t7")
}

func TestCapture_WithAttrs(t *testing.T) {
	base := logging.New(slog.LevelInfo, "text")
	capture := logging.NewCapture(base)
	logger := capture.Logger().With("run_id", "r-1")

	logger.Info("published")

	assert.Contains(t, string(capture.Bytes()), "run_id=r-1")
}

func TestCapture_RespectsLevel(t *testing.T) {
	base := logging.New(slog.LevelWarn, "text")
	capture := logging.NewCapture(base)
	logger := capture.Logger()

	logger.Info("quiet")
	logger.Warn("loud")

	out := string(capture.Bytes())
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "loud")
}

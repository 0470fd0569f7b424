package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewLoggerLevels(t *testing.T) {
	dev := NewLogger("development")
	assert.True(t, dev.Core().Enabled(zap.DebugLevel))

	prod := NewLogger("production")
	assert.False(t, prod.Core().Enabled(zap.DebugLevel))
	assert.True(t, prod.Core().Enabled(zap.InfoLevel))

	assert.False(t, NewLogger("").Core().Enabled(zap.DebugLevel))
}

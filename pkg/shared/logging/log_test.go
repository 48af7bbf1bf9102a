package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Setenv(EnvDebug, "false")
	assert.False(t, NewLogger().Desugar().Core().Enabled(zapcore.DebugLevel))
	t.Setenv(EnvDebug, "true")
	assert.True(t, NewLogger().Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestFromContext(t *testing.T) {
	logger := zap.NewExample().Sugar()
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

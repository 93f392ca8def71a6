package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestSafeFields(t *testing.T) {
	fields := SafeFields(map[string]interface{}{
		"otp_code": "123456",
		"phone":    "+919876543210",
		"attempts": 3,
		"ok":       true,
	})

	byKey := map[string]zapcore.Field{}
	for _, f := range fields {
		byKey[f.Key] = f
	}

	assert.Equal(t, "[REDACTED]", byKey["otp_code"].String)
	assert.NotEqual(t, "+919876543210", byKey["phone"].String)
	assert.Equal(t, int64(3), byKey["attempts"].Integer)
	assert.Equal(t, zapcore.BoolType, byKey["ok"].Type)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "[REDACTED]", Redact("user_password", "hunter2").String)
	assert.Equal(t, "Pune", Redact("city", "Pune").String)
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	assert.NoError(t, Init("verbose", "production"))
	assert.True(t, Log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, Log.Core().Enabled(zapcore.DebugLevel))

	assert.NoError(t, Init("debug", "development"))
	assert.True(t, For("tracking").Core().Enabled(zapcore.DebugLevel))
}

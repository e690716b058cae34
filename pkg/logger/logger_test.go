package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel(" warning "))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestNewWithOptions_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dotpay.log")
	log := NewWithOptions("test-service", Options{Level: "info", File: path})

	log.Info("delivered", map[string]interface{}{"tx_hash": "0xabc", "err": errors.New("none")})
	log.Debug("filtered out", nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"delivered"`)
	assert.Contains(t, string(data), `"service":"test-service"`)
	assert.Contains(t, string(data), `"tx_hash":"0xabc"`)
	assert.NotContains(t, string(data), "filtered out")
}

func TestNop(t *testing.T) {
	log := NewNop()
	assert.NotPanics(t, func() {
		log.Info("x", nil)
		log.Fatal("x", nil)
	})
}

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{" error ", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"", "console", "json"} {
		logger, err := New(Options{Level: "debug", Format: format})
		require.NoError(t, err, format)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel), format)
	}

	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestFor_NamesCategory(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	For(zap.New(core), CategoryCollector).Info("beacon")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "collector", entries[0].LoggerName)
}

func TestFor_NilParent(t *testing.T) {
	assert.NotPanics(t, func() {
		For(nil, CategoryBrowser).Info("dropped")
	})
}

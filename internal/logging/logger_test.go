package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/edvin/kubelease/internal/config"
)

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		logger := NewLogger(&config.Config{ServiceName: "kubelease", LogLevel: tt.level})
		assert.Equal(t, tt.want, logger.GetLevel(), "level=%q", tt.level)
	}
}

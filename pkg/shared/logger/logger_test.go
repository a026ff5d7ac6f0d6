package logger

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"

	"github.com/patchwatch/patchwatch/pkg/shared/config"
)

func TestLoggerOptions(t *testing.T) {
	t.Setenv("PATCHWATCH_LOG_LEVEL", "")

	testCases := []struct {
		name       string
		cfg        *config.Config
		wantLevel  hclog.Level
		wantJSON   bool
		wantNoTime bool
	}{
		{
			name:       "nil config defaults to text at info",
			cfg:        nil,
			wantLevel:  hclog.Info,
			wantJSON:   false,
			wantNoTime: true,
		},
		{
			name:       "level from config",
			cfg:        &config.Config{Logger: config.Logger{Level: "debug"}},
			wantLevel:  hclog.Debug,
			wantJSON:   false,
			wantNoTime: true,
		},
		{
			name:       "json format keeps timestamps",
			cfg:        &config.Config{Logger: config.Logger{Level: "warn", Format: "JSON"}},
			wantLevel:  hclog.Warn,
			wantJSON:   true,
			wantNoTime: false,
		},
		{
			name:       "unknown level falls back to info",
			cfg:        &config.Config{Logger: config.Logger{Level: "loud"}},
			wantLevel:  hclog.Info,
			wantJSON:   false,
			wantNoTime: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := loggerOptions(tc.cfg, "test")
			assert.Equal(t, "test", opts.Name)
			assert.Equal(t, tc.wantLevel, opts.Level)
			assert.Equal(t, tc.wantJSON, opts.JSONFormat)
			assert.Equal(t, tc.wantNoTime, opts.DisableTime)
		})
	}
}

package logger

import (
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/patchwatch/patchwatch/pkg/shared/config"
)

// NewLogger builds a named hclog logger from the logger configuration.
func NewLogger(cfg *config.Config, name string) hclog.Logger {
	return hclog.New(loggerOptions(cfg, name))
}

// loggerOptions resolves the logging level and output format. The level comes
// from the config file first, the PATCHWATCH_LOG_LEVEL environment variable
// second. The daemon logs human-readable text by default; "json" switches to
// timestamped JSON lines for log collectors.
func loggerOptions(cfg *config.Config, name string) *hclog.LoggerOptions {
	levelStr := os.Getenv("PATCHWATCH_LOG_LEVEL")
	jsonFormat := false
	if cfg != nil {
		if cfg.Logger.Level != "" {
			levelStr = cfg.Logger.Level
		}
		jsonFormat = strings.EqualFold(cfg.Logger.Format, "json")
	}

	return &hclog.LoggerOptions{
		Name:        name,
		DisableTime: !jsonFormat,
		JSONFormat:  jsonFormat,
		Output:      os.Stdout,
		Level:       getLogLevel(strings.ToUpper(levelStr)),
	}
}

func getLogLevel(levelStr string) hclog.Level {
	switch levelStr {
	case "TRACE":
		return hclog.Trace
	case "DEBUG":
		return hclog.Debug
	case "INFO":
		return hclog.Info
	case "WARN":
		return hclog.Warn
	case "ERROR":
		return hclog.Error
	default:
		return hclog.Info
	}
}

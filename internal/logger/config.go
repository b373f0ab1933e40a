package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FromEnvironment builds a logger configuration from EMBEDCODEC_LOG_*
// environment variables, falling back to defaults. Recognized variables:
//
//	EMBEDCODEC_LOG_LEVEL       trace|debug|info|warn|error
//	EMBEDCODEC_LOG_FORMAT      text|json|color
//	EMBEDCODEC_LOG_OUTPUT      stdout|stderr|null|file:<path>
//	EMBEDCODEC_LOG_TIMESTAMP   true|1
//	EMBEDCODEC_LOG_COMPONENTS  comma-separated component names to enable
func FromEnvironment() (*Config, error) {
	config := DefaultConfig()

	if levelStr := os.Getenv("EMBEDCODEC_LOG_LEVEL"); levelStr != "" {
		level, err := ParseLevel(levelStr)
		if err != nil {
			return nil, err
		}
		config.Level = level
	}
	if formatStr := os.Getenv("EMBEDCODEC_LOG_FORMAT"); formatStr != "" {
		format, err := ParseFormat(formatStr)
		if err != nil {
			return nil, err
		}
		config.Format = format
	}
	if outputStr := os.Getenv("EMBEDCODEC_LOG_OUTPUT"); outputStr != "" {
		output, err := parseOutput(outputStr)
		if err != nil {
			return nil, err
		}
		config.Output = output
	}
	if ts := os.Getenv("EMBEDCODEC_LOG_TIMESTAMP"); ts != "" {
		config.Timestamp = ts == "true" || ts == "1"
	}
	if components := os.Getenv("EMBEDCODEC_LOG_COMPONENTS"); components != "" {
		for _, comp := range strings.Split(components, ",") {
			comp = strings.TrimSpace(comp)
			if comp != "" {
				config.Components[Component(comp)] = true
			}
		}
	}

	return config, nil
}

// ParseLevel parses a level name to a Level.
func ParseLevel(levelStr string) (Level, error) {
	switch strings.ToUpper(levelStr) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown level: %s", levelStr)
	}
}

// ParseFormat parses a format name to a Format.
func ParseFormat(formatStr string) (Format, error) {
	switch strings.ToLower(formatStr) {
	case "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "color", "colored":
		return FormatColor, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", formatStr)
	}
}

// parseOutput resolves an output name to a writer.
func parseOutput(outputStr string) (io.Writer, error) {
	switch strings.ToLower(outputStr) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "null", "none":
		return io.Discard, nil
	default:
		if strings.HasPrefix(outputStr, "file:") {
			filePath := strings.TrimPrefix(outputStr, "file:")
			if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %v", err)
			}
			file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file: %v", err)
			}
			return file, nil
		}
		return nil, fmt.Errorf("unknown output: %s", outputStr)
	}
}

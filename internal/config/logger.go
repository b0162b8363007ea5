package config

import (
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from the logging settings
func (c *Config) NewLogger(out io.Writer) (*logrus.Logger, error) {
	level := logrus.InfoLevel
	if c.LogLevel != "" {
		parsed, err := logrus.ParseLevel(c.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("config error: invalid log level %q: %w", c.LogLevel, err)
		}
		level = parsed
	}

	logger := logrus.New()
	logger.SetLevel(level)
	if out != nil {
		logger.SetOutput(out)
	}

	switch c.LogFormat {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package logging builds the zap logger shared by the commands.
package logging

import (
	"strings"

	"go.uber.org/zap"
)

// NewLogger returns a console logger for "development" and a JSON
// production logger for anything else.
func NewLogger(env string) *zap.Logger {
	var logger *zap.Logger
	var err error
	switch strings.ToUpper(env) {
	case "DEVELOPMENT", "DEV":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

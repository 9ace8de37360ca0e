package logger

import "go.uber.org/zap"

// New builds the process logger. Debug gets the human-readable development
// encoder; production gets JSON.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

package logger

import "go.uber.org/zap"

// New builds the process logger. Development mode logs human readable
// output at debug level.
func New(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

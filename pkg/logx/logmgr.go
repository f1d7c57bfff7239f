//nolint:gochecknoglobals
package logx

import (
	"context"
	"log"
)

// ServiceContext - static service identity attached to every log line.
type ServiceContext struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
}

// Logger - logger interface.
type Logger interface {
	// LogInfo logs a message at Info level.
	LogInfo(ctx context.Context, msg string)
	// LogDebug logs a message at Debug level.
	LogDebug(ctx context.Context, msg string)
	// LogWarning logs a message at Warning level.
	LogWarning(ctx context.Context, msg string, errs ...error)
	// LogError logs a message at Error level.
	LogError(ctx context.Context, msg string, errs ...error)
	// LogPanic logs a message at Panic level then panics.
	LogPanic(ctx context.Context, msg string, errs ...error)
	// LogFatal logs a message at Fatal Level.
	// The logger then calls os.Exit(1), even if logging at FatalLevel is
	// disabled.
	LogFatal(ctx context.Context, msg string, errs ...error)

	GetLogger() interface{}
}

var logger Logger

// DefaultLogger - fallback Logger backed by the standard library.
type DefaultLogger struct{}

// GetLogger - returns an instance of the Logger.
// If called before SetupLogger a stdlib-backed logger will be returned.
func GetLogger() Logger {
	if logger == nil {
		return &DefaultLogger{}
	}

	return logger
}

// LogInfo stdlib fallback.
func (nl *DefaultLogger) LogInfo(ctx context.Context, msg string) {
	log.Println("INFO " + msg)
}

// LogDebug stdlib fallback.
func (nl *DefaultLogger) LogDebug(ctx context.Context, msg string) {
	log.Println("DEBUG " + msg)
}

// LogWarning stdlib fallback.
func (nl *DefaultLogger) LogWarning(ctx context.Context, msg string, errs ...error) {
	log.Println("WARN " + msg)
}

// LogError stdlib fallback.
func (nl *DefaultLogger) LogError(ctx context.Context, msg string, errs ...error) {
	log.Println("ERROR " + msg)
}

// LogPanic stdlib fallback.
func (nl *DefaultLogger) LogPanic(ctx context.Context, msg string, errs ...error) {
	log.Panicln("PANIC " + msg)
}

// LogFatal stdlib fallback.
func (nl *DefaultLogger) LogFatal(ctx context.Context, msg string, errs ...error) {
	log.Fatalln("FATAL " + msg)
}

// GetLogger stdlib fallback.
func (nl *DefaultLogger) GetLogger() interface{} { return nil }

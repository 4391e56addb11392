package build

import (
	"os"

	"github.com/btcsuite/btclog/v2"
)

// subsystemLoggers records every subsystem logger handed out by
// GenSubLogger, keyed by its tag, so the supported-subsystems list matches
// the packages that registered loggers.
var subsystemLoggers = make(SubLoggers)

// SubLoggers is a type that holds a map of subsystem loggers keyed by their
// subsystem name.
type SubLoggers map[string]btclog.Logger

// SubLoggerManager wraps a btclog sub-logger manager and keeps track of the
// subsystem loggers handed out so levels can be adjusted per subsystem.
type SubLoggerManager struct {
	mgr *btclog.SubLoggerManager
}

// NewSubLoggerManager constructs a manager writing through the given
// handlers.
func NewSubLoggerManager(handlers ...btclog.Handler) *SubLoggerManager {
	return &SubLoggerManager{
		mgr: btclog.NewSubLoggerManager(handlers...),
	}
}

// GenSubLogger returns a logger for the given subsystem tag and records it in
// the registry.
func (m *SubLoggerManager) GenSubLogger(tag string) btclog.Logger {
	logger := m.mgr.GenSubLogger(tag, func() {})
	subsystemLoggers[tag] = logger
	return logger
}

// SubLoggers returns the map of all registered subsystem loggers.
func (m *SubLoggerManager) SubLoggers() SubLoggers {
	return subsystemLoggers
}

// SupportedSubsystems returns a slice of strings containing the names of the
// supported subsystems.
func (m *SubLoggerManager) SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	return subsystems
}

// SetLogLevel assigns an individual subsystem logger a new log level.
func (m *SubLoggerManager) SetLogLevel(subsystemID string, logLevel string) {
	m.mgr.SetLogLevel(subsystemID, logLevel)
}

// SetLogLevels assigns all subsystem loggers the same new log level.
func (m *SubLoggerManager) SetLogLevels(logLevel string) {
	m.mgr.SetLogLevels(logLevel)
}

// NewSubLogger constructs a new subsystem logger. If no generator is
// provided, logging for the subsystem is disabled until a real logger is
// installed via the package's UseLogger function.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	if genSubLogger != nil {
		return genSubLogger(subsystem)
	}

	return btclog.Disabled
}

// NewConsoleHandler returns a btclog handler writing human readable log lines
// to stdout.
func NewConsoleHandler(noTimestamps bool) btclog.Handler {
	var opts []btclog.HandlerOption
	if noTimestamps {
		opts = append(opts, btclog.WithNoTimestamp())
	}

	return btclog.NewDefaultHandler(os.Stdout, opts...)
}

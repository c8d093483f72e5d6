package isovol

import "time"

// ModeFlag is the lowest severity that will be printed.
type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

var (
	// Verbose asks commands for exceptionally chatty output.
	Verbose bool

	// mode is the severity floor for this isovol process.
	mode ModeFlag
)

// Logger records messages at a range of severities.  The default
// implementation writes to a rotating log file or stdout; embedders can
// substitute their own.
type Logger interface {
	// Debugf writes a Printf-style message at Debug level.
	Debugf(format string, args ...interface{})

	// Infof writes a Printf-style message at Info level.
	Infof(format string, args ...interface{})

	// Warningf writes a Printf-style message at Warning level.
	Warningf(format string, args ...interface{})

	// Errorf writes a Printf-style message at Error level.
	Errorf(format string, args ...interface{})

	// Criticalf writes a Printf-style message at Critical level.
	Criticalf(format string, args ...interface{})

	// Shutdown flushes and closes any underlying log file.
	Shutdown()
}

// SetLogMode sets the severity floor below which messages are dropped.
// SetLogMode(isovol.WarningMode) keeps Warningf, Errorf, and Criticalf;
// SilentMode turns logging off entirely.
func SetLogMode(newMode ModeFlag) {
	mode = newMode
}

func Debugf(format string, args ...interface{}) {
	if mode > DebugMode {
		return
	}
	logger.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	if mode > InfoMode {
		return
	}
	logger.Infof(format, args...)
}

func Warningf(format string, args ...interface{}) {
	if mode > WarningMode {
		return
	}
	logger.Warningf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	if mode > ErrorMode {
		return
	}
	logger.Errorf(format, args...)
}

func Criticalf(format string, args ...interface{}) {
	if mode > CriticalMode {
		return
	}
	logger.Criticalf(format, args...)
}

// Shutdown closes the default logger.
func Shutdown() {
	logger.Shutdown()
}

// TimeLog appends the time elapsed since its creation to every message,
// for timing extractions and sweeps:
//
//	tlog := NewTimeLog()
//	...
//	tlog.Debugf("extracted %d triangles", n)
type TimeLog struct {
	logger Logger
	start  time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{logger, time.Now()}
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	if mode > DebugMode {
		return
	}
	args = append(args, time.Since(t.start))
	t.logger.Debugf(format+": %s\n", args...)
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	if mode > InfoMode {
		return
	}
	args = append(args, time.Since(t.start))
	t.logger.Infof(format+": %s\n", args...)
}

func (t TimeLog) Warningf(format string, args ...interface{}) {
	if mode > WarningMode {
		return
	}
	args = append(args, time.Since(t.start))
	t.logger.Warningf(format+": %s\n", args...)
}

func (t TimeLog) Errorf(format string, args ...interface{}) {
	if mode > ErrorMode {
		return
	}
	args = append(args, time.Since(t.start))
	t.logger.Errorf(format+": %s\n", args...)
}

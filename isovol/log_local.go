package isovol

import (
	"fmt"
	"log"

	"github.com/natefinch/lumberjack"
)

// stdLogger routes messages through the standard log package, which writes to
// stdout until SetLogger points it at a rotating log file.
type stdLogger struct {
	*lumberjack.Logger
}

var logger stdLogger

// LogConfig configures the rotating file log.
type LogConfig struct {
	Logfile string
	MaxSize int `toml:"max_log_size"`
	MaxAge  int `toml:"max_log_age"`
}

// SetLogger installs a rotating file log, or leaves output on stdout when no
// file is configured.
func (c *LogConfig) SetLogger() {
	if c == nil || c.Logfile == "" {
		Infof("Sending log messages to stdout since no log file specified.")
		return
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize, // megabytes
		MaxAge:   c.MaxAge,  // days
	}
	log.SetOutput(l)
	logger = stdLogger{l}
}

// printf tags the message with its severity.  Output goes through the standard
// log package so a redirect via log.SetOutput covers every severity.
func (sl stdLogger) printf(severity, format string, args ...interface{}) {
	log.Printf(severity+format, args...)
}

func (sl stdLogger) Debugf(format string, args ...interface{}) {
	sl.printf(" DEBUG ", format, args...)
}

func (sl stdLogger) Infof(format string, args ...interface{}) {
	sl.printf(" INFO ", format, args...)
}

func (sl stdLogger) Warningf(format string, args ...interface{}) {
	sl.printf(" WARNING ", format, args...)
}

func (sl stdLogger) Errorf(format string, args ...interface{}) {
	sl.printf(" ERROR ", format, args...)
}

func (sl stdLogger) Criticalf(format string, args ...interface{}) {
	sl.printf(" CRITICAL ", format, args...)
}

func (sl stdLogger) Shutdown() {
	if sl.Logger != nil {
		log.Printf("Closing log file...\n")
		sl.Close()
	}
}

// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

// Package plog implements leveled loggers cheap enough to be left in the
// emission paths of method synthesis. A call to a disabled level costs a
// comparison and nothing is formatted.
//
// Log lines have the form:
//
//	detour/<level> - <timestamp> - <scope>: <message>
//
// Loggers derived with Scope() share the output and the error channel of
// their parent.
package plog

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the log level. Higher levels include lowers.
type LogLevel int

const (
	Disabled LogLevel = iota
	Error
	Info
	Debug
)

var levelNames = [...]string{
	Disabled: "disabled",
	Error:    "error",
	Info:     "info",
	Debug:    "debug",
}

func (l LogLevel) String() string {
	if l < Disabled || l > Debug {
		return levelNames[Disabled]
	}
	return levelNames[l]
}

// ParseLogLevel returns the log level named `level`, case-insensitively.
// Unknown names are Disabled.
func ParseLogLevel(level string) LogLevel {
	level = strings.ToLower(strings.TrimSpace(level))
	for l, name := range levelNames {
		if name == level {
			return LogLevel(l)
		}
	}
	return Disabled
}

// TimestampLayout has microsecond precision.
const TimestampLayout = "2006-01-02T15:04:05.999999"

type Logger struct {
	level LogLevel
	scope string
	out   *output
	// Logged errors are also sent into errChan when not nil, no matter the
	// level. The send never blocks.
	errChan chan<- error
}

// output serializes the lines of the loggers sharing it.
type output struct {
	lock sync.Mutex
	w    io.Writer
}

// NewLogger returns a logger writing the logs up to `level` into `out`.
// Logged errors are also sent into `errChan` when not nil.
func NewLogger(level LogLevel, out io.Writer, errChan chan error) *Logger {
	l := &Logger{level: level, errChan: errChan}
	if level > Disabled && out != nil {
		l.out = &output{w: out}
	} else {
		l.level = Disabled
	}
	return l
}

// NewDisabledLogger returns a logger discarding everything.
func NewDisabledLogger() *Logger {
	return NewLogger(Disabled, nil, nil)
}

// Scope returns a logger prefixing its messages with `name`.
func (l *Logger) Scope(name string) *Logger {
	scoped := *l
	if l.scope != "" {
		name = l.scope + "/" + name
	}
	scoped.scope = name
	return &scoped
}

func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) Debug(v ...interface{}) {
	if l.level >= Debug {
		l.write(Debug, fmt.Sprint(v...))
	}
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.level >= Debug {
		l.write(Debug, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Info(v ...interface{}) {
	if l.level >= Info {
		l.write(Info, fmt.Sprint(v...))
	}
}

func (l *Logger) Infof(format string, v ...interface{}) {
	if l.level >= Info {
		l.write(Info, fmt.Sprintf(format, v...))
	}
}

// Error logs `err`, with its stack trace when available at debug level.
func (l *Logger) Error(err error) {
	if l.errChan != nil {
		select {
		case l.errChan <- err:
		default:
		}
	}
	if l.level < Error {
		return
	}
	format := "%v"
	if l.level >= Debug {
		format = "%+v"
	}
	l.write(Error, fmt.Sprintf(format, err))
}

func (l *Logger) write(level LogLevel, message string) {
	var line strings.Builder
	line.WriteString("detour/")
	line.WriteString(level.String())
	line.WriteString(" - ")
	line.WriteString(time.Now().Format(TimestampLayout))
	line.WriteString(" - ")
	if l.scope != "" {
		line.WriteString(l.scope)
		line.WriteString(": ")
	}
	line.WriteString(message)
	line.WriteByte('\n')

	l.out.lock.Lock()
	defer l.out.lock.Unlock()
	_, _ = io.WriteString(l.out.w, line.String())
}

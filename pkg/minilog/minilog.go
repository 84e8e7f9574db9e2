// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package minilog provides a leveled, multi-destination logger. Callers add
// named loggers (stderr, a file, a ring buffer, ...) each with its own level
// and color setting; log calls fan out to every logger whose level admits
// the message.
package minilog

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "debug"
	case INFO:
		return "info"
	case WARN:
		return "warn"
	case ERROR:
		return "error"
	case FATAL:
		return "fatal"
	}
	return "unknown"
}

// ParseLevel parses a level name (case-insensitive) into a Level. Returns an
// error and INFO if the name is not recognized.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "fatal":
		return FATAL, nil
	}
	return INFO, fmt.Errorf("no such level: %v", s)
}

const (
	colorLine  = "\x1b[0m"
	colorDebug = "\x1b[37m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
	colorFatal = "\x1b[35m"
	Reset      = "\x1b[0m"
)

type stdlogger struct {
	w io.Writer
}

func (s stdlogger) Println(v ...interface{}) {
	fmt.Fprintln(s.w, v...)
}

var (
	mu      sync.Mutex
	loggers = map[string]*minilogger{}

	// LevelFlag binds -level on the command line of every program importing
	// this package, letting the user pick a startup log level the way
	// cmd/minimega does.
	LevelFlag = flag.String("level", "info", "set log level: [debug, info, warn, error, fatal]")
	colorFlag = flag.Bool("logcolor", false, "colorize log output")
)

// Init installs the default stderr logger at the level named by -level (or
// INFO if unparseable) honoring -logcolor. Must be called once at process
// startup after flag.Parse().
func Init() {
	level, err := ParseLevel(*LevelFlag)
	if err != nil {
		level = INFO
	}

	AddLogger("stdio", os.Stderr, level, *colorFlag)
}

// AddLogger registers a named logger that writes to w at the given level.
// Re-adding an existing name replaces it.
func AddLogger(name string, w io.Writer, level Level, color bool) {
	mu.Lock()
	defer mu.Unlock()

	loggers[name] = &minilogger{
		logger: stdlogger{w: w},
		Level:  level,
		Color:  color,
	}
}

// AddRingLogger registers a named in-memory ring-buffer logger of size
// entries at the given level and returns it, so the caller can later Dump
// its contents (e.g. to answer a debug/introspection request) without
// re-reading whatever file or terminal the other loggers write to.
func AddRingLogger(name string, size int, level Level) *Ring {
	mu.Lock()
	defer mu.Unlock()

	r := NewRing(size)
	loggers[name] = &minilogger{
		logger: r,
		Level:  level,
	}
	return r
}

// DelLogger removes a named logger.
func DelLogger(name string) {
	mu.Lock()
	defer mu.Unlock()

	delete(loggers, name)
}

// AddFilter adds a substring filter to a named logger; any message
// containing the filter text is dropped by that logger.
func AddFilter(name, filter string) {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[name]; ok {
		l.filters = append(l.filters, filter)
	}
}

func dispatch(level Level, name string, format string, arg ...interface{}) {
	mu.Lock()
	targets := make([]*minilogger, 0, len(loggers))
	for _, l := range loggers {
		if level >= l.Level {
			targets = append(targets, l)
		}
	}
	mu.Unlock()

	for _, l := range targets {
		if format == "" {
			l.logln(level, name, arg...)
		} else {
			l.log(level, name, format, arg...)
		}
	}
}

func Debug(format string, arg ...interface{}) { dispatch(DEBUG, "", format, arg...) }
func Debugln(arg ...interface{})              { dispatch(DEBUG, "", "", arg...) }
func Info(format string, arg ...interface{})  { dispatch(INFO, "", format, arg...) }
func Infoln(arg ...interface{})               { dispatch(INFO, "", "", arg...) }
func Warn(format string, arg ...interface{})  { dispatch(WARN, "", format, arg...) }
func Warnln(arg ...interface{})               { dispatch(WARN, "", "", arg...) }
func Error(format string, arg ...interface{}) { dispatch(ERROR, "", format, arg...) }
func Errorln(arg ...interface{})              { dispatch(ERROR, "", "", arg...) }

func Fatal(format string, arg ...interface{}) {
	dispatch(FATAL, "", format, arg...)
	os.Exit(1)
}

func Fatalln(arg ...interface{}) {
	dispatch(FATAL, "", "", arg...)
	os.Exit(1)
}

/*
 * Copyright 2019 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package log

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log levels re-exported so callers never import logrus directly.
const (
	PanicLevel = logrus.PanicLevel
	FatalLevel = logrus.FatalLevel
	ErrorLevel = logrus.ErrorLevel
	WarnLevel  = logrus.WarnLevel
	InfoLevel  = logrus.InfoLevel
	DebugLevel = logrus.DebugLevel
)

const modulePrefix = "github.com/CovenantSQL/tablebridge/"

var (
	// PkgDebugLogFilter drops entries from the named package when they are
	// more verbose than the mapped level.
	PkgDebugLogFilter = map[string]logrus.Level{
		"metric": InfoLevel,
	}
	// SimpleLog disables the caller hook, "Y" for true. Defined in `go build`.
	SimpleLog = "N"

	discard = &logrus.Logger{Out: &NilWriter{}, Formatter: &NilFormatter{}, Hooks: make(logrus.LevelHooks)}
)

// Fields defines the field map to pass to `WithFields`.
type Fields logrus.Fields

// Entry wraps logrus entry type.
type Entry logrus.Entry

// CallerHook annotates entries with the calling function and, for the
// configured levels, a trimmed stack.
type CallerHook struct {
	StackLevels []logrus.Level
}

// StandardCallerHook returns the hook installed on the standard logger.
func StandardCallerHook() *CallerHook {
	if SimpleLog == "Y" {
		return &CallerHook{}
	}
	return &CallerHook{StackLevels: []logrus.Level{PanicLevel, FatalLevel}}
}

// Fire defines hook event handler.
func (hook *CallerHook) Fire(entry *logrus.Entry) error {
	pkg, caller := hook.caller(entry)
	if level, ok := PkgDebugLogFilter[pkg]; ok && entry.Level > level {
		entry.Logger = discard
		return nil
	}
	if caller != "" {
		entry.Data["caller"] = caller
	}
	return nil
}

// Levels define hook applicable level.
func (hook *CallerHook) Levels() []logrus.Level {
	if SimpleLog == "Y" {
		return nil
	}
	return logrus.AllLevels
}

func (hook *CallerHook) caller(entry *logrus.Entry) (pkg string, caller string) {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(4, pcs)
	if n == 0 {
		return
	}

	var (
		frames = runtime.CallersFrames(pcs[:n])
		stack  []string
		found  bool
	)
	for {
		f, more := frames.Next()
		inLogging := strings.Contains(f.Function, "sirupsen/logrus") ||
			strings.HasPrefix(f.Function, modulePrefix+"utils/log.")
		if !found && !inLogging && f.Function != "" {
			name := strings.TrimPrefix(f.Function, modulePrefix)
			slash := strings.LastIndex(name, "/") + 1
			if dot := strings.Index(name[slash:], "."); dot > 0 {
				pkg = name[slash : slash+dot]
			}
			caller = fmt.Sprintf("%s:%d %s", filepath.Base(f.File), f.Line, name)
			found = true
		}
		if found && f.Line > 0 {
			stack = append(stack, fmt.Sprintf("#%d %s@%s:%d",
				len(stack), strings.TrimPrefix(f.Function, modulePrefix), filepath.Base(f.File), f.Line))
		}
		if !more {
			break
		}
	}

	for _, level := range hook.StackLevels {
		if entry.Level == level && len(stack) > 0 {
			entry.Data["stack"] = stack
			break
		}
	}
	return
}

func init() {
	logrus.AddHook(StandardCallerHook())
}

// SetOutput sets the standard logger output.
func SetOutput(out io.Writer) {
	logrus.SetOutput(out)
}

// SetFormatter sets the standard logger formatter.
func SetFormatter(formatter logrus.Formatter) {
	logrus.SetFormatter(formatter)
}

// SetLevel sets the standard logger level.
func SetLevel(level logrus.Level) {
	logrus.SetLevel(level)
}

// GetLevel returns the standard logger level.
func GetLevel() logrus.Level {
	return logrus.GetLevel()
}

// ParseLevel parse the level string and returns the logger level.
func ParseLevel(lvl string) (logrus.Level, error) {
	return logrus.ParseLevel(lvl)
}

// SetStringLevel enforce current log level, falling back to defaultLevel
// when lvl does not parse.
func SetStringLevel(lvl string, defaultLevel logrus.Level) {
	if l, err := ParseLevel(lvl); err != nil {
		SetLevel(defaultLevel)
	} else {
		SetLevel(l)
	}
}

// WithError creates an entry from the standard logger carrying err.
func WithError(err error) *Entry {
	return (*Entry)(logrus.WithError(err))
}

// WithField creates an entry from the standard logger with one field.
func WithField(key string, value interface{}) *Entry {
	return (*Entry)(logrus.WithField(key, value))
}

// WithFields creates an entry from the standard logger with fields.
func WithFields(fields Fields) *Entry {
	return (*Entry)(logrus.WithFields(logrus.Fields(fields)))
}

func Debug(args ...interface{})                 { logrus.Debug(args...) }
func Info(args ...interface{})                  { logrus.Info(args...) }
func Warning(args ...interface{})               { logrus.Warning(args...) }
func Error(args ...interface{})                 { logrus.Error(args...) }
func Fatal(args ...interface{})                 { logrus.Fatal(args...) }
func Debugf(format string, args ...interface{}) { logrus.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { logrus.Infof(format, args...) }
func Warningf(format string, args ...interface{}) {
	logrus.Warningf(format, args...)
}
func Errorf(format string, args ...interface{}) { logrus.Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { logrus.Fatalf(format, args...) }

func (entry *Entry) raw() *logrus.Entry { return (*logrus.Entry)(entry) }

// WithError adds an error field to the entry.
func (entry *Entry) WithError(err error) *Entry {
	return (*Entry)(entry.raw().WithError(err))
}

// WithField adds a single field to the entry.
func (entry *Entry) WithField(key string, value interface{}) *Entry {
	return (*Entry)(entry.raw().WithField(key, value))
}

// WithFields adds a map of fields to the entry.
func (entry *Entry) WithFields(fields Fields) *Entry {
	return (*Entry)(entry.raw().WithFields(logrus.Fields(fields)))
}

func (entry *Entry) Debug(args ...interface{})   { entry.raw().Debug(args...) }
func (entry *Entry) Info(args ...interface{})    { entry.raw().Info(args...) }
func (entry *Entry) Warning(args ...interface{}) { entry.raw().Warning(args...) }
func (entry *Entry) Error(args ...interface{})   { entry.raw().Error(args...) }
func (entry *Entry) Fatal(args ...interface{})   { entry.raw().Fatal(args...) }
func (entry *Entry) Debugf(format string, args ...interface{}) {
	entry.raw().Debugf(format, args...)
}
func (entry *Entry) Infof(format string, args ...interface{}) {
	entry.raw().Infof(format, args...)
}
func (entry *Entry) Warningf(format string, args ...interface{}) {
	entry.raw().Warningf(format, args...)
}
func (entry *Entry) Errorf(format string, args ...interface{}) {
	entry.raw().Errorf(format, args...)
}

// NilFormatter discards the log entry.
type NilFormatter struct{}

// Format returns nothing to write.
func (f *NilFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return nil, nil
}

// NilWriter discards everything written to it.
type NilWriter struct{}

// Write reports success without writing.
func (w *NilWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

// Package log provides leveled, structured logging for tiercache in the
// log.Debug(msg, log.Pairs{...}) call shape used throughout the engine.
package log

import (
	"os"
	"sync"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Pairs is a map of key-value detail attached to a log line.
type Pairs map[string]interface{}

// Logger wraps a go-kit leveled logger with the tiercache call conventions.
type Logger struct {
	base   kitlog.Logger
	level  string
	mtx    sync.Mutex
	warned map[string]bool
}

var std = New("", "INFO")

// New constructs a Logger that writes to logFile (or stdout when empty),
// rotated via lumberjack, filtering below minLevel ("DEBUG", "INFO", "WARN", "ERROR").
func New(logFile, minLevel string) *Logger {
	var w = os.Stdout
	var base kitlog.Logger
	if logFile != "" {
		base = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     28,
		}))
	} else {
		base = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	}
	base = kitlog.With(base, "ts", kitlog.DefaultTimestampUTC)

	l := &Logger{base: base, level: minLevel, warned: make(map[string]bool)}
	return l
}

// Init replaces the package-level default logger; called once at startup
// after configuration has been loaded.
func Init(logFile, minLevel string) {
	std = New(logFile, minLevel)
}

func (l *Logger) enabled(lvl string) bool {
	order := map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}
	want, ok := order[lvl]
	if !ok {
		want = 1
	}
	have, ok := order[l.level]
	if !ok {
		have = 1
	}
	return want >= have
}

func (l *Logger) log(lvl string, msg string, detail Pairs) {
	if !l.enabled(lvl) {
		return
	}
	var logger kitlog.Logger
	switch lvl {
	case "DEBUG":
		logger = level.Debug(l.base)
	case "WARN":
		logger = level.Warn(l.base)
	case "ERROR":
		logger = level.Error(l.base)
	default:
		logger = level.Info(l.base)
	}
	kvs := make([]interface{}, 0, 2+len(detail)*2)
	kvs = append(kvs, "event", msg)
	for k, v := range detail {
		kvs = append(kvs, k, v)
	}
	logger.Log(kvs...)
}

// Debug logs msg at DEBUG level with structured detail.
func (l *Logger) Debug(msg string, detail Pairs) { l.log("DEBUG", msg, detail) }

// Info logs msg at INFO level with structured detail.
func (l *Logger) Info(msg string, detail Pairs) { l.log("INFO", msg, detail) }

// Warn logs msg at WARN level with structured detail.
func (l *Logger) Warn(msg string, detail Pairs) { l.log("WARN", msg, detail) }

// Error logs msg at ERROR level with structured detail.
func (l *Logger) Error(msg string, detail Pairs) { l.log("ERROR", msg, detail) }

// WarnOnce logs a WARN line the first time it is called for a given key, and
// is a no-op on subsequent calls for that same key, to avoid flooding the log
// with a recurring condition (e.g. a remote tier that stays unavailable).
func (l *Logger) WarnOnce(key, msg string, detail Pairs) {
	l.mtx.Lock()
	already := l.warned[key]
	if !already {
		l.warned[key] = true
	}
	l.mtx.Unlock()
	if already {
		return
	}
	l.log("WARN", msg, detail)
}

// Fatal logs err at ERROR level and terminates the process, mirroring the
// teacher's top-level log.Fatal(err) call used at startup before the
// structured logger is fully configured.
func (l *Logger) Fatal(err error) {
	l.log("ERROR", "fatal", Pairs{"detail": err.Error()})
	os.Exit(1)
}

// Debug logs msg at DEBUG level on the package-level default logger.
func Debug(msg string, detail Pairs) { std.Debug(msg, detail) }

// Info logs msg at INFO level on the package-level default logger.
func Info(msg string, detail Pairs) { std.Info(msg, detail) }

// Warn logs msg at WARN level on the package-level default logger.
func Warn(msg string, detail Pairs) { std.Warn(msg, detail) }

// Error logs msg at ERROR level on the package-level default logger.
func Error(msg string, detail Pairs) { std.Error(msg, detail) }

// WarnOnce logs a WARN line once per key on the package-level default logger.
func WarnOnce(key, msg string, detail Pairs) { std.WarnOnce(key, msg, detail) }

// Fatal logs err and terminates the process via the package-level default logger.
func Fatal(err error) { std.Fatal(err) }

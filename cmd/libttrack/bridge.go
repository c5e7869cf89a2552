package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/cgo"
	"sync"

	"github.com/tinytrack/ttrack"
	"github.com/tinytrack/ttrack/internal/infra/logger"
)

const (
	codeOK    = 0
	codeError = -1
)

var (
	errMu   sync.Mutex
	lastErr string

	errBadHandle = errors.New("invalid logger handle")
)

func setLastError(err error) {
	errMu.Lock()
	defer errMu.Unlock()
	if err == nil {
		lastErr = ""
		return
	}
	lastErr = err.Error()
}

func lastError() string {
	errMu.Lock()
	defer errMu.Unlock()
	return lastErr
}

// result records err as the last error and maps it to a C return code.
func result(err error) int {
	setLastError(err)
	if err != nil {
		logger.L().Error("libttrack.call_failed", "error", err.Error())
		return codeError
	}
	return codeOK
}

func newLogger(dir, experiment, run, source string) uintptr {
	l, err := ttrack.NewLocalLogger(dir, experiment, run, source)
	if err != nil {
		result(err)
		return 0
	}
	setLastError(nil)
	return uintptr(cgo.NewHandle(l))
}

// loggerFrom resolves a handle. cgo.Handle.Value panics on a freed or
// unknown handle, which must not cross the C boundary.
func loggerFrom(h uintptr) (l *ttrack.LocalLogger, err error) {
	if h == 0 {
		return nil, errBadHandle
	}
	defer func() {
		if r := recover(); r != nil {
			l, err = nil, errBadHandle
		}
	}()
	l, ok := cgo.Handle(h).Value().(*ttrack.LocalLogger)
	if !ok {
		return nil, errBadHandle
	}
	return l, nil
}

func logParam(h uintptr, key, value string) int {
	l, err := loggerFrom(h)
	if err != nil {
		return result(err)
	}
	return result(l.LogParam(key, value))
}

func logMetric(h uintptr, key string, value float64) int {
	l, err := loggerFrom(h)
	if err != nil {
		return result(err)
	}
	return result(l.LogMetric(key, value))
}

func endLogger(h uintptr, status string) int {
	l, err := loggerFrom(h)
	if err != nil {
		return result(err)
	}
	if status == "" {
		return result(l.Close())
	}
	st, err := ttrack.ParseStatus(status)
	if err != nil {
		return result(err)
	}
	return result(l.End(st))
}

// freeLogger ends a still-running run as FINISHED and releases the handle.
func freeLogger(h uintptr) {
	l, err := loggerFrom(h)
	if err != nil {
		return
	}
	if err := l.Close(); err != nil {
		logger.L().Warn("libttrack.close_failed", "run_id", l.RunID(), "error", err.Error())
	}
	cgo.Handle(h).Delete()
}

// experimentsJSON returns {"<id>": "<name>", ...} for dir, or "" on error.
func experimentsJSON(dir string) string {
	names, err := ttrack.GetExperiments(dir)
	if err != nil {
		result(err)
		return ""
	}
	b, err := json.Marshal(names)
	if err != nil {
		result(fmt.Errorf("encode experiments: %w", err))
		return ""
	}
	setLastError(nil)
	return string(b)
}

// Package klog is the kernel's trace log.
//
// It is a thin layer over gVisor's log package so kernel code logs with
// printf-style levels and the level can be chosen from configuration.
package klog

import (
	"errors"
	"fmt"

	"gvisor.dev/gvisor/pkg/log"
)

// ErrUnknownLevel is returned by SetLevel for an unrecognized level name.
var ErrUnknownLevel = errors.New("klog: unknown level")

// SetLevel sets the global log level from its name.
func SetLevel(name string) error {
	switch name {
	case "", "warning", "warn":
		log.SetLevel(log.Warning)
	case "info":
		log.SetLevel(log.Info)
	case "debug", "trace":
		log.SetLevel(log.Debug)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLevel, name)
	}
	return nil
}

// Tracing reports whether syscall traces are emitted.
func Tracing() bool {
	return log.IsLogging(log.Debug)
}

// Syscall logs a syscall trace line for the given process and thread.
func Syscall(pid, tid int, name string) {
	if !log.IsLogging(log.Debug) {
		return
	}
	log.Debugf("kernel:pid[%d] tid[%d] sys_%s", pid, tid, name)
}

// Debugf logs at debug level.
func Debugf(format string, v ...any) {
	log.Debugf(format, v...)
}

// Infof logs at info level.
func Infof(format string, v ...any) {
	log.Infof(format, v...)
}

// Warningf logs at warning level.
func Warningf(format string, v ...any) {
	log.Warningf(format, v...)
}

// Package plog is the logging facade used throughout this module.
//
// Call sites follow the convention Debugf(ctx, "message %v", args) where ctx
// is whatever object the message is about (a backend, a task, a job id) and
// implements fmt.Stringer. This mirrors the calling convention rclone's
// backends use against its fs.Debugf/fs.Logf/fs.Errorf family.
package plog

import (
	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

// SetLevel adjusts the verbosity of the package logger.
func SetLevel(level logrus.Level) {
	log.SetLevel(level)
}

// SetFormatter overrides the output formatter, e.g. for JSON log shipping.
func SetFormatter(f logrus.Formatter) {
	log.SetFormatter(f)
}

func fields(ctx fmtStringer) logrus.Fields {
	if ctx == nil {
		return logrus.Fields{}
	}
	return logrus.Fields{"subject": ctx.String()}
}

// fmtStringer is satisfied by any backend, task or job description that
// knows how to name itself in a log line.
type fmtStringer interface {
	String() string
}

// Debugf logs a debug-level message about ctx.
func Debugf(ctx fmtStringer, format string, args ...interface{}) {
	log.WithFields(fields(ctx)).Debugf(format, args...)
}

// Infof logs an info-level message about ctx.
func Infof(ctx fmtStringer, format string, args ...interface{}) {
	log.WithFields(fields(ctx)).Infof(format, args...)
}

// Logf is an alias for Infof, matching the teacher's naming for
// always-on, non-debug informational logging.
func Logf(ctx fmtStringer, format string, args ...interface{}) {
	Infof(ctx, format, args...)
}

// Errorf logs an error-level message about ctx. It does not itself return
// or wrap an error; see internal/fserrors for that.
func Errorf(ctx fmtStringer, format string, args ...interface{}) {
	log.WithFields(fields(ctx)).Errorf(format, args...)
}

// Warnf logs a warning about ctx.
func Warnf(ctx fmtStringer, format string, args ...interface{}) {
	log.WithFields(fields(ctx)).Warnf(format, args...)
}

// Named adapts a plain string to the fmtStringer interface so call sites
// that only have a name (not a full backend/task object) can still log.
type Named string

// String implements fmtStringer.
func (n Named) String() string { return string(n) }

// Package log is a thin printf-style facade over glog so that callers
// never import glog directly.
package log

import (
	"fmt"

	"github.com/golang/glog"
)

const depth = 2

func IsEnableDebug() bool {
	return bool(glog.V(1))
}

func Debug(format string, v ...interface{}) {
	if glog.V(1) {
		glog.InfoDepth(depth, "[DEBUG] "+fmt.Sprintf(format, v...))
	}
}

func Info(format string, v ...interface{}) {
	glog.InfoDepth(depth, fmt.Sprintf(format, v...))
}

func Warn(format string, v ...interface{}) {
	glog.WarningDepth(depth, fmt.Sprintf(format, v...))
}

func Error(format string, v ...interface{}) {
	glog.ErrorDepth(depth, fmt.Sprintf(format, v...))
}

func Fatal(format string, v ...interface{}) {
	glog.FatalDepth(depth, fmt.Sprintf(format, v...))
}

// Flush writes any buffered log lines out. Call before process exit.
func Flush() {
	glog.Flush()
}

package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	logrusPkg  = "sirupsen/logrus"
	wrapperPkg = "cryptoconnect/logger."
	// runtime.Callers, Fire, and the logrus hook dispatch.
	callerSkip = 6
)

// callerHook points the reported caller at the first frame outside of logrus
// and the Entry wrappers in this package.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	if entry.Logger == nil || !entry.Logger.ReportCaller {
		return nil
	}
	pcs := make([]uintptr, 16)
	n := runtime.Callers(callerSkip, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, logrusPkg) && !strings.Contains(frame.Function, wrapperPkg) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

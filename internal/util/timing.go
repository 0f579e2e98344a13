package util

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// TrackTime logs at debug level how long op took since start. fields name what
// the operation worked on, e.g. the vehicle or run.
func TrackTime(op string, start time.Time, fields log.Fields) {
	log.WithFields(fields).
		WithField("elapsed_ms", time.Since(start).Milliseconds()).
		Debugf("%s finished", op)
}

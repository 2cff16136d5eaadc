package app

import (
	"os"

	"github.com/sirupsen/logrus"
)

// cleanupRunDir removes a run's local dump and chunk artifacts after the
// uploads are confirmed. Failures are logged and swallowed: the backup
// itself succeeded and the next run's diff skips anything already uploaded.
func cleanupRunDir(dir string, log *logrus.Entry) {
	if err := os.RemoveAll(dir); err != nil {
		log.WithError(err).WithField("dir", dir).Warn("cleanup failed, leaving local artifacts in place")
		return
	}
	log.WithField("dir", dir).Debug("local artifacts removed")
}

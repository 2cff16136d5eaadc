package logging

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// Init sets the global log level and format. The --verbose flag wins over
// the configured level.
func Init(level string, verbose bool) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	if verbose {
		log.SetLevel(log.DebugLevel)
		return
	}

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

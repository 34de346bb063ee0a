package worker

import (
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("CHATHISTORY_WORKER_DEBUG"), "1")

func debugLog(format string, args ...interface{}) {
	if workerDebugEnabled {
		log.Debug().Str("component", "worker").Msgf(format, args...)
	}
}

package testlog

import (
	"testing"

	"github.com/danmuck/labdeck/internal/logging"
	"github.com/rs/zerolog/log"
)

// Start configures test logging and brackets the test's output with start
// and end lines so interleaved package logs stay attributable.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Msgf("test.start name=%s", t.Name())
	t.Cleanup(func() {
		if t.Failed() {
			log.Warn().Msgf("test.end name=%s failed=true", t.Name())
			return
		}
		log.Debug().Msgf("test.end name=%s", t.Name())
	})
}

package observability

import (
	"sync"

	"github.com/danmuck/rp1210test/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var initOnce sync.Once

// InitLogger applies the runtime logging profile and returns a logger tagged with app.
// The global logger is replaced on the first call only.
func InitLogger(app string) zerolog.Logger {
	initOnce.Do(func() {
		logging.ConfigureRuntime()
		log.Logger = log.Logger.With().Str("app", app).Logger()
	})
	return log.Logger
}

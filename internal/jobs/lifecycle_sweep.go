package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alarmdeck/alarmdeck/internal/services"
)

// safeTick runs one iteration of a periodic job, recovering a panic so a
// single bad record cannot kill the whole loop
func safeTick(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job", name).Interface("panic", r).Msg("recovered from panic in periodic job")
		}
	}()
	fn()
}

// LifecycleSweeper periodically runs the lifecycle rule sweep over all
// open alarm processing records
type LifecycleSweeper struct {
	lifecycle *services.LifecycleService
}

// NewLifecycleSweeper creates a new lifecycle sweeper
func NewLifecycleSweeper(lifecycle *services.LifecycleService) *LifecycleSweeper {
	return &LifecycleSweeper{lifecycle: lifecycle}
}

// Start begins the periodic sweep
func (s *LifecycleSweeper) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			safeTick("lifecycle_sweep", func() {
				acted, err := s.lifecycle.Sweep(context.Background())
				if err != nil {
					log.Error().Err(err).Msg("lifecycle sweep error")
				} else if acted > 0 {
					log.Info().Int("acted", acted).Msg("lifecycle sweep applied rules")
				}
			})
		case <-stop:
			log.Info().Msg("lifecycle sweeper stopped")
			return
		}
	}
}

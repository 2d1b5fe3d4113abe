package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alarmdeck/alarmdeck/internal/services"
)

// EscalationLoop advances active escalation executions past timed-out steps
type EscalationLoop struct {
	escalation *services.EscalationService
}

// NewEscalationLoop creates a new escalation loop
func NewEscalationLoop(escalation *services.EscalationService) *EscalationLoop {
	return &EscalationLoop{escalation: escalation}
}

// Start begins the periodic timeout check
func (l *EscalationLoop) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			safeTick("escalation_timeouts", func() {
				l.escalation.CheckTimeouts(context.Background())
			})
		case <-stop:
			log.Info().Msg("escalation loop stopped")
			return
		}
	}
}

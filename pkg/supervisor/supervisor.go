// Package supervisor runs one independent consumer per stream until shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var unitsRunning = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "eventsink_consumers_running",
	Help: "The number of stream consumers currently running",
})

// Unit is one independently scheduled consumer.
type Unit interface {
	Name() string
	Run(ctx context.Context) error
}

type Supervisor struct {
	units  []Unit
	logger *slog.Logger
}

func New(logger *slog.Logger, units ...Unit) *Supervisor {
	return &Supervisor{
		units:  units,
		logger: logger.With("component", "supervisor"),
	}
}

// Run starts every unit and returns once ctx is cancelled and every unit has
// returned. A unit that fails does not affect its siblings; its error is logged
// immediately and included in the joined result.
func (s *Supervisor) Run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		lk   sync.Mutex
		errs []error
	)

	wg.Add(len(s.units))
	for _, u := range s.units {
		go func(u Unit) {
			defer wg.Done()
			unitsRunning.Inc()
			defer unitsRunning.Dec()

			if err := u.Run(ctx); err != nil {
				s.logger.Error("consumer stopped", "stream", u.Name(), "error", err)
				lk.Lock()
				errs = append(errs, fmt.Errorf("stream %q: %w", u.Name(), err))
				lk.Unlock()
				return
			}
			s.logger.Info("consumer returned", "stream", u.Name())
		}(u)
	}
	s.logger.Info("started consumers", "count", len(s.units))

	<-ctx.Done()
	s.logger.Info("shutting down, waiting for in-flight records to finish...")
	wg.Wait()

	return errors.Join(errs...)
}

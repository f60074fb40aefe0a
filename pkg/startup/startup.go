// Package startup sequences service dependencies. Dependencies declare what
// they need running first; the manager starts them in dependency order with
// retries and stops them in reverse registration order on shutdown.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

// StartupDependency is one startable unit (database, broker, http server).
type StartupDependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type StartupStatus int

const (
	StartupStatusPending StartupStatus = iota
	StartupStatusStarted
	StartupStatusStopped
	StartupStatusFailed
)

// Startup starts registered dependencies respecting their DependsOn edges.
// A failed round retries everything not yet started, with fibonacci backoff
// between rounds.
type Startup struct {
	logger       ectologger.Logger
	order        []string
	dependencies map[string]StartupDependency
	statuses     map[string]StartupStatus
	maxAttempts  int
}

func NewStartup(logger ectologger.Logger, maxAttempts int) *Startup {
	return &Startup{
		logger:       logger,
		dependencies: make(map[string]StartupDependency),
		statuses:     make(map[string]StartupStatus),
		maxAttempts:  maxAttempts,
	}
}

// AddDependency registers a dependency. Registration order is the tie-break
// when DependsOn edges leave the order unconstrained, and shutdown walks it
// in reverse.
func (s *Startup) AddDependency(dep StartupDependency) {
	name := dep.GetName()
	if _, exists := s.dependencies[name]; !exists {
		s.order = append(s.order, name)
	}
	s.dependencies[name] = dep
}

// Start brings every dependency up, retrying failed rounds until
// maxAttempts is exhausted. Already-started dependencies are not restarted
// on retry.
func (s *Startup) Start(ctx context.Context) error {
	var lastErr error

	backoff, next := 1, 1
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		log := s.logger.WithField("attempt", attempt)
		log.Info("Starting service dependencies")

		lastErr = nil
		for _, name := range s.order {
			if err := s.startOne(ctx, s.dependencies[name]); err != nil {
				log.WithError(err).WithField("dependency", name).Error("Dependency failed to start")
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}

		log.Infof("Retrying startup in %ds", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(backoff) * time.Second):
		}
		backoff, next = next, backoff+next
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) startOne(ctx context.Context, dep StartupDependency) error {
	name := dep.GetName()
	if s.statuses[name] == StartupStatusStarted {
		return nil
	}

	for _, upstream := range dep.DependsOn() {
		if s.statuses[upstream] == StartupStatusStarted {
			continue
		}
		upstreamDep, ok := s.dependencies[upstream]
		if !ok {
			return fmt.Errorf("dependency %q requires unregistered %q", name, upstream)
		}
		if err := s.startOne(ctx, upstreamDep); err != nil {
			return err
		}
	}

	s.logger.WithField("dependency", name).Info("Starting dependency")
	s.statuses[name] = StartupStatusPending
	if err := dep.Start(ctx); err != nil {
		s.statuses[name] = StartupStatusFailed
		return err
	}
	s.statuses[name] = StartupStatusStarted
	return nil
}

// Stop shuts dependencies down in reverse registration order, so consumers
// stop before the brokers and stores they read from.
func (s *Startup) Stop(ctx context.Context) error {
	for i := len(s.order) - 1; i >= 0; i-- {
		name := s.order[i]
		if s.statuses[name] != StartupStatusStarted {
			continue
		}

		s.logger.WithField("dependency", name).Info("Stopping dependency")
		if err := s.dependencies[name].Stop(ctx); err != nil {
			s.logger.WithError(err).WithField("dependency", name).Error("Dependency failed to stop")
			return err
		}
		s.statuses[name] = StartupStatusStopped
	}
	return nil
}

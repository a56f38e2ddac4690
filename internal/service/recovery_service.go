package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/metrics"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/model"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/store"
)

// ErrInvalidTransition is returned when an action cannot apply to a
// resource's current recovery state
var ErrInvalidTransition = errors.New("invalid recovery state transition")

// ErrUnknownAction is returned for an action outside the transition table
var ErrUnknownAction = errors.New("unknown recovery action")

// transitionRules maps each recovery action to its legal source states and
// result state. StartReset additionally accepts failed_over and replicated:
// a divergence-free resource takes the reset fast path directly from the
// state the forward failover left it in. Every start action also accepts
// errored, so a resource faulted in one run is re-admittable when the next
// run's classifier re-probes and re-enqueues it.
var transitionRules = map[model.RecoveryAction]struct {
	from []model.RecoveryState
	to   model.RecoveryState
}{
	model.ActionStartFailover: {
		from: []model.RecoveryState{model.RecoveryStateNone, model.RecoveryStateFailedOver, model.RecoveryStateErrored},
		to:   model.RecoveryStateStartFailover,
	},
	model.ActionEndFailover: {
		from: []model.RecoveryState{model.RecoveryStateStartFailover},
		to:   model.RecoveryStateFailedOver,
	},
	model.ActionStartFailback: {
		from: []model.RecoveryState{model.RecoveryStateFailedOver, model.RecoveryStateReplicated, model.RecoveryStateErrored},
		to:   model.RecoveryStateStartFailback,
	},
	model.ActionConclude: {
		from: []model.RecoveryState{model.RecoveryStateStartFailover, model.RecoveryStateStartFailback, model.RecoveryStateResetting},
		to:   model.RecoveryStateComplete,
	},
	model.ActionMarkError: {
		from: []model.RecoveryState{model.RecoveryStateStartFailover, model.RecoveryStateStartFailback},
		to:   model.RecoveryStateErrored,
	},
	model.ActionStartReset: {
		from: []model.RecoveryState{model.RecoveryStateRecovering, model.RecoveryStateFailedOver, model.RecoveryStateReplicated, model.RecoveryStateErrored},
		to:   model.RecoveryStateResetting,
	},
}

// RecoveryService is the sole mutator of resource recovery state. Every
// transition is idempotent: re-applying an action whose result state the
// resource already occupies succeeds without a write, so the scheduler can
// re-observe resources across polling cycles and a restarted run can replay
// its action sequence safely.
type RecoveryService struct {
	catalog store.Catalog
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewRecoveryService creates a new recovery state machine service
func NewRecoveryService(catalog store.Catalog, m *metrics.Metrics, logger *zap.Logger) *RecoveryService {
	return &RecoveryService{
		catalog: catalog,
		metrics: m,
		logger:  logger,
	}
}

// UpdateRecoveryState applies a recovery action to a resource and persists
// the transition through the catalog's atomic compare-and-swap. The passed
// resource's state is updated in place on success.
func (s *RecoveryService) UpdateRecoveryState(ctx context.Context, resource *model.TenantResource, action model.RecoveryAction) error {
	rule, ok := transitionRules[action]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	// Replay of an already-absorbed action is a success no-op
	if resource.RecoveryState == rule.to {
		return nil
	}

	swapped, err := s.catalog.CompareAndSwapRecoveryState(ctx, resource.Key(), rule.from, rule.to)
	if err != nil {
		s.metrics.RecordTransition(string(action), "error")
		return fmt.Errorf("failed to persist transition %s on %s: %w", action, resource.Key(), err)
	}

	if !swapped {
		// The in-memory snapshot may be stale; the catalog decides whether
		// this is a replay or an illegal transition.
		current, err := s.catalog.GetResource(ctx, resource.Key())
		if err != nil {
			s.metrics.RecordTransition(string(action), "error")
			return fmt.Errorf("failed to re-read %s after rejected transition: %w", resource.Key(), err)
		}
		if current.RecoveryState == rule.to {
			resource.RecoveryState = rule.to
			return nil
		}
		s.metrics.RecordTransition(string(action), "rejected")
		return fmt.Errorf("%w: %s cannot apply to %s in state %s",
			ErrInvalidTransition, action, resource.Key(), current.RecoveryState)
	}

	resource.RecoveryState = rule.to
	s.metrics.RecordTransition(string(action), "applied")

	s.logger.Debug("Recovery state transition applied",
		zap.String("resource", resource.Key().String()),
		zap.String("action", string(action)),
		zap.String("state", string(rule.to)))

	return nil
}

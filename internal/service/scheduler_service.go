package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/client"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/metrics"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/model"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/store"
)

const (
	// DefaultMaxConcurrentOperations bounds the in-flight operation set
	DefaultMaxConcurrentOperations = 50
	// DefaultPollInterval is how often the completion phase polls in-flight
	// operations
	DefaultPollInterval = 5 * time.Second
)

// inFlightOperation couples a submitted operation with the eligibility entry
// it was admitted from, so finalization has the link and tenant at hand
type inFlightOperation struct {
	op       *model.MigrationOperation
	eligible *EligibleResource
}

// RunResult summarizes one scheduler run
type RunResult struct {
	// Completed counts resources driven to their target state, including
	// those already converged at classification time
	Completed int
	// Faulted counts resources whose operation reached a faulted status;
	// they are left errored for the next run to re-evaluate
	Faulted int
	// Total is the eligible batch size at classification time
	Total int
}

// SchedulerService drives the eligibility queue to empty while never holding
// more than the configured number of operations in flight. Its bookkeeping is
// single-threaded: one cooperative poll loop issues, observes and finalizes
// operations for one direction. The queue and in-flight set are private to a
// run and reconstructible from the catalog after a crash.
type SchedulerService struct {
	catalog     store.Catalog
	replication client.ReplicationClient
	recovery    *RecoveryService
	reporter    Reporter
	metrics     *metrics.Metrics
	logger      *zap.Logger

	maxInFlight      int
	pollInterval     time.Duration
	operationTimeout time.Duration
}

// NewSchedulerService creates a new bounded-concurrency migration scheduler.
// An operationTimeout of zero disables per-operation deadlines; a stuck
// pending operation then holds its slot until the operator re-runs.
func NewSchedulerService(
	catalog store.Catalog,
	replication client.ReplicationClient,
	recovery *RecoveryService,
	reporter Reporter,
	m *metrics.Metrics,
	maxInFlight int,
	pollInterval time.Duration,
	operationTimeout time.Duration,
	logger *zap.Logger,
) *SchedulerService {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxConcurrentOperations
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &SchedulerService{
		catalog:          catalog,
		replication:      replication,
		recovery:         recovery,
		reporter:         reporter,
		metrics:          m,
		maxInFlight:      maxInFlight,
		pollInterval:     pollInterval,
		operationTimeout: operationTimeout,
		logger:           logger,
	}
}

// Run consumes a classification and drives every eligible resource to a
// terminal state. It returns once the eligibility queue and the in-flight set
// are both empty, or when the context is cancelled.
func (s *SchedulerService) Run(ctx context.Context, classification *Classification) (*RunResult, error) {
	direction := classification.Direction
	progress := NewProgress(string(direction), classification.Total())
	result := &RunResult{Total: classification.Total()}

	// Converged resources were counted complete at classification time
	for i := 0; i < classification.Converged; i++ {
		progress.Advance()
	}
	result.Completed = classification.Converged

	if classification.Total() == 0 {
		// Vacuously complete: report 100% (0 of 0) and stop
		progress.Emit(s.reporter)
		s.logger.Info("Empty migration batch, nothing to do",
			zap.String("direction", string(direction)))
		return result, nil
	}
	progress.Emit(s.reporter)

	// Queue and in-flight set are owned by this run and never persisted
	queue := make([]*EligibleResource, 0, len(classification.Eligible))
	inFlight := make(map[string]*inFlightOperation)

	for _, eligible := range classification.Eligible {
		// The batch-level mode is binding: a reset run issues no replication
		// operations at all. Within a migrate run, divergence-free tenants
		// still re-point without replication individually.
		if classification.Mode == BatchModeReset || !eligible.NeedsReplication {
			s.resetResource(ctx, direction, eligible, progress, result)
			continue
		}
		queue = append(queue, eligible)
	}

	// Admission phase: saturate up to the concurrency ceiling
	queue = s.admitUpToLimit(ctx, direction, queue, inFlight, progress, result)
	s.metrics.SetOperationsInFlight(len(inFlight))

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	// Completion phase: poll, finalize, backfill
	for len(inFlight) > 0 || len(queue) > 0 {
		select {
		case <-ctx.Done():
			s.logger.Warn("Scheduler run cancelled",
				zap.String("direction", string(direction)),
				zap.Int("in_flight", len(inFlight)),
				zap.Int("queued", len(queue)))
			return result, ctx.Err()
		case <-ticker.C:
		}

		for id, entry := range inFlight {
			status, err := s.replication.PollOperation(ctx, id)
			if err != nil {
				// Transient: the operation stays in flight and is polled again
				s.logger.Warn("Failed to poll operation",
					zap.String("operation_id", id),
					zap.String("resource", entry.op.Target.String()),
					zap.Error(err))
				continue
			}

			switch status {
			case model.OperationStatusSucceeded:
				delete(inFlight, id)
				s.finalizeSuccess(ctx, direction, entry, inFlight, progress, result)
				// Backfill immediately so the pipeline stays saturated
				queue = s.admitUpToLimit(ctx, direction, queue, inFlight, progress, result)

			case model.OperationStatusFaulted:
				delete(inFlight, id)
				s.finalizeFault(ctx, direction, entry, progress, result, "operation faulted")
				queue = s.admitUpToLimit(ctx, direction, queue, inFlight, progress, result)

			default:
				if s.operationTimeout > 0 && time.Since(entry.op.SubmittedAt) > s.operationTimeout {
					delete(inFlight, id)
					s.finalizeFault(ctx, direction, entry, progress, result, "operation deadline exceeded")
					queue = s.admitUpToLimit(ctx, direction, queue, inFlight, progress, result)
				}
			}
		}

		s.metrics.SetOperationsInFlight(len(inFlight))
	}

	s.logger.Info("Migration batch drained",
		zap.String("direction", string(direction)),
		zap.Int("completed", result.Completed),
		zap.Int("faulted", result.Faulted),
		zap.Int("total", result.Total),
		zap.String("progress", progress.String()))

	return result, nil
}

// admitUpToLimit pops resources off the queue head and issues operations
// until the ceiling is reached or the queue empties. A resource leaves the
// queue the instant its operation is issued, so at most one operation is ever
// outstanding per resource.
func (s *SchedulerService) admitUpToLimit(
	ctx context.Context,
	direction model.Direction,
	queue []*EligibleResource,
	inFlight map[string]*inFlightOperation,
	progress *Progress,
	result *RunResult,
) []*EligibleResource {
	for len(inFlight) < s.maxInFlight && len(queue) > 0 {
		eligible := queue[0]
		queue = queue[1:]
		s.admit(ctx, direction, eligible, inFlight, progress, result)
	}
	return queue
}

// admit transitions a resource to its start state and submits the
// asynchronous failover against its replication link
func (s *SchedulerService) admit(
	ctx context.Context,
	direction model.Direction,
	eligible *EligibleResource,
	inFlight map[string]*inFlightOperation,
	progress *Progress,
	result *RunResult,
) {
	resource := eligible.Resource

	if err := s.recovery.UpdateRecoveryState(ctx, resource, direction.StartAction()); err != nil {
		// Catalog write failure is not fatal to the batch; the resource is
		// left for the next run to reconcile
		s.logger.Error("Start transition failed, skipping resource this run",
			zap.String("resource", resource.Key().String()),
			zap.Error(err))
		progress.Discard()
		progress.Emit(s.reporter)
		return
	}

	// The owning pool enters the same start state alongside its first
	// database; replays from siblings are no-ops
	s.transitionPool(ctx, resource, direction.StartAction())

	linkID := ""
	if eligible.Link != nil {
		linkID = eligible.Link.LinkID
	}

	handle, err := s.replication.SubmitFailover(ctx, resource, linkID)
	if err != nil {
		s.logger.Error("Failed to submit failover",
			zap.String("resource", resource.Key().String()),
			zap.Error(err))
		s.finalizeFault(ctx, direction, &inFlightOperation{
			op: &model.MigrationOperation{
				Target:      resource.Key(),
				SubmittedAt: time.Now(),
			},
			eligible: eligible,
		}, progress, result, "submission failed")
		return
	}

	inFlight[handle.ID] = &inFlightOperation{
		op: &model.MigrationOperation{
			OperationID:       handle.ID,
			Target:            resource.Key(),
			ServerName:        resource.ServerName,
			DatabaseName:      resource.Name,
			TenantKey:         resource.TenantKey,
			PoolName:          resource.PoolName,
			ReplicationLinkID: linkID,
			SubmittedAt:       time.Now(),
			Status:            model.OperationStatusPending,
		},
		eligible: eligible,
	}

	s.metrics.RecordSubmission(string(direction))
	s.logger.Debug("Admitted resource",
		zap.String("resource", resource.Key().String()),
		zap.String("operation_id", handle.ID),
		zap.Int("in_flight", len(inFlight)))
}

// finalizeSuccess re-points the tenant at its new shard, concludes the
// resource and, once no sibling is still in flight, its owning pool
func (s *SchedulerService) finalizeSuccess(
	ctx context.Context,
	direction model.Direction,
	entry *inFlightOperation,
	inFlight map[string]*inFlightOperation,
	progress *Progress,
	result *RunResult,
) {
	resource := entry.eligible.Resource

	if err := s.repointTenant(ctx, direction, entry.eligible); err != nil {
		// The resource keeps its start state; the next run re-probes the
		// topology and finishes the re-point before concluding
		s.logger.Error("Failed to finalize tenant, next run reconciles",
			zap.String("resource", resource.Key().String()),
			zap.Error(err))
		progress.Discard()
		progress.Emit(s.reporter)
		return
	}

	if err := s.recovery.UpdateRecoveryState(ctx, resource, direction.ConcludeAction()); err != nil {
		s.logger.Error("Conclude transition failed",
			zap.String("resource", resource.Key().String()),
			zap.Error(err))
	}

	if resource.PoolName != "" && !poolStillBusy(inFlight, resource.PoolName) {
		s.transitionPool(ctx, resource, direction.ConcludeAction())
	}

	result.Completed++
	s.metrics.RecordResourceCompleted(string(direction), "migrate")
	s.metrics.ObserveOperationDuration(time.Since(entry.op.SubmittedAt))

	progress.Advance()
	progress.Emit(s.reporter)

	s.logger.Info("Resource migrated",
		zap.String("resource", resource.Key().String()),
		zap.String("operation_id", entry.op.OperationID),
		zap.String("progress", progress.String()))
}

// finalizeFault marks the resource errored and removes it from the batch
// denominator. No retry happens within this run; the next run's classifier
// re-probes and re-enqueues the resource if it is still eligible.
func (s *SchedulerService) finalizeFault(
	ctx context.Context,
	direction model.Direction,
	entry *inFlightOperation,
	progress *Progress,
	result *RunResult,
	reason string,
) {
	resource := entry.eligible.Resource

	if err := s.recovery.UpdateRecoveryState(ctx, resource, model.ActionMarkError); err != nil {
		s.logger.Error("Failed to mark resource errored",
			zap.String("resource", resource.Key().String()),
			zap.Error(err))
	}

	result.Faulted++
	s.metrics.RecordOperationFault(string(direction))

	progress.Discard()
	progress.Emit(s.reporter)

	s.logger.Warn("Resource migration faulted",
		zap.String("resource", resource.Key().String()),
		zap.String("operation_id", entry.op.OperationID),
		zap.String("reason", reason))
}

// resetResource takes the reset fast path: state transitions and an alias
// re-point, no replication operation
func (s *SchedulerService) resetResource(
	ctx context.Context,
	direction model.Direction,
	eligible *EligibleResource,
	progress *Progress,
	result *RunResult,
) {
	resource := eligible.Resource

	if err := s.recovery.UpdateRecoveryState(ctx, resource, model.ActionStartReset); err != nil {
		s.logger.Error("Reset transition failed, skipping resource this run",
			zap.String("resource", resource.Key().String()),
			zap.Error(err))
		progress.Discard()
		progress.Emit(s.reporter)
		return
	}

	if err := s.repointTenant(ctx, direction, eligible); err != nil {
		// Left in resetting; the next run finishes the re-point
		s.logger.Error("Failed to finalize tenant on reset path, next run reconciles",
			zap.String("resource", resource.Key().String()),
			zap.Error(err))
		progress.Discard()
		progress.Emit(s.reporter)
		return
	}

	if err := s.recovery.UpdateRecoveryState(ctx, resource, model.ActionConclude); err != nil {
		s.logger.Error("Conclude transition failed on reset path",
			zap.String("resource", resource.Key().String()),
			zap.Error(err))
	}

	result.Completed++
	s.metrics.RecordResourceCompleted(string(direction), "reset")

	progress.Advance()
	progress.Emit(s.reporter)

	s.logger.Info("Resource reset without replication",
		zap.String("resource", resource.Key().String()),
		zap.String("progress", progress.String()))
}

// repointTenant atomically switches the tenant's active shard to the partner
// copy and flips its availability flag for the new region. The online flag is
// only ever flipped after the shard pointer has moved.
func (s *SchedulerService) repointTenant(ctx context.Context, direction model.Direction, eligible *EligibleResource) error {
	resource := eligible.Resource
	if resource.TenantKey == "" {
		return nil
	}

	link := eligible.Link
	if link == nil {
		// No link existed at classification time; the replication primitive
		// has seeded it by the time the operation succeeds, so re-probe to
		// learn the partner server
		probed, err := s.replication.GetReplicationLink(ctx, resource.ServerName, resource.Name, resource.PartnerRegion)
		if err != nil {
			return fmt.Errorf("failed to resolve replication link for %s: %w", resource.Key(), err)
		}
		link = probed
	}

	location := model.ShardLocation{
		ServerName:   link.PartnerServer,
		DatabaseName: resource.Name,
	}
	if err := s.catalog.UpdateShardPointer(ctx, resource.TenantKey, location); err != nil {
		return err
	}

	return s.catalog.UpdateTenantOnlineState(ctx, resource.TenantKey, direction.TargetOnlineState())
}

// transitionPool applies an action to a database's owning pool; failures are
// logged only, pool state converges on a later cycle or run
func (s *SchedulerService) transitionPool(ctx context.Context, resource *model.TenantResource, action model.RecoveryAction) {
	poolKey, ok := resource.PoolKey()
	if !ok {
		return
	}

	pool, err := s.catalog.GetResource(ctx, poolKey)
	if err != nil {
		s.logger.Warn("Failed to read owning pool",
			zap.String("pool", poolKey.String()),
			zap.Error(err))
		return
	}

	if err := s.recovery.UpdateRecoveryState(ctx, pool, action); err != nil {
		s.logger.Warn("Pool transition failed",
			zap.String("pool", poolKey.String()),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

// poolStillBusy reports whether any in-flight operation still targets a
// database in the given pool
func poolStillBusy(inFlight map[string]*inFlightOperation, poolName string) bool {
	for _, entry := range inFlight {
		if entry.op.PoolName == poolName {
			return true
		}
	}
	return false
}

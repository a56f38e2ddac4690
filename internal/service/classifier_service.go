package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/client"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/metrics"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/model"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/store"
)

// BatchMode is the run-level job selection: whether this run drives real
// replicate-then-failover migrations or only cheap alias re-points. It is
// decided once for the whole batch, never per tenant.
type BatchMode string

const (
	// BatchModeMigrate runs the full replicate-then-failover path
	BatchModeMigrate BatchMode = "migrate"
	// BatchModeReset re-points aliases only, no replication operations
	BatchModeReset BatchMode = "reset"
)

// EligibleResource pairs a database resource awaiting migration with the
// replication link observed for it at classification time. Link is nil when
// no partner copy exists yet; the replication primitive establishes it on
// submission.
type EligibleResource struct {
	Resource *model.TenantResource
	Link     *model.ReplicationLink

	// NeedsReplication is false for divergence-free tenants, which take the
	// reset fast path instead of a real migration
	NeedsReplication bool
}

// Classification is the classifier's verdict for one run
type Classification struct {
	Direction model.Direction
	Mode      BatchMode

	// Eligible lists databases awaiting migration in priority order
	Eligible []*EligibleResource

	// Converged counts databases already in the desired role; they are
	// complete at classification time and never enqueued
	Converged int

	// Deferred counts databases whose topology probe failed this cycle;
	// they are retried on the next run
	Deferred int
}

// Total returns the batch size the progress percentage is computed against
func (c *Classification) Total() int {
	return c.Converged + len(c.Eligible)
}

// ClassifierService partitions tenant databases by replication status and
// computes the global migrate-vs-reset decision
type ClassifierService struct {
	catalog     store.Catalog
	replication client.ReplicationClient
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewClassifierService creates a new eligibility classifier
func NewClassifierService(catalog store.Catalog, replication client.ReplicationClient, m *metrics.Metrics, logger *zap.Logger) *ClassifierService {
	return &ClassifierService{
		catalog:     catalog,
		replication: replication,
		metrics:     m,
		logger:      logger,
	}
}

// Classify reads the full catalog listing and probes replication topology for
// every database on the source side of the given direction. A catalog listing
// failure is a global precondition failure and aborts the run; individual
// probe failures only defer the affected database to the next cycle.
func (s *ClassifierService) Classify(ctx context.Context, direction model.Direction) (*Classification, error) {
	databases, err := s.catalog.ListResources(ctx, store.ResourceFilter{
		Kind:       model.ResourceKindDatabase,
		RegionRole: direction.SourceRole(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list databases from catalog: %w", err)
	}

	changed, err := s.changedTenants(ctx, direction)
	if err != nil {
		return nil, err
	}

	classification := &Classification{
		Direction: direction,
		Mode:      BatchModeMigrate,
	}
	if direction == model.DirectionFailback && len(changed) == 0 {
		classification.Mode = BatchModeReset
	}

	for _, db := range databases {
		link, err := s.replication.GetReplicationLink(ctx, db.ServerName, db.Name, db.PartnerRegion)
		switch {
		case errors.Is(err, client.ErrLinkNotFound):
			// No partner copy yet: eligible, the primitive seeds the link
			classification.Eligible = append(classification.Eligible, &EligibleResource{
				Resource:         db,
				NeedsReplication: s.needsReplication(direction, db, changed),
			})

		case err != nil:
			// Transient probe failure: not eligible this cycle, retried next run
			s.metrics.RecordProbeError()
			classification.Deferred++
			s.logger.Warn("Topology probe failed, deferring resource",
				zap.String("resource", db.Key().String()),
				zap.Error(err))

		case link.Role == model.ReplicationRoleSecondary:
			// The partner copy is already primary: converged, counted
			// complete at classification time
			classification.Converged++

		default:
			classification.Eligible = append(classification.Eligible, &EligibleResource{
				Resource:         db,
				Link:             link,
				NeedsReplication: s.needsReplication(direction, db, changed),
			})
		}
	}

	s.logger.Info("Classified migration batch",
		zap.String("direction", string(direction)),
		zap.String("mode", string(classification.Mode)),
		zap.Int("eligible", len(classification.Eligible)),
		zap.Int("converged", classification.Converged),
		zap.Int("deferred", classification.Deferred))

	return classification, nil
}

// changedTenants runs the data-change test against every tenant's recovery
// copy. Only the failback direction needs it; failover always replicates.
// A failed check counts the tenant as changed, which is the safe direction:
// it can only force a real migration, never skip one.
func (s *ClassifierService) changedTenants(ctx context.Context, direction model.Direction) (map[string]bool, error) {
	changed := make(map[string]bool)
	if direction != model.DirectionFailback {
		return changed, nil
	}

	tenants, err := s.catalog.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants from catalog: %w", err)
	}

	for _, tenant := range tenants {
		hasChanged, err := s.replication.HasDataChanged(ctx, tenant.ActiveShard.ServerName, tenant.ActiveShard.DatabaseName)
		if err != nil {
			s.logger.Warn("Data-change check failed, assuming changed",
				zap.String("tenant", tenant.Key),
				zap.Error(err))
			changed[tenant.Key] = true
			continue
		}
		if hasChanged {
			changed[tenant.Key] = true
		}
	}

	return changed, nil
}

// needsReplication decides the per-tenant path. During failback a
// divergence-free tenant takes the reset fast path regardless of the batch
// mode; during failover every eligible database replicates.
func (s *ClassifierService) needsReplication(direction model.Direction, db *model.TenantResource, changed map[string]bool) bool {
	if direction != model.DirectionFailback {
		return true
	}
	if db.TenantKey == "" {
		return true
	}
	return changed[db.TenantKey]
}

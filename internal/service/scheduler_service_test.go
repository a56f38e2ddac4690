package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/client"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/model"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/store"
)

// fakeScript describes how the fake replication primitive drives one
// database's operation
type fakeScript struct {
	result    model.OperationStatus
	polls     int
	submitErr error
}

type fakeOperation struct {
	script   fakeScript
	finished bool
}

// fakeReplication is a scripted replication primitive. It records every
// submission and the highest number of concurrently live operations, which is
// what the concurrency-ceiling assertions observe.
type fakeReplication struct {
	mu          sync.Mutex
	scripts     map[string]fakeScript
	links       map[string]*model.ReplicationLink
	ops         map[string]*fakeOperation
	submitted   []string
	live        int
	maxLive     int
	submitCount int
}

func newFakeReplication(scripts map[string]fakeScript) *fakeReplication {
	return &fakeReplication{
		scripts: scripts,
		links:   make(map[string]*model.ReplicationLink),
		ops:     make(map[string]*fakeOperation),
	}
}

func (f *fakeReplication) setLink(databaseName string, link *model.ReplicationLink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[databaseName] = link
}

func (f *fakeReplication) GetReplicationLink(ctx context.Context, serverName, databaseName, partnerRegion string) (*model.ReplicationLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if link, ok := f.links[databaseName]; ok {
		return link, nil
	}
	return nil, client.ErrLinkNotFound
}

func (f *fakeReplication) SubmitFailover(ctx context.Context, resource *model.TenantResource, replicationLinkID string) (*model.OperationHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	script := f.scripts[resource.Name]
	if script.submitErr != nil {
		return nil, script.submitErr
	}

	f.submitCount++
	id := fmt.Sprintf("op-%d", f.submitCount)
	f.ops[id] = &fakeOperation{script: script}
	f.submitted = append(f.submitted, resource.Name)

	f.live++
	if f.live > f.maxLive {
		f.maxLive = f.live
	}

	return &model.OperationHandle{ID: id, Status: model.OperationStatusPending}, nil
}

func (f *fakeReplication) PollOperation(ctx context.Context, operationID string) (model.OperationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	op, ok := f.ops[operationID]
	if !ok {
		return "", client.ErrOperationNotFound
	}

	if op.script.polls > 0 {
		op.script.polls--
		return model.OperationStatusPending, nil
	}

	if !op.finished {
		op.finished = true
		f.live--
	}
	return op.script.result, nil
}

func (f *fakeReplication) HasDataChanged(ctx context.Context, serverName, databaseName string) (bool, error) {
	return false, nil
}

func (f *fakeReplication) Ping(ctx context.Context) error { return nil }

func (f *fakeReplication) Close() {}

// captureReporter records every progress update for ordering assertions
type captureReporter struct {
	mu      sync.Mutex
	reports []capturedReport
}

type capturedReport struct {
	label      string
	percentage float64
	completed  int
	total      int
}

func (r *captureReporter) Report(label string, percentage float64, completed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, capturedReport{label, percentage, completed, total})
}

func (r *captureReporter) last() capturedReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports[len(r.reports)-1]
}

func (r *captureReporter) percentages() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, 0, len(r.reports))
	for _, rep := range r.reports {
		out = append(out, rep.percentage)
	}
	return out
}

// schedulerFixture wires a scheduler over the memory catalog and fake
// replication primitive with test-friendly intervals
type schedulerFixture struct {
	catalog     *store.MemoryCatalog
	replication *fakeReplication
	reporter    *captureReporter
	scheduler   *SchedulerService
}

func newSchedulerFixture(t *testing.T, scripts map[string]fakeScript, maxInFlight int, operationTimeout time.Duration) *schedulerFixture {
	t.Helper()

	catalog := store.NewMemoryCatalog()
	replication := newFakeReplication(scripts)
	reporter := &captureReporter{}
	recovery := NewRecoveryService(catalog, testMetrics, zap.NewNop())
	scheduler := NewSchedulerService(
		catalog,
		replication,
		recovery,
		reporter,
		testMetrics,
		maxInFlight,
		time.Millisecond,
		operationTimeout,
		zap.NewNop(),
	)

	return &schedulerFixture{
		catalog:     catalog,
		replication: replication,
		reporter:    reporter,
		scheduler:   scheduler,
	}
}

// eligibleDatabase seeds a catalog database plus its tenant and returns the
// eligibility entry the classifier would have produced
func (fx *schedulerFixture) eligibleDatabase(name, tenantKey string, needsReplication bool) *EligibleResource {
	resource := &model.TenantResource{
		Name:          name,
		Kind:          model.ResourceKindDatabase,
		RegionRole:    model.RegionRoleOrigin,
		PartnerRegion: "east",
		ServerName:    "srv-origin",
		TenantKey:     tenantKey,
		RecoveryState: model.RecoveryStateNone,
	}
	fx.catalog.PutResource(resource)

	if tenantKey != "" {
		fx.catalog.PutTenant(&model.Tenant{
			Key:         tenantKey,
			Name:        tenantKey,
			ActiveShard: model.ShardLocation{ServerName: "srv-origin", DatabaseName: name},
			OnlineState: model.OnlineStateOnline,
		})
	}

	return &EligibleResource{
		Resource: resource,
		Link: &model.ReplicationLink{
			LinkID:        "link-" + name,
			ServerName:    "srv-origin",
			DatabaseName:  name,
			PartnerServer: "srv-recovery",
			Role:          model.ReplicationRolePrimary,
		},
		NeedsReplication: needsReplication,
	}
}

func (fx *schedulerFixture) resourceState(t *testing.T, name string) model.RecoveryState {
	t.Helper()
	resource, err := fx.catalog.GetResource(context.Background(), model.ResourceKey{Name: name, Kind: model.ResourceKindDatabase})
	require.NoError(t, err)
	return resource.RecoveryState
}

func TestScheduler_EmptyBatchIsVacuouslyComplete(t *testing.T) {
	fx := newSchedulerFixture(t, nil, 2, 0)

	classification := &Classification{Direction: model.DirectionFailover, Mode: BatchModeMigrate}

	result, err := fx.scheduler.Run(context.Background(), classification)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, fx.replication.submitted)

	// Exactly one report: 100% (0 of 0)
	require.Len(t, fx.reporter.reports, 1)
	assert.Equal(t, 100.0, fx.reporter.reports[0].percentage)
	assert.Equal(t, 0, fx.reporter.reports[0].completed)
	assert.Equal(t, 0, fx.reporter.reports[0].total)
}

func TestScheduler_BackfillKeepsCeiling(t *testing.T) {
	scripts := map[string]fakeScript{
		"tenantdb-1": {result: model.OperationStatusSucceeded, polls: 1},
		"tenantdb-2": {result: model.OperationStatusSucceeded, polls: 4},
		"tenantdb-3": {result: model.OperationStatusSucceeded, polls: 1},
	}
	fx := newSchedulerFixture(t, scripts, 2, 0)

	classification := &Classification{
		Direction: model.DirectionFailover,
		Mode:      BatchModeMigrate,
		Eligible: []*EligibleResource{
			fx.eligibleDatabase("tenantdb-1", "t1", true),
			fx.eligibleDatabase("tenantdb-2", "t2", true),
			fx.eligibleDatabase("tenantdb-3", "t3", true),
		},
	}

	result, err := fx.scheduler.Run(context.Background(), classification)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Completed)
	assert.Equal(t, 0, result.Faulted)

	// The third admission waits for a completion; the ceiling of 2 is never
	// exceeded and every database is submitted exactly once
	assert.Equal(t, 2, fx.replication.maxLive)
	assert.Len(t, fx.replication.submitted, 3)
	seen := make(map[string]int)
	for _, name := range fx.replication.submitted {
		seen[name]++
	}
	for name, count := range seen {
		assert.Equal(t, 1, count, "database %s submitted more than once", name)
	}

	assert.Equal(t, 100.0, fx.reporter.last().percentage)
}

func TestScheduler_ProgressIsMonotonic(t *testing.T) {
	scripts := map[string]fakeScript{
		"tenantdb-1": {result: model.OperationStatusSucceeded, polls: 0},
		"tenantdb-2": {result: model.OperationStatusSucceeded, polls: 2},
		"tenantdb-3": {result: model.OperationStatusSucceeded, polls: 1},
	}
	fx := newSchedulerFixture(t, scripts, 3, 0)

	classification := &Classification{
		Direction: model.DirectionFailover,
		Mode:      BatchModeMigrate,
		Eligible: []*EligibleResource{
			fx.eligibleDatabase("tenantdb-1", "t1", true),
			fx.eligibleDatabase("tenantdb-2", "t2", true),
			fx.eligibleDatabase("tenantdb-3", "t3", true),
		},
	}

	_, err := fx.scheduler.Run(context.Background(), classification)
	require.NoError(t, err)

	percentages := fx.reporter.percentages()
	for i := 1; i < len(percentages); i++ {
		assert.GreaterOrEqual(t, percentages[i], percentages[i-1])
	}
	assert.Equal(t, 100.0, percentages[len(percentages)-1])
}

func TestScheduler_SuccessRepointsTenant(t *testing.T) {
	scripts := map[string]fakeScript{
		"tenantdb-1": {result: model.OperationStatusSucceeded, polls: 1},
	}
	fx := newSchedulerFixture(t, scripts, 2, 0)

	classification := &Classification{
		Direction: model.DirectionFailover,
		Mode:      BatchModeMigrate,
		Eligible: []*EligibleResource{
			fx.eligibleDatabase("tenantdb-1", "t1", true),
		},
	}

	result, err := fx.scheduler.Run(context.Background(), classification)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, model.RecoveryStateFailedOver, fx.resourceState(t, "tenantdb-1"))

	tenant, err := fx.catalog.GetTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "srv-recovery", tenant.ActiveShard.ServerName)
	assert.Equal(t, "tenantdb-1", tenant.ActiveShard.DatabaseName)
	assert.Equal(t, model.OnlineStateOnlineInRecovery, tenant.OnlineState)
}

func TestScheduler_FaultIsIsolated(t *testing.T) {
	scripts := map[string]fakeScript{
		"tenantdb-1": {result: model.OperationStatusFaulted, polls: 1},
		"tenantdb-2": {result: model.OperationStatusSucceeded, polls: 2},
	}
	fx := newSchedulerFixture(t, scripts, 2, 0)

	classification := &Classification{
		Direction: model.DirectionFailover,
		Mode:      BatchModeMigrate,
		Eligible: []*EligibleResource{
			fx.eligibleDatabase("tenantdb-1", "t1", true),
			fx.eligibleDatabase("tenantdb-2", "t2", true),
		},
	}

	result, err := fx.scheduler.Run(context.Background(), classification)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, result.Faulted)

	// The faulted resource is parked in errored for the next run; the
	// healthy one still migrates
	assert.Equal(t, model.RecoveryStateErrored, fx.resourceState(t, "tenantdb-1"))
	assert.Equal(t, model.RecoveryStateFailedOver, fx.resourceState(t, "tenantdb-2"))

	// The faulted tenant keeps its original shard pointer
	tenant, err := fx.catalog.GetTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "srv-origin", tenant.ActiveShard.ServerName)

	assert.Equal(t, 100.0, fx.reporter.last().percentage)
}

func TestScheduler_SubmissionFailureMarksError(t *testing.T) {
	scripts := map[string]fakeScript{
		"tenantdb-1": {submitErr: errors.New("replication engine rejected request")},
		"tenantdb-2": {result: model.OperationStatusSucceeded, polls: 0},
	}
	fx := newSchedulerFixture(t, scripts, 2, 0)

	classification := &Classification{
		Direction: model.DirectionFailover,
		Mode:      BatchModeMigrate,
		Eligible: []*EligibleResource{
			fx.eligibleDatabase("tenantdb-1", "t1", true),
			fx.eligibleDatabase("tenantdb-2", "t2", true),
		},
	}

	result, err := fx.scheduler.Run(context.Background(), classification)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, result.Faulted)
	assert.Equal(t, model.RecoveryStateErrored, fx.resourceState(t, "tenantdb-1"))
}

func TestScheduler_ResetPathIssuesNoOperations(t *testing.T) {
	fx := newSchedulerFixture(t, nil, 2, 0)

	classification := &Classification{
		Direction: model.DirectionFailback,
		Mode:      BatchModeReset,
		Eligible: []*EligibleResource{
			fx.eligibleDatabase("tenantdb-1", "t1", false),
			fx.eligibleDatabase("tenantdb-2", "t2", false),
		},
	}
	// Failback resets start from the state forward failover left behind
	for _, e := range classification.Eligible {
		e.Resource.RecoveryState = model.RecoveryStateFailedOver
		fx.catalog.PutResource(e.Resource)
	}

	result, err := fx.scheduler.Run(context.Background(), classification)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Completed)
	assert.Empty(t, fx.replication.submitted)

	assert.Equal(t, model.RecoveryStateComplete, fx.resourceState(t, "tenantdb-1"))
	assert.Equal(t, model.RecoveryStateComplete, fx.resourceState(t, "tenantdb-2"))

	tenant, err := fx.catalog.GetTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "srv-recovery", tenant.ActiveShard.ServerName)
	assert.Equal(t, model.OnlineStateOnline, tenant.OnlineState)

	assert.Equal(t, 100.0, fx.reporter.last().percentage)
}

func TestScheduler_ErroredResourceRetriesNextRun(t *testing.T) {
	scripts := map[string]fakeScript{
		"tenantdb-1": {result: model.OperationStatusSucceeded, polls: 1},
	}
	fx := newSchedulerFixture(t, scripts, 2, 0)

	// A fault in a previous run parked the resource errored; this run's
	// classifier re-probed and re-enqueued it
	eligible := fx.eligibleDatabase("tenantdb-1", "t1", true)
	eligible.Resource.RecoveryState = model.RecoveryStateErrored
	fx.catalog.PutResource(eligible.Resource)

	classification := &Classification{
		Direction: model.DirectionFailover,
		Mode:      BatchModeMigrate,
		Eligible:  []*EligibleResource{eligible},
	}

	result, err := fx.scheduler.Run(context.Background(), classification)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 0, result.Faulted)
	assert.Len(t, fx.replication.submitted, 1)
	assert.Equal(t, model.RecoveryStateFailedOver, fx.resourceState(t, "tenantdb-1"))

	tenant, err := fx.catalog.GetTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "srv-recovery", tenant.ActiveShard.ServerName)
}

func TestScheduler_LateLinkResolvedAtFinalize(t *testing.T) {
	scripts := map[string]fakeScript{
		"tenantdb-1": {result: model.OperationStatusSucceeded, polls: 1},
	}
	fx := newSchedulerFixture(t, scripts, 2, 0)

	// No link existed at classification; the primitive seeds one once the
	// operation runs, so finalization re-probes
	eligible := fx.eligibleDatabase("tenantdb-1", "t1", true)
	eligible.Link = nil
	fx.replication.setLink("tenantdb-1", &model.ReplicationLink{
		LinkID:        "link-late",
		ServerName:    "srv-origin",
		DatabaseName:  "tenantdb-1",
		PartnerServer: "srv-recovery",
		Role:          model.ReplicationRolePrimary,
	})

	classification := &Classification{
		Direction: model.DirectionFailover,
		Mode:      BatchModeMigrate,
		Eligible:  []*EligibleResource{eligible},
	}

	result, err := fx.scheduler.Run(context.Background(), classification)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, model.RecoveryStateFailedOver, fx.resourceState(t, "tenantdb-1"))

	tenant, err := fx.catalog.GetTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "srv-recovery", tenant.ActiveShard.ServerName)
	assert.Equal(t, model.OnlineStateOnlineInRecovery, tenant.OnlineState)
}

func TestScheduler_UnresolvedLinkLeavesStateReconcilable(t *testing.T) {
	scripts := map[string]fakeScript{
		"tenantdb-1": {result: model.OperationStatusSucceeded, polls: 1},
	}
	fx := newSchedulerFixture(t, scripts, 2, 0)

	// The link is missing both at classification and at finalize
	eligible := fx.eligibleDatabase("tenantdb-1", "t1", true)
	eligible.Link = nil

	classification := &Classification{
		Direction: model.DirectionFailover,
		Mode:      BatchModeMigrate,
		Eligible:  []*EligibleResource{eligible},
	}

	result, err := fx.scheduler.Run(context.Background(), classification)

	require.NoError(t, err)
	// Not counted complete: the resource stays in its start state and the
	// tenant keeps its original shard pointer and online flag
	assert.Equal(t, 0, result.Completed)
	assert.Equal(t, 0, result.Faulted)
	assert.Equal(t, model.RecoveryStateStartFailover, fx.resourceState(t, "tenantdb-1"))

	tenant, err := fx.catalog.GetTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "srv-origin", tenant.ActiveShard.ServerName)
	assert.Equal(t, model.OnlineStateOnline, tenant.OnlineState)
}

func TestScheduler_ResetModeIsBinding(t *testing.T) {
	fx := newSchedulerFixture(t, nil, 2, 0)

	// Batch-level reset overrides any per-resource replication marking
	eligible := fx.eligibleDatabase("tenantdb-1", "t1", true)
	eligible.Resource.RecoveryState = model.RecoveryStateFailedOver
	fx.catalog.PutResource(eligible.Resource)

	classification := &Classification{
		Direction: model.DirectionFailback,
		Mode:      BatchModeReset,
		Eligible:  []*EligibleResource{eligible},
	}

	result, err := fx.scheduler.Run(context.Background(), classification)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Empty(t, fx.replication.submitted)
	assert.Equal(t, model.RecoveryStateComplete, fx.resourceState(t, "tenantdb-1"))
}

func TestScheduler_ConvergedCountedAtClassification(t *testing.T) {
	scripts := map[string]fakeScript{
		"tenantdb-2": {result: model.OperationStatusSucceeded, polls: 1},
	}
	fx := newSchedulerFixture(t, scripts, 2, 0)

	classification := &Classification{
		Direction: model.DirectionFailover,
		Mode:      BatchModeMigrate,
		Converged: 1,
		Eligible: []*EligibleResource{
			fx.eligibleDatabase("tenantdb-2", "t2", true),
		},
	}

	result, err := fx.scheduler.Run(context.Background(), classification)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Completed)

	// The first report already carries the converged resource: 1 of 2
	first := fx.reporter.reports[0]
	assert.Equal(t, 50.0, first.percentage)
	assert.Equal(t, 1, first.completed)
}

func TestScheduler_OperationDeadlineFreesSlot(t *testing.T) {
	scripts := map[string]fakeScript{
		// Never completes on its own
		"tenantdb-1": {result: model.OperationStatusPending, polls: 1 << 30},
		"tenantdb-2": {result: model.OperationStatusSucceeded, polls: 1},
	}
	fx := newSchedulerFixture(t, scripts, 1, 10*time.Millisecond)

	classification := &Classification{
		Direction: model.DirectionFailover,
		Mode:      BatchModeMigrate,
		Eligible: []*EligibleResource{
			fx.eligibleDatabase("tenantdb-1", "t1", true),
			fx.eligibleDatabase("tenantdb-2", "t2", true),
		},
	}

	result, err := fx.scheduler.Run(context.Background(), classification)

	require.NoError(t, err)
	// The stuck operation is expired, its slot freed and the queue drained
	assert.Equal(t, 1, result.Faulted)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, model.RecoveryStateErrored, fx.resourceState(t, "tenantdb-1"))
	assert.Equal(t, model.RecoveryStateFailedOver, fx.resourceState(t, "tenantdb-2"))
}

func TestScheduler_CancellationStopsRun(t *testing.T) {
	scripts := map[string]fakeScript{
		"tenantdb-1": {result: model.OperationStatusPending, polls: 1 << 30},
	}
	fx := newSchedulerFixture(t, scripts, 1, 0)

	classification := &Classification{
		Direction: model.DirectionFailover,
		Mode:      BatchModeMigrate,
		Eligible: []*EligibleResource{
			fx.eligibleDatabase("tenantdb-1", "t1", true),
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := fx.scheduler.Run(ctx, classification)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

package model

import (
	"fmt"
	"time"
)

// ResourceKind identifies the kind of a tenant resource
type ResourceKind string

const (
	// ResourceKindServer represents a regional database server
	ResourceKindServer ResourceKind = "server"
	// ResourceKindPool represents an elastic pool hosting tenant databases
	ResourceKindPool ResourceKind = "pool"
	// ResourceKindDatabase represents a single tenant database
	ResourceKindDatabase ResourceKind = "database"
)

// RegionRole identifies which side of the recovery pair a resource lives on.
// It is set explicitly at provisioning time and never derived from naming
// conventions.
type RegionRole string

const (
	// RegionRoleOrigin marks a resource in the original home region
	RegionRoleOrigin RegionRole = "origin"
	// RegionRoleRecovery marks a resource in the recovery region
	RegionRoleRecovery RegionRole = "recovery"
)

// RecoveryState represents where a resource is in the recovery lifecycle
type RecoveryState string

const (
	// RecoveryStateNone indicates no recovery activity has touched the resource
	RecoveryStateNone RecoveryState = "none"
	// RecoveryStateStartFailover indicates a failover operation is in progress
	RecoveryStateStartFailover RecoveryState = "start_failover"
	// RecoveryStateFailedOver indicates failover finished and the resource is active in the recovery region
	RecoveryStateFailedOver RecoveryState = "failed_over"
	// RecoveryStateReplicated indicates the resource has a caught-up replica in the partner region
	RecoveryStateReplicated RecoveryState = "replicated"
	// RecoveryStateStartFailback indicates a failback operation is in progress
	RecoveryStateStartFailback RecoveryState = "start_failback"
	// RecoveryStateRecovering indicates the resource is being brought back without data movement
	RecoveryStateRecovering RecoveryState = "recovering"
	// RecoveryStateResetting indicates a reset-only repatriation is in progress
	RecoveryStateResetting RecoveryState = "resetting"
	// RecoveryStateComplete indicates the recovery lifecycle finished for this resource
	RecoveryStateComplete RecoveryState = "complete"
	// RecoveryStateErrored indicates the last operation on this resource faulted;
	// the resource is re-evaluated on the next run
	RecoveryStateErrored RecoveryState = "errored"
)

// RecoveryAction is a requested transition of a resource's recovery state
type RecoveryAction string

const (
	// ActionStartFailover begins a forward failover on a resource
	ActionStartFailover RecoveryAction = "start_failover"
	// ActionEndFailover concludes a forward failover, leaving the resource failed over
	ActionEndFailover RecoveryAction = "end_failover"
	// ActionStartFailback begins a reverse failover back to the origin region
	ActionStartFailback RecoveryAction = "start_failback"
	// ActionConclude finishes an in-progress failback or reset
	ActionConclude RecoveryAction = "conclude"
	// ActionMarkError records an operation fault on a resource
	ActionMarkError RecoveryAction = "mark_error"
	// ActionStartReset begins a reset-only repatriation (no data movement)
	ActionStartReset RecoveryAction = "start_reset"
)

// ResourceKey uniquely identifies a tenant resource in the catalog
type ResourceKey struct {
	Name string
	Kind ResourceKind
}

// String returns the canonical "kind/name" form of the key
func (k ResourceKey) String() string {
	return fmt.Sprintf("%s/%s", k.Kind, k.Name)
}

// TenantResource represents one catalog entry: a server, pool or database
// participating in cross-region recovery. The catalog owns the authoritative
// copy; in-memory instances are snapshots scoped to one polling cycle.
type TenantResource struct {
	Name          string
	Kind          ResourceKind
	RegionRole    RegionRole
	PartnerRegion string

	// ServerName is the owning server for pools and databases
	ServerName string
	// PoolName is the owning elastic pool for databases, empty for
	// standalone databases
	PoolName string
	// TenantKey links a database resource to its tenant, empty for servers
	// and pools
	TenantKey string

	// Priority orders the eligibility queue, lower values migrate first
	Priority int

	RecoveryState RecoveryState
	UpdatedAt     time.Time
}

// Key returns the catalog key for this resource
func (r *TenantResource) Key() ResourceKey {
	return ResourceKey{Name: r.Name, Kind: r.Kind}
}

// PoolKey returns the catalog key of the owning pool, if any
func (r *TenantResource) PoolKey() (ResourceKey, bool) {
	if r.PoolName == "" {
		return ResourceKey{}, false
	}
	return ResourceKey{Name: r.PoolName, Kind: ResourceKindPool}, true
}

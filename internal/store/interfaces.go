package store

import (
	"context"
	"errors"

	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/model"
)

// ErrNotFound is returned when a catalog entry does not exist
var ErrNotFound = errors.New("not found")

// ResourceFilter narrows a ListResources call. Zero fields match everything.
type ResourceFilter struct {
	Kind       model.ResourceKind
	RegionRole model.RegionRole
	States     []model.RecoveryState
}

// Matches reports whether a resource passes the filter
func (f ResourceFilter) Matches(r *model.TenantResource) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.RegionRole != "" && r.RegionRole != f.RegionRole {
		return false
	}
	if len(f.States) > 0 {
		found := false
		for _, s := range f.States {
			if r.RecoveryState == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Catalog is the durable source of truth for tenant resources and tenants.
// All recovery-state mutations go through CompareAndSwapRecoveryState so that
// repeated writes from a restarted run are safe.
type Catalog interface {
	// Resource operations
	ListResources(ctx context.Context, filter ResourceFilter) ([]*model.TenantResource, error)
	GetResource(ctx context.Context, key model.ResourceKey) (*model.TenantResource, error)
	// CompareAndSwapRecoveryState atomically moves a resource from any of the
	// given states to the target state. Returns false without error when the
	// resource is in none of the expected states.
	CompareAndSwapRecoveryState(ctx context.Context, key model.ResourceKey, from []model.RecoveryState, to model.RecoveryState) (bool, error)

	// Tenant operations
	ListTenants(ctx context.Context) ([]*model.Tenant, error)
	GetTenant(ctx context.Context, tenantKey string) (*model.Tenant, error)
	// UpdateShardPointer atomically re-points a tenant at its new active shard
	UpdateShardPointer(ctx context.Context, tenantKey string, location model.ShardLocation) error
	UpdateTenantOnlineState(ctx context.Context, tenantKey string, state model.OnlineState) error

	// Health check
	Ping(ctx context.Context) error
	Close()
}

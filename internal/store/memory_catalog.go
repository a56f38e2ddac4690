package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/model"
)

// MemoryCatalog implements Catalog with in-memory maps. It backs tests and
// local dry runs; the scheduler sees the same compare-and-swap semantics as
// with PostgreSQL.
type MemoryCatalog struct {
	mu        sync.RWMutex
	resources map[model.ResourceKey]*model.TenantResource
	tenants   map[string]*model.Tenant
}

// NewMemoryCatalog creates an empty in-memory catalog
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		resources: make(map[model.ResourceKey]*model.TenantResource),
		tenants:   make(map[string]*model.Tenant),
	}
}

// PutResource inserts or replaces a resource record
func (s *MemoryCatalog) PutResource(resource *model.TenantResource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *resource
	s.resources[clone.Key()] = &clone
}

// PutTenant inserts or replaces a tenant record
func (s *MemoryCatalog) PutTenant(tenant *model.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *tenant
	s.tenants[clone.Key] = &clone
}

// ListResources returns resources matching the filter, ordered by priority
// then name
func (s *MemoryCatalog) ListResources(ctx context.Context, filter ResourceFilter) ([]*model.TenantResource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resources := make([]*model.TenantResource, 0)
	for _, r := range s.resources {
		if filter.Matches(r) {
			clone := *r
			resources = append(resources, &clone)
		}
	}

	sort.Slice(resources, func(i, j int) bool {
		if resources[i].Priority != resources[j].Priority {
			return resources[i].Priority < resources[j].Priority
		}
		return resources[i].Name < resources[j].Name
	})

	return resources, nil
}

// GetResource returns a copy of the resource with the given key
func (s *MemoryCatalog) GetResource(ctx context.Context, key model.ResourceKey) (*model.TenantResource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resource, exists := s.resources[key]
	if !exists {
		return nil, ErrNotFound
	}

	clone := *resource
	return &clone, nil
}

// CompareAndSwapRecoveryState atomically transitions a resource's recovery state
func (s *MemoryCatalog) CompareAndSwapRecoveryState(ctx context.Context, key model.ResourceKey, from []model.RecoveryState, to model.RecoveryState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resource, exists := s.resources[key]
	if !exists {
		return false, ErrNotFound
	}

	for _, st := range from {
		if resource.RecoveryState == st {
			resource.RecoveryState = to
			resource.UpdatedAt = time.Now()
			return true, nil
		}
	}

	return false, nil
}

// ListTenants returns all tenants ordered by priority then key
func (s *MemoryCatalog) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]*model.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		clone := *t
		tenants = append(tenants, &clone)
	}

	sort.Slice(tenants, func(i, j int) bool {
		if tenants[i].Priority != tenants[j].Priority {
			return tenants[i].Priority < tenants[j].Priority
		}
		return tenants[i].Key < tenants[j].Key
	})

	return tenants, nil
}

// GetTenant returns a copy of the tenant with the given key
func (s *MemoryCatalog) GetTenant(ctx context.Context, tenantKey string) (*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, exists := s.tenants[tenantKey]
	if !exists {
		return nil, ErrNotFound
	}

	clone := *tenant
	return &clone, nil
}

// UpdateShardPointer atomically re-points a tenant at its new active shard
func (s *MemoryCatalog) UpdateShardPointer(ctx context.Context, tenantKey string, location model.ShardLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, exists := s.tenants[tenantKey]
	if !exists {
		return ErrNotFound
	}

	tenant.ActiveShard = location
	tenant.UpdatedAt = time.Now()
	return nil
}

// UpdateTenantOnlineState updates a tenant's availability flag
func (s *MemoryCatalog) UpdateTenantOnlineState(ctx context.Context, tenantKey string, state model.OnlineState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, exists := s.tenants[tenantKey]
	if !exists {
		return ErrNotFound
	}

	tenant.OnlineState = state
	tenant.UpdatedAt = time.Now()
	return nil
}

// Ping always succeeds for the in-memory catalog
func (s *MemoryCatalog) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory catalog
func (s *MemoryCatalog) Close() {}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/model"
)

// PostgresCatalog implements Catalog against the PostgreSQL tenant catalog
type PostgresCatalog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresCatalog creates a new PostgreSQL catalog accessor
func NewPostgresCatalog(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (Catalog, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}

	return &PostgresCatalog{
		pool:   pool,
		logger: logger,
	}, nil
}

// ListResources retrieves tenant resources matching the filter, ordered by
// priority then name so the eligibility queue order is stable
func (s *PostgresCatalog) ListResources(ctx context.Context, filter ResourceFilter) ([]*model.TenantResource, error) {
	query := `
		SELECT name, kind, region_role, partner_region, server_name, pool_name,
		       tenant_key, priority, recovery_state, updated_at
		FROM tenant_resources
		WHERE ($1 = '' OR kind = $1)
		  AND ($2 = '' OR region_role = $2)
		  AND (cardinality($3::text[]) = 0 OR recovery_state = ANY($3))
		ORDER BY priority, name
	`

	states := make([]string, 0, len(filter.States))
	for _, st := range filter.States {
		states = append(states, string(st))
	}

	rows, err := s.pool.Query(ctx, query, string(filter.Kind), string(filter.RegionRole), states)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	resources := make([]*model.TenantResource, 0)
	for rows.Next() {
		resource, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, resource)
	}

	return resources, rows.Err()
}

// GetResource retrieves a single resource by key
func (s *PostgresCatalog) GetResource(ctx context.Context, key model.ResourceKey) (*model.TenantResource, error) {
	query := `
		SELECT name, kind, region_role, partner_region, server_name, pool_name,
		       tenant_key, priority, recovery_state, updated_at
		FROM tenant_resources
		WHERE name = $1 AND kind = $2
	`

	row := s.pool.QueryRow(ctx, query, key.Name, string(key.Kind))
	resource, err := scanResource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get resource %s: %w", key, err)
	}

	return resource, nil
}

// CompareAndSwapRecoveryState atomically transitions a resource's recovery
// state. RowsAffected == 0 means the resource was in none of the expected
// states (or does not exist); the caller decides whether that is a replay.
func (s *PostgresCatalog) CompareAndSwapRecoveryState(ctx context.Context, key model.ResourceKey, from []model.RecoveryState, to model.RecoveryState) (bool, error) {
	query := `
		UPDATE tenant_resources
		SET recovery_state = $3, updated_at = NOW()
		WHERE name = $1 AND kind = $2 AND recovery_state = ANY($4)
	`

	states := make([]string, 0, len(from))
	for _, st := range from {
		states = append(states, string(st))
	}

	result, err := s.pool.Exec(ctx, query, key.Name, string(key.Kind), string(to), states)
	if err != nil {
		return false, fmt.Errorf("failed to transition %s: %w", key, err)
	}

	return result.RowsAffected() > 0, nil
}

// ListTenants retrieves all registered tenants ordered by priority
func (s *PostgresCatalog) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	query := `
		SELECT tenant_key, name, priority, shard_server, shard_database,
		       online_state, recovery_state, updated_at
		FROM tenants
		ORDER BY priority, tenant_key
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]*model.Tenant, 0)
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}

	return tenants, rows.Err()
}

// GetTenant retrieves a tenant by key
func (s *PostgresCatalog) GetTenant(ctx context.Context, tenantKey string) (*model.Tenant, error) {
	query := `
		SELECT tenant_key, name, priority, shard_server, shard_database,
		       online_state, recovery_state, updated_at
		FROM tenants
		WHERE tenant_key = $1
	`

	row := s.pool.QueryRow(ctx, query, tenantKey)
	tenant, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant %s: %w", tenantKey, err)
	}

	return tenant, nil
}

// UpdateShardPointer atomically re-points a tenant at its new active shard
func (s *PostgresCatalog) UpdateShardPointer(ctx context.Context, tenantKey string, location model.ShardLocation) error {
	query := `
		UPDATE tenants
		SET shard_server = $2, shard_database = $3, updated_at = NOW()
		WHERE tenant_key = $1
	`

	result, err := s.pool.Exec(ctx, query, tenantKey, location.ServerName, location.DatabaseName)
	if err != nil {
		return fmt.Errorf("failed to update shard pointer for %s: %w", tenantKey, err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateTenantOnlineState updates a tenant's availability flag
func (s *PostgresCatalog) UpdateTenantOnlineState(ctx context.Context, tenantKey string, state model.OnlineState) error {
	query := `
		UPDATE tenants
		SET online_state = $2, updated_at = NOW()
		WHERE tenant_key = $1
	`

	result, err := s.pool.Exec(ctx, query, tenantKey, string(state))
	if err != nil {
		return fmt.Errorf("failed to update online state for %s: %w", tenantKey, err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks the database connection
func (s *PostgresCatalog) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresCatalog) Close() {
	s.pool.Close()
}

// GetPool exposes the underlying pool for components sharing the catalog
// database connection
func (s *PostgresCatalog) GetPool() *pgxpool.Pool {
	return s.pool
}

func scanResource(row pgx.Row) (*model.TenantResource, error) {
	var resource model.TenantResource
	var kind, regionRole, recoveryState string
	if err := row.Scan(
		&resource.Name,
		&kind,
		&regionRole,
		&resource.PartnerRegion,
		&resource.ServerName,
		&resource.PoolName,
		&resource.TenantKey,
		&resource.Priority,
		&recoveryState,
		&resource.UpdatedAt,
	); err != nil {
		return nil, err
	}
	resource.Kind = model.ResourceKind(kind)
	resource.RegionRole = model.RegionRole(regionRole)
	resource.RecoveryState = model.RecoveryState(recoveryState)
	return &resource, nil
}

func scanTenant(row pgx.Row) (*model.Tenant, error) {
	var tenant model.Tenant
	var onlineState, recoveryState string
	if err := row.Scan(
		&tenant.Key,
		&tenant.Name,
		&tenant.Priority,
		&tenant.ActiveShard.ServerName,
		&tenant.ActiveShard.DatabaseName,
		&onlineState,
		&recoveryState,
		&tenant.UpdatedAt,
	); err != nil {
		return nil, err
	}
	tenant.OnlineState = model.OnlineState(onlineState)
	tenant.RecoveryState = model.RecoveryState(recoveryState)
	return &tenant, nil
}

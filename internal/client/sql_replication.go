package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/model"
)

// SQLReplicationClient implements ReplicationClient over the platform
// metadata database. Replication links are read from the view the storage
// layer maintains; failovers are submitted as rows the replication engine
// picks up and drives to a terminal status.
type SQLReplicationClient struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  *zap.Logger
}

// NewSQLReplicationClient creates a replication client over an existing pool
func NewSQLReplicationClient(pool *pgxpool.Pool, timeout time.Duration, logger *zap.Logger) *SQLReplicationClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &SQLReplicationClient{
		pool:    pool,
		timeout: timeout,
		logger:  logger,
	}
}

// GetReplicationLink probes the replication topology for one database
func (c *SQLReplicationClient) GetReplicationLink(ctx context.Context, serverName, databaseName, partnerRegion string) (*model.ReplicationLink, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := `
		SELECT link_id, server_name, database_name, partner_region,
		       partner_server, role, state
		FROM replication_links
		WHERE server_name = $1 AND database_name = $2 AND partner_region = $3
	`

	var link model.ReplicationLink
	var role, state string
	err := c.pool.QueryRow(ctx, query, serverName, databaseName, partnerRegion).Scan(
		&link.LinkID,
		&link.ServerName,
		&link.DatabaseName,
		&link.PartnerRegion,
		&link.PartnerServer,
		&role,
		&state,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to probe replication link for %s/%s: %w", serverName, databaseName, err)
	}

	link.Role = model.ReplicationRole(role)
	link.State = model.ReplicationLinkState(state)
	return &link, nil
}

// SubmitFailover issues an asynchronous failover request. The operation id is
// assigned here and owned by the replication engine from then on; callers
// observe progress only through PollOperation.
func (c *SQLReplicationClient) SubmitFailover(ctx context.Context, resource *model.TenantResource, replicationLinkID string) (*model.OperationHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	operationID := uuid.New().String()

	query := `
		INSERT INTO failover_operations (operation_id, link_id, server_name, database_name, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	_, err := c.pool.Exec(ctx, query,
		operationID,
		replicationLinkID,
		resource.ServerName,
		resource.Name,
		string(model.OperationStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to submit failover for %s: %w", resource.Key(), err)
	}

	c.logger.Debug("Submitted failover operation",
		zap.String("operation_id", operationID),
		zap.String("resource", resource.Key().String()),
		zap.String("link_id", replicationLinkID))

	return &model.OperationHandle{
		ID:          operationID,
		IsCompleted: false,
		Status:      model.OperationStatusPending,
	}, nil
}

// PollOperation reports the current status of a submitted operation
func (c *SQLReplicationClient) PollOperation(ctx context.Context, operationID string) (model.OperationStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := `SELECT status FROM failover_operations WHERE operation_id = $1`

	var status string
	err := c.pool.QueryRow(ctx, query, operationID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOperationNotFound
		}
		return "", fmt.Errorf("failed to poll operation %s: %w", operationID, err)
	}

	return model.OperationStatus(status), nil
}

// HasDataChanged runs the data-change test against a tenant's recovery copy
func (c *SQLReplicationClient) HasDataChanged(ctx context.Context, serverName, databaseName string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := `SELECT data_changed FROM database_change_flags WHERE server_name = $1 AND database_name = $2`

	var changed bool
	err := c.pool.QueryRow(ctx, query, serverName, databaseName).Scan(&changed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No change flag recorded means no writes landed on the copy
			return false, nil
		}
		return false, fmt.Errorf("failed to check data changes for %s/%s: %w", serverName, databaseName, err)
	}

	return changed, nil
}

// Ping checks the metadata database connection
func (c *SQLReplicationClient) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close is a no-op: the pool is owned by the catalog that created it
func (c *SQLReplicationClient) Close() {}

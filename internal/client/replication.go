package client

import (
	"context"
	"errors"

	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/model"
)

// ErrLinkNotFound is returned when no replication link exists for a database
var ErrLinkNotFound = errors.New("replication link not found")

// ErrOperationNotFound is returned when an operation id is unknown to the
// replication primitive
var ErrOperationNotFound = errors.New("operation not found")

// ReplicationClient is the orchestrator's view of the storage-layer
// replication primitive: topology probing, asynchronous failover submission
// and completion polling. The primitive executes remotely; SubmitFailover
// returns immediately with a handle whose status is observed via
// PollOperation.
type ReplicationClient interface {
	// GetReplicationLink probes the replication topology for one database
	// against its partner region
	GetReplicationLink(ctx context.Context, serverName, databaseName, partnerRegion string) (*model.ReplicationLink, error)

	// SubmitFailover issues an asynchronous failover of the database on the
	// given replication link. The returned handle carries the id assigned by
	// the primitive.
	SubmitFailover(ctx context.Context, resource *model.TenantResource, replicationLinkID string) (*model.OperationHandle, error)

	// PollOperation reports the current status of a previously submitted
	// operation without blocking
	PollOperation(ctx context.Context, operationID string) (model.OperationStatus, error)

	// HasDataChanged runs the data-change test against a tenant's recovery
	// copy, used for the global migrate-vs-reset decision
	HasDataChanged(ctx context.Context, serverName, databaseName string) (bool, error)

	// Health check
	Ping(ctx context.Context) error
	Close()
}

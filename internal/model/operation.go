package model

import "time"

// OperationStatus is the terminal-status ladder of an asynchronous
// replication operation
type OperationStatus string

const (
	// OperationStatusPending indicates the operation is still executing remotely
	OperationStatusPending OperationStatus = "pending"
	// OperationStatusSucceeded indicates the operation completed successfully
	OperationStatusSucceeded OperationStatus = "succeeded"
	// OperationStatusFaulted indicates the operation failed
	OperationStatusFaulted OperationStatus = "faulted"
)

// OperationHandle is returned by the replication primitive when an
// asynchronous failover is submitted. The id is assigned by the primitive.
type OperationHandle struct {
	ID          string
	IsCompleted bool
	Status      OperationStatus
}

// MigrationOperation tracks one in-flight asynchronous failover against a
// single database. Operations carry no persisted identity of their own: after
// a restart, a database left in an in-progress catalog state is re-evaluated
// from replication topology, not resumed by operation id.
type MigrationOperation struct {
	OperationID string
	Target      ResourceKey

	ServerName   string
	DatabaseName string
	TenantKey    string
	PoolName     string

	ReplicationLinkID string
	SubmittedAt       time.Time
	Status            OperationStatus
}

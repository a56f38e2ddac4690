package model

import "time"

// OnlineState is the tenant's traffic-facing availability flag. It is
// orthogonal to resource recovery state.
type OnlineState string

const (
	// OnlineStateOnline indicates the tenant serves traffic in its origin region
	OnlineStateOnline OnlineState = "online"
	// OnlineStateOnlineInRecovery indicates the tenant serves traffic from the recovery region
	OnlineStateOnlineInRecovery OnlineState = "online_in_recovery"
	// OnlineStateOffline indicates the tenant is not serving traffic
	OnlineStateOffline OnlineState = "offline"
)

// ShardLocation identifies the server and database holding a tenant's active shard
type ShardLocation struct {
	ServerName   string
	DatabaseName string
}

// Tenant is a customer identity bound to exactly one active database shard
// at a time. Switching shards is an atomic re-point of ActiveShard, never a
// dual-write.
type Tenant struct {
	Key  string
	Name string

	// Priority is the tenant's service tier, lower values recover first
	Priority int

	ActiveShard   ShardLocation
	OnlineState   OnlineState
	RecoveryState RecoveryState
	UpdatedAt     time.Time
}

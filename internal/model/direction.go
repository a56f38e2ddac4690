package model

import "fmt"

// Direction selects which way a migration run moves tenant shards. Forward
// failover moves tenants into the recovery region; failback repatriates them
// to the origin region. One direction parameterizes the whole run: the start
// and conclude actions, the desired primary role and the shard-pointer target
// all derive from it.
type Direction string

const (
	// DirectionFailover moves tenants origin -> recovery
	DirectionFailover Direction = "failover"
	// DirectionFailback moves tenants recovery -> origin
	DirectionFailback Direction = "failback"
)

// ParseDirection validates a direction string
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionFailover, DirectionFailback:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("unknown direction %q (want failover or failback)", s)
	}
}

// StartAction is the transition issued when a resource is admitted
func (d Direction) StartAction() RecoveryAction {
	if d == DirectionFailback {
		return ActionStartFailback
	}
	return ActionStartFailover
}

// ConcludeAction is the transition issued when a resource's operation succeeds
func (d Direction) ConcludeAction() RecoveryAction {
	if d == DirectionFailback {
		return ActionConclude
	}
	return ActionEndFailover
}

// DesiredRole is the region whose database copy must be primary for a
// resource to count as converged in this direction
func (d Direction) DesiredRole() RegionRole {
	if d == DirectionFailback {
		return RegionRoleOrigin
	}
	return RegionRoleRecovery
}

// SourceRole is the region currently holding the active copies, the side the
// classifier lists and probes
func (d Direction) SourceRole() RegionRole {
	if d == DirectionFailback {
		return RegionRoleRecovery
	}
	return RegionRoleOrigin
}

// TargetOnlineState is the tenant availability flag set once the shard
// pointer has been re-pointed
func (d Direction) TargetOnlineState() OnlineState {
	if d == DirectionFailback {
		return OnlineStateOnline
	}
	return OnlineStateOnlineInRecovery
}

package model

// ReplicationRole is a database copy's role on its replication link
type ReplicationRole string

const (
	// ReplicationRolePrimary indicates the copy accepts writes
	ReplicationRolePrimary ReplicationRole = "primary"
	// ReplicationRoleSecondary indicates the copy receives replicated data
	ReplicationRoleSecondary ReplicationRole = "secondary"
)

// ReplicationLinkState is the catch-up status of a replication link
type ReplicationLinkState string

const (
	// ReplicationLinkCatchup indicates the secondary is applying a backlog
	ReplicationLinkCatchup ReplicationLinkState = "catchup"
	// ReplicationLinkSeeding indicates the initial copy is still streaming
	ReplicationLinkSeeding ReplicationLinkState = "seeding"
	// ReplicationLinkPending indicates the link exists but has not started moving data
	ReplicationLinkPending ReplicationLinkState = "pending"
)

// ReplicationLink describes the live data-copy relationship between a
// database and its partner-region replica, as observed by the topology probe
type ReplicationLink struct {
	LinkID        string
	ServerName    string
	DatabaseName  string
	PartnerRegion string
	PartnerServer string
	Role          ReplicationRole
	State         ReplicationLinkState
}

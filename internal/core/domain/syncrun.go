package domain

import "time"

// SyncMode selects between full and incremental enumeration.
type SyncMode string

const (
	// SyncFull enumerates everything the source offers.
	SyncFull SyncMode = "full"
	// SyncIncremental enumerates only objects changed since the cursor.
	SyncIncremental SyncMode = "incremental"
)

// SyncRunStatus is the terminal status of a sync run.
type SyncRunStatus string

const (
	// SyncRunning means the run has started and not yet finished.
	SyncRunning SyncRunStatus = "running"
	// SyncCompleted means every document was processed successfully.
	SyncCompleted SyncRunStatus = "completed"
	// SyncCompletedWithErrors means some documents failed but the run finished.
	SyncCompletedWithErrors SyncRunStatus = "completed_with_errors"
	// SyncFailed means the connector could not authenticate, connect, or
	// enumerate at all.
	SyncFailed SyncRunStatus = "failed"
	// SyncCancelled means the run was externally cancelled.
	SyncCancelled SyncRunStatus = "cancelled"
)

// SyncRequest carries the parameters of one sync invocation.
type SyncRequest struct {
	// Incremental selects incremental mode. Ignored (treated as full) when
	// the account has no cursor yet.
	Incremental bool

	// Cursor is the position from the previous run. Empty for full sync.
	Cursor string
}

// Mode returns the effective sync mode for this request.
func (r SyncRequest) Mode() SyncMode {
	if r.Incremental && r.Cursor != "" {
		return SyncIncremental
	}
	return SyncFull
}

// SyncRun records one invocation of a connector's sync operation. It is
// immutable once finalized and is the basis for the next incremental cursor.
type SyncRun struct {
	// ID is the unique identifier (UUID).
	ID string

	// AccountID links to the synced Account.
	AccountID string

	// Mode is full or incremental.
	Mode SyncMode

	// Cursor is the new cursor produced by this run, set on completion.
	Cursor string

	// Seen, Created, Updated, Failed count documents handled by the run.
	Seen    int
	Created int
	Updated int
	Failed  int

	// Status is the terminal status once finalized.
	Status SyncRunStatus

	// StartedAt is when the run began.
	StartedAt time.Time
	// FinishedAt is when the run finalized. Nil while running.
	FinishedAt *time.Time
}

// Finalized returns true once the run has a terminal status.
func (r *SyncRun) Finalized() bool {
	return r.FinishedAt != nil
}

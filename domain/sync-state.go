package domain

// SyncState is the per-symbol connection lifecycle state.
type SyncState string

const (
	SyncStateIdle         SyncState = "Idle"
	SyncStateSnapshotting SyncState = "Snapshotting"
	SyncStateSyncing      SyncState = "Syncing"
	SyncStateLive         SyncState = "Live"
	SyncStateResyncing    SyncState = "Resyncing"
	SyncStateFailed       SyncState = "Failed"
)

package domain

// SnapshotPublisher hands committed poll snapshots to the live-update pipeline.
// Publish must not block the caller; delivery is best effort.
type SnapshotPublisher interface {
	Publish(snapshot Snapshot)
}

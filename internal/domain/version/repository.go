package version

import "context"

// Repository defines the interface for version and snapshot persistence.
// Commit must write the version record, its snapshot and the current-version
// pointer as a single transaction so readers never observe one without the
// other.
type Repository interface {
	Commit(ctx context.Context, v *Version, s *Snapshot) error
	// Put writes a version/snapshot pair without touching the
	// current-version pointer. Used by import.
	Put(ctx context.Context, v *Version, s *Snapshot) error
	Get(ctx context.Context, number string) (*Version, error)
	GetSnapshot(ctx context.Context, number string) (*Snapshot, error)
	List(ctx context.Context) ([]*Version, error)
	ListByTag(ctx context.Context, tag string) ([]*Version, error)
	Exists(ctx context.Context, number string) (bool, error)
	UpdateTags(ctx context.Context, number string, tags []string) error
	Delete(ctx context.Context, number string) error

	CurrentVersion(ctx context.Context) (string, error)
	SetCurrentVersion(ctx context.Context, number string) error
}

package version

import "context"

// Service defines the version ledger interface
type Service interface {
	// Commit path
	CreateVersion(ctx context.Context, description string, changes []Change, tags []string) (*Version, error)

	// Restoration. The boolean is false when restoration failed after the
	// mandatory safety backup succeeded; such failures are retryable and
	// never returned as errors.
	RestoreVersion(ctx context.Context, number string) (bool, error)

	// History and diff
	GetVersionHistory(ctx context.Context, limit int) ([]*Version, error)
	GetVersionDiff(ctx context.Context, from, to string) ([]Change, error)
	CurrentVersion(ctx context.Context) (*Version, error)
	CurrentDocument(ctx context.Context) (*Document, error)
	GetVersion(ctx context.Context, number string) (*Version, error)
	GetSnapshot(ctx context.Context, number string) (*Snapshot, error)

	// Tag management
	TagVersion(ctx context.Context, number, tag string) error
	GetVersionsByTag(ctx context.Context, tag string) ([]*Version, error)

	// Retention
	CleanupVersions(ctx context.Context, keep, days int) (int, error)

	// Portability
	ExportVersion(ctx context.Context, number string) ([]byte, error)
	ImportVersion(ctx context.Context, data []byte) (*Version, error)
}

package services

import (
	"context"
	"fmt"

	"github.com/prakashgbid/confledger/internal/domain/rollback"
	"github.com/prakashgbid/confledger/internal/domain/version"
	"golang.org/x/sys/unix"
)

// oraclePrecondition adapts a named check function into a Precondition
type oraclePrecondition struct {
	name  string
	check func(ctx context.Context) error
}

func (p *oraclePrecondition) Name() string                    { return p.name }
func (p *oraclePrecondition) Check(ctx context.Context) error { return p.check(ctx) }

// NewOraclePrecondition wraps an externally-attested boolean fact. Used for
// conditions the system cannot verify itself, such as manual approval.
func NewOraclePrecondition(name string, check func(ctx context.Context) error) rollback.Precondition {
	return &oraclePrecondition{name: name, check: check}
}

// NewConsumerPrecondition requires that no consumer processes are active.
// The registry is the external supervisor oracle.
func NewConsumerPrecondition(registry rollback.ConsumerRegistry) rollback.Precondition {
	return &oraclePrecondition{
		name: "no active consumer processes",
		check: func(ctx context.Context) error {
			active, err := registry.ActiveConsumers(ctx)
			if err != nil {
				return fmt.Errorf("consumer registry unavailable: %w", err)
			}
			if active > 0 {
				return fmt.Errorf("%d consumer process(es) still active", active)
			}
			return nil
		},
	}
}

// NewDiskSpacePrecondition requires at least minFreeBytes free under path
func NewDiskSpacePrecondition(path string, minFreeBytes uint64) rollback.Precondition {
	return &oraclePrecondition{
		name: "sufficient free disk space",
		check: func(ctx context.Context) error {
			var st unix.Statfs_t
			if err := unix.Statfs(path, &st); err != nil {
				return fmt.Errorf("failed to stat filesystem at %s: %w", path, err)
			}
			free := st.Bavail * uint64(st.Bsize)
			if free < minFreeBytes {
				return fmt.Errorf("only %d bytes free, need %d", free, minFreeBytes)
			}
			return nil
		},
	}
}

// NewBackupPrecondition requires that the ledger holds at least one prior
// backup-tagged version
func NewBackupPrecondition(ledger version.Service) rollback.Precondition {
	return &oraclePrecondition{
		name: "a prior backup exists",
		check: func(ctx context.Context) error {
			backups, err := ledger.GetVersionsByTag(ctx, version.TagBackup)
			if err != nil {
				return fmt.Errorf("failed to query backups: %w", err)
			}
			if len(backups) == 0 {
				return fmt.Errorf("no backup-tagged version in history")
			}
			return nil
		},
	}
}

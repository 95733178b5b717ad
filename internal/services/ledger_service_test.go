package services

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/prakashgbid/confledger/internal/domain/version"
	apperrors "github.com/prakashgbid/confledger/internal/pkg/errors"
	"github.com/prakashgbid/confledger/internal/pkg/logger"
	"github.com/prakashgbid/confledger/internal/testutil"
)

func newTestLedger(t *testing.T) (version.Service, *testutil.MockVersionRepository) {
	t.Helper()
	repo := testutil.NewMockVersionRepository()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	docPath := filepath.Join(t.TempDir(), "config.yaml")
	return NewLedgerService(repo, docPath, "tester", log), repo
}

func modify(id string) version.Change {
	return version.Change{Kind: version.KindModify, ItemID: id, After: "changed"}
}

func TestLedgerService_CreateVersion_BumpSequence(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	steps := []struct {
		name    string
		changes []version.Change
		want    string
	}{
		{
			name:    "initial version",
			changes: nil,
			want:    "1.0.0",
		},
		{
			name:    "modify bumps patch",
			changes: []version.Change{{Kind: version.KindModify, ItemID: "cache.ttl", After: 120}},
			want:    "1.0.1",
		},
		{
			name:    "add bumps minor",
			changes: []version.Change{{Kind: version.KindAdd, ItemID: "feature.x", After: true}},
			want:    "1.1.0",
		},
		{
			name:    "remove bumps major",
			changes: []version.Change{{Kind: version.KindRemove, ItemID: "feature.x"}},
			want:    "2.0.0",
		},
	}

	for _, step := range steps {
		v, err := svc.CreateVersion(ctx, step.name, step.changes, nil)
		if err != nil {
			t.Fatalf("%s: CreateVersion() error = %v", step.name, err)
		}
		if v.Number != step.want {
			t.Fatalf("%s: CreateVersion() number = %s, want %s", step.name, v.Number, step.want)
		}
	}
}

func TestLedgerService_CreateVersion_RequiresChanges(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatalf("initial CreateVersion() error = %v", err)
	}
	_, err := svc.CreateVersion(ctx, "empty", nil, nil)
	if !apperrors.HasCode(err, apperrors.ErrCodeValidation) {
		t.Errorf("CreateVersion() with no changes error = %v, want validation error", err)
	}
}

func TestLedgerService_SnapshotsAreImmutable(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	snapBefore, err := svc.GetSnapshot(ctx, "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	hashBefore := snapBefore.Hash

	if _, err := svc.CreateVersion(ctx, "change", []version.Change{modify("cache.ttl")}, nil); err != nil {
		t.Fatal(err)
	}

	snapAfter, err := svc.GetSnapshot(ctx, "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if snapAfter.Hash != hashBefore {
		t.Error("committing a new version mutated an existing snapshot")
	}
}

// A modify that names no category (or the wrong one) must update the item
// where it actually lives, not duplicate it into a second category.
func TestLedgerService_ModifyKeepsItemCategory(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateVersion(ctx, "add",
		[]version.Change{{Kind: version.KindAdd, Category: "performance", ItemID: "cache.ttl", After: 60}}, nil); err != nil {
		t.Fatal(err)
	}

	v, err := svc.CreateVersion(ctx, "modify without category",
		[]version.Change{{Kind: version.KindModify, ItemID: "cache.ttl", After: 120}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	snap, err := svc.GetSnapshot(ctx, v.Number)
	if err != nil {
		t.Fatal(err)
	}
	found := 0
	for cat, items := range snap.Document.Configurations {
		for _, item := range items {
			if item.ID != "cache.ttl" {
				continue
			}
			found++
			if cat != "performance" {
				t.Errorf("cache.ttl lives in category %q, want performance", cat)
			}
			if fmt.Sprint(item.Config.Value) != "120" {
				t.Errorf("cache.ttl value = %v, want 120", item.Config.Value)
			}
		}
	}
	if found != 1 {
		t.Errorf("cache.ttl appears %d times in the snapshot, want 1", found)
	}
}

func TestLedgerService_RestoreVersion(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateVersion(ctx, "second",
		[]version.Change{{Kind: version.KindAdd, ItemID: "feature.x", After: true}}, nil); err != nil {
		t.Fatal(err)
	}

	ok, err := svc.RestoreVersion(ctx, "1.0.0")
	if err != nil {
		t.Fatalf("RestoreVersion() error = %v", err)
	}
	if !ok {
		t.Fatal("RestoreVersion() = false, want true")
	}

	current, err := svc.CurrentVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if current.Number != "1.0.0" {
		t.Errorf("current version after restore = %s, want 1.0.0", current.Number)
	}

	// The restore must have committed a safety backup first
	backups, err := svc.GetVersionsByTag(ctx, version.TagBackup)
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 {
		t.Fatalf("backup versions after restore = %d, want 1", len(backups))
	}
	if !backups[0].HasTag(version.TagAuto) {
		t.Error("safety backup is missing the auto tag")
	}

	// Restored state must be structurally identical to the target snapshot
	changes, err := svc.GetVersionDiff(ctx, current.Number, "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Errorf("diff between restored state and target = %+v, want empty", changes)
	}
}

func TestLedgerService_RestoreUnknownVersion(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	_, err := svc.RestoreVersion(ctx, "9.9.9")
	if !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		t.Errorf("RestoreVersion() error = %v, want not found", err)
	}
}

// Version numbers stay strictly increasing even when the current pointer
// sits below the head after a restore.
func TestLedgerService_MonotonicAfterRestore(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateVersion(ctx, "second",
		[]version.Change{{Kind: version.KindAdd, ItemID: "feature.x", After: true}}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RestoreVersion(ctx, "1.0.0"); err != nil {
		t.Fatal(err)
	}

	v, err := svc.CreateVersion(ctx, "after restore", []version.Change{modify("cache.ttl")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Head is the 1.1.1 safety backup, so the next patch is 1.1.2
	if version.Compare(v.Number, "1.1.1") <= 0 {
		t.Errorf("version after restore = %s, want above 1.1.1", v.Number)
	}
}

func TestLedgerService_HistoryOrder(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.CreateVersion(ctx, "change", []version.Change{modify("cache.ttl")}, nil); err != nil {
			t.Fatal(err)
		}
	}

	history, err := svc.GetVersionHistory(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}
	for i := 1; i < len(history); i++ {
		if version.Compare(history[i-1].Number, history[i].Number) <= 0 {
			t.Errorf("history not newest first: %s before %s", history[i-1].Number, history[i].Number)
		}
	}

	limited, err := svc.GetVersionHistory(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limited history length = %d, want 2", len(limited))
	}
}

func TestLedgerService_ExportImport(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	original, err := svc.CreateVersion(ctx, "exported",
		[]version.Change{{Kind: version.KindAdd, ItemID: "feature.x", After: true}}, []string{"stable"})
	if err != nil {
		t.Fatal(err)
	}

	data, err := svc.ExportVersion(ctx, original.Number)
	if err != nil {
		t.Fatalf("ExportVersion() error = %v", err)
	}

	// Importing into a fresh ledger reproduces the version faithfully
	other, otherRepo := newTestLedger(t)
	imported, err := other.ImportVersion(ctx, data)
	if err != nil {
		t.Fatalf("ImportVersion() error = %v", err)
	}
	if imported.Number != original.Number || imported.Hash != original.Hash {
		t.Errorf("imported version = %s/%s, want %s/%s",
			imported.Number, imported.Hash, original.Number, original.Hash)
	}

	// Import must not move the current pointer
	if otherRepo.Current != "" {
		t.Errorf("import moved the current pointer to %s", otherRepo.Current)
	}

	// Importing the same number again is a conflict
	_, err = other.ImportVersion(ctx, data)
	if !apperrors.HasCode(err, apperrors.ErrCodeConflict) {
		t.Errorf("duplicate ImportVersion() error = %v, want conflict", err)
	}
}

func TestLedgerService_ImportRejectsTamperedBundle(t *testing.T) {
	svc, repo := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	data, err := svc.ExportVersion(ctx, "1.0.0")
	if err != nil {
		t.Fatal(err)
	}

	// Corrupt the stored hash so the bundle no longer verifies
	repo.Versions["1.0.0"].Hash = "tampered"
	tampered, err := svc.ExportVersion(ctx, "1.0.0")
	if err != nil {
		t.Fatal(err)
	}

	other, _ := newTestLedger(t)
	if _, err := other.ImportVersion(ctx, tampered); !apperrors.HasCode(err, apperrors.ErrCodeValidation) {
		t.Errorf("tampered ImportVersion() error = %v, want validation error", err)
	}
	if _, err := other.ImportVersion(ctx, data); err != nil {
		t.Errorf("intact ImportVersion() error = %v", err)
	}
}

func TestLedgerService_ImportRejectsMalformedNumber(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	data, err := svc.ExportVersion(ctx, "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	mangled := bytes.ReplaceAll(data, []byte("1.0.0"), []byte("1.0.0-rc1"))

	other, _ := newTestLedger(t)
	if _, err := other.ImportVersion(ctx, mangled); !apperrors.HasCode(err, apperrors.ErrCodeValidation) {
		t.Errorf("ImportVersion() with prerelease number error = %v, want validation error", err)
	}
}

func TestLedgerService_Tagging(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := svc.TagVersion(ctx, "1.0.0", "stable"); err != nil {
		t.Fatalf("TagVersion() error = %v", err)
	}
	// Tagging twice is a no-op
	if err := svc.TagVersion(ctx, "1.0.0", "stable"); err != nil {
		t.Fatalf("repeated TagVersion() error = %v", err)
	}

	tagged, err := svc.GetVersionsByTag(ctx, "stable")
	if err != nil {
		t.Fatal(err)
	}
	if len(tagged) != 1 || tagged[0].Number != "1.0.0" {
		t.Errorf("GetVersionsByTag() = %+v, want [1.0.0]", tagged)
	}

	if err := svc.TagVersion(ctx, "9.9.9", "stable"); !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		t.Errorf("TagVersion() on unknown version error = %v, want not found", err)
	}
}

func TestLedgerService_CleanupVersions(t *testing.T) {
	svc, repo := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := svc.CreateVersion(ctx, "change", []version.Change{modify("cache.ttl")}, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := svc.TagVersion(ctx, "1.0.1", "stable"); err != nil {
		t.Fatal(err)
	}

	// Age everything so only the explicit guards protect versions
	old := time.Now().AddDate(0, 0, -60)
	for _, v := range repo.Versions {
		v.CreatedAt = old
	}

	removed, err := svc.CleanupVersions(ctx, 2, 30)
	if err != nil {
		t.Fatalf("CleanupVersions() error = %v", err)
	}
	// History is 1.0.4..1.0.0; keep=2 protects 1.0.4 and 1.0.3 (1.0.4 is
	// also current), the stable tag protects 1.0.1
	if removed != 2 {
		t.Errorf("CleanupVersions() removed = %d, want 2", removed)
	}
	for _, number := range []string{"1.0.4", "1.0.3", "1.0.1"} {
		if _, ok := repo.Versions[number]; !ok {
			t.Errorf("cleanup removed protected version %s", number)
		}
	}
	for _, number := range []string{"1.0.2", "1.0.0"} {
		if _, ok := repo.Versions[number]; ok {
			t.Errorf("cleanup kept unprotected version %s", number)
		}
	}
}

func TestLedgerService_CleanupKeepsYoungVersions(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.CreateVersion(ctx, "change", []version.Change{modify("cache.ttl")}, nil); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := svc.CleanupVersions(ctx, 1, 30)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("CleanupVersions() removed %d young versions", removed)
	}
}

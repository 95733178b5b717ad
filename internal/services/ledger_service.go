package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/prakashgbid/confledger/internal/detector"
	"github.com/prakashgbid/confledger/internal/domain/version"
	"github.com/prakashgbid/confledger/internal/pkg/errors"
	"github.com/prakashgbid/confledger/internal/pkg/logger"
	"github.com/prakashgbid/confledger/internal/pkg/metrics"
	"gopkg.in/yaml.v3"
)

const initialVersion = "1.0.0"

// LedgerService implements version.Service: an immutable, content-addressed
// history of configuration snapshots with semantic version numbers. The
// service owns the live document file and the current-version pointer.
type LedgerService struct {
	repo         version.Repository
	differ       *detector.DocumentDiffer
	documentPath string
	author       string
	logger       *logger.Logger
}

// NewLedgerService creates a new version ledger
func NewLedgerService(repo version.Repository, documentPath, author string, log *logger.Logger) version.Service {
	return &LedgerService{
		repo:         repo,
		differ:       detector.NewDocumentDiffer(),
		documentPath: documentPath,
		author:       author,
		logger:       log,
	}
}

// CreateVersion commits a new version: computes the next semantic number
// from the change set, applies the changes to the current document, and
// persists version, snapshot and pointer as one unit.
func (s *LedgerService) CreateVersion(ctx context.Context, description string, changes []version.Change, tags []string) (*version.Version, error) {
	latest, err := s.latestNumber(ctx)
	if err != nil {
		return nil, err
	}
	initial := latest == ""

	if !initial && len(changes) == 0 {
		return nil, errors.ValidationError("Version beyond the initial one requires a non-empty change list", nil)
	}

	number := initialVersion
	bump := version.BumpMinor
	if !initial {
		// Numbering is anchored to the highest committed number, not the
		// current pointer: after a restore the pointer may sit below the
		// head, and version numbers must stay strictly increasing.
		number, bump, err = version.NextNumber(latest, changes)
		if err != nil {
			return nil, errors.ValidationError(fmt.Sprintf("Latest version %q is malformed", latest), nil)
		}
	}

	doc, err := s.workingDocument(ctx, initial)
	if err != nil {
		return nil, err
	}
	if err := applyChanges(doc, changes); err != nil {
		return nil, err
	}
	doc.Version = number

	v, snap, err := buildRecords(number, description, changes, tags, s.author, doc)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Commit(ctx, v, snap); err != nil {
		return nil, err
	}
	if err := s.writeLiveDocument(doc); err != nil {
		return nil, err
	}

	metrics.RecordVersionCreated(bump)
	s.logger.WithFields(map[string]interface{}{
		"version": number,
		"bump":    bump,
		"changes": len(changes),
	}).Info("Version committed")

	return v, nil
}

// RestoreVersion replaces the live document with the target snapshot. A
// safety version of the current state is always committed first, tagged
// backup/auto, so restoration is never destructive. Failures after the
// safety backup return false rather than an error so callers can retry.
func (s *LedgerService) RestoreVersion(ctx context.Context, number string) (bool, error) {
	target, err := s.repo.Get(ctx, number)
	if err != nil {
		return false, err
	}
	snap, err := s.repo.GetSnapshot(ctx, number)
	if err != nil {
		return false, err
	}

	if err := s.commitSafetyBackup(ctx, number); err != nil {
		return false, err
	}

	doc, err := snap.Document.Clone()
	if err != nil {
		s.logger.WithError(err).Error("Restore failed after safety backup")
		metrics.RecordVersionRestored("failed")
		return false, nil
	}
	doc.Version = target.Number

	if err := s.writeLiveDocument(doc); err != nil {
		s.logger.WithError(err).Error("Restore failed after safety backup")
		metrics.RecordVersionRestored("failed")
		return false, nil
	}
	if err := s.repo.SetCurrentVersion(ctx, target.Number); err != nil {
		s.logger.WithError(err).Error("Restore failed after safety backup")
		metrics.RecordVersionRestored("failed")
		return false, nil
	}

	metrics.RecordVersionRestored("ok")
	s.logger.With("version", number).Info("Version restored")
	return true, nil
}

// commitSafetyBackup snapshots the current state under a fresh patch number
func (s *LedgerService) commitSafetyBackup(ctx context.Context, targetNumber string) error {
	current, err := s.repo.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	latest, err := s.latestNumber(ctx)
	if err != nil {
		return err
	}

	doc, err := s.CurrentDocument(ctx)
	if err != nil {
		return err
	}

	changes := []version.Change{{
		Kind:   version.KindModify,
		ItemID: "ledger.state",
		Name:   "ledger state",
		Reason: fmt.Sprintf("safety backup before restore to %s", targetNumber),
	}}

	number, _, err := version.NextNumber(latest, changes)
	if err != nil {
		return errors.ValidationError(fmt.Sprintf("Latest version %q is malformed", latest), nil)
	}
	doc.Version = number

	v, snap, err := buildRecords(number,
		fmt.Sprintf("Safety backup of %s before restore to %s", current, targetNumber),
		changes, []string{version.TagBackup, version.TagAuto}, s.author, doc)
	if err != nil {
		return err
	}

	return s.repo.Commit(ctx, v, snap)
}

// GetVersionHistory returns versions newest first under semantic-version
// ordering, which tolerates clock skew in creation timestamps
func (s *LedgerService) GetVersionHistory(ctx context.Context, limit int) ([]*version.Version, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		return version.Compare(all[i].Number, all[j].Number) > 0
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// GetVersionDiff recomputes the authoritative structural diff between two
// snapshots. Stored Change lists are a best-effort log and never consulted.
func (s *LedgerService) GetVersionDiff(ctx context.Context, from, to string) ([]version.Change, error) {
	fromSnap, err := s.repo.GetSnapshot(ctx, from)
	if err != nil {
		return nil, err
	}
	toSnap, err := s.repo.GetSnapshot(ctx, to)
	if err != nil {
		return nil, err
	}
	return s.differ.Diff(fromSnap.Document, toSnap.Document), nil
}

// CurrentVersion returns the version the current pointer holds
func (s *LedgerService) CurrentVersion(ctx context.Context) (*version.Version, error) {
	number, err := s.repo.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, number)
}

// CurrentDocument returns the live configuration document, falling back to
// the current snapshot when the live file is unreadable
func (s *LedgerService) CurrentDocument(ctx context.Context) (*version.Document, error) {
	data, err := os.ReadFile(s.documentPath)
	if err == nil {
		return version.DecodeDocument(data)
	}

	number, err := s.repo.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.repo.GetSnapshot(ctx, number)
	if err != nil {
		return nil, err
	}
	return snap.Document.Clone()
}

// GetVersion returns a version record by number
func (s *LedgerService) GetVersion(ctx context.Context, number string) (*version.Version, error) {
	return s.repo.Get(ctx, number)
}

// GetSnapshot returns the snapshot stored under a version number
func (s *LedgerService) GetSnapshot(ctx context.Context, number string) (*version.Snapshot, error) {
	return s.repo.GetSnapshot(ctx, number)
}

// TagVersion adds a tag to a version
func (s *LedgerService) TagVersion(ctx context.Context, number, tag string) error {
	v, err := s.repo.Get(ctx, number)
	if err != nil {
		return err
	}
	if v.HasTag(tag) {
		return nil
	}
	v.AddTag(tag)
	return s.repo.UpdateTags(ctx, number, v.Tags)
}

// GetVersionsByTag returns the versions carrying a tag, newest first
func (s *LedgerService) GetVersionsByTag(ctx context.Context, tag string) ([]*version.Version, error) {
	tagged, err := s.repo.ListByTag(ctx, tag)
	if err != nil {
		return nil, err
	}
	sort.Slice(tagged, func(i, j int) bool {
		return version.Compare(tagged[i].Number, tagged[j].Number) > 0
	})
	return tagged, nil
}

// CleanupVersions removes old untagged versions. The keep most-recent
// versions survive regardless of age; tagged versions and versions younger
// than days survive regardless of count; the current version always
// survives.
func (s *LedgerService) CleanupVersions(ctx context.Context, keep, days int) (int, error) {
	history, err := s.GetVersionHistory(ctx, 0)
	if err != nil {
		return 0, err
	}

	current, err := s.repo.CurrentVersion(ctx)
	if err != nil && !errors.HasCode(err, errors.ErrCodeNotFound) {
		return 0, err
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	removed := 0

	for i, v := range history {
		if i < keep {
			continue
		}
		if v.Number == current {
			continue
		}
		if len(v.Tags) > 0 {
			continue
		}
		if v.CreatedAt.After(cutoff) {
			continue
		}
		if err := s.repo.Delete(ctx, v.Number); err != nil {
			return removed, err
		}
		removed++
	}

	if removed > 0 {
		metrics.RecordVersionsCleaned(removed)
		s.logger.With("removed", removed).Info("Retention cleanup removed versions")
	}
	return removed, nil
}

// exportBundle is the portable Version+Snapshot document format
type exportBundle struct {
	Version  *version.Version  `yaml:"version"`
	Snapshot *version.Snapshot `yaml:"snapshot"`
}

// ExportVersion serializes a Version and its Snapshot as one portable
// document
func (s *LedgerService) ExportVersion(ctx context.Context, number string) ([]byte, error) {
	v, err := s.repo.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	snap, err := s.repo.GetSnapshot(ctx, number)
	if err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(exportBundle{Version: v, Snapshot: snap})
	if err != nil {
		return nil, errors.Internal("Failed to serialize export bundle", err)
	}
	return data, nil
}

// ImportVersion installs an exported Version+Snapshot pair. It fails with a
// conflict when the version number already exists and does not move the
// current-version pointer.
func (s *LedgerService) ImportVersion(ctx context.Context, data []byte) (*version.Version, error) {
	var bundle exportBundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return nil, errors.ValidationError("Malformed export bundle", err.Error())
	}
	if bundle.Version == nil || bundle.Snapshot == nil || bundle.Snapshot.Document == nil {
		return nil, errors.ValidationError("Export bundle is missing version or snapshot", nil)
	}
	if !version.IsValidNumber(bundle.Version.Number) {
		return nil, errors.ValidationError(fmt.Sprintf("Imported version number %q is malformed", bundle.Version.Number), nil)
	}

	hash, err := bundle.Snapshot.Document.Hash()
	if err != nil {
		return nil, errors.Internal("Failed to hash imported document", err)
	}
	if hash != bundle.Version.Hash {
		return nil, errors.ValidationError("Imported snapshot does not match version hash", nil)
	}

	exists, err := s.repo.Exists(ctx, bundle.Version.Number)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.Conflict(fmt.Sprintf("version %s already exists", bundle.Version.Number))
	}

	if err := s.repo.Put(ctx, bundle.Version, bundle.Snapshot); err != nil {
		return nil, err
	}

	s.logger.With("version", bundle.Version.Number).Info("Version imported")
	return bundle.Version, nil
}

// latestNumber returns the highest committed version number, or "" when the
// ledger is empty
func (s *LedgerService) latestNumber(ctx context.Context) (string, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return "", err
	}
	latest := ""
	for _, v := range all {
		if latest == "" || version.Compare(v.Number, latest) > 0 {
			latest = v.Number
		}
	}
	return latest, nil
}

// workingDocument loads the document the next commit starts from
func (s *LedgerService) workingDocument(ctx context.Context, initial bool) (*version.Document, error) {
	if initial {
		if data, err := os.ReadFile(s.documentPath); err == nil {
			return version.DecodeDocument(data)
		}
		return version.NewDocument(initialVersion), nil
	}
	return s.CurrentDocument(ctx)
}

// writeLiveDocument atomically replaces the live configuration file so
// readers never observe a torn write
func (s *LedgerService) writeLiveDocument(doc *version.Document) error {
	data, err := version.EncodeDocument(doc)
	if err != nil {
		return errors.PersistenceError("Failed to encode live document", err)
	}

	dir := filepath.Dir(s.documentPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.PersistenceError("Failed to create document directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".confledger-*")
	if err != nil {
		return errors.PersistenceError("Failed to stage live document", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.PersistenceError("Failed to stage live document", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.PersistenceError("Failed to stage live document", err)
	}
	if err := os.Rename(tmpName, s.documentPath); err != nil {
		os.Remove(tmpName)
		return errors.PersistenceError("Failed to replace live document", err)
	}
	return nil
}

// buildRecords assembles the Version and Snapshot pair for a commit
func buildRecords(number, description string, changes []version.Change, tags []string, author string, doc *version.Document) (*version.Version, *version.Snapshot, error) {
	hash, err := doc.Hash()
	if err != nil {
		return nil, nil, errors.Internal("Failed to hash document", err)
	}
	encoded, err := version.EncodeDocument(doc)
	if err != nil {
		return nil, nil, errors.Internal("Failed to encode document", err)
	}

	now := time.Now()
	tagSet := make([]string, 0, len(tags))
	seen := make(map[string]bool)
	for _, t := range tags {
		if t != "" && !seen[t] {
			tagSet = append(tagSet, t)
			seen[t] = true
		}
	}

	v := &version.Version{
		Number:      number,
		CreatedAt:   now,
		Description: description,
		Changes:     changes,
		Hash:        hash,
		Author:      author,
		Tags:        tagSet,
	}
	snap := &version.Snapshot{
		Version:   number,
		CreatedAt: now,
		Document:  doc,
		Hash:      hash,
		Size:      int64(len(encoded)),
	}
	return v, snap, nil
}

// applyChanges folds a change list into the document
func applyChanges(doc *version.Document, changes []version.Change) error {
	for _, c := range changes {
		category := c.Category
		if category == "" {
			category = "general"
		}

		switch c.Kind {
		case version.KindAdd, version.KindModify:
			item := version.Item{
				ID:     c.ItemID,
				Name:   c.Name,
				Config: toItemConfig(c.ItemID, c.After),
			}
			if item.Name == "" {
				item.Name = c.ItemID
			}
			if c.Kind == version.KindModify {
				// A modify updates the item where it lives, even when the
				// change names a different category. Upserting into the
				// named category would duplicate the item and leave the old
				// value active.
				if cat, ok := findItemCategory(doc, c.ItemID); ok {
					doc.UpsertItem(cat, item)
					continue
				}
			}
			doc.UpsertItem(category, item)
		case version.KindRemove:
			if !doc.RemoveItem(category, c.ItemID) {
				// The change may not name the category the item lives under
				for cat := range doc.Configurations {
					if doc.RemoveItem(cat, c.ItemID) {
						break
					}
				}
			}
		default:
			return errors.ValidationError(fmt.Sprintf("unknown change kind %q", c.Kind), nil)
		}
	}
	return nil
}

// findItemCategory locates the category an item currently lives in
func findItemCategory(doc *version.Document, id string) (string, bool) {
	for cat := range doc.Configurations {
		if _, ok := doc.FindItem(cat, id); ok {
			return cat, true
		}
	}
	return "", false
}

func toItemConfig(id string, value interface{}) version.ItemConfig {
	if cfg, ok := value.(version.ItemConfig); ok {
		return cfg
	}
	return version.ItemConfig{Setting: id, Value: value}
}

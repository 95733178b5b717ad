package detector

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/prakashgbid/confledger/internal/domain/version"
)

// DocumentDiffer computes the authoritative structural diff between two
// configuration documents. Each top-level category is treated as a keyed
// collection of items; items are matched by id and compared by structural
// equality. Stored Change lists on Version records are a historical log,
// never an input here.
type DocumentDiffer struct{}

// NewDocumentDiffer creates a new document differ
func NewDocumentDiffer() *DocumentDiffer {
	return &DocumentDiffer{}
}

// Diff returns the changes that transform from into to
func (d *DocumentDiffer) Diff(from, to *version.Document) []version.Change {
	var changes []version.Change

	for _, category := range unionCategories(from, to) {
		fromItems := indexItems(from.Configurations[category])
		toItems := indexItems(to.Configurations[category])

		// Removed and modified items
		for _, id := range sortedKeys(fromItems) {
			before := fromItems[id]
			after, exists := toItems[id]
			if !exists {
				changes = append(changes, version.Change{
					Kind:     version.KindRemove,
					Category: category,
					ItemID:   id,
					Name:     before.Name,
					Before:   before.Config,
				})
				continue
			}
			if !reflect.DeepEqual(before.Config, after.Config) || before.Name != after.Name {
				changes = append(changes, version.Change{
					Kind:     version.KindModify,
					Category: category,
					ItemID:   id,
					Name:     after.Name,
					Before:   before.Config,
					After:    after.Config,
				})
			}
		}

		// Added items
		for _, id := range sortedKeys(toItems) {
			if _, exists := fromItems[id]; !exists {
				item := toItems[id]
				changes = append(changes, version.Change{
					Kind:     version.KindAdd,
					Category: category,
					ItemID:   id,
					Name:     item.Name,
					After:    item.Config,
				})
			}
		}
	}

	return changes
}

// Summary renders a short human-readable description of a diff
func (d *DocumentDiffer) Summary(changes []version.Change) string {
	var added, removed, modified int
	for _, c := range changes {
		switch c.Kind {
		case version.KindAdd:
			added++
		case version.KindRemove:
			removed++
		case version.KindModify:
			modified++
		}
	}
	return fmt.Sprintf("%d added, %d removed, %d modified", added, removed, modified)
}

func unionCategories(from, to *version.Document) []string {
	seen := make(map[string]bool)
	for category := range from.Configurations {
		seen[category] = true
	}
	for category := range to.Configurations {
		seen[category] = true
	}
	categories := make([]string, 0, len(seen))
	for category := range seen {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

func indexItems(items []version.Item) map[string]version.Item {
	indexed := make(map[string]version.Item, len(items))
	for _, item := range items {
		indexed[item.ID] = item
	}
	return indexed
}

func sortedKeys(m map[string]version.Item) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

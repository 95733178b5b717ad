package version

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the configuration value the ledger versions: a top-level
// version field plus a map of category to named configuration items.
type Document struct {
	Version        string            `yaml:"version" json:"version"`
	Configurations map[string][]Item `yaml:"configurations" json:"configurations"`
}

// Item is one named configuration entry inside a category
type Item struct {
	ID     string     `yaml:"id" json:"id"`
	Name   string     `yaml:"name" json:"name"`
	Config ItemConfig `yaml:"config" json:"config"`
}

// ItemConfig carries the setting/value payload of an item
type ItemConfig struct {
	Setting string      `yaml:"setting" json:"setting"`
	Value   interface{} `yaml:"value" json:"value"`
}

// NewDocument returns an empty document at the given version number
func NewDocument(number string) *Document {
	return &Document{
		Version:        number,
		Configurations: make(map[string][]Item),
	}
}

// Hash computes the reproducible content hash of the document. Canonical
// JSON keeps map keys sorted, so equal documents hash equal.
func (d *Document) Hash() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to serialize document for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Clone returns a deep copy of the document
func (d *Document) Clone() (*Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to clone document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to clone document: %w", err)
	}
	if out.Configurations == nil {
		out.Configurations = make(map[string][]Item)
	}
	return &out, nil
}

// MarshalYAML-side helpers for the live file and export bundles.

// EncodeDocument serializes the document to its human-editable YAML form
func EncodeDocument(d *Document) ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses a YAML configuration document
func DecodeDocument(data []byte) (*Document, error) {
	var d Document
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if d.Configurations == nil {
		d.Configurations = make(map[string][]Item)
	}
	return &d, nil
}

// FindItem returns the item with the given id in a category, if present
func (d *Document) FindItem(category, id string) (*Item, bool) {
	for i := range d.Configurations[category] {
		if d.Configurations[category][i].ID == id {
			return &d.Configurations[category][i], true
		}
	}
	return nil, false
}

// UpsertItem adds or replaces an item in a category
func (d *Document) UpsertItem(category string, item Item) {
	items := d.Configurations[category]
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			return
		}
	}
	d.Configurations[category] = append(items, item)
}

// RemoveItem deletes an item from a category, reporting whether it existed
func (d *Document) RemoveItem(category, id string) bool {
	items := d.Configurations[category]
	for i := range items {
		if items[i].ID == id {
			d.Configurations[category] = append(items[:i], items[i+1:]...)
			return true
		}
	}
	return false
}

// Items returns every item across all categories
func (d *Document) Items() []Item {
	var all []Item
	for _, items := range d.Configurations {
		all = append(all, items...)
	}
	return all
}

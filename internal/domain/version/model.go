package version

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// Version represents a committed point in configuration history
type Version struct {
	Number      string    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description"`
	Changes     []Change  `json:"changes"`
	Hash        string    `json:"hash"`
	Author      string    `json:"author"`
	Tags        []string  `json:"tags"`
}

// Snapshot is the full configuration document captured at a version
type Snapshot struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Document  *Document `json:"document"`
	Hash      string    `json:"hash"`
	Size      int64     `json:"size"`
}

// Change is one atomic delta between two configuration documents
type Change struct {
	Kind     string      `json:"kind"` // add, modify, remove
	Category string      `json:"category"`
	ItemID   string      `json:"item_id"`
	Name     string      `json:"name"`
	Before   interface{} `json:"before,omitempty"`
	After    interface{} `json:"after,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// Change kinds
const (
	KindAdd    = "add"
	KindModify = "modify"
	KindRemove = "remove"
)

// Bump classifications for a version increment
const (
	BumpMajor = "major"
	BumpMinor = "minor"
	BumpPatch = "patch"
)

// Well-known tags
const (
	TagBackup = "backup"
	TagAuto   = "auto"
)

// breakingSignals are reason-text markers that force a major bump on a modify
var breakingSignals = []string{"breaking", "incompatible", "removes", "major"}

// HasTag reports whether the version carries the given tag
func (v *Version) HasTag(tag string) bool {
	for _, t := range v.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends a tag, preserving the set property
func (v *Version) AddTag(tag string) {
	if !v.HasTag(tag) {
		v.Tags = append(v.Tags, tag)
	}
}

// Compare orders two version numbers under semantic-version comparison.
// Returns -1, 0 or +1.
func Compare(a, b string) int {
	return semver.Compare("v"+a, "v"+b)
}

// IsValidNumber reports whether s is a well-formed major.minor.patch number.
// Prerelease and build suffixes are not accepted; the ledger numbers versions
// with three plain integers.
func IsValidNumber(s string) bool {
	_, _, _, err := parseNumber(s)
	return err == nil
}

// ClassifyBump determines the semantic bump a change set forces: any remove,
// or any modify whose reason signals a breaking change, is major; an add with
// no breaking changes is minor; pure modifies are patch.
func ClassifyBump(changes []Change) string {
	bump := BumpPatch
	for _, c := range changes {
		switch c.Kind {
		case KindRemove:
			return BumpMajor
		case KindModify:
			reason := strings.ToLower(c.Reason)
			for _, signal := range breakingSignals {
				if strings.Contains(reason, signal) {
					return BumpMajor
				}
			}
		case KindAdd:
			bump = BumpMinor
		}
	}
	return bump
}

// NextNumber computes the successor of current for the given change set
func NextNumber(current string, changes []Change) (string, string, error) {
	major, minor, patch, err := parseNumber(current)
	if err != nil {
		return "", "", err
	}

	bump := ClassifyBump(changes)
	switch bump {
	case BumpMajor:
		major, minor, patch = major+1, 0, 0
	case BumpMinor:
		minor, patch = minor+1, 0
	default:
		patch++
	}

	return fmt.Sprintf("%d.%d.%d", major, minor, patch), bump, nil
}

func parseNumber(s string) (int, int, int, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid version number %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, 0, 0, fmt.Errorf("invalid version number %q", s)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}

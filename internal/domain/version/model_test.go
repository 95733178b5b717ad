package version

import "testing"

func TestClassifyBump(t *testing.T) {
	tests := []struct {
		name    string
		changes []Change
		want    string
	}{
		{
			name:    "pure modify is patch",
			changes: []Change{{Kind: KindModify, ItemID: "cache.ttl"}},
			want:    BumpPatch,
		},
		{
			name: "any add is minor",
			changes: []Change{
				{Kind: KindModify, ItemID: "cache.ttl"},
				{Kind: KindAdd, ItemID: "feature.x"},
			},
			want: BumpMinor,
		},
		{
			name: "any remove is major",
			changes: []Change{
				{Kind: KindAdd, ItemID: "feature.x"},
				{Kind: KindRemove, ItemID: "legacy.flag"},
			},
			want: BumpMajor,
		},
		{
			name:    "breaking modify is major",
			changes: []Change{{Kind: KindModify, ItemID: "api.format", Reason: "breaking change to response format"}},
			want:    BumpMajor,
		},
		{
			name:    "empty change set is patch",
			changes: nil,
			want:    BumpPatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyBump(tt.changes); got != tt.want {
				t.Errorf("ClassifyBump() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextNumber(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		changes  []Change
		want     string
		wantBump string
		wantErr  bool
	}{
		{
			name:     "patch bump",
			current:  "1.0.0",
			changes:  []Change{{Kind: KindModify, ItemID: "cache.ttl"}},
			want:     "1.0.1",
			wantBump: BumpPatch,
		},
		{
			name:     "minor bump resets patch",
			current:  "1.0.5",
			changes:  []Change{{Kind: KindAdd, ItemID: "feature.x"}},
			want:     "1.1.0",
			wantBump: BumpMinor,
		},
		{
			name:     "major bump resets minor and patch",
			current:  "1.4.2",
			changes:  []Change{{Kind: KindRemove, ItemID: "legacy.flag"}},
			want:     "2.0.0",
			wantBump: BumpMajor,
		},
		{
			name:    "malformed current",
			current: "1.0",
			changes: []Change{{Kind: KindModify, ItemID: "x"}},
			wantErr: true,
		},
		{
			name:    "non-numeric component",
			current: "1.a.0",
			changes: []Change{{Kind: KindModify, ItemID: "x"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, bump, err := NextNumber(tt.current, tt.changes)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NextNumber() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Errorf("NextNumber() = %v, want %v", got, tt.want)
			}
			if bump != tt.wantBump {
				t.Errorf("NextNumber() bump = %v, want %v", bump, tt.wantBump)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.1", -1},
		{"1.1.0", "1.0.9", 1},
		{"2.0.0", "2.0.0", 0},
		{"10.0.0", "9.0.0", 1}, // numeric, not lexicographic
	}

	for _, tt := range tests {
		if got := Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIsValidNumber(t *testing.T) {
	valid := []string{"1.0.0", "0.0.1", "10.20.30"}
	invalid := []string{"1.0", "v1.0.0", "1.0.0-rc1", "", "abc"}

	for _, s := range valid {
		if !IsValidNumber(s) {
			t.Errorf("IsValidNumber(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if IsValidNumber(s) {
			t.Errorf("IsValidNumber(%q) = true, want false", s)
		}
	}
}

func TestVersionTags(t *testing.T) {
	v := &Version{Number: "1.0.0"}

	if v.HasTag("stable") {
		t.Error("HasTag() = true on empty tag list")
	}

	v.AddTag("stable")
	v.AddTag("stable") // idempotent
	if !v.HasTag("stable") {
		t.Error("HasTag() = false after AddTag")
	}
	if len(v.Tags) != 1 {
		t.Errorf("AddTag() duplicated tag, got %v", v.Tags)
	}
}

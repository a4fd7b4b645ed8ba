package storage

import (
	"testing"
)

func TestEntityID(t *testing.T) {
	t.Run("NewEntityID generates valid ID", func(t *testing.T) {
		id := NewEntityID(EntityTypeProposal)
		if id.Type != EntityTypeProposal {
			t.Errorf("expected type %s, got %s", EntityTypeProposal, id.Type)
		}
		if id.ID == "" {
			t.Error("expected non-empty ID")
		}
	})

	t.Run("String returns correct format", func(t *testing.T) {
		id := EntityID{Type: EntityTypeVetting, ID: "abc123"}
		expected := "vetting:abc123"
		if id.String() != expected {
			t.Errorf("expected %s, got %s", expected, id.String())
		}
	})

	t.Run("ParseEntityID parses valid ID", func(t *testing.T) {
		id, err := ParseEntityID("proposal:abc123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id.Type != EntityTypeProposal {
			t.Errorf("expected type %s, got %s", EntityTypeProposal, id.Type)
		}
		if id.ID != "abc123" {
			t.Errorf("expected ID abc123, got %s", id.ID)
		}
	})

	t.Run("ParseEntityID handles all types", func(t *testing.T) {
		tests := []struct {
			input    string
			expected EntityType
		}{
			{"opportunity:111", EntityTypeOpportunity},
			{"proposal:123", EntityTypeProposal},
			{"vetting:456", EntityTypeVetting},
			{"implementation:789", EntityTypeImplementation},
			{"validation:012", EntityTypeValidation},
		}

		for _, tc := range tests {
			id, err := ParseEntityID(tc.input)
			if err != nil {
				t.Errorf("unexpected error for %s: %v", tc.input, err)
				continue
			}
			if id.Type != tc.expected {
				t.Errorf("for %s: expected type %s, got %s", tc.input, tc.expected, id.Type)
			}
		}
	})

	t.Run("ParseEntityID rejects invalid format", func(t *testing.T) {
		invalidIDs := []string{
			"invalid",
			"no-colon",
			"",
			"unknown:123",
			"proposal:",
		}

		for _, input := range invalidIDs {
			_, err := ParseEntityID(input)
			if err == nil {
				t.Errorf("expected error for %q, got nil", input)
			}
		}
	})

	t.Run("Round trip ID conversion", func(t *testing.T) {
		original := NewEntityID(EntityTypeValidation)
		str := original.String()
		parsed, err := ParseEntityID(str)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if parsed.Type != original.Type {
			t.Errorf("type mismatch: expected %s, got %s", original.Type, parsed.Type)
		}
		if parsed.ID != original.ID {
			t.Errorf("ID mismatch: expected %s, got %s", original.ID, parsed.ID)
		}
	})
}

func TestKeyFor(t *testing.T) {
	t.Run("extracts key for matching type", func(t *testing.T) {
		key, err := keyFor("proposal:abc123", EntityTypeProposal)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if key != "abc123" {
			t.Errorf("expected abc123, got %s", key)
		}
	})

	t.Run("rejects mismatched type", func(t *testing.T) {
		_, err := keyFor("vetting:abc123", EntityTypeProposal)
		if err == nil {
			t.Error("expected error for mismatched type")
		}
	})
}

func TestBucketNames(t *testing.T) {
	t.Run("Bucket names are set", func(t *testing.T) {
		buckets := map[string]string{
			"opportunities":   BucketOpportunities,
			"proposals":       BucketProposals,
			"vettings":        BucketVettings,
			"implementations": BucketImplementations,
			"validations":     BucketValidations,
			"published":       BucketPublished,
		}
		for name, bucket := range buckets {
			if bucket == "" {
				t.Errorf("empty bucket name for %s", name)
			}
		}
		if BucketProposals != "ARCHON_PROPOSALS" {
			t.Errorf("unexpected proposals bucket: %s", BucketProposals)
		}
		if BucketPublished != "ARCHON_PUBLISHED" {
			t.Errorf("unexpected published bucket: %s", BucketPublished)
		}
	})
}

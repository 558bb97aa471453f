package memory

import (
	"testing"
)

func TestKnowledgeAppendIsIdempotent(t *testing.T) {
	tier, err := NewKnowledgeTier(t.TempDir())
	if err != nil {
		t.Fatalf("NewKnowledgeTier() error = %v", err)
	}

	facts := []Fact{
		{MemberID: "m1", Statement: "has knee injury", Relation: "HAS_INJURY", Entity: "knee"},
		{MemberID: "m1", Statement: "interested in yoga", Relation: "INTERESTED_IN", Entity: "yoga"},
	}
	for i := range facts {
		facts[i].Hash = facts[i].ContentHash()
	}

	added, err := tier.Append("m1", facts)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}

	added, err = tier.Append("m1", facts)
	if err != nil {
		t.Fatalf("second Append() error = %v", err)
	}
	if added != 0 {
		t.Fatalf("second append added = %d, want 0", added)
	}

	got, err := tier.Facts("m1")
	if err != nil {
		t.Fatalf("Facts() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("facts = %d, want 2", len(got))
	}
}

func TestKnowledgeDeleteMemberIsErasurePrimitive(t *testing.T) {
	tier, err := NewKnowledgeTier(t.TempDir())
	if err != nil {
		t.Fatalf("NewKnowledgeTier() error = %v", err)
	}

	fact := Fact{MemberID: "m2", Statement: "goal is weight loss", Relation: "HAS_GOAL", Entity: "weight-loss"}
	fact.Hash = fact.ContentHash()
	if _, err := tier.Append("m2", []Fact{fact}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if err := tier.DeleteMember("m2"); err != nil {
		t.Fatalf("DeleteMember() error = %v", err)
	}
	got, err := tier.Facts("m2")
	if err != nil {
		t.Fatalf("Facts() after delete error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("facts after delete = %d, want 0", len(got))
	}

	// Deleting an absent member is not an error: erasure retries must be safe.
	if err := tier.DeleteMember("m2"); err != nil {
		t.Fatalf("repeat DeleteMember() error = %v", err)
	}
}

func TestSanitizeMemberID(t *testing.T) {
	if got := sanitizeMemberID("user/../../etc"); got != "user_______etc" {
		t.Fatalf("sanitizeMemberID = %q", got)
	}
	if got := sanitizeMemberID(""); got != "unknown" {
		t.Fatalf("sanitizeMemberID empty = %q", got)
	}
}

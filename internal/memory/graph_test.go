package memory

import "testing"

func TestGraphRebuildReplacesWholesale(t *testing.T) {
	g := NewGraphTier()

	g.RebuildMember("m1", []Fact{
		{Relation: "HAS_INJURY", Entity: "knee"},
		{Relation: "INTERESTED_IN", Entity: "yoga"},
	})
	snap := g.Snapshot("m1")
	if len(snap.Edges) != 2 {
		t.Fatalf("edges = %d, want 2", len(snap.Edges))
	}

	// Rebuild from a smaller fact set: the removed edge must not survive.
	g.RebuildMember("m1", []Fact{
		{Relation: "INTERESTED_IN", Entity: "yoga"},
	})
	snap = g.Snapshot("m1")
	if len(snap.Edges) != 1 {
		t.Fatalf("edges after rebuild = %d, want 1", len(snap.Edges))
	}
	for _, e := range snap.Edges {
		if e.To == "knee" {
			t.Fatalf("stale edge to knee survived rebuild")
		}
	}
}

func TestGraphRemoveMemberCleansOrphans(t *testing.T) {
	g := NewGraphTier()
	g.RebuildMember("m1", []Fact{{Relation: "INTERESTED_IN", Entity: "yoga"}})
	g.RebuildMember("m2", []Fact{{Relation: "INTERESTED_IN", Entity: "yoga"}})

	g.RemoveMember("m1")
	if snap := g.Snapshot("m1"); len(snap.Edges) != 0 {
		t.Fatalf("m1 edges after removal = %d, want 0", len(snap.Edges))
	}
	// yoga is still referenced by m2.
	if snap := g.Snapshot("m2"); len(snap.Nodes) != 2 {
		t.Fatalf("m2 nodes = %d, want 2", len(snap.Nodes))
	}

	g.RemoveMember("m2")
	g.mu.RLock()
	nodeCount := len(g.nodes)
	g.mu.RUnlock()
	if nodeCount != 0 {
		t.Fatalf("orphan nodes after removing all members: %d", nodeCount)
	}
}

func TestGraphSkipsFactsWithoutRelation(t *testing.T) {
	g := NewGraphTier()
	g.RebuildMember("m1", []Fact{{Statement: "free text only"}})
	if snap := g.Snapshot("m1"); len(snap.Edges) != 0 {
		t.Fatalf("edges = %d, want 0", len(snap.Edges))
	}
}

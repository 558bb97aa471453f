package memory

import "sync"

// GraphNode is an entity in the relationship tier, keyed by a stable
// identity string.
type GraphNode struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// GraphEdge is a typed relation (Member)-[RELATION]->(Entity).
type GraphEdge struct {
	From     string `json:"from"`
	Relation string `json:"relation"`
	To       string `json:"to"`
}

// MemberGraph is a read-only snapshot of one member's neighborhood.
type MemberGraph struct {
	Member string
	Nodes  []GraphNode
	Edges  []GraphEdge
}

// GraphTier models member relationships as an arena of nodes and edges.
// A member's subgraph is always rebuilt wholesale from committed Facts,
// never patched incrementally, so edges cannot outlive their owning facts.
type GraphTier struct {
	mu            sync.RWMutex
	nodes         map[string]GraphNode
	edgesByMember map[string][]GraphEdge
}

func NewGraphTier() *GraphTier {
	return &GraphTier{
		nodes:         make(map[string]GraphNode),
		edgesByMember: make(map[string][]GraphEdge),
	}
}

// RebuildMember replaces the member's subgraph with edges derived from the
// given facts. Entity nodes that no remaining edge references are dropped.
func (g *GraphTier) RebuildMember(memberID string, facts []Fact) {
	edges := make([]GraphEdge, 0, len(facts))
	for _, f := range facts {
		if f.Relation == "" || f.Entity == "" {
			continue
		}
		edges = append(edges, GraphEdge{From: memberID, Relation: f.Relation, To: f.Entity})
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(edges) == 0 {
		delete(g.edgesByMember, memberID)
		delete(g.nodes, memberID)
	} else {
		g.nodes[memberID] = GraphNode{ID: memberID, Kind: "member"}
		g.edgesByMember[memberID] = edges
		for _, e := range edges {
			if _, ok := g.nodes[e.To]; !ok {
				g.nodes[e.To] = GraphNode{ID: e.To, Kind: "entity"}
			}
		}
	}
	g.dropOrphanNodesLocked()
}

// RemoveMember deletes the member node, its edges, and any entity nodes
// left unreferenced.
func (g *GraphTier) RemoveMember(memberID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edgesByMember, memberID)
	delete(g.nodes, memberID)
	g.dropOrphanNodesLocked()
}

// Snapshot returns a copy of the member's subgraph for lock-free reading.
func (g *GraphTier) Snapshot(memberID string) MemberGraph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges := g.edgesByMember[memberID]
	out := MemberGraph{Member: memberID}
	if len(edges) == 0 {
		return out
	}
	out.Edges = make([]GraphEdge, len(edges))
	copy(out.Edges, edges)

	seen := map[string]struct{}{memberID: {}}
	out.Nodes = append(out.Nodes, g.nodes[memberID])
	for _, e := range edges {
		if _, ok := seen[e.To]; ok {
			continue
		}
		seen[e.To] = struct{}{}
		out.Nodes = append(out.Nodes, g.nodes[e.To])
	}
	return out
}

func (g *GraphTier) dropOrphanNodesLocked() {
	referenced := make(map[string]struct{}, len(g.nodes))
	for member, edges := range g.edgesByMember {
		referenced[member] = struct{}{}
		for _, e := range edges {
			referenced[e.To] = struct{}{}
		}
	}
	for id := range g.nodes {
		if _, ok := referenced[id]; !ok {
			delete(g.nodes, id)
		}
	}
}

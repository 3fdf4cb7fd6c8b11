package service

// Neighbor is one weighted out-edge target. Weight is 1 for unweighted
// graphs (attestation, participation, citation); for the voting graph it
// carries the aggregate upvote count.
type Neighbor struct {
	Node   string
	Weight int
}

// Graph is an adjacency-list graph keyed by canonical node id (address,
// community slug, or CID), never by in-memory pointer reference, so it
// can be built once and walked iteratively by C5.
type Graph struct {
	Nodes    map[string]bool
	OutEdges map[string][]Neighbor
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:    make(map[string]bool),
		OutEdges: make(map[string][]Neighbor),
	}
}

// AddNode registers a node with no edges yet, if not already present.
func (g *Graph) AddNode(id string) {
	if id == "" {
		return
	}
	g.Nodes[id] = true
	if _, ok := g.OutEdges[id]; !ok {
		g.OutEdges[id] = nil
	}
}

// AddEdge adds a weighted directed edge from -> to, registering both
// endpoints as nodes.
func (g *Graph) AddEdge(from, to string, weight int) {
	g.AddNode(from)
	g.AddNode(to)
	g.OutEdges[from] = append(g.OutEdges[from], Neighbor{Node: to, Weight: weight})
}

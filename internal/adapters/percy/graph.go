package percy

import (
	"encoding/json"
	"fmt"
)

// Review state reasons that select which side of a comparison is shown.
const (
	reasonNoDiffs               = "no_diffs"
	reasonUnreviewedComparisons = "unreviewed_comparisons"
	reasonUserApproved          = "user_approved"
)

// Node types used while resolving; every other type is indexed but ignored.
const (
	typeSnapshots      = "snapshots"
	typeComparisons    = "comparisons"
	typeScreenshots    = "screenshots"
	typeImages         = "images"
	typeComparisonTags = "comparison-tags"
)

// Document is the JSON:API response of the build snapshots endpoint.
type Document struct {
	Data     []Node `json:"data"`
	Included []Node `json:"included"`
}

// Node is one typed resource of the document. Attributes are decoded on
// demand because their shape depends on Type.
type Node struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id"`
	Attributes    json.RawMessage         `json:"attributes"`
	Relationships map[string]Relationship `json:"relationships"`
}

// Relationship holds a to-one (object or null) or to-many (array) edge.
type Relationship struct {
	Data json.RawMessage `json:"data"`
}

type ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// one returns the target of a to-one edge.
func (r Relationship) one() (ref, bool) {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return ref{}, false
	}
	var target ref
	if err := json.Unmarshal(r.Data, &target); err != nil || target.ID == "" {
		return ref{}, false
	}
	return target, true
}

// many returns the targets of a to-many edge.
func (r Relationship) many() []ref {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	var targets []ref
	if err := json.Unmarshal(r.Data, &targets); err != nil {
		return nil
	}
	return targets
}

// edge returns the to-one target of the named relationship of n.
func (n *Node) edge(name string) (string, bool) {
	rel, ok := n.Relationships[name]
	if !ok {
		return "", false
	}
	target, ok := rel.one()
	return target.ID, ok
}

func (n *Node) decodeAttributes(v any) error {
	if len(n.Attributes) == 0 {
		return nil
	}
	if err := json.Unmarshal(n.Attributes, v); err != nil {
		return fmt.Errorf("%s %s attributes: %w", n.Type, n.ID, err)
	}
	return nil
}

type snapshotAttributes struct {
	Name              string `json:"name"`
	ReviewStateReason string `json:"review-state-reason"`
}

type comparisonAttributes struct {
	ReviewStateReason string   `json:"review-state-reason"`
	DiffRatio         *float64 `json:"diff-ratio"`
}

type imageAttributes struct {
	URL string `json:"url"`
}

type comparisonTagAttributes struct {
	Name      string `json:"name"`
	OSName    string `json:"os-name"`
	OSVersion string `json:"os-version"`
}

type nodeKey struct {
	typ string
	id  string
}

// graph indexes the included nodes by type and id.
type graph struct {
	nodes map[nodeKey]*Node
}

func newGraph(doc *Document) *graph {
	g := &graph{nodes: make(map[nodeKey]*Node, len(doc.Included))}
	for i := range doc.Included {
		n := &doc.Included[i]
		g.nodes[nodeKey{typ: n.Type, id: n.ID}] = n
	}
	return g
}

func (g *graph) lookup(typ, id string) (*Node, bool) {
	if id == "" {
		return nil, false
	}
	n, ok := g.nodes[nodeKey{typ: typ, id: id}]
	return n, ok
}

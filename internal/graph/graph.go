package graph

import (
	"fmt"

	"github.com/vk/studymanager/internal/model"
)

// Graph is the dependency graph over all loaded cases. It is built once
// before a run and read-only afterwards.
type Graph struct {
	// order records case ids in declaration order; the topological sort
	// uses it to break ties reproducibly.
	order []string
	// nodes stores all nodes in the graph, keyed by case id.
	nodes map[string]*node
}

// node is a single vertex. It is un-exported to enforce interaction with
// the graph via case ids, not by direct struct manipulation.
type node struct {
	c *model.Case
	// deps holds the nodes this node depends on (prerequisites).
	deps map[string]*node
	// dependents holds the nodes that depend on this node.
	dependents map[string]*node
}

// Build constructs the graph for a set of studies: one node per case,
// explicit edges from depends_on, and implicit intra-study edges from every
// lower-level case to each higher-level case.
func Build(studies []*model.Study) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*node)}

	for _, s := range studies {
		for _, c := range s.Cases {
			g.addNode(c)
		}
	}

	for _, s := range studies {
		for _, c := range s.Cases {
			for _, dep := range c.DependsOn {
				if err := g.addEdge(dep, c.ID()); err != nil {
					return nil, err
				}
			}
		}
		// Level-derived edges: coarse staged validation within one study.
		for _, c := range s.Cases {
			for _, lower := range s.Cases {
				if lower.Level < c.Level {
					if err := g.addEdge(lower.ID(), c.ID()); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	return g, nil
}

func (g *Graph) addNode(c *model.Case) {
	id := c.ID()
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.order = append(g.order, id)
	g.nodes[id] = &node{
		c:          c,
		deps:       make(map[string]*node),
		dependents: make(map[string]*node),
	}
}

// addEdge creates a directed edge from the prerequisite to the dependent.
// Duplicate edges (an explicit dependency restating a level ordering)
// collapse silently.
func (g *Graph) addEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential dependency not allowed: %s", fromID)
	}
	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("prerequisite case not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("dependent case not found: %s", toID)
	}
	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode
	return nil
}

// Case returns the case for an id, or nil when unknown.
func (g *Graph) Case(id string) *model.Case {
	if n, ok := g.nodes[id]; ok {
		return n.c
	}
	return nil
}

// Dependencies returns the ids of the cases the given case depends on.
func (g *Graph) Dependencies(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	deps := make([]string, 0, len(n.deps))
	for _, ordered := range g.order {
		if _, ok := n.deps[ordered]; ok {
			deps = append(deps, ordered)
		}
	}
	return deps
}

// TransitiveDependents returns every case id reachable downstream of the
// given case, in declaration order. Used to propagate a failure to exactly
// the cases it blocks.
func (g *Graph) TransitiveDependents(id string) []string {
	start, ok := g.nodes[id]
	if !ok {
		return nil
	}
	reached := make(map[string]bool)
	var walk func(n *node)
	walk = func(n *node) {
		for depID, dep := range n.dependents {
			if !reached[depID] {
				reached[depID] = true
				walk(dep)
			}
		}
	}
	walk(start)

	var out []string
	for _, ordered := range g.order {
		if reached[ordered] {
			out = append(out, ordered)
		}
	}
	return out
}

// DetectCycles checks the graph for cycles using depth-first search with
// the classic three node sets. On a cycle it returns a CycleError naming
// every case id on the cycle, in edge order.
func (g *Graph) DetectCycles() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)
	var stack []string

	var visit func(n *node) *CycleError
	visit = func(n *node) *CycleError {
		if permanent[n.c.ID()] {
			return nil
		}
		id := n.c.ID()
		if temporary[id] {
			// Found a back edge; the cycle is the stack suffix from the
			// first occurrence of this node.
			for i, onStack := range stack {
				if onStack == id {
					cycle := make([]string, len(stack)-i)
					copy(cycle, stack[i:])
					return &CycleError{Cycle: cycle}
				}
			}
			return &CycleError{Cycle: []string{id}}
		}

		temporary[id] = true
		stack = append(stack, id)

		for _, depID := range g.order {
			dependent, ok := n.dependents[depID]
			if !ok {
				continue
			}
			if cycleErr := visit(dependent); cycleErr != nil {
				return cycleErr
			}
		}

		stack = stack[:len(stack)-1]
		delete(temporary, id)
		permanent[id] = true
		return nil
	}

	for _, id := range g.order {
		if !permanent[id] {
			if cycleErr := visit(g.nodes[id]); cycleErr != nil {
				return cycleErr
			}
		}
	}
	return nil
}

// TopologicalOrder returns every case such that each follows all of its
// transitive prerequisites, breaking ties by declaration order. It assumes
// DetectCycles has passed; a cycle surfaces as an error here too rather
// than a silent truncation.
func (g *Graph) TopologicalOrder() ([]*model.Case, error) {
	indegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		indegree[id] = len(n.deps)
	}

	placed := make(map[string]bool, len(g.nodes))
	out := make([]*model.Case, 0, len(g.nodes))
	for len(out) < len(g.nodes) {
		advanced := false
		for _, id := range g.order {
			if placed[id] || indegree[id] != 0 {
				continue
			}
			placed[id] = true
			out = append(out, g.nodes[id].c)
			for depID := range g.nodes[id].dependents {
				indegree[depID]--
			}
			advanced = true
			break
		}
		if !advanced {
			// Only a cycle can leave unplaced nodes with no zero-indegree
			// candidate; report it with the full path.
			if err := g.DetectCycles(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("topological order stalled with %d cases unplaced", len(g.nodes)-len(out))
		}
	}
	return out, nil
}

// Len returns the number of cases in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"storyloom/internal/stage"
	"storyloom/internal/storyboard"
)

// Standard node names.
const (
	NodeInit   = "init"
	NodeScript = "script"
	NodeAudio  = "audio"
	NodeVisual = "visual"
	NodeMerge  = "merge"
)

// ErrInvalidGraph reports a graph that cannot be scheduled.
var ErrInvalidGraph = errors.New("invalid pipeline graph")

// Node is one stage of the graph.
type Node struct {
	Name    string
	Deps    []string
	Handler stage.Handler
	// Check validates the state after the node's delta is applied. A non-nil
	// error aborts the run.
	Check func(storyboard.State) error
}

// Graph is a validated, levelled set of nodes.
type Graph struct {
	nodes  []Node
	levels [][]int
}

// NewGraph validates nodes and computes their dependency levels. Nodes within a
// level keep declaration order.
func NewGraph(nodes []Node) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrInvalidGraph)
	}
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		name := strings.TrimSpace(n.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: node %d has no name", ErrInvalidGraph, i)
		}
		if n.Handler == nil {
			return nil, fmt.Errorf("%w: node %q has no handler", ErrInvalidGraph, name)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate node %q", ErrInvalidGraph, name)
		}
		index[name] = i
	}

	indegree := make([]int, len(nodes))
	dependents := make([][]int, len(nodes))
	for i, n := range nodes {
		seen := make(map[string]bool, len(n.Deps))
		for _, dep := range n.Deps {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: node %q depends on unknown node %q", ErrInvalidGraph, n.Name, dep)
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var levels [][]int
	var current []int
	for i := range nodes {
		if indegree[i] == 0 {
			current = append(current, i)
		}
	}
	placed := 0
	for len(current) > 0 {
		levels = append(levels, current)
		placed += len(current)
		var next []int
		for _, i := range current {
			for _, j := range dependents[i] {
				indegree[j]--
				if indegree[j] == 0 {
					next = append(next, j)
				}
			}
		}
		slices.Sort(next)
		current = next
	}
	if placed != len(nodes) {
		var stuck []string
		for i, n := range nodes {
			if indegree[i] > 0 {
				stuck = append(stuck, n.Name)
			}
		}
		return nil, fmt.Errorf("%w: cycle through %s", ErrInvalidGraph, strings.Join(stuck, ", "))
	}
	return &Graph{nodes: nodes, levels: levels}, nil
}

// Levels returns node names grouped by dependency level.
func (g *Graph) Levels() [][]string {
	out := make([][]string, len(g.levels))
	for i, level := range g.levels {
		for _, idx := range level {
			out[i] = append(out[i], g.nodes[idx].Name)
		}
	}
	return out
}

// Nodes returns the nodes in declaration order.
func (g *Graph) Nodes() []Node {
	return append([]Node(nil), g.nodes...)
}

// Handlers supplies the stage implementations for the standard graph.
type Handlers struct {
	Init   stage.Handler
	Script stage.Handler
	Audio  stage.Handler
	Visual stage.Handler
	Merge  stage.Handler
}

// Standard builds the init -> script -> {audio, visual} -> merge graph.
func Standard(h Handlers) (*Graph, error) {
	return NewGraph([]Node{
		{Name: NodeInit, Handler: h.Init},
		{Name: NodeScript, Deps: []string{NodeInit}, Handler: h.Script, Check: requireScenes},
		{Name: NodeAudio, Deps: []string{NodeScript}, Handler: h.Audio},
		{Name: NodeVisual, Deps: []string{NodeScript}, Handler: h.Visual},
		{Name: NodeMerge, Deps: []string{NodeAudio, NodeVisual}, Handler: h.Merge},
	})
}

func requireScenes(s storyboard.State) error {
	if len(s.Scenes) == 0 {
		return ErrEmptyScript
	}
	return nil
}

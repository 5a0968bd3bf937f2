// Package graph implements the workflow state machine: named nodes
// with handlers, guarded directed edges, and a shared execution
// context. Node failures are signals routed along edges, not panics.
package graph

import (
	"context"
	"fmt"
	"time"
)

// NodeStatus is the lifecycle of a single node within one run.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)

// Handler is the work a node performs. The returned value becomes the
// node's result; a non-nil error marks the node failed.
type Handler func(ctx context.Context, ec *Context) (any, error)

// Node is a unit of work in the graph.
type Node struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      NodeStatus `json:"status"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`

	handler Handler
}

// Guard decides whether an edge may be taken given the current
// execution context. A nil guard is unconditional.
type Guard func(ec *Context) bool

// Edge is a directed transition between two nodes.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	guard Guard
}

// Graph holds nodes and edges. Edges are kept in registration order;
// NextNodes preserves that order so the first matching edge wins.
type Graph struct {
	nodes map[string]*Node
	order []string
	edges []*Edge
}

func New() *Graph {
	return &Graph{nodes: map[string]*Node{}}
}

// AddNode registers a node. Duplicate names and nil handlers are
// rejected.
func (g *Graph) AddNode(name string, handler Handler, description string) error {
	if name == "" {
		return fmt.Errorf("node name must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("node %q has nil handler", name)
	}
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("node %q already registered", name)
	}
	g.nodes[name] = &Node{Name: name, Description: description, Status: NodePending, handler: handler}
	g.order = append(g.order, name)
	return nil
}

// AddEdge registers a directed transition. Both endpoints must exist.
func (g *Graph) AddEdge(from, to string, guard Guard) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("edge source %q not registered", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("edge target %q not registered", to)
	}
	g.edges = append(g.edges, &Edge{From: from, To: to, guard: guard})
	return nil
}

// Node returns the named node, or nil.
func (g *Graph) Node(name string) *Node {
	return g.nodes[name]
}

// Nodes returns all nodes in registration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// ExecuteNode runs the named node's handler and returns
// (success, result, errMsg). It never panics outward: handler panics
// and errors become failure returns, as does an unknown node name, so
// the caller can route the failure instead of unwinding.
func (g *Graph) ExecuteNode(ctx context.Context, name string, ec *Context) (ok bool, result any, errMsg string) {
	node, exists := g.nodes[name]
	if !exists {
		return false, nil, fmt.Sprintf("node %q not found", name)
	}

	now := time.Now()
	node.Status = NodeRunning
	node.StartTime = &now
	ec.SetCurrentNode(name)

	defer func() {
		end := time.Now()
		node.EndTime = &end
		if r := recover(); r != nil {
			node.Status = NodeFailed
			node.Error = fmt.Sprintf("handler panic: %v", r)
			ok, result, errMsg = false, nil, node.Error
		}
	}()

	res, err := node.handler(ctx, ec)
	if err != nil {
		node.Status = NodeFailed
		node.Error = err.Error()
		return false, nil, err.Error()
	}

	node.Status = NodeCompleted
	node.Result = res
	ec.SetNodeResult(name, res)
	ec.appendPath(name)
	return true, res, ""
}

// NextNodes returns the targets of edges out of current whose guards
// pass, in edge registration order.
func (g *Graph) NextNodes(current string, ec *Context) []string {
	var out []string
	for _, e := range g.edges {
		if e.From != current {
			continue
		}
		if e.guard == nil || e.guard(ec) {
			out = append(out, e.To)
		}
	}
	return out
}

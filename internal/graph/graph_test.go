package graph

import (
	"context"
	"errors"
	"testing"
)

func ok(v any) Handler {
	return func(context.Context, *Context) (any, error) { return v, nil }
}

func TestAddNodeRejectsDuplicatesAndNilHandlers(t *testing.T) {
	g := New()
	if err := g.AddNode("a", ok(1), ""); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := g.AddNode("a", ok(2), ""); err == nil {
		t.Fatalf("duplicate node accepted")
	}
	if err := g.AddNode("b", nil, ""); err == nil {
		t.Fatalf("nil handler accepted")
	}
}

func TestAddEdgeRequiresBothEndpoints(t *testing.T) {
	g := New()
	if err := g.AddNode("a", ok(nil), ""); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := g.AddEdge("a", "missing", nil); err == nil {
		t.Fatalf("edge to unregistered node accepted")
	}
	if err := g.AddEdge("missing", "a", nil); err == nil {
		t.Fatalf("edge from unregistered node accepted")
	}
}

func TestExecuteNodeSuccessRecordsResultAndPath(t *testing.T) {
	g := New()
	if err := g.AddNode("work", ok("done"), ""); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	ec := NewContext("t1")
	success, result, errMsg := g.ExecuteNode(context.Background(), "work", ec)
	if !success || errMsg != "" {
		t.Fatalf("ExecuteNode failed: %v", errMsg)
	}
	if result != "done" {
		t.Fatalf("result = %v, want done", result)
	}
	if got, _ := ec.NodeResult("work"); got != "done" {
		t.Fatalf("node result not stored in context")
	}
	if path := ec.Path(); len(path) != 1 || path[0] != "work" {
		t.Fatalf("path = %v, want [work]", path)
	}
	if g.Node("work").Status != NodeCompleted {
		t.Fatalf("status = %v, want completed", g.Node("work").Status)
	}
}

func TestExecuteNodeUnknownIsFailureNotPanic(t *testing.T) {
	g := New()
	ec := NewContext("t1")
	success, _, errMsg := g.ExecuteNode(context.Background(), "ghost", ec)
	if success {
		t.Fatalf("unknown node reported success")
	}
	if errMsg == "" {
		t.Fatalf("unknown node returned empty error")
	}
	if len(ec.Path()) != 0 {
		t.Fatalf("failed node appended to path: %v", ec.Path())
	}
}

func TestExecuteNodeHandlerErrorMarksFailed(t *testing.T) {
	g := New()
	boom := errors.New("boom")
	if err := g.AddNode("bad", func(context.Context, *Context) (any, error) { return nil, boom }, ""); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	success, _, errMsg := g.ExecuteNode(context.Background(), "bad", NewContext("t1"))
	if success {
		t.Fatalf("failing handler reported success")
	}
	if errMsg != "boom" {
		t.Fatalf("errMsg = %q, want boom", errMsg)
	}
	if g.Node("bad").Status != NodeFailed {
		t.Fatalf("status = %v, want failed", g.Node("bad").Status)
	}
}

func TestExecuteNodeRecoversPanic(t *testing.T) {
	g := New()
	if err := g.AddNode("panic", func(context.Context, *Context) (any, error) { panic("kaboom") }, ""); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	success, _, errMsg := g.ExecuteNode(context.Background(), "panic", NewContext("t1"))
	if success {
		t.Fatalf("panicking handler reported success")
	}
	if errMsg == "" {
		t.Fatalf("panic produced empty error message")
	}
}

func TestNextNodesOrderAndGuards(t *testing.T) {
	g := New()
	for _, n := range []string{"a", "b", "c", "d"} {
		if err := g.AddNode(n, ok(nil), ""); err != nil {
			t.Fatalf("AddNode %s: %v", n, err)
		}
	}
	if err := g.AddEdge("a", "b", func(ec *Context) bool { return ec.GetString("route", "") == "b" }); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := g.AddEdge("a", "c", nil); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := g.AddEdge("a", "d", nil); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	ec := NewContext("t1")
	next := g.NextNodes("a", ec)
	if len(next) != 2 || next[0] != "c" || next[1] != "d" {
		t.Fatalf("next = %v, want [c d]", next)
	}

	ec.Set("route", "b")
	next = g.NextNodes("a", ec)
	if len(next) != 3 || next[0] != "b" {
		t.Fatalf("guarded edge not first after guard passes: %v", next)
	}
}

func TestContextStateIsolation(t *testing.T) {
	ec := NewContext("t1")
	ec.Set("k", 42)
	if v, ok := ec.Get("k"); !ok || v != 42 {
		t.Fatalf("Get(k) = %v, %v", v, ok)
	}
	if _, ok := ec.Get("missing"); ok {
		t.Fatalf("missing key reported present")
	}
	if got := ec.GetString("k", "fallback"); got != "fallback" {
		t.Fatalf("GetString on non-string = %q, want fallback", got)
	}
}

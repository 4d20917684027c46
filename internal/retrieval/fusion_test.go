package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/engram-labs/engram/internal/session"
	"github.com/engram-labs/engram/internal/vector"
)

type fakeShortTerm struct {
	turns []session.Turn
}

func (f *fakeShortTerm) Search(sessionID, query string) []session.Turn {
	return f.turns
}

type fakeLongTerm struct {
	results []vector.Result
	err     error
	gotOpts vector.SearchOptions
}

func (f *fakeLongTerm) SearchText(_ context.Context, _ string, opts vector.SearchOptions) ([]vector.Result, error) {
	f.gotOpts = opts
	return f.results, f.err
}

func TestRetrieveShortTermOutranksLongTerm(t *testing.T) {
	short := &fakeShortTerm{turns: []session.Turn{
		{Role: session.RoleUser, Text: "we talked about go", Timestamp: time.Now()},
	}}
	long := &fakeLongTerm{results: []vector.Result{
		{ID: "lt-1", Text: "go is a language", Distance: 0.1},
	}}
	e := NewEngine(short, long, nil)

	res := e.Retrieve(context.Background(), "go", "s1", vector.SearchOptions{TopK: 5})
	if len(res.Snippets) != 2 {
		t.Fatalf("snippets = %d, want 2", len(res.Snippets))
	}
	if res.Snippets[0].Source != SourceShortTerm || res.Snippets[0].Score != 100 {
		t.Fatalf("first snippet = %+v, want short-term at score 100", res.Snippets[0])
	}
	if res.Snippets[1].Source != SourceLongTerm || res.Snippets[1].Score != 90 {
		t.Fatalf("second snippet = %+v, want long-term at score 90", res.Snippets[1])
	}
	if res.ShortTermCount != 1 || res.LongTermCount != 1 {
		t.Fatalf("breakdown = %d/%d, want 1/1", res.ShortTermCount, res.LongTermCount)
	}
}

func TestRetrieveStableTieOrder(t *testing.T) {
	// A long-term match at distance 0 also scores 100; the short-term match
	// arriving first must stay ahead of it.
	short := &fakeShortTerm{turns: []session.Turn{
		{Role: session.RoleUser, Text: "exact recent match"},
	}}
	long := &fakeLongTerm{results: []vector.Result{
		{ID: "lt-1", Text: "perfect old match", Distance: 0},
	}}
	e := NewEngine(short, long, nil)

	res := e.Retrieve(context.Background(), "match", "s1", vector.SearchOptions{TopK: 5})
	if len(res.Snippets) != 2 {
		t.Fatalf("snippets = %d, want 2", len(res.Snippets))
	}
	if res.Snippets[0].Source != SourceShortTerm {
		t.Fatalf("tie broke against short-term: %+v", res.Snippets)
	}
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	short := &fakeShortTerm{turns: []session.Turn{
		{Text: "a"}, {Text: "b"}, {Text: "c"},
	}}
	long := &fakeLongTerm{results: []vector.Result{
		{ID: "l1", Text: "x", Distance: 0.2},
		{ID: "l2", Text: "y", Distance: 0.3},
	}}
	e := NewEngine(short, long, nil)

	res := e.Retrieve(context.Background(), "q", "s1", vector.SearchOptions{TopK: 4})
	if len(res.Snippets) != 4 {
		t.Fatalf("snippets = %d, want 4", len(res.Snippets))
	}
	if res.ShortTermCount+res.LongTermCount != 4 {
		t.Fatalf("breakdown %d/%d must count the truncated set", res.ShortTermCount, res.LongTermCount)
	}
	if res.ShortTermCount != 3 || res.LongTermCount != 1 {
		t.Fatalf("breakdown = %d/%d, want 3/1", res.ShortTermCount, res.LongTermCount)
	}
}

func TestRetrieveDegradesWhenLongTermFails(t *testing.T) {
	short := &fakeShortTerm{turns: []session.Turn{
		{Role: session.RoleUser, Text: "still here"},
	}}
	long := &fakeLongTerm{err: errors.New("index down")}
	e := NewEngine(short, long, nil)

	res := e.Retrieve(context.Background(), "q", "s1", vector.SearchOptions{TopK: 5})
	if len(res.Snippets) != 1 || res.Snippets[0].Source != SourceShortTerm {
		t.Fatalf("expected short-term-only degradation, got %+v", res.Snippets)
	}
	if res.LongTermCount != 0 {
		t.Fatalf("long-term count = %d, want 0", res.LongTermCount)
	}
}

func TestRetrieveSkipsShortTermWithoutSession(t *testing.T) {
	short := &fakeShortTerm{turns: []session.Turn{{Text: "must not appear"}}}
	long := &fakeLongTerm{results: []vector.Result{
		{ID: "l1", Text: "memory", Distance: 0.2},
	}}
	e := NewEngine(short, long, nil)

	res := e.Retrieve(context.Background(), "q", "", vector.SearchOptions{TopK: 5})
	if res.ShortTermCount != 0 || res.LongTermCount != 1 {
		t.Fatalf("breakdown = %d/%d, want 0/1", res.ShortTermCount, res.LongTermCount)
	}
	if long.gotOpts.TopK != 5 {
		t.Fatalf("long-term top_k = %d, want 5", long.gotOpts.TopK)
	}
}

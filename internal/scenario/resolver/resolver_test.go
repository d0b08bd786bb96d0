package resolver

import (
	"reflect"
	"testing"
)

func testContext() map[string]any {
	return map[string]any{
		"user":  "kitty",
		"count": 5,
		"pi":    3.5,
		"profile": map[string]any{
			"emails": []any{"a@x", "b@x"},
		},
		"alias":   "{user}",
		"loopA":   "{loopB}",
		"loopB":   "{loopA}",
		"payload": map[string]any{"k": "v"},
	}
}

func TestResolve_ExactPlaceholderKeepsType(t *testing.T) {
	ctx := testContext()

	if got := Resolve("{count}", ctx); got != 5 {
		t.Fatalf("expected int 5, got %v (%T)", got, got)
	}
	got := Resolve("{profile.emails.1}", ctx)
	if got != "b@x" {
		t.Fatalf("expected b@x, got %v", got)
	}
	if got := Resolve("{payload}", ctx); !reflect.DeepEqual(got, map[string]any{"k": "v"}) {
		t.Fatalf("expected map value, got %v", got)
	}
}

func TestResolve_InlineSubstitution(t *testing.T) {
	ctx := testContext()

	got := Resolve("hello {user}, you have {count} items ({pi})", ctx)
	if got != "hello kitty, you have 5 items (3.5)" {
		t.Fatalf("unexpected result: %v", got)
	}
}

func TestResolve_UnresolvedPlaceholderLeftLiteral(t *testing.T) {
	ctx := testContext()

	if got := Resolve("hi {missing}", ctx); got != "hi {missing}" {
		t.Fatalf("unexpected result: %v", got)
	}
	if got := Resolve("{missing.path}", ctx); got != "{missing.path}" {
		t.Fatalf("unexpected result: %v", got)
	}
}

func TestResolve_ChasesPlaceholderChains(t *testing.T) {
	ctx := testContext()

	if got := Resolve("{alias}", ctx); got != "kitty" {
		t.Fatalf("expected chained resolution to kitty, got %v", got)
	}
}

func TestResolve_PlaceholderCycleTerminates(t *testing.T) {
	ctx := testContext()

	got := Resolve("{loopA}", ctx)
	if _, ok := got.(string); !ok {
		t.Fatalf("expected string result for cyclic placeholders, got %T", got)
	}
}

func TestResolve_RecursesIntoMapsAndLists(t *testing.T) {
	ctx := testContext()
	input := map[string]any{
		"text":  "for {user}",
		"items": []any{"{count}", "plain"},
	}

	got := Resolve(input, ctx).(map[string]any)
	if got["text"] != "for kitty" {
		t.Fatalf("unexpected text: %v", got["text"])
	}
	items := got["items"].([]any)
	if items[0] != 5 || items[1] != "plain" {
		t.Fatalf("unexpected items: %v", items)
	}
}

func TestResolve_DoesNotMutateInputs(t *testing.T) {
	ctx := testContext()
	input := map[string]any{"text": "for {user}"}

	Resolve(input, ctx)

	if input["text"] != "for {user}" {
		t.Fatalf("input mutated: %v", input["text"])
	}
	if ctx["user"] != "kitty" {
		t.Fatalf("context mutated: %v", ctx["user"])
	}
}

func TestResolve_Idempotent(t *testing.T) {
	ctx := testContext()
	first := Resolve("hello {user}", ctx)
	second := Resolve(first, ctx)
	if first != second {
		t.Fatalf("resolve not idempotent: %v vs %v", first, second)
	}
}

func TestResolve_NonStringPassThrough(t *testing.T) {
	ctx := testContext()
	if got := Resolve(42, ctx); got != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
	if got := Resolve(nil, ctx); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

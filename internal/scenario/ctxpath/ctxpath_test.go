package ctxpath

import (
	"reflect"
	"testing"
)

func sampleContext() map[string]any {
	return map[string]any{
		"user": map[string]any{
			"name": "kitty",
			"tags": []any{"a", "b", map[string]any{"deep": true}},
		},
		"count": 3,
	}
}

func TestGet_NestedPaths(t *testing.T) {
	ctx := sampleContext()

	val, ok := Get(ctx, "user.name")
	if !ok || val != "kitty" {
		t.Fatalf("expected kitty, got %v (ok=%v)", val, ok)
	}

	val, ok = Get(ctx, "user.tags.1")
	if !ok || val != "b" {
		t.Fatalf("expected b, got %v (ok=%v)", val, ok)
	}

	val, ok = Get(ctx, "user.tags.2.deep")
	if !ok || val != true {
		t.Fatalf("expected true, got %v (ok=%v)", val, ok)
	}
}

func TestGet_Misses(t *testing.T) {
	ctx := sampleContext()

	cases := []string{"", "missing", "user.missing", "user.tags.9", "user.tags.x", "count.sub"}
	for _, path := range cases {
		if _, ok := Get(ctx, path); ok {
			t.Fatalf("expected miss for path %q", path)
		}
	}
}

func TestSet_CreatesIntermediateMaps(t *testing.T) {
	ctx := map[string]any{}
	Set(ctx, "a.b.c", 42)

	val, ok := Get(ctx, "a.b.c")
	if !ok || val != 42 {
		t.Fatalf("expected 42, got %v (ok=%v)", val, ok)
	}
}

func TestSet_ReplacesScalarIntermediate(t *testing.T) {
	ctx := map[string]any{"a": "scalar"}
	Set(ctx, "a.b", "x")

	val, ok := Get(ctx, "a.b")
	if !ok || val != "x" {
		t.Fatalf("expected x, got %v (ok=%v)", val, ok)
	}
}

func TestSet_ThroughListIndex(t *testing.T) {
	ctx := map[string]any{"items": []any{map[string]any{"n": 1}}}
	Set(ctx, "items.0.n", 2)

	val, _ := Get(ctx, "items.0.n")
	if val != 2 {
		t.Fatalf("expected 2, got %v", val)
	}
}

func TestClone_IsDeep(t *testing.T) {
	original := sampleContext()
	copied := CloneMap(original)

	Set(copied, "user.name", "changed")
	Set(copied, "user.tags.2.deep", false)

	if val, _ := Get(original, "user.name"); val != "kitty" {
		t.Fatalf("clone mutated original map: %v", val)
	}
	if val, _ := Get(original, "user.tags.2.deep"); val != true {
		t.Fatalf("clone mutated original list element: %v", val)
	}
}

func TestMerge_TopLevelKeysWin(t *testing.T) {
	dst := map[string]any{"a": 1, "b": map[string]any{"x": 1}}
	Merge(dst, map[string]any{"b": map[string]any{"y": 2}, "c": 3})

	expected := map[string]any{"a": 1, "b": map[string]any{"y": 2}, "c": 3}
	if !reflect.DeepEqual(dst, expected) {
		t.Fatalf("unexpected merge result: %+v", dst)
	}
}

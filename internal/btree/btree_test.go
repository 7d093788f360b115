package btree

import (
	"testing"
)

func TestInsertAndSearch(t *testing.T) {
	tr := New[int, string](2)
	values := map[int]string{
		10: "a", 20: "b", 5: "c", 6: "d", 12: "e",
		30: "f", 7: "g", 17: "h",
	}
	for k, v := range values {
		tr.Insert(k, v)
	}
	if tr.Len() != len(values) {
		t.Fatalf("Len() = %d, want %d", tr.Len(), len(values))
	}
	for k, v := range values {
		got, ok := tr.Search(k)
		if !ok {
			t.Fatalf("Search(%d) not found", k)
		}
		if got != v {
			t.Fatalf("Search(%d) = %q, want %q", k, got, v)
		}
	}
	if _, ok := tr.Search(999); ok {
		t.Fatal("Search(999) found but was never inserted")
	}
}

func TestOverwriteExistingKey(t *testing.T) {
	tr := New[int, string](2)
	tr.Insert(1, "first")
	tr.Insert(1, "second")
	if tr.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (overwrite must not grow tree)", tr.Len())
	}
	got, ok := tr.Search(1)
	if !ok || got != "second" {
		t.Fatalf("Search(1) = %q, %v, want %q, true", got, ok, "second")
	}
}

func TestSplitForcesMultiLevelTree(t *testing.T) {
	tr := New[int, int](2) // maxKeys == 3, small order to force splits quickly
	const n = 200
	for i := 0; i < n; i++ {
		tr.Insert(i, i*10)
	}
	for i := 0; i < n; i++ {
		got, ok := tr.Search(i)
		if !ok || got != i*10 {
			t.Fatalf("Search(%d) = %d, %v, want %d, true", i, got, ok, i*10)
		}
	}
}

func TestRangeQueryAscendingAndBounded(t *testing.T) {
	tr := New[int, int](2)
	for i := 0; i < 50; i++ {
		tr.Insert(i, i)
	}
	got := tr.RangeQuery(10, 20)
	if len(got) != 11 {
		t.Fatalf("RangeQuery(10,20) returned %d pairs, want 11", len(got))
	}
	for i, pair := range got {
		want := 10 + i
		if pair.Key != want || pair.Value != want {
			t.Fatalf("pair %d = %+v, want key/value %d", i, pair, want)
		}
	}
}

func TestRangeQueryEmptyRange(t *testing.T) {
	tr := New[int, int](2)
	for i := 0; i < 10; i++ {
		tr.Insert(i, i)
	}
	got := tr.RangeQuery(100, 200)
	if len(got) != 0 {
		t.Fatalf("RangeQuery(100,200) = %v, want empty", got)
	}
}

func TestAllReturnsSortedPairs(t *testing.T) {
	tr := New[int, int](3)
	input := []int{5, 3, 8, 1, 9, 2, 7, 4, 6, 0}
	for _, k := range input {
		tr.Insert(k, k*k)
	}
	all := tr.All()
	if len(all) != len(input) {
		t.Fatalf("All() len = %d, want %d", len(all), len(input))
	}
	for i, pair := range all {
		if pair.Key != i {
			t.Fatalf("All()[%d].Key = %d, want %d (not sorted)", i, pair.Key, i)
		}
	}
}

func TestDeleteRemovesKeyAndKeepsRestSearchable(t *testing.T) {
	tr := New[int, int](2)
	const n = 100
	for i := 0; i < n; i++ {
		tr.Insert(i, i)
	}
	for i := 0; i < n; i += 3 {
		if !tr.Delete(i) {
			t.Fatalf("Delete(%d) = false, want true", i)
		}
	}
	for i := 0; i < n; i++ {
		got, ok := tr.Search(i)
		if i%3 == 0 {
			if ok {
				t.Fatalf("Search(%d) found after delete, value %d", i, got)
			}
			continue
		}
		if !ok || got != i {
			t.Fatalf("Search(%d) = %d, %v, want %d, true", i, got, ok, i)
		}
	}
}

func TestDeleteMissingKeyReturnsFalse(t *testing.T) {
	tr := New[int, int](2)
	tr.Insert(1, 1)
	if tr.Delete(42) {
		t.Fatal("Delete(42) = true, key was never present")
	}
}

func TestDeleteAllThenEmptyTreeBehavior(t *testing.T) {
	tr := New[int, int](2)
	for i := 0; i < 20; i++ {
		tr.Insert(i, i)
	}
	for i := 0; i < 20; i++ {
		tr.Delete(i)
	}
	if tr.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", tr.Len())
	}
	if _, ok := tr.Search(5); ok {
		t.Fatal("Search found a key in an emptied tree")
	}
	if got := tr.All(); len(got) != 0 {
		t.Fatalf("All() = %v, want empty", got)
	}
}

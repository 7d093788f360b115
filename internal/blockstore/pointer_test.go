package blockstore

import "testing"

func TestCreateEntryAndAddPointer(t *testing.T) {
	pt := NewPointerTable()
	id := pt.CreateEntry()

	if err := pt.AddPointer(id, Pointer{StoreID: 0, BlockID: 5}); err != nil {
		t.Fatalf("AddPointer: %v", err)
	}
	ptrs, err := pt.GetPointers(id)
	if err != nil {
		t.Fatalf("GetPointers: %v", err)
	}
	if len(ptrs) != 1 || ptrs[0].BlockID != 5 {
		t.Fatalf("GetPointers = %+v, want one pointer with BlockID 5", ptrs)
	}
}

func TestAddPointerInvalidEntry(t *testing.T) {
	pt := NewPointerTable()
	if err := pt.AddPointer(42, Pointer{}); err == nil {
		t.Fatal("AddPointer on unknown entry id should fail")
	}
}

func TestAddPointerOverflowsIntoIndirectEntry(t *testing.T) {
	pt := NewPointerTable()
	id := pt.CreateEntry()

	for i := 0; i < directFanout+5; i++ {
		if err := pt.AddPointer(id, Pointer{StoreID: 0, BlockID: int64(i)}); err != nil {
			t.Fatalf("AddPointer #%d: %v", i, err)
		}
	}

	ptrs, err := pt.GetPointers(id)
	if err != nil {
		t.Fatalf("GetPointers: %v", err)
	}
	if len(ptrs) != directFanout+5 {
		t.Fatalf("GetPointers returned %d pointers, want %d", len(ptrs), directFanout+5)
	}
	for i, p := range ptrs {
		if p.BlockID != int64(i) {
			t.Fatalf("pointer %d = %+v, want BlockID %d (order not preserved)", i, p, i)
		}
	}

	indirect, err := pt.GetIndirectPointers(id)
	if err != nil {
		t.Fatalf("GetIndirectPointers: %v", err)
	}
	if len(indirect) == 0 {
		t.Fatal("expected at least one indirect entry after overflowing direct fanout")
	}
}

func TestAddPointerSpansMultipleIndirectEntries(t *testing.T) {
	pt := NewPointerTable()
	id := pt.CreateEntry()

	total := directFanout*3 + 2
	for i := 0; i < total; i++ {
		if err := pt.AddPointer(id, Pointer{BlockID: int64(i)}); err != nil {
			t.Fatalf("AddPointer #%d: %v", i, err)
		}
	}
	ptrs, err := pt.GetPointers(id)
	if err != nil {
		t.Fatalf("GetPointers: %v", err)
	}
	if len(ptrs) != total {
		t.Fatalf("GetPointers returned %d, want %d", len(ptrs), total)
	}
	indirect, err := pt.GetIndirectPointers(id)
	if err != nil {
		t.Fatalf("GetIndirectPointers: %v", err)
	}
	if len(indirect) < 2 {
		t.Fatalf("expected at least 2 indirect entries for %d pointers, got %d", total, len(indirect))
	}
}

func TestGetIndirectPointersNilWhenNone(t *testing.T) {
	pt := NewPointerTable()
	id := pt.CreateEntry()
	_ = pt.AddPointer(id, Pointer{BlockID: 1})

	indirect, err := pt.GetIndirectPointers(id)
	if err != nil {
		t.Fatalf("GetIndirectPointers: %v", err)
	}
	if indirect != nil {
		t.Fatalf("GetIndirectPointers = %v, want nil", indirect)
	}
}

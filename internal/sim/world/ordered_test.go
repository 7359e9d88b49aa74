package world

import "testing"

func TestOrderedMap_KeepsKeysSorted(t *testing.T) {
	m := newOrderedMap[EntityID, string]()
	for _, k := range []EntityID{5, 1, 9, 3, 7} {
		m.Set(k, "v")
	}
	m.Set(3, "again")
	if m.Len() != 5 {
		t.Fatalf("len=%d want 5", m.Len())
	}
	want := []EntityID{1, 3, 5, 7, 9}
	got := m.Keys()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys=%v want %v", got, want)
		}
	}
	if _, ok := m.Delete(5); !ok {
		t.Fatalf("delete 5 failed")
	}
	if m.Has(5) {
		t.Fatalf("5 still present")
	}
	var seen []EntityID
	m.Each(func(k EntityID, _ string) { seen = append(seen, k) })
	if len(seen) != 4 || seen[0] != 1 || seen[3] != 9 {
		t.Fatalf("each order=%v", seen)
	}
	if v, _ := m.Get(3); v != "again" {
		t.Fatalf("overwrite lost: %q", v)
	}
}

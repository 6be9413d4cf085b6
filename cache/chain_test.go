package cache

import "testing"

type ident uint64

func (i ident) ID() uint64 { return uint64(i) }

func keys(ids ...uint64) []Identity {
	out := make([]Identity, len(ids))
	for i, id := range ids {
		out[i] = ident(id)
	}
	return out
}

func TestChainMapOrdering(t *testing.T) {
	m := NewChainMap[string]()
	m.Set(keys(1, 2, 3), "v")

	tests := []struct {
		name   string
		keys   []Identity
		want   string
		wantOK bool
	}{
		{"full path", keys(1, 2, 3), "v", true},
		{"prefix", keys(1, 2), "", false},
		{"reordered", keys(1, 3, 2), "", false},
		{"longer", keys(1, 2, 3, 4), "", false},
		{"unknown root", keys(9, 2, 3), "", false},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Get(tt.keys)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Get() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestChainMapOverwrite(t *testing.T) {
	m := NewChainMap[int]()
	m.Set(keys(1, 2), 1)
	m.Set(keys(1, 2), 2)

	if got, _ := m.Get(keys(1, 2)); got != 2 {
		t.Errorf("Get() = %d, want 2", got)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestChainMapDelete(t *testing.T) {
	m := NewChainMap[int]()
	m.Set(keys(1, 2, 3), 1)
	m.Set(keys(1, 2), 2)

	if m.Delete(keys(1, 3)) {
		t.Error("Delete() of missing path = true")
	}
	if !m.Delete(keys(1, 2, 3)) {
		t.Error("Delete() of existing path = false")
	}
	if m.Delete(keys(1, 2, 3)) {
		t.Error("second Delete() = true")
	}
	if got, ok := m.Get(keys(1, 2)); !ok || got != 2 {
		t.Errorf("prefix value = (%d, %v), want (2, true)", got, ok)
	}
	if !m.Delete(keys(1, 2)) {
		t.Error("Delete() of prefix value = false")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
	if len(m.root.children) != 0 {
		t.Errorf("root has %d children after deleting everything, want 0", len(m.root.children))
	}
}

func TestChainMapRange(t *testing.T) {
	m := NewChainMap[int]()
	m.Set(keys(1), 1)
	m.Set(keys(1, 2), 2)
	m.Set(keys(3, 4), 3)

	sum := 0
	m.Range(func(v int) bool {
		sum += v
		return true
	})
	if sum != 6 {
		t.Errorf("Range() sum = %d, want 6", sum)
	}

	m.Clear()
	if _, ok := m.Get(keys(1)); ok {
		t.Error("Get() after Clear found a value")
	}
}

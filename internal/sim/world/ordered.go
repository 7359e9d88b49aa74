package world

import (
	"cmp"
	"slices"
)

// orderedMap keeps its keys sorted so iteration order never depends on Go's
// randomized map order.
type orderedMap[K cmp.Ordered, V any] struct {
	m    map[K]V
	keys []K
}

func newOrderedMap[K cmp.Ordered, V any]() orderedMap[K, V] {
	return orderedMap[K, V]{m: map[K]V{}}
}

func (o *orderedMap[K, V]) Len() int { return len(o.keys) }

func (o *orderedMap[K, V]) Get(k K) (V, bool) {
	v, ok := o.m[k]
	return v, ok
}

func (o *orderedMap[K, V]) Has(k K) bool {
	_, ok := o.m[k]
	return ok
}

func (o *orderedMap[K, V]) Set(k K, v V) {
	if _, ok := o.m[k]; !ok {
		i, _ := slices.BinarySearch(o.keys, k)
		o.keys = slices.Insert(o.keys, i, k)
	}
	o.m[k] = v
}

func (o *orderedMap[K, V]) Delete(k K) (V, bool) {
	v, ok := o.m[k]
	if !ok {
		return v, false
	}
	delete(o.m, k)
	if i, found := slices.BinarySearch(o.keys, k); found {
		o.keys = slices.Delete(o.keys, i, i+1)
	}
	return v, true
}

// Keys returns a copy of the keys in ascending order.
func (o *orderedMap[K, V]) Keys() []K { return slices.Clone(o.keys) }

// Each visits entries in ascending key order. Mutating the map inside fn is
// not allowed; collect keys first.
func (o *orderedMap[K, V]) Each(fn func(K, V)) {
	for _, k := range o.keys {
		fn(k, o.m[k])
	}
}

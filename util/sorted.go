package util

import (
	"cmp"
	"sort"

	xset "github.com/xtgo/set"
)

type ordered[A cmp.Ordered] []A

func (s ordered[A]) Len() int           { return len(s) }
func (s ordered[A]) Less(i, j int) bool { return cmp.Less(s[i], s[j]) }
func (s ordered[A]) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// SortedUnique sorts elems in place and drops duplicates, returning the shortened slice
func SortedUnique[A cmp.Ordered](elems []A) []A {
	s := ordered[A](elems)
	sort.Sort(s)
	return elems[:xset.Uniq(s)]
}

// SortedUnion merges sorted, duplicate-free slices into a new sorted, duplicate-free slice
func SortedUnion[A cmp.Ordered](slices ...[]A) []A {
	var all ordered[A]
	for _, s := range slices {
		pivot := len(all)
		all = append(all, s...)
		all = all[:xset.Union(all, pivot)]
	}
	return all
}

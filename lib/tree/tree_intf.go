package tree

import (
	"iter"

	"github.com/benz9527/xavl/lib/infra"
)

// go install golang.org/x/tools/cmd/stringer@latest

//go:generate stringer -type=AVLDirection
type AVLDirection int8

const (
	Left AVLDirection = -1 + iota
	Root
	Right
)

type AVLNode[K infra.OrderedKey, V any] interface {
	Key() K
	Val() V
	// Balance is height(right) - height(left).
	Balance() int8
	Left() AVLNode[K, V]
	Right() AVLNode[K, V]
	Parent() AVLNode[K, V]
}

// AVLIterator is a position in the tree.
// The end position is not valid and must not be dereferenced.
type AVLIterator[K infra.OrderedKey, V any] interface {
	Valid() bool
	Key() K
	Val() V
	SetVal(val V)
	// Next moves to the in-order successor. Advancing from the
	// last element lands on the end position.
	Next()
	// Prev moves to the in-order predecessor. Moving back from
	// the end position lands on the last element.
	Prev()
	Equal(that AVLIterator[K, V]) bool
}

// AVLTree is not thread safe.
type AVLTree[K infra.OrderedKey, V any] interface {
	Len() int64
	IsEmpty() bool
	Root() AVLNode[K, V]
	Height() int
	IsBalanced() bool
	// Insert overwrites the value if the key is present and keeps the tree shape.
	Insert(key K, val V)
	// Remove reports whether the key was present.
	Remove(key K) bool
	Contains(key K) bool
	// Get returns ErrAVLTreeKeyNotFound if the key is absent.
	Get(key K) (V, error)
	Find(key K) AVLIterator[K, V]
	Begin() AVLIterator[K, V]
	End() AVLIterator[K, V]
	Min() AVLNode[K, V]
	Max() AVLNode[K, V]
	Foreach(action func(idx int64, key K, val V) bool)
	All() iter.Seq2[K, V]
	Clear()
}

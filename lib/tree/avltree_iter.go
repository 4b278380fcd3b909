package tree

import (
	"iter"

	"github.com/benz9527/xavl/lib/infra"
)

var _ AVLIterator[uint8, struct{}] = (*avlIterator[uint8, struct{}])(nil)

// avlIterator with nil node is the end position of its tree.
type avlIterator[K infra.OrderedKey, V any] struct {
	tree *avlTree[K, V]
	node *avlNode[K, V]
}

func (it *avlIterator[K, V]) Valid() bool {
	return it != nil && it.node != nil
}

func (it *avlIterator[K, V]) mustValid() {
	if !it.Valid() {
		panic( /* debug assertion */ "[avltree] dereference the end iterator")
	}
}

func (it *avlIterator[K, V]) Key() K {
	it.mustValid()
	return it.node.key
}

func (it *avlIterator[K, V]) Val() V {
	it.mustValid()
	return it.node.val
}

func (it *avlIterator[K, V]) SetVal(val V) {
	it.mustValid()
	it.node.val = val
}

func (it *avlIterator[K, V]) Next() {
	if !it.Valid() {
		return
	}
	it.node = it.node.succ()
}

func (it *avlIterator[K, V]) Prev() {
	if it == nil || it.tree == nil {
		return
	}
	if it.node == nil {
		it.node = it.tree.root.maximum()
		return
	}
	it.node = it.node.pred()
}

func (it *avlIterator[K, V]) Equal(that AVLIterator[K, V]) bool {
	_that, ok := that.(*avlIterator[K, V])
	if !ok || it == nil || _that == nil {
		return false
	}
	return it.tree == _that.tree && it.node == _that.node
}

func (tree *avlTree[K, V]) Begin() AVLIterator[K, V] {
	return &avlIterator[K, V]{
		tree: tree,
		node: tree.root.minimum(),
	}
}

func (tree *avlTree[K, V]) End() AVLIterator[K, V] {
	return &avlIterator[K, V]{
		tree: tree,
	}
}

func (tree *avlTree[K, V]) Find(key K) AVLIterator[K, V] {
	return &avlIterator[K, V]{
		tree: tree,
		node: tree.search(key),
	}
}

// All yields the key-value pairs in the tree order.
// Every call starts from the first element again.
func (tree *avlTree[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for aux := tree.root.minimum(); aux != nil; {
			// Load the succ before yield, so the yielded element is
			// allowed to be removed.
			next := aux.succ()
			if !yield(aux.key, aux.val) {
				return
			}
			aux = next
		}
	}
}

package tree

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/benz9527/xavl/lib/infra"
)

var (
	ErrAVLTreeBalanceViolation = errors.New("[avltree] balance violation")
	ErrAVLTreeOrderViolation   = errors.New("[avltree] order violation")
	ErrAVLTreeLinkViolation    = errors.New("[avltree] link violation")
)

// avl tree rule validation utilities.

// Postorder traversal to recompute the heights.
// Each node's stored balance must be equal to the real height difference
// and in the range of [-1, 1].
func AVLBalanceViolationValidate[K infra.OrderedKey, V any](tree AVLTree[K, V]) error {
	var (
		merr    error
		heights = make(map[AVLNode[K, V]]int, tree.Len())
	)
	heightOf := func(node AVLNode[K, V]) int {
		if node == nil {
			return 0
		}
		return heights[node]
	}
	defer func() {
		clear(heights)
	}()

	postorder(tree.Root(), func(node AVLNode[K, V]) {
		lh, rh := heightOf(node.Left()), heightOf(node.Right())
		heights[node] = max(lh, rh) + 1
		if diff := rh - lh; diff > 1 || diff < -1 {
			merr = multierr.Append(merr, fmt.Errorf("%w: key %v height diff %d",
				ErrAVLTreeBalanceViolation, node.Key(), diff))
		} else if int(node.Balance()) != diff {
			merr = multierr.Append(merr, fmt.Errorf("%w: key %v stored balance %d, real %d",
				ErrAVLTreeBalanceViolation, node.Key(), node.Balance(), diff))
		}
	})
	return merr
}

// Inorder traversal to validate the keys are strictly monotonic.
func AVLOrderViolationValidate[K infra.OrderedKey, V any](tree AVLTree[K, V]) error {
	cmp := infra.AscKeyComparator[K]()
	if t, ok := tree.(*avlTree[K, V]); ok && t.keyCompare != nil {
		cmp = t.keyCompare
	}

	var (
		merr    error
		prev    K
		hasPrev bool
	)
	tree.Foreach(func(idx int64, key K, val V) bool {
		if hasPrev && cmp(prev, key) >= 0 {
			merr = multierr.Append(merr, fmt.Errorf("%w: index %d key %v after %v",
				ErrAVLTreeOrderViolation, idx, key, prev))
		}
		prev, hasPrev = key, true
		return true
	})
	return merr
}

// Preorder traversal to validate the parent links point back.
func AVLLinkViolationValidate[K infra.OrderedKey, V any](tree AVLTree[K, V]) error {
	root := tree.Root()
	if root == nil {
		if tree.Len() != 0 {
			return fmt.Errorf("%w: empty root with len %d", ErrAVLTreeLinkViolation, tree.Len())
		}
		return nil
	}

	var merr error
	if root.Parent() != nil {
		merr = multierr.Append(merr, fmt.Errorf("%w: root key %v has parent", ErrAVLTreeLinkViolation, root.Key()))
	}
	count := int64(0)
	stack := []AVLNode[K, V]{root}
	for len(stack) > 0 {
		aux := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		for _, child := range []AVLNode[K, V]{aux.Left(), aux.Right()} {
			if child == nil {
				continue
			}
			if child.Parent() != aux {
				merr = multierr.Append(merr, fmt.Errorf("%w: key %v parent is not %v",
					ErrAVLTreeLinkViolation, child.Key(), aux.Key()))
			}
			stack = append(stack, child)
		}
	}
	if count != tree.Len() {
		merr = multierr.Append(merr, fmt.Errorf("%w: reachable %d nodes, len %d",
			ErrAVLTreeLinkViolation, count, tree.Len()))
	}
	return merr
}

func postorder[K infra.OrderedKey, V any](root AVLNode[K, V], action func(node AVLNode[K, V])) {
	if root == nil {
		return
	}
	type frame struct {
		node    AVLNode[K, V]
		visited bool
	}
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.visited {
			action(top.node)
			continue
		}
		stack = append(stack, frame{node: top.node, visited: true})
		if r := top.node.Right(); r != nil {
			stack = append(stack, frame{node: r})
		}
		if l := top.node.Left(); l != nil {
			stack = append(stack, frame{node: l})
		}
	}
}

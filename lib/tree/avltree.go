package tree

import (
	"errors"
	"fmt"
	"math/bits"

	"go.uber.org/zap"

	"github.com/benz9527/xavl/lib/infra"
	"github.com/benz9527/xavl/lib/xlog"
)

var (
	ErrAVLTreeKeyNotFound = errors.New("[avltree] key not found")
)

type avlNode[K infra.OrderedKey, V any] struct {
	parent  *avlNode[K, V]
	left    *avlNode[K, V]
	right   *avlNode[K, V]
	key     K
	val     V
	balance int8
}

func (node *avlNode[K, V]) Key() K {
	return node.key
}

func (node *avlNode[K, V]) Val() V {
	return node.val
}

func (node *avlNode[K, V]) Balance() int8 {
	return node.balance
}

func (node *avlNode[K, V]) Left() AVLNode[K, V] {
	if node == nil || node.left == nil {
		return nil
	}
	return node.left
}

func (node *avlNode[K, V]) Right() AVLNode[K, V] {
	if node == nil || node.right == nil {
		return nil
	}
	return node.right
}

func (node *avlNode[K, V]) Parent() AVLNode[K, V] {
	if node == nil || node.parent == nil {
		return nil
	}
	return node.parent
}

func (node *avlNode[K, V]) isRoot() bool {
	return node != nil && node.parent == nil
}

func (node *avlNode[K, V]) Direction() AVLDirection {
	if node == nil {
		// impossible run to here
		panic( /* debug assertion */ "[avltree] nil node without direction")
	}

	if node.isRoot() {
		return Root
	}
	if node == node.parent.left {
		return Left
	}
	return Right
}

func (node *avlNode[K, V]) fixLink() {
	if node.left != nil {
		node.left.parent = node
	}
	if node.right != nil {
		node.right.parent = node
	}
}

func (node *avlNode[K, V]) minimum() *avlNode[K, V] {
	aux := node
	for ; aux != nil && aux.left != nil; aux = aux.left {
	}
	return aux
}

func (node *avlNode[K, V]) maximum() *avlNode[K, V] {
	aux := node
	for ; aux != nil && aux.right != nil; aux = aux.right {
	}
	return aux
}

// The pred node of the current node is its previous node in sorted order
func (node *avlNode[K, V]) pred() *avlNode[K, V] {
	x := node
	if x == nil {
		return nil
	}
	if x.left != nil {
		return x.left.maximum()
	}

	aux := x.parent
	// Backtrack to father node that is the x's pred.
	for aux != nil && x == aux.left {
		x = aux
		aux = aux.parent
	}
	return aux
}

// The succ node of the current node is its next node in sorted order.
func (node *avlNode[K, V]) succ() *avlNode[K, V] {
	x := node
	if x == nil {
		return nil
	}
	if x.right != nil {
		return x.right.minimum()
	}

	aux := x.parent
	// Backtrack to father node that is the x's succ.
	for aux != nil && x == aux.right {
		x = aux
		aux = aux.parent
	}
	return aux
}

// Recomputed, not the stored balance. Empty subtree is 0 and leaf is 1.
func (node *avlNode[K, V]) height() int {
	if node == nil {
		return 0
	}
	return max(node.left.height(), node.right.height()) + 1
}

// The height of an AVL tree with n nodes is less than 1.44 * log2(n+2).
func maxHeight(n int64) int {
	if n <= 0 {
		return 0
	}
	return bits.Len64(uint64(n)+2)*3/2 + 1
}

type avlTree[K infra.OrderedKey, V any] struct {
	root           *avlNode[K, V]
	count          int64
	keyCompare     infra.OrderedKeyComparator[K]
	isDesc         bool
	isRmBorrowSucc bool
	logger         xlog.XLogger
	stats          *avlTreeStats
}

func (tree *avlTree[K, V]) Len() int64 {
	return tree.count
}

func (tree *avlTree[K, V]) IsEmpty() bool {
	return tree.root == nil
}

func (tree *avlTree[K, V]) Root() AVLNode[K, V] {
	if tree.root == nil {
		return nil
	}
	return tree.root
}

func (tree *avlTree[K, V]) Height() int {
	return tree.root.height()
}

// IsBalanced checks the heights of both subtrees of every node
// without trusting the stored balance factors.
func (tree *avlTree[K, V]) IsBalanced() bool {
	var check func(node *avlNode[K, V]) (int, bool)
	check = func(node *avlNode[K, V]) (int, bool) {
		if node == nil {
			return 0, true
		}
		lh, ok := check(node.left)
		if !ok {
			return 0, false
		}
		rh, ok := check(node.right)
		if !ok {
			return 0, false
		}
		if diff := rh - lh; diff > 1 || diff < -1 {
			return 0, false
		}
		return max(lh, rh) + 1, true
	}
	_, ok := check(tree.root)
	return ok
}

func (tree *avlTree[K, V]) debug(msg string, fields ...zap.Field) {
	if tree.logger == nil {
		return
	}
	tree.logger.Debug(msg, fields...)
}

// References:
// https://en.wikipedia.org/wiki/AVL_tree
// AVL tree properties:
// p1. The balance factor of a node is height(right) - height(left).
// p2. Every node's balance factor is in {-1, 0, 1} (balance-violation).
// p3. The balance factors are maintained incrementally. They must always
//   equal the real height difference before the next rotation decision.
// So the height of an AVL tree with n nodes is less than 1.44 * log2(n+2).

/*
		 |                         |
		 X                         S
		/ \     leftRotate(X)     / \
	   L   S    ============>    X   Sd
		  / \                   / \
		Sc   Sd                L   Sc
*/
func (tree *avlTree[K, V]) leftRotate(x *avlNode[K, V]) {
	if x == nil || x.right == nil {
		// impossible run to here
		panic( /* debug assertion */ "[avltree] left rotate node x is nil or x.right is nil")
	}

	p, y := x.parent, x.right
	dir := x.Direction()
	x.right, y.left = y.left, x

	x.fixLink()
	y.fixLink()

	switch dir {
	case Root:
		tree.root = y
	case Left:
		p.left = y
	case Right:
		p.right = y
	default:
		// impossible run to here
		panic( /* debug assertion */ "[avltree] unknown node direction to left-rotate")
	}
	y.parent = p
	tree.stats.IncreaseRotationCount(Left)
}

/*
			 |                         |
			 X                         S
			/ \     rightRotate(S)    / \
	       L   S    <============    X   R
			  / \                   / \
			Sc   Sd               Sc   Sd
*/
func (tree *avlTree[K, V]) rightRotate(x *avlNode[K, V]) {
	if x == nil || x.left == nil {
		// impossible run to here
		panic( /* debug assertion */ "[avltree] right rotate node x is nil or x.left is nil")
	}

	p, y := x.parent, x.left
	dir := x.Direction()
	x.left, y.right = y.right, x

	x.fixLink()
	y.fixLink()

	switch dir {
	case Root:
		tree.root = y
	case Left:
		p.left = y
	case Right:
		p.right = y
	default:
		// impossible run to here
		panic( /* debug assertion */ "[avltree] unknown node direction to right-rotate")
	}
	y.parent = p
	tree.stats.IncreaseRotationCount(Right)
}

// i1: Empty tree, insert directly as root.
// i2: Key is present, replace the value only.
// i3: The parent was (-1) or (+1), the new leaf fills the shorter side.
// Parent becomes 0 and the height of the subtree is unchanged.
// i4: The parent was 0, it leans to the new leaf and the height grows.
func (tree *avlTree[K, V]) Insert(key K, val V) {
	if /* i1 */ tree.root == nil {
		tree.root = &avlNode[K, V]{
			key: key,
			val: val,
		}
		tree.count++
		tree.stats.IncreaseInsertCount(tree.count)
		return
	}

	var (
		x, y *avlNode[K, V] = tree.root, nil
		res  int64
	)
	for x != nil {
		y = x
		res = tree.keyCompare(key, x.key)
		if /* i2 */ res == 0 {
			x.val = val
			return
		} else /* less */ if res < 0 {
			x = x.left
		} else /* greater */ {
			x = x.right
		}
	}

	z := &avlNode[K, V]{
		key:    key,
		val:    val,
		parent: y,
	}
	if res < 0 {
		y.left = z
	} else {
		y.right = z
	}
	tree.count++
	tree.stats.IncreaseInsertCount(tree.count)

	if /* i3 */ y.balance != 0 {
		y.balance = 0
		tree.stats.RecordRebalanceDepth(0)
		return
	}
	/* i4 */
	if z == y.left {
		y.balance = -1
	} else {
		y.balance = 1
	}
	tree.insertRebalance(y, z)
}

/*
The new leaf makes the subtree of parent P one level higher.
Walk upward with (P, X), X is the child of P on the path to the new leaf.

im1: P is root, nothing to propagate.

im2: Grandpa G leans to the other side. After the growth G is balanced (0).
The height of G is unchanged, stop.

im3: G was balanced (0). After the growth G is (-1) or (+1).
The height of G grows, recursive to fix (G, P).

im4: G is (-2) and X is the left child of P (zig-zig).
Single rotation and both of P and G become balanced (0).

	      G(-2)              P(0)
	      / \                / \
	  P(-1)  D  r-rotate(G) X   G(0)
	  / \       ========>      / \
	 X   C                    C   D

im5: G is (-2) and X is the right child of P (zig-zag).
Double rotation. The new balances depend on X's balance before rotating.

	    G(-2)                G(-2)                X(0)
	    / \                  / \                 /  \
	P(+1)  D  l-rotate(P)   X   D  r-rotate(G)  P    G
	 / \      ========>    / \     ========>   / \  / \
	A   X                 P   Xr              A  Xl Xr D
	   / \               / \
	  Xl  Xr            A   Xl

	X(-1) => P(0),  G(+1)
	X(0)  => P(0),  G(0)
	X(+1) => P(-1), G(0)

im4 and im5 have the mirror cases for G (+2).
A single rotation at the first unbalanced ancestor restores the height
before the insertion, so the fix always stops after a rotation.
*/
func (tree *avlTree[K, V]) insertRebalance(p, x *avlNode[K, V]) {
	depth := int64(0)
	defer func() {
		tree.stats.RecordRebalanceDepth(depth)
	}()

	for {
		if /* im1 */ p.isRoot() {
			return
		}
		depth++

		g := p.parent
		switch p.Direction() {
		case Left:
			g.balance--
		case Right:
			g.balance++
		default:
			// impossible run to here
			panic( /* debug assertion */ "[avltree] insert violate (im1)")
		}

		switch g.balance {
		case /* im2 */ 0:
			return
		case /* im3 */ -1, 1:
			p, x = g, p
			continue
		case -2:
			if /* im4 */ x == p.left {
				tree.rightRotate(g)
				p.balance, g.balance = 0, 0
				tree.debug("[avltree] insert rebalance zig-zig", zap.Any("pivot", g.key), zap.Stringer("rotate", Right))
			} else /* im5 */ {
				b := x.balance
				tree.leftRotate(p)
				tree.rightRotate(g)
				switch b {
				case -1:
					p.balance, g.balance = 0, 1
				case 0:
					p.balance, g.balance = 0, 0
				case 1:
					p.balance, g.balance = -1, 0
				}
				x.balance = 0
				tree.debug("[avltree] insert rebalance zig-zag", zap.Any("pivot", g.key), zap.Stringer("rotate", Right))
			}
			return
		case 2:
			if /* im4 */ x == p.right {
				tree.leftRotate(g)
				p.balance, g.balance = 0, 0
				tree.debug("[avltree] insert rebalance zig-zig", zap.Any("pivot", g.key), zap.Stringer("rotate", Left))
			} else /* im5 */ {
				b := x.balance
				tree.rightRotate(p)
				tree.leftRotate(g)
				switch b {
				case 1:
					p.balance, g.balance = 0, -1
				case 0:
					p.balance, g.balance = 0, 0
				case -1:
					p.balance, g.balance = 1, 0
				}
				x.balance = 0
				tree.debug("[avltree] insert rebalance zig-zag", zap.Any("pivot", g.key), zap.Stringer("rotate", Left))
			}
			return
		default:
			// impossible run to here
			panic( /* debug assertion */ fmt.Sprintf("[avltree] insert balance factor out of range: %d", g.balance))
		}
	}
}

/*
swapNode exchanges the tree positions and balances of x and y.
The key and value stay inside their own nodes, so the positions held by
iterators on other nodes are still valid after the removal.

Adjacent case, y is the pred of x and is x's left child:

	    |                    |
	    X                    Y
	   / \    swap(X, Y)    / \
	  Y   R   =========>   X   R
	 /                    /
	Yl                   Yl
*/
func (tree *avlTree[K, V]) swapNode(x, y *avlNode[K, V]) {
	if x == nil || y == nil || x == y {
		return
	}

	xDir, yDir := x.Direction(), y.Direction()
	xp, xl, xr := x.parent, x.left, x.right
	yp, yl, yr := y.parent, y.left, y.right

	x.parent, x.left, x.right = yp, yl, yr
	y.parent, y.left, y.right = xp, xl, xr
	x.balance, y.balance = y.balance, x.balance

	if yp == x {
		x.parent = y
		if xl == y {
			y.left = x
		} else {
			y.right = x
		}
	} else if xp == y {
		y.parent = x
		if yl == x {
			x.left = y
		} else {
			x.right = y
		}
	}

	if xp != y {
		switch xDir {
		case Root:
			tree.root = y
		case Left:
			xp.left = y
		case Right:
			xp.right = y
		}
	}
	if yp != x {
		switch yDir {
		case Root:
			tree.root = x
		case Left:
			yp.left = x
		case Right:
			yp.right = x
		}
	}

	x.fixLink()
	y.fixLink()
}

/*
r1: Current node Z has left and right node.
Find node Z's pred (or succ) Y and exchange their positions.
Y has one child at most, so Z has one child at most after the exchange.

	  |                    |
	  Z                    Y
	 / \                  / \
	L  ..   swap(Z, Y)   L  ..
	 \      =========>    \
	  Y                    Z
	 /                    /
	Yl                   Yl

r2: Splice Z out and hang its only child (or nil) on Z's parent P.
If Z was the left child, the left side of P shrinks (diff = +1).
If Z was the right child, the right side of P shrinks (diff = -1).
*/
func (tree *avlTree[K, V]) removeNode(z *avlNode[K, V]) {
	if /* r1 */ z.left != nil && z.right != nil {
		var y *avlNode[K, V]
		if tree.isRmBorrowSucc {
			y = z.succ()
		} else {
			y = z.pred()
		}
		tree.swapNode(z, y)
	}

	/* r2 */
	child := z.left
	if child == nil {
		child = z.right
	}
	p := z.parent
	diff := int8(0)
	switch dir := z.Direction(); dir {
	case Root:
		tree.root = child
	case Left:
		p.left = child
		diff = 1
	case Right:
		p.right = child
		diff = -1
	default:
		// impossible run to here
		panic( /* debug assertion */ "[avltree] remove violate (r2)")
	}
	if child != nil {
		child.parent = p
	}

	// Unlink node
	z.parent, z.left, z.right = nil, nil, nil
	z.balance = 0
	tree.count--
	tree.stats.IncreaseRemoveCount(tree.count)

	tree.removeRebalance(p, diff)
}

func (tree *avlTree[K, V]) Remove(key K) bool {
	z := tree.search(key)
	if z == nil {
		return false
	}
	tree.removeNode(z)
	return true
}

/*
The subtree of node N lost one level on the side given by diff.
diff (-1) means the right side shrank, (+1) means the left side shrank.

rm1: N becomes (-1) or (+1). N was balanced, the height of N is
unchanged, stop.

rm2: N becomes 0. N was leaning to the shrunk side, the height of N
decreases, recursive to fix N's parent.

rm3: N becomes (-2), the taller child C is N's left child.
(1) C is (-1) (zig-zig). Right rotate N, both N and C become 0.
The height of the subtree decreases, recursive to fix N's parent.

	      N(-2)               C(0)
	      / \                 / \
	   C(-1) D  r-rotate(N)  A   N(0)
	   / \      ========>       / \
	  A   B                    B   D

(2) C is 0 (flat). Right rotate N, N becomes (-1) and C becomes (+1).
The height of the subtree is unchanged, stop.

	      N(-2)               C(+1)
	      / \                 / \
	    C(0) D  r-rotate(N)  A   N(-1)
	   / \      ========>       / \
	  A   B                    B   D

(3) C is (+1) (zig-zag). The grandchild G is C's right child.
Left rotate C and then right rotate N.
The height of the subtree decreases, recursive to fix N's parent.

	G(+1) => N(0),  C(-1), G(0)
	G(0)  => N(0),  C(0),  G(0)
	G(-1) => N(+1), C(0),  G(0)

rm3 has the mirror case for N (+2) and the taller child on the right.
Unlike the insertion, the fix keeps walking up after a rotation unless
the flat case (2) absorbed the height change.
*/
func (tree *avlTree[K, V]) removeRebalance(n *avlNode[K, V], diff int8) {
	depth := int64(0)
	defer func() {
		tree.stats.RecordRebalanceDepth(depth)
	}()

	for ; n != nil; depth++ {
		p := n.parent
		// The diff of the next level must be calculated before rotations.
		nextDiff := int8(0)
		if p != nil {
			if n == p.left {
				nextDiff = 1
			} else {
				nextDiff = -1
			}
		}

		switch nb := n.balance + diff; nb {
		case /* rm1 */ -1, 1:
			n.balance = nb
			return
		case /* rm2 */ 0:
			n.balance = 0
		case /* rm3 */ -2:
			c := n.left
			switch c.balance {
			case /* rm3 (1) */ -1:
				tree.rightRotate(n)
				n.balance, c.balance = 0, 0
				tree.debug("[avltree] remove rebalance zig-zig", zap.Any("pivot", n.key), zap.Stringer("rotate", Right))
			case /* rm3 (2) */ 0:
				tree.rightRotate(n)
				n.balance, c.balance = -1, 1
				tree.debug("[avltree] remove rebalance flat", zap.Any("pivot", n.key), zap.Stringer("rotate", Right))
				return
			case /* rm3 (3) */ 1:
				g := c.right
				gb := g.balance
				tree.leftRotate(c)
				tree.rightRotate(n)
				switch gb {
				case 1:
					n.balance, c.balance = 0, -1
				case 0:
					n.balance, c.balance = 0, 0
				case -1:
					n.balance, c.balance = 1, 0
				}
				g.balance = 0
				tree.debug("[avltree] remove rebalance zig-zag", zap.Any("pivot", n.key), zap.Stringer("rotate", Right))
			}
		case /* rm3 mirror */ 2:
			c := n.right
			switch c.balance {
			case /* rm3 (1) */ 1:
				tree.leftRotate(n)
				n.balance, c.balance = 0, 0
				tree.debug("[avltree] remove rebalance zig-zig", zap.Any("pivot", n.key), zap.Stringer("rotate", Left))
			case /* rm3 (2) */ 0:
				tree.leftRotate(n)
				n.balance, c.balance = 1, -1
				tree.debug("[avltree] remove rebalance flat", zap.Any("pivot", n.key), zap.Stringer("rotate", Left))
				return
			case /* rm3 (3) */ -1:
				g := c.left
				gb := g.balance
				tree.rightRotate(c)
				tree.leftRotate(n)
				switch gb {
				case -1:
					n.balance, c.balance = 0, 1
				case 0:
					n.balance, c.balance = 0, 0
				case 1:
					n.balance, c.balance = -1, 0
				}
				g.balance = 0
				tree.debug("[avltree] remove rebalance zig-zag", zap.Any("pivot", n.key), zap.Stringer("rotate", Left))
			}
		default:
			// impossible run to here
			panic( /* debug assertion */ fmt.Sprintf("[avltree] remove balance factor out of range: %d", nb))
		}
		n, diff = p, nextDiff
	}
}

func (tree *avlTree[K, V]) search(key K) *avlNode[K, V] {
	for aux := tree.root; aux != nil; {
		res := tree.keyCompare(key, aux.key)
		if res == 0 {
			return aux
		} else if res > 0 {
			aux = aux.right
		} else {
			aux = aux.left
		}
	}
	return nil
}

func (tree *avlTree[K, V]) Contains(key K) bool {
	return tree.search(key) != nil
}

func (tree *avlTree[K, V]) Get(key K) (V, error) {
	x := tree.search(key)
	if x == nil {
		var zero V
		return zero, infra.WrapErrorStackWithMessage(ErrAVLTreeKeyNotFound, fmt.Sprintf("key: %v", key))
	}
	return x.val, nil
}

func (tree *avlTree[K, V]) Min() AVLNode[K, V] {
	if tree.root == nil {
		return nil
	}
	return tree.root.minimum()
}

func (tree *avlTree[K, V]) Max() AVLNode[K, V] {
	if tree.root == nil {
		return nil
	}
	return tree.root.maximum()
}

// Inorder traversal to implement the DFS.
func (tree *avlTree[K, V]) Foreach(action func(idx int64, key K, val V) bool) {
	aux := tree.root
	if aux == nil {
		return
	}

	stack := make([]*avlNode[K, V], 0, maxHeight(tree.count))
	defer func() {
		clear(stack)
	}()

	for ; aux != nil; aux = aux.left {
		stack = append(stack, aux)
	}

	idx := int64(0)
	for size := len(stack); size > 0; size = len(stack) {
		if aux = stack[size-1]; !action(idx, aux.key, aux.val) {
			return
		}
		idx++
		stack = stack[:size-1]
		for aux = aux.right; aux != nil; aux = aux.left {
			stack = append(stack, aux)
		}
	}
}

// Clear releases all nodes by a postorder walk and unlinks them.
func (tree *avlTree[K, V]) Clear() {
	aux := tree.root
	tree.root = nil
	released := tree.count
	tree.count = 0
	tree.stats.RecordSize(0)
	for aux != nil {
		if aux.left != nil {
			aux = aux.left
			continue
		}
		if aux.right != nil {
			aux = aux.right
			continue
		}
		p := aux.parent
		if p != nil {
			if p.left == aux {
				p.left = nil
			} else {
				p.right = nil
			}
		}
		aux.parent = nil
		aux = p
	}
	if tree.logger != nil {
		tree.logger.Info("[avltree] cleared", zap.Int64("released", released))
	}
}

type AVLTreeOpt[K infra.OrderedKey, V any] func(*avlTree[K, V])

func WithAVLTreeDesc[K infra.OrderedKey, V any]() AVLTreeOpt[K, V] {
	return func(tree *avlTree[K, V]) {
		tree.isDesc = true
	}
}

func WithAVLTreeRemoveBorrowSucc[K infra.OrderedKey, V any]() AVLTreeOpt[K, V] {
	return func(tree *avlTree[K, V]) {
		tree.isRmBorrowSucc = true
	}
}

func WithAVLTreeLogger[K infra.OrderedKey, V any](logger xlog.XLogger) AVLTreeOpt[K, V] {
	return func(tree *avlTree[K, V]) {
		tree.logger = logger
	}
}

// WithAVLTreeStats enables the otel instruments under the meter
// named "xavl/avltree/<name>".
func WithAVLTreeStats[K infra.OrderedKey, V any](name string) AVLTreeOpt[K, V] {
	return func(tree *avlTree[K, V]) {
		tree.stats = newAVLTreeStats(name)
	}
}

func NewAVLTree[K infra.OrderedKey, V any](opts ...AVLTreeOpt[K, V]) AVLTree[K, V] {
	tree := &avlTree[K, V]{
		count:          0,
		isDesc:         false,
		isRmBorrowSucc: false,
	}

	for _, o := range opts {
		o(tree)
	}
	if tree.isDesc {
		tree.keyCompare = infra.DescKeyComparator[K]()
	} else {
		tree.keyCompare = infra.AscKeyComparator[K]()
	}
	return tree
}

package index

// TimeIndex is a height-balanced binary search tree keyed by
// (timestamp, record ID). The ID breaks ties between records sharing a
// timestamp, so range scans are deterministic and stable in insertion order.
type TimeIndex struct {
	root *timeNode
	size int
}

type timeNode struct {
	ts     int64 // UnixNano
	id     uint64
	left   *timeNode
	right  *timeNode
	height int
}

// NewTimeIndex returns an empty index.
func NewTimeIndex() *TimeIndex {
	return &TimeIndex{}
}

// Len returns the number of indexed records.
func (t *TimeIndex) Len() int {
	return t.size
}

// Height returns the tree height (0 for an empty tree).
func (t *TimeIndex) Height() int {
	return height(t.root)
}

// Insert adds a (timestamp, id) pair, rebalancing on the way up.
func (t *TimeIndex) Insert(ts int64, id uint64) {
	t.root = insert(t.root, ts, id)
	t.size++
}

// Delete removes the entry for (ts, id). It reports whether the entry
// was present.
func (t *TimeIndex) Delete(ts int64, id uint64) bool {
	var removed bool
	t.root, removed = remove(t.root, ts, id)
	if removed {
		t.size--
	}
	return removed
}

// Range returns the IDs of all entries with timestamp in the half-open
// interval [start, end), in ascending (timestamp, id) order. Subtrees
// entirely outside the interval are pruned.
func (t *TimeIndex) Range(start, end int64) []uint64 {
	var out []uint64
	rangeScan(t.root, start, end, &out)
	return out
}

// InOrder returns every ID in ascending (timestamp, id) order.
func (t *TimeIndex) InOrder() []uint64 {
	out := make([]uint64, 0, t.size)
	inorder(t.root, &out)
	return out
}

func height(n *timeNode) int {
	if n == nil {
		return 0
	}
	return n.height
}

func balance(n *timeNode) int {
	if n == nil {
		return 0
	}
	return height(n.left) - height(n.right)
}

func updateHeight(n *timeNode) {
	hl, hr := height(n.left), height(n.right)
	if hl > hr {
		n.height = hl + 1
	} else {
		n.height = hr + 1
	}
}

func rotateRight(y *timeNode) *timeNode {
	x := y.left
	y.left = x.right
	x.right = y
	updateHeight(y)
	updateHeight(x)
	return x
}

func rotateLeft(x *timeNode) *timeNode {
	y := x.right
	x.right = y.left
	y.left = x
	updateHeight(x)
	updateHeight(y)
	return y
}

// rebalance restores the AVL invariant at n after an insert or delete
// below it.
func rebalance(n *timeNode) *timeNode {
	updateHeight(n)
	bf := balance(n)
	if bf > 1 {
		if balance(n.left) < 0 {
			n.left = rotateLeft(n.left)
		}
		return rotateRight(n)
	}
	if bf < -1 {
		if balance(n.right) > 0 {
			n.right = rotateRight(n.right)
		}
		return rotateLeft(n)
	}
	return n
}

// less orders nodes by (timestamp, id).
func less(ts1 int64, id1 uint64, ts2 int64, id2 uint64) bool {
	if ts1 != ts2 {
		return ts1 < ts2
	}
	return id1 < id2
}

func insert(n *timeNode, ts int64, id uint64) *timeNode {
	if n == nil {
		return &timeNode{ts: ts, id: id, height: 1}
	}
	if less(ts, id, n.ts, n.id) {
		n.left = insert(n.left, ts, id)
	} else {
		n.right = insert(n.right, ts, id)
	}
	return rebalance(n)
}

func remove(n *timeNode, ts int64, id uint64) (*timeNode, bool) {
	if n == nil {
		return nil, false
	}
	var removed bool
	switch {
	case less(ts, id, n.ts, n.id):
		n.left, removed = remove(n.left, ts, id)
	case less(n.ts, n.id, ts, id):
		n.right, removed = remove(n.right, ts, id)
	default:
		removed = true
		if n.left == nil {
			return n.right, true
		}
		if n.right == nil {
			return n.left, true
		}
		// Two children: replace with the in-order predecessor.
		pred := n.left
		for pred.right != nil {
			pred = pred.right
		}
		n.ts, n.id = pred.ts, pred.id
		n.left, _ = remove(n.left, pred.ts, pred.id)
	}
	return rebalance(n), removed
}

func rangeScan(n *timeNode, start, end int64, out *[]uint64) {
	if n == nil {
		return
	}
	if n.ts >= start {
		rangeScan(n.left, start, end, out)
	}
	if n.ts >= start && n.ts < end {
		*out = append(*out, n.id)
	}
	if n.ts < end {
		rangeScan(n.right, start, end, out)
	}
}

func inorder(n *timeNode, out *[]uint64) {
	if n == nil {
		return
	}
	inorder(n.left, out)
	*out = append(*out, n.id)
	inorder(n.right, out)
}

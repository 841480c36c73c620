// Package index implements the numeric range index: an in-memory B-tree
// keyed by (numeric value, entry key) composites. Duplicate numeric values
// are legal because the composite makes every tree entry unique.
package index

// order is the maximum number of children per node. Every non-root node
// keeps between order/2 and order children; entries per node stay between
// minEntries and maxEntries.
const (
	order      = 4
	maxEntries = order - 1
	minEntries = order/2 - 1
)

type entry struct {
	val float64
	key string
}

// less orders composites by numeric value first, then by entry key so that
// equal values remain distinct.
func (e entry) less(o entry) bool {
	if e.val != o.val {
		return e.val < o.val
	}
	return e.key < o.key
}

type node struct {
	entries  []entry
	children []*node
}

func (n *node) isLeaf() bool {
	return len(n.children) == 0
}

// search returns the index where e belongs in n.entries. If found is true,
// entries[idx] equals e.
func (n *node) search(e entry) (idx int, found bool) {
	lo, hi := 0, len(n.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		cur := n.entries[mid]
		switch {
		case e.less(cur):
			hi = mid
		case cur.less(e):
			lo = mid + 1
		default:
			return mid, true
		}
	}
	return lo, false
}

// Tree is a B-tree mapping numeric values to entry keys.
type Tree struct {
	root *node
	size int
}

func NewTree() *Tree {
	return &Tree{}
}

// Len returns the number of (value, key) pairs in the tree.
func (t *Tree) Len() int { return t.size }

// Height returns the number of levels in the tree (0 when empty).
func (t *Tree) Height() int {
	h := 0
	for n := t.root; n != nil; {
		h++
		if n.isLeaf() {
			break
		}
		n = n.children[0]
	}
	return h
}

// Insert adds a (value, key) pair. Returns false if the exact pair is
// already present.
func (t *Tree) Insert(val float64, key string) bool {
	e := entry{val: val, key: key}
	if t.root == nil {
		t.root = &node{entries: []entry{e}}
		t.size++
		return true
	}
	if t.contains(t.root, e) {
		return false
	}
	promoted, right := t.insert(t.root, e)
	if right != nil {
		// Root split: the tree grows by one level.
		t.root = &node{
			entries:  []entry{promoted},
			children: []*node{t.root, right},
		}
	}
	t.size++
	return true
}

func (t *Tree) contains(n *node, e entry) bool {
	idx, found := n.search(e)
	if found {
		return true
	}
	if n.isLeaf() {
		return false
	}
	return t.contains(n.children[idx], e)
}

// insert descends into n and places e. When a split occurs it returns the
// median entry promoted to the parent and the new right sibling.
func (t *Tree) insert(n *node, e entry) (promoted entry, right *node) {
	idx, _ := n.search(e)

	if n.isLeaf() {
		n.entries = append(n.entries, entry{})
		copy(n.entries[idx+1:], n.entries[idx:])
		n.entries[idx] = e
	} else {
		promoted, right = t.insert(n.children[idx], e)
		if right == nil {
			return entry{}, nil
		}
		n.entries = append(n.entries, entry{})
		copy(n.entries[idx+1:], n.entries[idx:])
		n.entries[idx] = promoted

		n.children = append(n.children, nil)
		copy(n.children[idx+2:], n.children[idx+1:])
		n.children[idx+1] = right
		right = nil
	}

	if len(n.entries) > maxEntries {
		return t.split(n)
	}
	return entry{}, nil
}

// split divides n at the median. n keeps the left half; the median is
// promoted and the right half becomes a new node.
func (t *Tree) split(n *node) (entry, *node) {
	mid := len(n.entries) / 2
	promoted := n.entries[mid]

	right := &node{entries: make([]entry, len(n.entries[mid+1:]))}
	copy(right.entries, n.entries[mid+1:])

	if !n.isLeaf() {
		right.children = make([]*node, len(n.children[mid+1:]))
		copy(right.children, n.children[mid+1:])
		n.children = n.children[:mid+1]
	}
	n.entries = n.entries[:mid]
	return promoted, right
}

// Delete removes a (value, key) pair, rebalancing by borrowing from a
// sibling or merging nodes so that no node underflows. Returns false if the
// pair was not present.
func (t *Tree) Delete(val float64, key string) bool {
	if t.root == nil {
		return false
	}
	if !t.delete(t.root, entry{val: val, key: key}) {
		return false
	}
	if len(t.root.entries) == 0 {
		if t.root.isLeaf() {
			t.root = nil
		} else {
			// The root emptied after a merge; its sole child takes over.
			t.root = t.root.children[0]
		}
	}
	t.size--
	return true
}

func (t *Tree) delete(n *node, e entry) bool {
	idx, found := n.search(e)

	if n.isLeaf() {
		if !found {
			return false
		}
		n.entries = append(n.entries[:idx], n.entries[idx+1:]...)
		return true
	}

	if found {
		// Swap with the in-order predecessor and delete it from the left
		// subtree, then repair any underflow on the way back up.
		pred := largest(n.children[idx])
		n.entries[idx] = pred
		t.delete(n.children[idx], pred)
		t.rebalance(n, idx)
		return true
	}

	if !t.delete(n.children[idx], e) {
		return false
	}
	t.rebalance(n, idx)
	return true
}

func largest(n *node) entry {
	for !n.isLeaf() {
		n = n.children[len(n.children)-1]
	}
	return n.entries[len(n.entries)-1]
}

// rebalance restores the occupancy invariant for n.children[idx] after a
// deletion below it: borrow through the separator from a sibling that can
// spare an entry, otherwise merge with a sibling.
func (t *Tree) rebalance(n *node, idx int) {
	child := n.children[idx]
	if len(child.entries) >= minEntries {
		return
	}

	if idx > 0 && len(n.children[idx-1].entries) > minEntries {
		// Rotate right: separator moves down, left sibling's last entry up.
		left := n.children[idx-1]
		child.entries = append([]entry{n.entries[idx-1]}, child.entries...)
		n.entries[idx-1] = left.entries[len(left.entries)-1]
		left.entries = left.entries[:len(left.entries)-1]
		if !left.isLeaf() {
			child.children = append([]*node{left.children[len(left.children)-1]}, child.children...)
			left.children = left.children[:len(left.children)-1]
		}
		return
	}

	if idx < len(n.children)-1 && len(n.children[idx+1].entries) > minEntries {
		// Rotate left: separator moves down, right sibling's first entry up.
		right := n.children[idx+1]
		child.entries = append(child.entries, n.entries[idx])
		n.entries[idx] = right.entries[0]
		right.entries = right.entries[1:]
		if !right.isLeaf() {
			child.children = append(child.children, right.children[0])
			right.children = right.children[1:]
		}
		return
	}

	// Neither sibling can spare an entry, so merge through the separator.
	if idx > 0 {
		idx--
	}
	left, right := n.children[idx], n.children[idx+1]
	left.entries = append(left.entries, n.entries[idx])
	left.entries = append(left.entries, right.entries...)
	left.children = append(left.children, right.children...)
	n.entries = append(n.entries[:idx], n.entries[idx+1:]...)
	n.children = append(n.children[:idx+1], n.children[idx+2:]...)
}

// Above collects the entry keys of every value strictly greater than v.
// The result order is unspecified.
func (t *Tree) Above(v float64) []string {
	var out []string
	if t.root != nil {
		t.collectAbove(t.root, v, &out)
	}
	return out
}

func (t *Tree) collectAbove(n *node, v float64, out *[]string) {
	for i, e := range n.entries {
		if e.val > v {
			// The left subtree holds values below e that may still exceed v.
			if !n.isLeaf() {
				t.collectAbove(n.children[i], v, out)
			}
			*out = append(*out, e.key)
		}
	}
	if !n.isLeaf() {
		t.collectAbove(n.children[len(n.children)-1], v, out)
	}
}

// Below collects the entry keys of every value strictly less than v.
// The result order is unspecified.
func (t *Tree) Below(v float64) []string {
	var out []string
	if t.root != nil {
		t.collectBelow(t.root, v, &out)
	}
	return out
}

func (t *Tree) collectBelow(n *node, v float64, out *[]string) {
	for i, e := range n.entries {
		if !n.isLeaf() {
			t.collectBelow(n.children[i], v, out)
		}
		if e.val >= v {
			// Everything further right is at least e.val.
			return
		}
		*out = append(*out, e.key)
	}
	if !n.isLeaf() {
		t.collectBelow(n.children[len(n.children)-1], v, out)
	}
}

// Ascend visits every (value, key) pair in order until fn returns false.
func (t *Tree) Ascend(fn func(val float64, key string) bool) {
	if t.root != nil {
		t.ascend(t.root, fn)
	}
}

func (t *Tree) ascend(n *node, fn func(val float64, key string) bool) bool {
	for i, e := range n.entries {
		if !n.isLeaf() && !t.ascend(n.children[i], fn) {
			return false
		}
		if !fn(e.val, e.key) {
			return false
		}
	}
	if !n.isLeaf() {
		return t.ascend(n.children[len(n.children)-1], fn)
	}
	return true
}

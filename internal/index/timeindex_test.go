package index

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkAVL verifies the balance-factor invariant and returns the subtree
// height.
func checkAVL(t *testing.T, n *timeNode) int {
	t.Helper()
	if n == nil {
		return 0
	}
	hl := checkAVL(t, n.left)
	hr := checkAVL(t, n.right)
	bf := hl - hr
	require.True(t, bf >= -1 && bf <= 1, "balance factor %d at node ts=%d id=%d", bf, n.ts, n.id)
	if hl > hr {
		require.Equal(t, hl+1, n.height)
		return hl + 1
	}
	require.Equal(t, hr+1, n.height)
	return hr + 1
}

func TestTimeIndex_InOrderSorted(t *testing.T) {
	tree := NewTimeIndex()
	rng := rand.New(rand.NewSource(42))

	n := 1000
	tsByID := make(map[uint64]int64, n)
	for id := uint64(1); id <= uint64(n); id++ {
		ts := rng.Int63n(1_000_000)
		tree.Insert(ts, id)
		tsByID[id] = ts
	}
	require.Equal(t, n, tree.Len())

	ids := tree.InOrder()
	require.Len(t, ids, n)
	for i := 1; i < len(ids); i++ {
		prev, cur := tsByID[ids[i-1]], tsByID[ids[i]]
		assert.LessOrEqual(t, prev, cur, "in-order traversal out of order at %d", i)
		if prev == cur {
			assert.Less(t, ids[i-1], ids[i], "tie not broken by id at %d", i)
		}
	}

	// AVL height bound: h <= 1.44*log2(n+2).
	bound := 1.44 * math.Log2(float64(n)+2)
	assert.LessOrEqual(t, float64(tree.Height()), bound)
	checkAVL(t, tree.root)
}

func TestTimeIndex_Range(t *testing.T) {
	tree := NewTimeIndex()
	for id := uint64(1); id <= 100; id++ {
		tree.Insert(int64(id*10), id)
	}

	// Half-open: start inclusive, end exclusive.
	ids := tree.Range(100, 200)
	require.Len(t, ids, 10)
	assert.Equal(t, uint64(10), ids[0])
	assert.Equal(t, uint64(19), ids[len(ids)-1])

	assert.Empty(t, tree.Range(2000, 3000))
	assert.Len(t, tree.Range(math.MinInt64, math.MaxInt64), 100)
}

func TestTimeIndex_RangeTieBreak(t *testing.T) {
	tree := NewTimeIndex()
	// Same timestamp, mixed insertion order.
	tree.Insert(50, 3)
	tree.Insert(50, 1)
	tree.Insert(50, 2)

	ids := tree.Range(50, 51)
	assert.Equal(t, []uint64{1, 2, 3}, ids)
}

func TestTimeIndex_ContainsEachIngestedOnce(t *testing.T) {
	tree := NewTimeIndex()
	for id := uint64(1); id <= 500; id++ {
		tree.Insert(int64(id%7)*1000, id)
	}
	seen := make(map[uint64]int)
	for _, id := range tree.Range(math.MinInt64, math.MaxInt64) {
		seen[id]++
	}
	require.Len(t, seen, 500)
	for id, count := range seen {
		assert.Equal(t, 1, count, "id %d returned %d times", id, count)
	}
}

func TestTimeIndex_Delete(t *testing.T) {
	tree := NewTimeIndex()
	rng := rand.New(rand.NewSource(7))

	n := 500
	tsByID := make(map[uint64]int64, n)
	for id := uint64(1); id <= uint64(n); id++ {
		ts := rng.Int63n(10_000)
		tree.Insert(ts, id)
		tsByID[id] = ts
	}

	// Delete every even id.
	for id := uint64(2); id <= uint64(n); id += 2 {
		assert.True(t, tree.Delete(tsByID[id], id))
	}
	require.Equal(t, n/2, tree.Len())
	checkAVL(t, tree.root)

	// Deleted entries are gone, odd ones remain.
	remaining := make(map[uint64]bool)
	for _, id := range tree.InOrder() {
		remaining[id] = true
	}
	for id := uint64(1); id <= uint64(n); id++ {
		assert.Equal(t, id%2 == 1, remaining[id], "id %d", id)
	}

	// Deleting a missing entry reports false.
	assert.False(t, tree.Delete(tsByID[2], 2))

	// Drain the rest.
	for id := uint64(1); id <= uint64(n); id += 2 {
		require.True(t, tree.Delete(tsByID[id], id))
	}
	assert.Equal(t, 0, tree.Len())
	assert.Nil(t, tree.root)
}

func BenchmarkTimeIndexInsert(b *testing.B) {
	tree := NewTimeIndex()
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < b.N; i++ {
		tree.Insert(rng.Int63(), uint64(i))
	}
}

package pages

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xstorage/engine/basic"
	"github.com/zhukovaskychina/xstorage/engine/buffer_pool"
	"github.com/zhukovaskychina/xstorage/engine/store"
	"github.com/zhukovaskychina/xstorage/util"
)

const testKeySize = 8

func intKey(v int64) []byte {
	return util.ConvertULong8Bytes(uint64(v))
}

func byteCmp(a, b []byte) int { return bytes.Compare(a, b) }

func newTestFrame(t *testing.T) *buffer_pool.Page {
	t.Helper()
	bpm := buffer_pool.NewBufferPoolManager(4, 2, store.NewMemoryDiskManager())
	p := bpm.NewPage()
	require.NotNil(t, p)
	return p
}

func TestLeafPageInsertOrdering(t *testing.T) {
	leaf := NewLeafPage(newTestFrame(t), testKeySize)
	leaf.Init(1, basic.InvalidPageID, 8)

	assert.True(t, leaf.IsLeafPage())
	assert.True(t, leaf.IsRootPage())
	assert.Equal(t, basic.InvalidPageID, leaf.GetNextPageID())

	for _, v := range []int64{30, 10, 50, 20, 40} {
		leaf.Insert(intKey(v), basic.NewRID(basic.PageID(v), uint32(v)), byteCmp)
	}
	require.Equal(t, 5, leaf.GetSize())

	// 键严格递增
	for i, want := range []int64{10, 20, 30, 40, 50} {
		assert.Equal(t, intKey(want), leaf.KeyAt(i))
		assert.Equal(t, basic.PageID(want), leaf.ValueAt(i).PageID)
	}

	assert.Equal(t, 2, leaf.Lowerbound(intKey(30), byteCmp))
	assert.Equal(t, 2, leaf.Lowerbound(intKey(25), byteCmp))
	assert.Equal(t, 5, leaf.Lowerbound(intKey(99), byteCmp))
	assert.True(t, leaf.Contains(intKey(30), byteCmp))
	assert.False(t, leaf.Contains(intKey(25), byteCmp))

	require.True(t, leaf.Remove(intKey(30), byteCmp))
	assert.False(t, leaf.Remove(intKey(30), byteCmp))
	assert.Equal(t, 4, leaf.GetSize())
	assert.Equal(t, intKey(40), leaf.KeyAt(2))
}

func TestLeafPageMoveHalf(t *testing.T) {
	left := NewLeafPage(newTestFrame(t), testKeySize)
	left.Init(1, basic.InvalidPageID, 4)
	right := NewLeafPage(newTestFrame(t), testKeySize)
	right.Init(2, basic.InvalidPageID, 4)

	for _, v := range []int64{10, 20, 30, 40} {
		left.Insert(intKey(v), basic.NewRID(basic.PageID(v), 0), byteCmp)
	}

	left.MoveHalfTo(right)
	assert.Equal(t, 2, left.GetSize())
	assert.Equal(t, 2, right.GetSize())
	assert.Equal(t, intKey(30), right.KeyAt(0))
	assert.Equal(t, basic.PageID(2), left.GetNextPageID())
	assert.Equal(t, basic.InvalidPageID, right.GetNextPageID())
}

func TestLeafPageMoveAll(t *testing.T) {
	left := NewLeafPage(newTestFrame(t), testKeySize)
	left.Init(1, basic.InvalidPageID, 8)
	right := NewLeafPage(newTestFrame(t), testKeySize)
	right.Init(2, basic.InvalidPageID, 8)

	left.Insert(intKey(10), basic.NewRID(10, 0), byteCmp)
	left.SetNextPageID(2)
	right.Insert(intKey(20), basic.NewRID(20, 0), byteCmp)
	right.Insert(intKey(30), basic.NewRID(30, 0), byteCmp)
	right.SetNextPageID(7)

	right.MoveAllTo(left)
	assert.Equal(t, 3, left.GetSize())
	assert.Equal(t, 0, right.GetSize())
	assert.Equal(t, basic.PageID(7), left.GetNextPageID())
	assert.Equal(t, intKey(30), left.KeyAt(2))
}

func TestInternalPageLookup(t *testing.T) {
	inner := NewInternalPage(newTestFrame(t), testKeySize)
	inner.Init(5, basic.InvalidPageID, 4)

	// children: c0 < 20 <= c1 < 40 <= c2
	inner.PopulateNewRoot(100, intKey(20), 101)
	inner.InsertNodeAfter(101, intKey(40), 102)
	require.Equal(t, 3, inner.GetSize())

	assert.False(t, inner.IsLeafPage())
	assert.Equal(t, basic.PageID(100), inner.Lookup(intKey(5), byteCmp))
	assert.Equal(t, basic.PageID(101), inner.Lookup(intKey(20), byteCmp))
	assert.Equal(t, basic.PageID(101), inner.Lookup(intKey(39), byteCmp))
	assert.Equal(t, basic.PageID(102), inner.Lookup(intKey(40), byteCmp))
	assert.Equal(t, basic.PageID(102), inner.Lookup(intKey(99), byteCmp))

	assert.Equal(t, 1, inner.ValueIndex(101))
	assert.Equal(t, -1, inner.ValueIndex(999))
}

func TestInternalPageMoveHalf(t *testing.T) {
	node := NewInternalPage(newTestFrame(t), testKeySize)
	node.Init(5, basic.InvalidPageID, 4)
	sibling := NewInternalPage(newTestFrame(t), testKeySize)
	sibling.Init(6, basic.InvalidPageID, 4)

	// 溢出到5个条目后分裂
	node.PopulateNewRoot(100, intKey(20), 101)
	node.InsertNodeAfter(101, intKey(40), 102)
	node.InsertNodeAfter(102, intKey(60), 103)
	node.InsertNodeAfter(103, intKey(80), 104)
	require.Equal(t, 5, node.GetSize())

	node.MoveHalfTo(sibling)
	assert.Equal(t, 3, node.GetSize())
	assert.Equal(t, 2, sibling.GetSize())
	// 上推的分隔键留在接收方槽位0
	assert.Equal(t, intKey(60), sibling.KeyAt(0))
	assert.Equal(t, basic.PageID(103), sibling.ValueAt(0))
	assert.Equal(t, basic.PageID(104), sibling.ValueAt(1))
	assert.Equal(t, intKey(80), sibling.KeyAt(1))
}

func TestInternalPageFrontBackOps(t *testing.T) {
	node := NewInternalPage(newTestFrame(t), testKeySize)
	node.Init(5, basic.InvalidPageID, 8)
	node.PopulateNewRoot(100, intKey(20), 101)

	node.AppendEntry(intKey(40), 102)
	assert.Equal(t, 3, node.GetSize())
	assert.Equal(t, basic.PageID(102), node.ValueAt(2))

	node.InsertFront(intKey(10), 99)
	require.Equal(t, 4, node.GetSize())
	assert.Equal(t, basic.PageID(99), node.ValueAt(0))
	assert.Equal(t, intKey(10), node.KeyAt(1))
	assert.Equal(t, basic.PageID(100), node.ValueAt(1))
	assert.Equal(t, intKey(20), node.KeyAt(2))

	node.RemoveAt(0)
	assert.Equal(t, 3, node.GetSize())
	assert.Equal(t, basic.PageID(100), node.ValueAt(0))
}

func TestHeaderPageRecords(t *testing.T) {
	header := NewHeaderPage(newTestFrame(t))

	assert.Equal(t, 0, header.GetRecordCount())
	_, ok := header.GetRootID("idx_a")
	assert.False(t, ok)

	require.True(t, header.InsertRecord("idx_a", 7))
	require.True(t, header.InsertRecord("idx_b", 9))
	assert.False(t, header.InsertRecord("idx_a", 11)) // 重名拒绝

	root, ok := header.GetRootID("idx_a")
	require.True(t, ok)
	assert.Equal(t, basic.PageID(7), root)

	require.True(t, header.UpdateRecord("idx_a", 13))
	root, _ = header.GetRootID("idx_a")
	assert.Equal(t, basic.PageID(13), root)
	assert.False(t, header.UpdateRecord("missing", 1))

	require.True(t, header.DeleteRecord("idx_a"))
	assert.False(t, header.DeleteRecord("idx_a"))
	_, ok = header.GetRootID("idx_a")
	assert.False(t, ok)
	root, ok = header.GetRootID("idx_b")
	require.True(t, ok)
	assert.Equal(t, basic.PageID(9), root)
}

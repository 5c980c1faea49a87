package index

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xstorage/engine/basic"
	"github.com/zhukovaskychina/xstorage/engine/buffer_pool"
	"github.com/zhukovaskychina/xstorage/engine/pages"
	"github.com/zhukovaskychina/xstorage/engine/store"
)

func newTestTree(t *testing.T, poolSize, leafMax, internalMax int) (*BPlusTree, *buffer_pool.BufferPoolManager) {
	t.Helper()
	bpm := buffer_pool.NewBufferPoolManager(poolSize, 2, store.NewMemoryDiskManager())
	tree := NewBPlusTree("test_index", bpm, CompareKeys, Int64KeySize, leafMax, internalMax)
	return tree, bpm
}

func ridFor(k int64) basic.RID {
	return basic.NewRID(basic.PageID(k), uint32(k))
}

// checkTreeInvariants 遍历整棵树校验结构不变式：节点占用率、键序、
// 父指针、分隔键界
func checkTreeInvariants(t *testing.T, tree *BPlusTree) {
	t.Helper()
	rootID := tree.GetRootPageID()
	if rootID == basic.InvalidPageID {
		return
	}
	checkSubtree(t, tree, rootID, basic.InvalidPageID, nil, nil)
}

func checkSubtree(t *testing.T, tree *BPlusTree, pageID, parentID basic.PageID, lower, upper []byte) {
	t.Helper()
	page := tree.bpm.FetchPage(pageID)
	require.NotNil(t, page)
	defer tree.bpm.UnpinPage(pageID, false)

	node := pages.NewBPlusTreePage(page)
	require.Equal(t, parentID, node.GetParentPageID(), "parent pointer of page %d", pageID)
	require.Equal(t, pageID, node.GetPageID(), "stored page id of page %d", pageID)

	size := node.GetSize()
	if parentID != basic.InvalidPageID {
		require.GreaterOrEqual(t, size, node.GetMinSize(), "underflow at page %d\n%s", pageID, tree.DebugString())
	}

	if node.IsLeafPage() {
		leaf := tree.leafView(page)
		require.LessOrEqual(t, size, node.GetMaxSize()-1, "leaf overflow at page %d", pageID)
		for i := 0; i < size; i++ {
			key := leaf.KeyAt(i)
			if i > 0 {
				require.Negative(t, CompareKeys(leaf.KeyAt(i-1), key), "key order in leaf %d", pageID)
			}
			if lower != nil {
				require.True(t, CompareKeys(key, lower) >= 0, "leaf %d key below separator", pageID)
			}
			if upper != nil {
				require.Negative(t, CompareKeys(key, upper), "leaf %d key above separator", pageID)
			}
		}
		return
	}

	inner := tree.internalView(page)
	require.LessOrEqual(t, size, node.GetMaxSize(), "internal overflow at page %d", pageID)
	for i := 1; i < size; i++ {
		if i > 1 {
			require.Negative(t, CompareKeys(inner.KeyAt(i-1), inner.KeyAt(i)), "key order in internal %d", pageID)
		}
	}
	for i := 0; i < size; i++ {
		childLower := lower
		childUpper := upper
		if i > 0 {
			childLower = copyKey(inner.KeyAt(i))
		}
		if i < size-1 {
			childUpper = copyKey(inner.KeyAt(i + 1))
		}
		checkSubtree(t, tree, inner.ValueAt(i), pageID, childLower, childUpper)
	}
}

func collectKeys(t *testing.T, tree *BPlusTree) []int64 {
	t.Helper()
	var keys []int64
	for it := tree.Begin(); !it.IsEnd(); it.Next() {
		keys = append(keys, Int64FromKey(it.Key()))
	}
	return keys
}

func TestBPlusTreeEmpty(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)

	assert.True(t, tree.IsEmpty())
	assert.Empty(t, tree.GetValue(Int64Key(1)))
	assert.True(t, tree.Begin().IsEnd())
	assert.True(t, tree.BeginAt(Int64Key(1)).IsEnd())
	tree.Remove(Int64Key(1), nil) // 空树删除no-op
}

func TestBPlusTreeInsertAndGet(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)

	require.True(t, tree.Insert(Int64Key(42), ridFor(42), nil))
	assert.False(t, tree.IsEmpty())

	rids := tree.GetValue(Int64Key(42))
	require.Len(t, rids, 1)
	assert.Equal(t, ridFor(42), rids[0])

	// 重复键拒绝
	assert.False(t, tree.Insert(Int64Key(42), ridFor(43), nil))
	rids = tree.GetValue(Int64Key(42))
	require.Len(t, rids, 1)
	assert.Equal(t, ridFor(42), rids[0])
}

func TestBPlusTreeLeafSplitPropagation(t *testing.T) {
	// 叶子和内部节点max_size都为4，插入10,20,30,40,50
	tree, bpm := newTestTree(t, 16, 4, 4)

	for _, k := range []int64{10, 20, 30} {
		require.True(t, tree.Insert(Int64Key(k), ridFor(k), nil))
	}
	// 根仍是叶子
	rootPage := bpm.FetchPage(tree.GetRootPageID())
	require.NotNil(t, rootPage)
	assert.True(t, pages.NewBPlusTreePage(rootPage).IsLeafPage())
	bpm.UnpinPage(rootPage.ID(), false)

	// 插入40触发分裂：[10,20] [30,40]，新根分隔键30
	require.True(t, tree.Insert(Int64Key(40), ridFor(40), nil))

	rootPage = bpm.FetchPage(tree.GetRootPageID())
	require.NotNil(t, rootPage)
	root := tree.internalView(rootPage)
	require.False(t, root.IsLeafPage())
	require.Equal(t, 2, root.GetSize())
	assert.Equal(t, Int64Key(30), root.KeyAt(1))

	leftPage := bpm.FetchPage(root.ValueAt(0))
	left := tree.leafView(leftPage)
	require.Equal(t, 2, left.GetSize())
	assert.Equal(t, Int64Key(10), left.KeyAt(0))
	assert.Equal(t, Int64Key(20), left.KeyAt(1))
	assert.Equal(t, root.ValueAt(1), left.GetNextPageID())
	bpm.UnpinPage(leftPage.ID(), false)

	rightPage := bpm.FetchPage(root.ValueAt(1))
	right := tree.leafView(rightPage)
	require.Equal(t, 2, right.GetSize())
	assert.Equal(t, Int64Key(30), right.KeyAt(0))
	assert.Equal(t, Int64Key(40), right.KeyAt(1))
	bpm.UnpinPage(rightPage.ID(), false)

	// 插入50落入右叶子
	require.True(t, tree.Insert(Int64Key(50), ridFor(50), nil))
	rightPage = bpm.FetchPage(root.ValueAt(1))
	right = tree.leafView(rightPage)
	require.Equal(t, 3, right.GetSize())
	assert.Equal(t, Int64Key(50), right.KeyAt(2))
	bpm.UnpinPage(rightPage.ID(), false)
	bpm.UnpinPage(rootPage.ID(), false)

	assert.Equal(t, []int64{10, 20, 30, 40, 50}, collectKeys(t, tree))
	checkTreeInvariants(t, tree)
}

func TestBPlusTreeDeleteWithMerge(t *testing.T) {
	// 接续分裂场景：删40、50后右叶子下溢合并，根收缩为叶子
	tree, bpm := newTestTree(t, 16, 4, 4)
	for _, k := range []int64{10, 20, 30, 40, 50} {
		require.True(t, tree.Insert(Int64Key(k), ridFor(k), nil))
	}

	tree.Remove(Int64Key(40), nil)
	tree.Remove(Int64Key(50), nil)

	rootPage := bpm.FetchPage(tree.GetRootPageID())
	require.NotNil(t, rootPage)
	root := tree.leafView(rootPage)
	require.True(t, root.IsLeafPage())
	require.Equal(t, 3, root.GetSize())
	bpm.UnpinPage(rootPage.ID(), false)

	assert.Equal(t, []int64{10, 20, 30}, collectKeys(t, tree))
	assert.Empty(t, tree.GetValue(Int64Key(40)))
	assert.Empty(t, tree.GetValue(Int64Key(50)))
	checkTreeInvariants(t, tree)
}

func TestBPlusTreeBorrowFromSibling(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)
	for _, k := range []int64{10, 20, 30, 40, 50} {
		require.True(t, tree.Insert(Int64Key(k), ridFor(k), nil))
	}

	// 左叶子[10,20]下溢，右兄弟[30,40,50]可借出30
	tree.Remove(Int64Key(10), nil)
	assert.Equal(t, []int64{20, 30, 40, 50}, collectKeys(t, tree))
	checkTreeInvariants(t, tree)

	rids := tree.GetValue(Int64Key(30))
	require.Len(t, rids, 1)
	assert.Equal(t, ridFor(30), rids[0])
}

func TestBPlusTreeRemoveToEmpty(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)

	for k := int64(1); k <= 10; k++ {
		require.True(t, tree.Insert(Int64Key(k), ridFor(k), nil))
	}
	for k := int64(1); k <= 10; k++ {
		tree.Remove(Int64Key(k), nil)
		checkTreeInvariants(t, tree)
	}

	assert.True(t, tree.IsEmpty())
	assert.True(t, tree.Begin().IsEnd())

	// 清空后可以重新生根
	require.True(t, tree.Insert(Int64Key(7), ridFor(7), nil))
	rids := tree.GetValue(Int64Key(7))
	require.Len(t, rids, 1)
}

func TestBPlusTreeInsertRemoveRoundTrip(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)

	require.True(t, tree.Insert(Int64Key(5), ridFor(5), nil))
	tree.Remove(Int64Key(5), nil)
	assert.Empty(t, tree.GetValue(Int64Key(5)))

	require.True(t, tree.Insert(Int64Key(5), ridFor(5), nil))
	rids := tree.GetValue(Int64Key(5))
	require.Len(t, rids, 1)
	assert.Equal(t, ridFor(5), rids[0])
}

func TestBPlusTreeScale(t *testing.T) {
	tree, _ := newTestTree(t, 64, 4, 4)

	// 伪随机顺序插入1..200
	const n = 200
	inserted := make(map[int64]bool)
	k := int64(1)
	for i := 0; i < n; i++ {
		k = (k*97 + 31) % 211
		for inserted[k] || k == 0 {
			k = (k + 1) % 211
		}
		inserted[k] = true
		require.True(t, tree.Insert(Int64Key(k), ridFor(k), nil))
	}
	checkTreeInvariants(t, tree)

	keys := collectKeys(t, tree)
	require.Len(t, keys, n)
	for i := 1; i < len(keys); i++ {
		require.Less(t, keys[i-1], keys[i], "iterator order")
	}

	for key := range inserted {
		rids := tree.GetValue(Int64Key(key))
		require.Len(t, rids, 1, "key %d", key)
		require.Equal(t, ridFor(key), rids[0])
	}

	// 删除一半，结构保持合法
	removed := 0
	for key := range inserted {
		if removed >= n/2 {
			break
		}
		tree.Remove(Int64Key(key), nil)
		delete(inserted, key)
		removed++
	}
	checkTreeInvariants(t, tree)

	keys = collectKeys(t, tree)
	require.Len(t, keys, n-removed)
	for key := range inserted {
		rids := tree.GetValue(Int64Key(key))
		require.Len(t, rids, 1, "key %d after deletes", key)
	}
}

func TestBPlusTreeBeginAt(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)
	for _, k := range []int64{10, 20, 30, 40, 50} {
		require.True(t, tree.Insert(Int64Key(k), ridFor(k), nil))
	}

	it := tree.BeginAt(Int64Key(25))
	require.False(t, it.IsEnd())
	assert.Equal(t, int64(30), Int64FromKey(it.Key()))
	it.Close()

	it = tree.BeginAt(Int64Key(30))
	require.False(t, it.IsEnd())
	assert.Equal(t, int64(30), Int64FromKey(it.Key()))
	assert.Equal(t, ridFor(30), it.Value())
	it.Close()

	// 定位键超过全部键
	assert.True(t, tree.BeginAt(Int64Key(60)).IsEnd())
}

func TestBPlusTreeHeaderPersistence(t *testing.T) {
	dm := store.NewMemoryDiskManager()
	bpm := buffer_pool.NewBufferPoolManager(16, 2, dm)
	tree := NewBPlusTree("persisted_index", bpm, CompareKeys, Int64KeySize, 4, 4)

	for k := int64(1); k <= 20; k++ {
		require.True(t, tree.Insert(Int64Key(k), ridFor(k), nil))
	}
	bpm.FlushAllPages()

	// 新缓冲池重开同一个索引，root从头页面恢复
	bpm2 := buffer_pool.NewBufferPoolManager(16, 2, dm)
	tree2 := NewBPlusTree("persisted_index", bpm2, CompareKeys, Int64KeySize, 4, 4)

	require.False(t, tree2.IsEmpty())
	assert.Equal(t, tree.GetRootPageID(), tree2.GetRootPageID())
	for k := int64(1); k <= 20; k++ {
		rids := tree2.GetValue(Int64Key(k))
		require.Len(t, rids, 1, "key %d after reopen", k)
		assert.Equal(t, ridFor(k), rids[0])
	}
}

func TestBPlusTreeConcurrentReaders(t *testing.T) {
	tree, _ := newTestTree(t, 64, 4, 4)

	// 偶数键先铺好，写线程插奇数键，读线程必须始终看到一致结果
	for k := int64(0); k < 200; k += 2 {
		require.True(t, tree.Insert(Int64Key(k), ridFor(k), nil))
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for k := int64(1); k < 200; k += 2 {
			tree.Insert(Int64Key(k), ridFor(k), nil)
		}
		close(stop)
	}()

	const readers = 4
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for k := int64(0); k < 200; k += 2 {
					rids := tree.GetValue(Int64Key(k))
					if len(rids) != 1 || rids[0] != ridFor(k) {
						t.Errorf("reader %d: key %d -> %v", r, k, rids)
						return
					}
				}
				for k := int64(1); k < 200; k += 2 {
					rids := tree.GetValue(Int64Key(k))
					// 插入前为空，插入后恰好一条
					if len(rids) > 1 || (len(rids) == 1 && rids[0] != ridFor(k)) {
						t.Errorf("reader %d: odd key %d -> %v", r, k, rids)
						return
					}
				}
			}
		}(r)
	}
	wg.Wait()

	checkTreeInvariants(t, tree)
	for k := int64(0); k < 200; k++ {
		rids := tree.GetValue(Int64Key(k))
		require.Len(t, rids, 1, "key %d after writer done", k)
	}
}

func TestBPlusTreeConcurrentWriters(t *testing.T) {
	tree, _ := newTestTree(t, 64, 4, 4)

	const writers = 4
	const perW = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			base := int64(w * perW)
			for i := int64(0); i < perW; i++ {
				if !tree.Insert(Int64Key(base+i), ridFor(base+i), nil) {
					t.Errorf("writer %d: duplicate reported for fresh key %d", w, base+i)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	checkTreeInvariants(t, tree)
	keys := collectKeys(t, tree)
	require.Len(t, keys, writers*perW)
	for i := 1; i < len(keys); i++ {
		require.Less(t, keys[i-1], keys[i])
	}

	// 并发删除一半
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			base := int64(w * perW)
			for i := int64(0); i < perW; i += 2 {
				tree.Remove(Int64Key(base+i), nil)
			}
		}(w)
	}
	wg.Wait()

	checkTreeInvariants(t, tree)
	keys = collectKeys(t, tree)
	require.Len(t, keys, writers*perW/2)
}

func TestBPlusTreeKeyWidthContract(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)
	assert.Panics(t, func() { tree.Insert([]byte{1, 2}, ridFor(1), nil) })
	assert.Panics(t, func() { tree.GetValue([]byte{1}) })
}

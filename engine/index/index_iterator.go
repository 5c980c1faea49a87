package index

import (
	"github.com/zhukovaskychina/xstorage/engine/basic"
	"github.com/zhukovaskychina/xstorage/engine/buffer_pool"
)

// IndexIterator 叶子层正向迭代器。当前叶子保持钉住，读条目和推进时
// 短暂加共享锁。跨叶子迭代不是快照：迭代器离开的叶子可能被并发写者
// 修改。用完调用Close释放钉住
type IndexIterator struct {
	tree  *BPlusTree
	page  *buffer_pool.Page // 当前叶子，nil表示末尾
	index int
}

// Begin returns an iterator at the leftmost entry.
func (t *BPlusTree) Begin() *IndexIterator {
	page := t.findLeafRead(nil, true)
	if page == nil {
		return t.End()
	}
	it := &IndexIterator{tree: t, page: page, index: 0}
	if t.leafView(page).GetSize() == 0 {
		page.RUnlatch()
		t.bpm.UnpinPage(page.ID(), false)
		it.page = nil
		return it
	}
	page.RUnlatch()
	return it
}

// BeginAt returns an iterator at the first entry >= key.
func (t *BPlusTree) BeginAt(key []byte) *IndexIterator {
	t.checkKey(key)

	page := t.findLeafRead(key, false)
	if page == nil {
		return t.End()
	}
	leaf := t.leafView(page)
	idx := leaf.Lowerbound(key, t.comparator)
	it := &IndexIterator{tree: t, page: page, index: idx}

	if idx >= leaf.GetSize() {
		// 定位键大于本叶子所有键，滑到下一个叶子
		next := leaf.GetNextPageID()
		page.RUnlatch()
		t.bpm.UnpinPage(page.ID(), false)
		if next == basic.InvalidPageID {
			it.page = nil
			it.index = 0
			return it
		}
		it.page = t.fetchPage(next)
		it.index = 0
		return it
	}
	page.RUnlatch()
	return it
}

// End returns the past-the-end iterator.
func (t *BPlusTree) End() *IndexIterator {
	return &IndexIterator{tree: t}
}

// IsEnd reports whether the iterator is past the last entry.
func (it *IndexIterator) IsEnd() bool {
	return it.page == nil
}

// Key returns a copy of the current key.
func (it *IndexIterator) Key() []byte {
	it.page.RLatch()
	key := copyKey(it.tree.leafView(it.page).KeyAt(it.index))
	it.page.RUnlatch()
	return key
}

// Value returns the current record id.
func (it *IndexIterator) Value() basic.RID {
	it.page.RLatch()
	rid := it.tree.leafView(it.page).ValueAt(it.index)
	it.page.RUnlatch()
	return rid
}

// Next advances within the leaf, following the sibling chain at the
// leaf's end. Reaching the end of the chain releases the pin.
func (it *IndexIterator) Next() {
	it.page.RLatch()
	leaf := it.tree.leafView(it.page)
	it.index++
	if it.index < leaf.GetSize() {
		it.page.RUnlatch()
		return
	}

	next := leaf.GetNextPageID()
	it.page.RUnlatch()
	it.tree.bpm.UnpinPage(it.page.ID(), false)

	if next == basic.InvalidPageID {
		it.page = nil
		it.index = 0
		return
	}
	it.page = it.tree.fetchPage(next)
	it.index = 0
}

// Close releases the pin on the current leaf.
func (it *IndexIterator) Close() {
	if it.page != nil {
		it.tree.bpm.UnpinPage(it.page.ID(), false)
		it.page = nil
	}
}

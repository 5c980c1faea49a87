package index

import (
	"fmt"

	"github.com/zhukovaskychina/xstorage/engine/basic"
	"github.com/zhukovaskychina/xstorage/engine/buffer_pool"
	"github.com/zhukovaskychina/xstorage/engine/pages"
	"github.com/zhukovaskychina/xstorage/engine/txn"
)

// Remove deletes the entry under the key, if present. Underflowing
// nodes borrow from a sibling or merge; vacated pages are deallocated
// after every latch has been dropped.
func (t *BPlusTree) Remove(key []byte, trans *txn.Transaction) {
	t.checkKey(key)
	if trans == nil {
		trans = txn.NewTransaction()
	}

	// 乐观趟：叶子删除不触发下溢时就地完成
	if page := t.findLeafOptimistic(key); page != nil {
		leaf := t.leafView(page)
		if !leaf.Contains(key, t.comparator) {
			page.WUnlatch()
			t.bpm.UnpinPage(page.ID(), false)
			return
		}
		if t.nodeSafe(&leaf.BPlusTreePage, opRemove) {
			leaf.Remove(key, t.comparator)
			page.WUnlatch()
			t.bpm.UnpinPage(page.ID(), true)
			return
		}
		page.WUnlatch()
		t.bpm.UnpinPage(page.ID(), false)
	}

	t.removePessimistic(key, trans)
	t.dropDeletedPages(trans)
}

func (t *BPlusTree) removePessimistic(key []byte, trans *txn.Transaction) {
	t.rootLatch.Lock()
	trans.AddIntoPageSet(nil)

	if t.rootPageID == basic.InvalidPageID {
		t.releaseWLatches(trans, false)
		return
	}

	page := t.descendPessimistic(key, opRemove, trans)
	leaf := t.leafView(page)

	if !leaf.Remove(key, t.comparator) {
		t.releaseWLatches(trans, false)
		return
	}

	if leaf.IsRootPage() {
		if leaf.GetSize() == 0 {
			// 最后一条记录删除，树置空
			trans.AddIntoDeletedPageSet(leaf.GetPageID())
			t.rootPageID = basic.InvalidPageID
			t.updateRootPageID()
		}
		t.releaseWLatches(trans, true)
		return
	}

	if leaf.GetSize() < leaf.GetMinSize() {
		t.handleUnderflow(&leaf.BPlusTreePage, page, trans)
	}
	t.releaseWLatches(trans, true)
}

// handleUnderflow 处理下溢节点：根做收缩，非根先借位后合并，
// 合并后父节点可能继续下溢则递归。节点及其祖先的排他闩锁由悲观趟
// 持有
func (t *BPlusTree) handleUnderflow(node *pages.BPlusTreePage, nodePage *buffer_pool.Page, trans *txn.Transaction) {
	if node.IsRootPage() {
		if !node.IsLeafPage() && node.GetSize() == 1 {
			// 根只剩单个子节点，提升为新根
			inner := t.internalView(nodePage)
			childID := inner.ValueAt(0)

			childPage := t.fetchPage(childID)
			pages.NewBPlusTreePage(childPage).SetParentPageID(basic.InvalidPageID)
			t.bpm.UnpinPage(childID, true)

			trans.AddIntoDeletedPageSet(node.GetPageID())
			t.rootPageID = childID
			t.updateRootPageID()
		}
		return
	}

	parentPage := t.fetchPage(node.GetParentPageID())
	parent := t.internalView(parentPage)
	idx := parent.ValueIndex(node.GetPageID())
	if idx < 0 {
		panic(fmt.Sprintf("page %d not found in parent %d", node.GetPageID(), parent.GetPageID()))
	}

	var leftPage, rightPage *buffer_pool.Page
	if idx > 0 {
		leftPage = t.fetchPage(parent.ValueAt(idx - 1))
		leftPage.WLatch()
	}
	if idx < parent.GetSize()-1 {
		rightPage = t.fetchPage(parent.ValueAt(idx + 1))
		rightPage.WLatch()
	}
	if leftPage == nil && rightPage == nil {
		panic(fmt.Sprintf("non-root page %d has no sibling", node.GetPageID()))
	}

	releaseSibling := func(p *buffer_pool.Page) {
		if p != nil {
			p.WUnlatch()
			t.bpm.UnpinPage(p.ID(), true)
		}
	}

	if leftPage != nil && pages.NewBPlusTreePage(leftPage).GetSize() > pages.NewBPlusTreePage(leftPage).GetMinSize() {
		t.borrowFromLeft(node, nodePage, leftPage, parent, idx)
		releaseSibling(leftPage)
		releaseSibling(rightPage)
		t.bpm.UnpinPage(parentPage.ID(), true)
		return
	}
	if rightPage != nil && pages.NewBPlusTreePage(rightPage).GetSize() > pages.NewBPlusTreePage(rightPage).GetMinSize() {
		t.borrowFromRight(node, nodePage, rightPage, parent, idx)
		releaseSibling(leftPage)
		releaseSibling(rightPage)
		t.bpm.UnpinPage(parentPage.ID(), true)
		return
	}

	// 借位无门，合并。优先并入左兄弟，否则右兄弟并入本节点
	if leftPage != nil {
		t.mergeRightIntoLeft(leftPage, nodePage, parent, idx)
		trans.AddIntoDeletedPageSet(nodePage.ID())
	} else {
		t.mergeRightIntoLeft(nodePage, rightPage, parent, idx+1)
		trans.AddIntoDeletedPageSet(rightPage.ID())
	}
	releaseSibling(leftPage)
	releaseSibling(rightPage)

	if parent.IsRootPage() {
		if parent.GetSize() == 1 {
			t.handleUnderflow(&parent.BPlusTreePage, parentPage, trans)
		}
	} else if parent.GetSize() < parent.GetMinSize() {
		t.handleUnderflow(&parent.BPlusTreePage, parentPage, trans)
	}
	t.bpm.UnpinPage(parentPage.ID(), true)
}

// borrowFromLeft 从左兄弟转借最后一个条目，父节点在idx处的分隔键
// 随之更新
func (t *BPlusTree) borrowFromLeft(node *pages.BPlusTreePage, nodePage, leftPage *buffer_pool.Page,
	parent *pages.BPlusTreeInternalPage, idx int) {
	if node.IsLeafPage() {
		leaf := t.leafView(nodePage)
		left := t.leafView(leftPage)
		last := left.GetSize() - 1
		leaf.Insert(copyKey(left.KeyAt(last)), left.ValueAt(last), t.comparator)
		left.RemoveAt(last)
		parent.SetKeyAt(idx, leaf.KeyAt(0))
		return
	}

	inner := t.internalView(nodePage)
	left := t.internalView(leftPage)
	last := left.GetSize() - 1

	movedChild := left.ValueAt(last)
	movedKey := copyKey(left.KeyAt(last))
	inner.InsertFront(copyKey(parent.KeyAt(idx)), movedChild)
	parent.SetKeyAt(idx, movedKey)
	left.RemoveAt(last)

	childPage := t.fetchPage(movedChild)
	pages.NewBPlusTreePage(childPage).SetParentPageID(inner.GetPageID())
	t.bpm.UnpinPage(movedChild, true)
}

// borrowFromRight 从右兄弟转借第一个条目，父节点在idx+1处的分隔键
// 随之更新
func (t *BPlusTree) borrowFromRight(node *pages.BPlusTreePage, nodePage, rightPage *buffer_pool.Page,
	parent *pages.BPlusTreeInternalPage, idx int) {
	sepIdx := idx + 1

	if node.IsLeafPage() {
		leaf := t.leafView(nodePage)
		right := t.leafView(rightPage)
		leaf.Insert(copyKey(right.KeyAt(0)), right.ValueAt(0), t.comparator)
		right.RemoveAt(0)
		parent.SetKeyAt(sepIdx, right.KeyAt(0))
		return
	}

	inner := t.internalView(nodePage)
	right := t.internalView(rightPage)

	movedChild := right.ValueAt(0)
	inner.AppendEntry(copyKey(parent.KeyAt(sepIdx)), movedChild)
	parent.SetKeyAt(sepIdx, right.KeyAt(1))
	right.RemoveAt(0)

	childPage := t.fetchPage(movedChild)
	pages.NewBPlusTreePage(childPage).SetParentPageID(inner.GetPageID())
	t.bpm.UnpinPage(movedChild, true)
}

// mergeRightIntoLeft 把右节点并入左节点并从父节点摘除对应条目。
// sepIdx是右节点在父节点里的下标
func (t *BPlusTree) mergeRightIntoLeft(leftPage, rightPage *buffer_pool.Page,
	parent *pages.BPlusTreeInternalPage, sepIdx int) {
	if pages.NewBPlusTreePage(leftPage).IsLeafPage() {
		left := t.leafView(leftPage)
		right := t.leafView(rightPage)
		right.MoveAllTo(left)
	} else {
		left := t.internalView(leftPage)
		right := t.internalView(rightPage)
		oldLeftSize := left.GetSize()
		right.MoveAllTo(left, copyKey(parent.KeyAt(sepIdx)))

		for i := oldLeftSize; i < left.GetSize(); i++ {
			childPage := t.fetchPage(left.ValueAt(i))
			pages.NewBPlusTreePage(childPage).SetParentPageID(left.GetPageID())
			t.bpm.UnpinPage(childPage.ID(), true)
		}
	}
	parent.RemoveAt(sepIdx)
}

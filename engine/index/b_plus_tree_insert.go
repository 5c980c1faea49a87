package index

import (
	"github.com/zhukovaskychina/xstorage/engine/basic"
	"github.com/zhukovaskychina/xstorage/engine/pages"
	"github.com/zhukovaskychina/xstorage/engine/txn"
)

// Insert puts the pair into the tree. Returns false on a duplicate key.
func (t *BPlusTree) Insert(key []byte, rid basic.RID, trans *txn.Transaction) bool {
	t.checkKey(key)
	if trans == nil {
		trans = txn.NewTransaction()
	}

	// 乐观趟：叶子能就地吸收时避免整条路径的排他锁
	if page := t.findLeafOptimistic(key); page != nil {
		leaf := t.leafView(page)
		if leaf.Contains(key, t.comparator) {
			page.WUnlatch()
			t.bpm.UnpinPage(page.ID(), false)
			return false
		}
		if t.nodeSafe(&leaf.BPlusTreePage, opInsert) {
			leaf.Insert(key, rid, t.comparator)
			page.WUnlatch()
			t.bpm.UnpinPage(page.ID(), true)
			return true
		}
		// 叶子不安全，释放后悲观重来
		page.WUnlatch()
		t.bpm.UnpinPage(page.ID(), false)
	}

	return t.insertPessimistic(key, rid, trans)
}

func (t *BPlusTree) insertPessimistic(key []byte, rid basic.RID, trans *txn.Transaction) bool {
	t.rootLatch.Lock()
	trans.AddIntoPageSet(nil)

	if t.rootPageID == basic.InvalidPageID {
		t.startNewTree(key, rid)
		t.releaseWLatches(trans, true)
		return true
	}

	page := t.descendPessimistic(key, opInsert, trans)
	leaf := t.leafView(page)

	if leaf.Contains(key, t.comparator) {
		t.releaseWLatches(trans, false)
		return false
	}

	leaf.Insert(key, rid, t.comparator)
	if leaf.GetSize() < t.leafMaxSize {
		t.releaseWLatches(trans, true)
		return true
	}

	t.splitLeaf(leaf)
	t.releaseWLatches(trans, true)
	return true
}

// startNewTree 空树生根：分配叶子作为根并落下第一条记录。
// 调用方持有root_latch排他锁
func (t *BPlusTree) startNewTree(key []byte, rid basic.RID) {
	page := t.newPage()
	leaf := t.leafView(page)
	leaf.Init(page.ID(), basic.InvalidPageID, t.leafMaxSize)
	leaf.Insert(key, rid, t.comparator)

	t.rootPageID = page.ID()
	t.updateRootPageID()
	t.bpm.UnpinPage(page.ID(), true)
}

// splitLeaf 叶子分裂：上半区迁入新叶子并接入兄弟链，新叶子首键
// 作为分隔键上推
func (t *BPlusTree) splitLeaf(leaf *pages.BPlusTreeLeafPage) {
	newPage := t.newPage()
	newLeaf := t.leafView(newPage)
	newLeaf.Init(newPage.ID(), leaf.GetParentPageID(), t.leafMaxSize)
	leaf.MoveHalfTo(newLeaf)

	separator := copyKey(newLeaf.KeyAt(0))
	t.insertIntoParent(&leaf.BPlusTreePage, separator, &newLeaf.BPlusTreePage)
	t.bpm.UnpinPage(newPage.ID(), true)
}

// insertIntoParent 把 (separator, newNode) 挂到oldNode的父节点，
// 内部节点溢出则继续分裂上推。路径上的祖先闩锁由悲观趟持有
func (t *BPlusTree) insertIntoParent(oldNode *pages.BPlusTreePage, separator []byte, newNode *pages.BPlusTreePage) {
	if oldNode.IsRootPage() {
		rootPage := t.newPage()
		newRoot := t.internalView(rootPage)
		newRoot.Init(rootPage.ID(), basic.InvalidPageID, t.internalMaxSize)
		newRoot.PopulateNewRoot(oldNode.GetPageID(), separator, newNode.GetPageID())

		oldNode.SetParentPageID(rootPage.ID())
		newNode.SetParentPageID(rootPage.ID())

		t.rootPageID = rootPage.ID()
		t.updateRootPageID()
		t.bpm.UnpinPage(rootPage.ID(), true)
		return
	}

	parentPage := t.fetchPage(oldNode.GetParentPageID())
	parent := t.internalView(parentPage)
	parent.InsertNodeAfter(oldNode.GetPageID(), separator, newNode.GetPageID())
	newNode.SetParentPageID(parent.GetPageID())

	if parent.GetSize() <= t.internalMaxSize {
		t.bpm.UnpinPage(parentPage.ID(), true)
		return
	}

	t.splitInternal(parent)
	t.bpm.UnpinPage(parentPage.ID(), true)
}

// splitInternal 内部节点分裂：上半区迁入新节点，迁移的子节点改写
// 父指针，新节点槽位0的键作为分隔键上推
func (t *BPlusTree) splitInternal(node *pages.BPlusTreeInternalPage) {
	newPage := t.newPage()
	sibling := t.internalView(newPage)
	sibling.Init(newPage.ID(), node.GetParentPageID(), t.internalMaxSize)
	node.MoveHalfTo(sibling)

	for i := 0; i < sibling.GetSize(); i++ {
		childPage := t.fetchPage(sibling.ValueAt(i))
		pages.NewBPlusTreePage(childPage).SetParentPageID(newPage.ID())
		t.bpm.UnpinPage(childPage.ID(), true)
	}

	separator := copyKey(sibling.KeyAt(0))
	t.insertIntoParent(&node.BPlusTreePage, separator, &sibling.BPlusTreePage)
	t.bpm.UnpinPage(newPage.ID(), true)
}

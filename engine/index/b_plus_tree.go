package index

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zhukovaskychina/xstorage/engine/basic"
	"github.com/zhukovaskychina/xstorage/engine/buffer_pool"
	"github.com/zhukovaskychina/xstorage/engine/pages"
	"github.com/zhukovaskychina/xstorage/engine/txn"
)

// BPlusTree 落盘B+树索引。节点页由缓冲池托管，并发控制采用两趟
// 闩锁蟹行：乐观趟沿途共享锁、叶子排他锁；叶子不安全时整体重来，
// 悲观趟全程排他锁并在遇到安全节点时释放祖先。树级root_latch保护
// root_page_id并充当入口锁
type BPlusTree struct {
	indexName string
	bpm       *buffer_pool.BufferPoolManager

	comparator      pages.KeyComparator
	keySize         int
	leafMaxSize     int
	internalMaxSize int

	rootLatch  sync.RWMutex
	rootPageID basic.PageID
}

// NewBPlusTree opens the named index over the buffer pool. A root page
// id previously persisted in the header page is picked up. Passing 0
// for a max size derives it from the page capacity.
func NewBPlusTree(indexName string, bpm *buffer_pool.BufferPoolManager, comparator pages.KeyComparator,
	keySize int, leafMaxSize int, internalMaxSize int) *BPlusTree {
	if leafMaxSize <= 0 {
		leafMaxSize = pages.LeafCapacity(keySize)
	}
	if internalMaxSize <= 0 {
		internalMaxSize = pages.InternalCapacity(keySize)
	}

	t := &BPlusTree{
		indexName:       indexName,
		bpm:             bpm,
		comparator:      comparator,
		keySize:         keySize,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootPageID:      basic.InvalidPageID,
	}

	headerPage := t.fetchPage(basic.HeaderPageID)
	headerPage.RLatch()
	if rootID, ok := pages.NewHeaderPage(headerPage).GetRootID(indexName); ok {
		t.rootPageID = rootID
	}
	headerPage.RUnlatch()
	bpm.UnpinPage(basic.HeaderPageID, false)

	return t
}

// IsEmpty reports whether the tree holds no entries.
func (t *BPlusTree) IsEmpty() bool {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootPageID == basic.InvalidPageID
}

// GetRootPageID returns the current root page id.
func (t *BPlusTree) GetRootPageID() basic.PageID {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootPageID
}

// fetchPage 经缓冲池取页。池内全部帧被钉住属资源配置错误，直接中止
func (t *BPlusTree) fetchPage(pageID basic.PageID) *buffer_pool.Page {
	page := t.bpm.FetchPage(pageID)
	if page == nil {
		panic(fmt.Sprintf("buffer pool exhausted fetching page %d", pageID))
	}
	return page
}

// newPage 经缓冲池分配新页
func (t *BPlusTree) newPage() *buffer_pool.Page {
	page := t.bpm.NewPage()
	if page == nil {
		panic("buffer pool exhausted allocating page")
	}
	return page
}

func (t *BPlusTree) leafView(page *buffer_pool.Page) *pages.BPlusTreeLeafPage {
	return pages.NewLeafPage(page, t.keySize)
}

func (t *BPlusTree) internalView(page *buffer_pool.Page) *pages.BPlusTreeInternalPage {
	return pages.NewInternalPage(page, t.keySize)
}

func (t *BPlusTree) checkKey(key []byte) {
	if len(key) != t.keySize {
		panic(fmt.Sprintf("key width %d does not match index key width %d", len(key), t.keySize))
	}
}

// findLeafRead 读路径蟹行下降：子节点共享锁到手即释放父节点。
// 返回已加共享锁并钉住的叶子；树为空返回nil
func (t *BPlusTree) findLeafRead(key []byte, leftmost bool) *buffer_pool.Page {
	t.rootLatch.RLock()
	if t.rootPageID == basic.InvalidPageID {
		t.rootLatch.RUnlock()
		return nil
	}

	page := t.fetchPage(t.rootPageID)
	page.RLatch()
	t.rootLatch.RUnlock()

	for {
		node := pages.NewBPlusTreePage(page)
		if node.IsLeafPage() {
			return page
		}
		inner := t.internalView(page)

		var childID basic.PageID
		if leftmost {
			childID = inner.ValueAt(0)
		} else {
			childID = inner.Lookup(key, t.comparator)
		}

		child := t.fetchPage(childID)
		child.RLatch()
		page.RUnlatch()
		t.bpm.UnpinPage(page.ID(), false)
		page = child
	}
}

// findLeafOptimistic 乐观写趟下降：内部节点共享锁，叶子升级为排他锁。
// 升级期间保持父节点（或root_latch）的共享锁，防止该叶子被分裂或合并
// 换位。返回已加排他锁并钉住的叶子；树为空返回nil
func (t *BPlusTree) findLeafOptimistic(key []byte) *buffer_pool.Page {
	t.rootLatch.RLock()
	if t.rootPageID == basic.InvalidPageID {
		t.rootLatch.RUnlock()
		return nil
	}

	page := t.fetchPage(t.rootPageID)
	page.RLatch()

	if pages.NewBPlusTreePage(page).IsLeafPage() {
		// 根即叶子：root_latch共享锁撑住升级窗口
		page.RUnlatch()
		page.WLatch()
		t.rootLatch.RUnlock()
		return page
	}
	t.rootLatch.RUnlock()

	for {
		inner := t.internalView(page)
		childID := inner.Lookup(key, t.comparator)
		child := t.fetchPage(childID)

		child.RLatch()
		if !pages.NewBPlusTreePage(child).IsLeafPage() {
			page.RUnlatch()
			t.bpm.UnpinPage(page.ID(), false)
			page = child
			continue
		}

		// 父节点共享锁在手，叶子重加排他锁
		child.RUnlatch()
		child.WLatch()
		page.RUnlatch()
		t.bpm.UnpinPage(page.ID(), false)
		return child
	}
}

// GetValue returns every record id stored under an exact match of the
// key. Duplicates are not produced by Insert but the scan tolerates
// them.
func (t *BPlusTree) GetValue(key []byte) []basic.RID {
	t.checkKey(key)

	page := t.findLeafRead(key, false)
	if page == nil {
		return nil
	}
	leaf := t.leafView(page)

	var result []basic.RID
	for i := leaf.Lowerbound(key, t.comparator); i < leaf.GetSize(); i++ {
		if t.comparator(leaf.KeyAt(i), key) != 0 {
			break
		}
		result = append(result, leaf.ValueAt(i))
	}

	page.RUnlatch()
	t.bpm.UnpinPage(page.ID(), false)
	return result
}

// 写操作种类，决定节点安全性判定
type opKind int

const (
	opInsert opKind = iota
	opRemove
)

// nodeSafe 判定节点吸收本次修改后是否不会向父节点传播结构变化
func (t *BPlusTree) nodeSafe(node *pages.BPlusTreePage, op opKind) bool {
	if op == opInsert {
		if node.IsLeafPage() {
			return node.GetSize() < node.GetMaxSize()-1
		}
		return node.GetSize() < node.GetMaxSize()
	}
	if node.IsRootPage() {
		if node.IsLeafPage() {
			return node.GetSize() > 1
		}
		return node.GetSize() > 2
	}
	return node.GetSize() > node.GetMinSize()
}

// releaseAllButLast 悲观下降遇到安全节点时，按下降顺序释放页集里
// 它之前的全部闩锁并解除钉住。nil哨兵代表root_latch
func (t *BPlusTree) releaseAllButLast(trans *txn.Transaction) {
	set := trans.PageSet()
	if len(set) <= 1 {
		return
	}
	for _, p := range set[:len(set)-1] {
		if p == nil {
			t.rootLatch.Unlock()
			continue
		}
		p.WUnlatch()
		t.bpm.UnpinPage(p.ID(), false)
	}
	trans.SetPageSet(set[len(set)-1:])
}

// releaseWLatches 按下降顺序释放整个页集
func (t *BPlusTree) releaseWLatches(trans *txn.Transaction, dirty bool) {
	for _, p := range trans.PageSet() {
		if p == nil {
			t.rootLatch.Unlock()
			continue
		}
		p.WUnlatch()
		t.bpm.UnpinPage(p.ID(), dirty)
	}
	trans.ClearPageSet()
}

// dropDeletedPages 闩锁全部释放后，真正经缓冲池回收页面
func (t *BPlusTree) dropDeletedPages(trans *txn.Transaction) {
	for _, pid := range trans.DeletedPageSet() {
		t.bpm.DeletePage(pid)
	}
	trans.ClearDeletedPageSet()
}

// descendPessimistic 悲观趟下降到叶子：全程排他锁，新到手的节点安全
// 则释放之前的所有闩锁。调用前root_latch已排他持有且哨兵已入页集
func (t *BPlusTree) descendPessimistic(key []byte, op opKind, trans *txn.Transaction) *buffer_pool.Page {
	page := t.fetchPage(t.rootPageID)
	page.WLatch()
	trans.AddIntoPageSet(page)
	if t.nodeSafe(pages.NewBPlusTreePage(page), op) {
		t.releaseAllButLast(trans)
	}

	for {
		node := pages.NewBPlusTreePage(page)
		if node.IsLeafPage() {
			return page
		}
		inner := t.internalView(page)
		child := t.fetchPage(inner.Lookup(key, t.comparator))
		child.WLatch()
		trans.AddIntoPageSet(child)
		if t.nodeSafe(pages.NewBPlusTreePage(child), op) {
			t.releaseAllButLast(trans)
		}
		page = child
	}
}

// updateRootPageID 把root_page_id持久化到头页面，首次写入与更新
// 自然区分。调用方持有root_latch排他锁
func (t *BPlusTree) updateRootPageID() {
	headerPage := t.fetchPage(basic.HeaderPageID)
	headerPage.WLatch()
	header := pages.NewHeaderPage(headerPage)
	if !header.UpdateRecord(t.indexName, t.rootPageID) {
		header.InsertRecord(t.indexName, t.rootPageID)
	}
	headerPage.WUnlatch()
	t.bpm.UnpinPage(basic.HeaderPageID, true)
}

func copyKey(key []byte) []byte {
	out := make([]byte, len(key))
	copy(out, key)
	return out
}

// DebugString renders the tree for test failure output. Not
// concurrency-safe, the caller quiesces writers first.
func (t *BPlusTree) DebugString() string {
	t.rootLatch.RLock()
	rootID := t.rootPageID
	t.rootLatch.RUnlock()

	if rootID == basic.InvalidPageID {
		return "(empty)"
	}
	var sb strings.Builder
	t.debugNode(rootID, 0, &sb)
	return sb.String()
}

func (t *BPlusTree) debugNode(pageID basic.PageID, depth int, sb *strings.Builder) {
	page := t.fetchPage(pageID)
	node := pages.NewBPlusTreePage(page)
	indent := strings.Repeat("  ", depth)

	if node.IsLeafPage() {
		leaf := t.leafView(page)
		fmt.Fprintf(sb, "%sleaf %d (parent %d, next %d):", indent, pageID, node.GetParentPageID(), leaf.GetNextPageID())
		for i := 0; i < leaf.GetSize(); i++ {
			fmt.Fprintf(sb, " %x", leaf.KeyAt(i))
		}
		sb.WriteString("\n")
	} else {
		inner := t.internalView(page)
		fmt.Fprintf(sb, "%sinternal %d (parent %d):", indent, pageID, node.GetParentPageID())
		for i := 0; i < inner.GetSize(); i++ {
			if i == 0 {
				fmt.Fprintf(sb, " (-inf)->%d", inner.ValueAt(i))
			} else {
				fmt.Fprintf(sb, " %x->%d", inner.KeyAt(i), inner.ValueAt(i))
			}
		}
		sb.WriteString("\n")
		for i := 0; i < inner.GetSize(); i++ {
			t.debugNode(inner.ValueAt(i), depth+1, sb)
		}
	}
	t.bpm.UnpinPage(pageID, false)
}

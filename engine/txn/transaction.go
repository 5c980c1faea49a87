package txn

import (
	"github.com/zhukovaskychina/xstorage/engine/basic"
	"github.com/zhukovaskychina/xstorage/engine/buffer_pool"
)

// Transaction 事务的页面登记簿。page set按加锁顺序记录悲观下降中
// 持有的节点页（nil条目代表树的根锁哨兵），deleted page set记录
// 待回收的页面，在全部闩锁释放后交给缓冲池删除
type Transaction struct {
	pageSet        []*buffer_pool.Page
	deletedPageSet []basic.PageID
}

// NewTransaction creates an empty bookkeeping transaction.
func NewTransaction() *Transaction {
	return &Transaction{}
}

// AddIntoPageSet appends a latched page. A nil page stands for the tree
// root latch.
func (t *Transaction) AddIntoPageSet(page *buffer_pool.Page) {
	t.pageSet = append(t.pageSet, page)
}

// PageSet returns the latched pages in descent order.
func (t *Transaction) PageSet() []*buffer_pool.Page {
	return t.pageSet
}

// SetPageSet replaces the latched-page list. Used when releasing a safe
// prefix.
func (t *Transaction) SetPageSet(pages []*buffer_pool.Page) {
	t.pageSet = pages
}

// ClearPageSet drops every recorded page.
func (t *Transaction) ClearPageSet() {
	t.pageSet = t.pageSet[:0]
}

// AddIntoDeletedPageSet records a page to deallocate after latch release.
func (t *Transaction) AddIntoDeletedPageSet(pageID basic.PageID) {
	t.deletedPageSet = append(t.deletedPageSet, pageID)
}

// DeletedPageSet returns the pages marked for deallocation.
func (t *Transaction) DeletedPageSet() []basic.PageID {
	return t.deletedPageSet
}

// ClearDeletedPageSet drops every recorded deletion.
func (t *Transaction) ClearDeletedPageSet() {
	t.deletedPageSet = t.deletedPageSet[:0]
}

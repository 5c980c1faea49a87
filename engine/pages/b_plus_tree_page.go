package pages

import (
	"github.com/zhukovaskychina/xstorage/engine/basic"
	"github.com/zhukovaskychina/xstorage/engine/buffer_pool"
	"github.com/zhukovaskychina/xstorage/util"
)

// 页面类型
const (
	PageTypeInvalid  uint32 = 0
	PageTypeLeaf     uint32 = 1
	PageTypeInternal uint32 = 2
)

// 节点页公共头部布局。叶子页在其后追加next_page_id
//
//	offset  size  field
//	0       4     page_type
//	4       8     lsn
//	12      4     size
//	16      4     max_size
//	20      4     page_id
//	24      4     parent_page_id
const (
	offPageType     = 0
	offLSN          = 4
	offSize         = 12
	offMaxSize      = 16
	offPageID       = 20
	offParentPageID = 24

	// InternalHeaderSize 内部节点头部长度
	InternalHeaderSize = 28

	offNextPageID = 28

	// LeafHeaderSize 叶子节点头部长度
	LeafHeaderSize = 32
)

// BPlusTreePage B+树节点页的公共视图，直接读写帧内字节
type BPlusTreePage struct {
	page *buffer_pool.Page
}

// NewBPlusTreePage wraps a frame as a tree node view.
func NewBPlusTreePage(page *buffer_pool.Page) *BPlusTreePage {
	return &BPlusTreePage{page: page}
}

// Page returns the underlying frame.
func (p *BPlusTreePage) Page() *buffer_pool.Page {
	return p.page
}

func (p *BPlusTreePage) data() []byte {
	return p.page.Data()
}

// PageType returns the node type field.
func (p *BPlusTreePage) PageType() uint32 {
	return util.ReadUInt4(p.data(), offPageType)
}

// SetPageType sets the node type field.
func (p *BPlusTreePage) SetPageType(pageType uint32) {
	util.WriteUInt4(p.data(), offPageType, pageType)
}

// IsLeafPage reports whether the node is a leaf.
func (p *BPlusTreePage) IsLeafPage() bool {
	return p.PageType() == PageTypeLeaf
}

// GetLSN returns the page LSN. The log manager is not exercised at this
// layer, the field is carried through page images as written.
func (p *BPlusTreePage) GetLSN() basic.LSN {
	return basic.LSN(util.ReadULong8(p.data(), offLSN))
}

// SetLSN sets the page LSN.
func (p *BPlusTreePage) SetLSN(lsn basic.LSN) {
	util.WriteULong8(p.data(), offLSN, uint64(lsn))
}

// GetSize returns the number of entries in the node.
func (p *BPlusTreePage) GetSize() int {
	return int(util.ReadInt4(p.data(), offSize))
}

// SetSize sets the number of entries in the node.
func (p *BPlusTreePage) SetSize(size int) {
	util.WriteInt4(p.data(), offSize, int32(size))
}

// IncreaseSize adjusts the entry count by delta.
func (p *BPlusTreePage) IncreaseSize(delta int) {
	p.SetSize(p.GetSize() + delta)
}

// GetMaxSize returns the node capacity.
func (p *BPlusTreePage) GetMaxSize() int {
	return int(util.ReadInt4(p.data(), offMaxSize))
}

// SetMaxSize sets the node capacity.
func (p *BPlusTreePage) SetMaxSize(maxSize int) {
	util.WriteInt4(p.data(), offMaxSize, int32(maxSize))
}

// GetMinSize returns the occupancy floor for a non-root node.
// 叶子为 ⌈(max-1)/2⌉，内部节点为 ⌈max/2⌉
func (p *BPlusTreePage) GetMinSize() int {
	if p.IsLeafPage() {
		return p.GetMaxSize() / 2
	}
	return (p.GetMaxSize() + 1) / 2
}

// GetPageID returns the node's own page id as stored in the header.
func (p *BPlusTreePage) GetPageID() basic.PageID {
	return basic.PageID(util.ReadInt4(p.data(), offPageID))
}

// SetPageID stores the node's own page id in the header.
func (p *BPlusTreePage) SetPageID(pageID basic.PageID) {
	util.WriteInt4(p.data(), offPageID, int32(pageID))
}

// GetParentPageID returns the parent back-reference.
func (p *BPlusTreePage) GetParentPageID() basic.PageID {
	return basic.PageID(util.ReadInt4(p.data(), offParentPageID))
}

// SetParentPageID sets the parent back-reference.
func (p *BPlusTreePage) SetParentPageID(pageID basic.PageID) {
	util.WriteInt4(p.data(), offParentPageID, int32(pageID))
}

// IsRootPage reports whether the node has no parent.
func (p *BPlusTreePage) IsRootPage() bool {
	return p.GetParentPageID() == basic.InvalidPageID
}

package pages

import (
	"github.com/zhukovaskychina/xstorage/engine/basic"
	"github.com/zhukovaskychina/xstorage/engine/buffer_pool"
	"github.com/zhukovaskychina/xstorage/util"
)

// KeyComparator 键比较器。返回负数、零、正数分别表示 a<b、a==b、a>b
type KeyComparator func(a, b []byte) int

// BPlusTreeLeafPage 叶子节点视图。头部后面是按键升序排列的定宽
// (key, RID) 数组，next_page_id 串起叶子层兄弟链
type BPlusTreeLeafPage struct {
	BPlusTreePage
	keySize int
}

// NewLeafPage wraps a frame as a leaf node view.
func NewLeafPage(page *buffer_pool.Page, keySize int) *BPlusTreeLeafPage {
	return &BPlusTreeLeafPage{BPlusTreePage: BPlusTreePage{page: page}, keySize: keySize}
}

// LeafCapacity returns the max_size for a leaf given the key width.
func LeafCapacity(keySize int) int {
	return (basic.PageSize - LeafHeaderSize) / (keySize + basic.RIDSize)
}

// Init formats the frame as an empty leaf.
func (p *BPlusTreeLeafPage) Init(pageID, parentID basic.PageID, maxSize int) {
	p.SetPageType(PageTypeLeaf)
	p.SetLSN(0)
	p.SetSize(0)
	p.SetMaxSize(maxSize)
	p.SetPageID(pageID)
	p.SetParentPageID(parentID)
	p.SetNextPageID(basic.InvalidPageID)
}

// GetNextPageID returns the right sibling's page id.
func (p *BPlusTreeLeafPage) GetNextPageID() basic.PageID {
	return basic.PageID(util.ReadInt4(p.data(), offNextPageID))
}

// SetNextPageID sets the right sibling's page id.
func (p *BPlusTreeLeafPage) SetNextPageID(pageID basic.PageID) {
	util.WriteInt4(p.data(), offNextPageID, int32(pageID))
}

func (p *BPlusTreeLeafPage) entrySize() int {
	return p.keySize + basic.RIDSize
}

func (p *BPlusTreeLeafPage) entryOffset(index int) int {
	return LeafHeaderSize + index*p.entrySize()
}

// KeyAt returns the key at the index, as a view into the frame bytes.
func (p *BPlusTreeLeafPage) KeyAt(index int) []byte {
	off := p.entryOffset(index)
	return p.data()[off : off+p.keySize]
}

// ValueAt returns the record id at the index.
func (p *BPlusTreeLeafPage) ValueAt(index int) basic.RID {
	off := p.entryOffset(index) + p.keySize
	return basic.RIDFromBytes(p.data()[off : off+basic.RIDSize])
}

// setEntryAt 覆盖写入index处的键值对
func (p *BPlusTreeLeafPage) setEntryAt(index int, key []byte, rid basic.RID) {
	off := p.entryOffset(index)
	copy(p.data()[off:off+p.keySize], key)
	rid.WriteTo(p.data(), off+p.keySize)
}

// Lowerbound returns the first index whose key is >= key, or GetSize()
// when every key is smaller.
func (p *BPlusTreeLeafPage) Lowerbound(key []byte, cmp KeyComparator) int {
	lo, hi := 0, p.GetSize()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(p.KeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Contains reports whether an exact match for the key is present.
func (p *BPlusTreeLeafPage) Contains(key []byte, cmp KeyComparator) bool {
	idx := p.Lowerbound(key, cmp)
	return idx < p.GetSize() && cmp(p.KeyAt(idx), key) == 0
}

// Insert places the pair in sorted position and returns the new size.
// The caller guards capacity and duplicates.
func (p *BPlusTreeLeafPage) Insert(key []byte, rid basic.RID, cmp KeyComparator) int {
	idx := p.Lowerbound(key, cmp)
	p.shiftRightFrom(idx)
	p.setEntryAt(idx, key, rid)
	p.IncreaseSize(1)
	return p.GetSize()
}

// shiftRightFrom 将[index, size)的条目整体右移一格
func (p *BPlusTreeLeafPage) shiftRightFrom(index int) {
	size := p.GetSize()
	if index >= size {
		return
	}
	start := p.entryOffset(index)
	end := p.entryOffset(size)
	copy(p.data()[start+p.entrySize():end+p.entrySize()], p.data()[start:end])
}

// RemoveAt deletes the entry at the index, shifting the tail left.
func (p *BPlusTreeLeafPage) RemoveAt(index int) {
	size := p.GetSize()
	start := p.entryOffset(index)
	end := p.entryOffset(size)
	copy(p.data()[start:], p.data()[start+p.entrySize():end])
	p.IncreaseSize(-1)
}

// Remove deletes the exact match for the key. Returns false when the key
// is absent.
func (p *BPlusTreeLeafPage) Remove(key []byte, cmp KeyComparator) bool {
	idx := p.Lowerbound(key, cmp)
	if idx >= p.GetSize() || cmp(p.KeyAt(idx), key) != 0 {
		return false
	}
	p.RemoveAt(idx)
	return true
}

// MoveHalfTo moves the upper half of the entries into the recipient and
// links it into the sibling chain. Used on split.
func (p *BPlusTreeLeafPage) MoveHalfTo(recipient *BPlusTreeLeafPage) {
	size := p.GetSize()
	splitAt := (p.GetMaxSize() + 1) / 2

	moved := size - splitAt
	srcStart := p.entryOffset(splitAt)
	srcEnd := p.entryOffset(size)
	dstStart := recipient.entryOffset(0)
	copy(recipient.data()[dstStart:], p.data()[srcStart:srcEnd])

	recipient.SetSize(moved)
	p.SetSize(splitAt)

	recipient.SetNextPageID(p.GetNextPageID())
	p.SetNextPageID(recipient.GetPageID())
}

// MoveAllTo appends every entry into the recipient and splices this leaf
// out of the sibling chain. Used on merge; the recipient is the left
// sibling.
func (p *BPlusTreeLeafPage) MoveAllTo(recipient *BPlusTreeLeafPage) {
	size := p.GetSize()
	rsize := recipient.GetSize()

	srcStart := p.entryOffset(0)
	srcEnd := p.entryOffset(size)
	dstStart := recipient.entryOffset(rsize)
	copy(recipient.data()[dstStart:], p.data()[srcStart:srcEnd])

	recipient.SetSize(rsize + size)
	recipient.SetNextPageID(p.GetNextPageID())
	p.SetSize(0)
}

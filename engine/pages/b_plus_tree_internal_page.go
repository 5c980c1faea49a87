package pages

import (
	"github.com/zhukovaskychina/xstorage/engine/basic"
	"github.com/zhukovaskychina/xstorage/engine/buffer_pool"
	"github.com/zhukovaskychina/xstorage/util"
)

// childIDSize 子页面号宽度
const childIDSize = 4

// BPlusTreeInternalPage 内部节点视图。大小为s的节点存s个子指针和
// s个键，下标0的键无效：查找只使用1..s-1的键在0..s-1的子指针中定位
type BPlusTreeInternalPage struct {
	BPlusTreePage
	keySize int
}

// NewInternalPage wraps a frame as an internal node view.
func NewInternalPage(page *buffer_pool.Page, keySize int) *BPlusTreeInternalPage {
	return &BPlusTreeInternalPage{BPlusTreePage: BPlusTreePage{page: page}, keySize: keySize}
}

// InternalCapacity returns the max_size for an internal node given the
// key width. One slot of slack is reserved so that an overflowing insert
// can land before the split moves entries out.
func InternalCapacity(keySize int) int {
	return (basic.PageSize-InternalHeaderSize)/(keySize+childIDSize) - 1
}

// Init formats the frame as an empty internal node.
func (p *BPlusTreeInternalPage) Init(pageID, parentID basic.PageID, maxSize int) {
	p.SetPageType(PageTypeInternal)
	p.SetLSN(0)
	p.SetSize(0)
	p.SetMaxSize(maxSize)
	p.SetPageID(pageID)
	p.SetParentPageID(parentID)
}

func (p *BPlusTreeInternalPage) entrySize() int {
	return p.keySize + childIDSize
}

func (p *BPlusTreeInternalPage) entryOffset(index int) int {
	return InternalHeaderSize + index*p.entrySize()
}

// KeyAt returns the key at the index, as a view into the frame bytes.
// The key at index 0 is invalid.
func (p *BPlusTreeInternalPage) KeyAt(index int) []byte {
	off := p.entryOffset(index)
	return p.data()[off : off+p.keySize]
}

// SetKeyAt overwrites the key at the index.
func (p *BPlusTreeInternalPage) SetKeyAt(index int, key []byte) {
	off := p.entryOffset(index)
	copy(p.data()[off:off+p.keySize], key)
}

// ValueAt returns the child page id at the index.
func (p *BPlusTreeInternalPage) ValueAt(index int) basic.PageID {
	return basic.PageID(util.ReadInt4(p.data(), p.entryOffset(index)+p.keySize))
}

// SetValueAt overwrites the child page id at the index.
func (p *BPlusTreeInternalPage) SetValueAt(index int, pageID basic.PageID) {
	util.WriteInt4(p.data(), p.entryOffset(index)+p.keySize, int32(pageID))
}

func (p *BPlusTreeInternalPage) setEntryAt(index int, key []byte, pageID basic.PageID) {
	p.SetKeyAt(index, key)
	p.SetValueAt(index, pageID)
}

// ValueIndex returns the index holding the child page id, or -1.
func (p *BPlusTreeInternalPage) ValueIndex(pageID basic.PageID) int {
	for i := 0; i < p.GetSize(); i++ {
		if p.ValueAt(i) == pageID {
			return i
		}
	}
	return -1
}

// LookupIndex returns the child index to descend into for the key: the
// largest i such that key_i <= key, with key_0 treated as -inf.
func (p *BPlusTreeInternalPage) LookupIndex(key []byte, cmp KeyComparator) int {
	lo, hi := 1, p.GetSize()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(p.KeyAt(mid), key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// Lookup returns the child page id to descend into for the key.
func (p *BPlusTreeInternalPage) Lookup(key []byte, cmp KeyComparator) basic.PageID {
	return p.ValueAt(p.LookupIndex(key, cmp))
}

// PopulateNewRoot formats the node as a root with two children split by
// the key.
func (p *BPlusTreeInternalPage) PopulateNewRoot(oldChild basic.PageID, key []byte, newChild basic.PageID) {
	p.SetValueAt(0, oldChild)
	p.setEntryAt(1, key, newChild)
	p.SetSize(2)
}

// shiftRightFrom 将[index, size)的条目整体右移一格
func (p *BPlusTreeInternalPage) shiftRightFrom(index int) {
	size := p.GetSize()
	if index >= size {
		return
	}
	start := p.entryOffset(index)
	end := p.entryOffset(size)
	copy(p.data()[start+p.entrySize():end+p.entrySize()], p.data()[start:end])
}

// InsertEntryAt places the pair at the index, shifting the tail right.
func (p *BPlusTreeInternalPage) InsertEntryAt(index int, key []byte, pageID basic.PageID) {
	p.shiftRightFrom(index)
	p.setEntryAt(index, key, pageID)
	p.IncreaseSize(1)
}

// InsertNodeAfter places (key, newChild) immediately after the entry
// holding oldChild. Returns the new size.
func (p *BPlusTreeInternalPage) InsertNodeAfter(oldChild basic.PageID, key []byte, newChild basic.PageID) int {
	idx := p.ValueIndex(oldChild) + 1
	p.InsertEntryAt(idx, key, newChild)
	return p.GetSize()
}

// AppendEntry places the pair after the current last entry.
func (p *BPlusTreeInternalPage) AppendEntry(key []byte, pageID basic.PageID) {
	p.setEntryAt(p.GetSize(), key, pageID)
	p.IncreaseSize(1)
}

// InsertFront rotates a child in from the left: the child becomes value
// 0 and the key becomes the new key at index 1.
func (p *BPlusTreeInternalPage) InsertFront(key []byte, pageID basic.PageID) {
	p.SetKeyAt(0, key)
	p.shiftRightFrom(0)
	p.SetValueAt(0, pageID)
	p.IncreaseSize(1)
	// 下标0的键位无效，内容无需清理
}

// RemoveAt deletes the entry at the index, shifting the tail left.
func (p *BPlusTreeInternalPage) RemoveAt(index int) {
	size := p.GetSize()
	start := p.entryOffset(index)
	end := p.entryOffset(size)
	copy(p.data()[start:], p.data()[start+p.entrySize():end])
	p.IncreaseSize(-1)
}

// MoveHalfTo moves the upper entries into the recipient on split. The
// node currently holds max_size+1 entries; the recipient receives
// entries [⌈(size)/2⌉, size). The recipient's key 0 slot keeps the moved
// separator so the caller can read it before propagating upward.
func (p *BPlusTreeInternalPage) MoveHalfTo(recipient *BPlusTreeInternalPage) {
	size := p.GetSize()
	offset := (size + 1) / 2

	moved := size - offset
	srcStart := p.entryOffset(offset)
	srcEnd := p.entryOffset(size)
	copy(recipient.data()[recipient.entryOffset(0):], p.data()[srcStart:srcEnd])

	recipient.SetSize(moved)
	p.SetSize(offset)
}

// MoveAllTo appends the parent separator plus every entry into the
// recipient on merge. The recipient is the left sibling.
func (p *BPlusTreeInternalPage) MoveAllTo(recipient *BPlusTreeInternalPage, middleKey []byte) {
	recipient.AppendEntry(middleKey, p.ValueAt(0))
	for i := 1; i < p.GetSize(); i++ {
		recipient.AppendEntry(p.KeyAt(i), p.ValueAt(i))
	}
	p.SetSize(0)
}

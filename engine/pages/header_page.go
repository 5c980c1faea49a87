package pages

import (
	"bytes"

	"github.com/zhukovaskychina/xstorage/engine/basic"
	"github.com/zhukovaskychina/xstorage/engine/buffer_pool"
	"github.com/zhukovaskychina/xstorage/util"
)

// 头页面布局：0号页保留，存放 (index_name -> root_page_id) 记录
//
//	offset  size  field
//	0       4     record_count
//	4       36*n  records: name[32] + root_page_id[4]
const (
	offRecordCount = 0
	recordsStart   = 4

	headerNameSize   = 32
	headerRecordSize = headerNameSize + 4
)

// MaxHeaderRecords 头页面可容纳的记录数上限
const MaxHeaderRecords = (basic.PageSize - recordsStart) / headerRecordSize

// HeaderPage 头页面视图
type HeaderPage struct {
	page *buffer_pool.Page
}

// NewHeaderPage wraps the reserved page 0 frame.
func NewHeaderPage(page *buffer_pool.Page) *HeaderPage {
	return &HeaderPage{page: page}
}

func (h *HeaderPage) data() []byte {
	return h.page.Data()
}

// GetRecordCount returns the number of records stored.
func (h *HeaderPage) GetRecordCount() int {
	return int(util.ReadInt4(h.data(), offRecordCount))
}

func (h *HeaderPage) setRecordCount(count int) {
	util.WriteInt4(h.data(), offRecordCount, int32(count))
}

func (h *HeaderPage) recordOffset(index int) int {
	return recordsStart + index*headerRecordSize
}

func (h *HeaderPage) nameAt(index int) []byte {
	off := h.recordOffset(index)
	raw := h.data()[off : off+headerNameSize]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		return raw[:i]
	}
	return raw
}

func (h *HeaderPage) findRecord(name string) int {
	count := h.GetRecordCount()
	for i := 0; i < count; i++ {
		if string(h.nameAt(i)) == name {
			return i
		}
	}
	return -1
}

// GetRootID looks the index name up. ok is false when no record exists.
func (h *HeaderPage) GetRootID(name string) (basic.PageID, bool) {
	idx := h.findRecord(name)
	if idx < 0 {
		return basic.InvalidPageID, false
	}
	off := h.recordOffset(idx) + headerNameSize
	return basic.PageID(util.ReadInt4(h.data(), off)), true
}

// InsertRecord adds a new (name, rootPageID) record. Returns false when
// the name is already present, too long, or the page is full.
func (h *HeaderPage) InsertRecord(name string, rootPageID basic.PageID) bool {
	if len(name) > headerNameSize {
		return false
	}
	count := h.GetRecordCount()
	if count >= MaxHeaderRecords {
		return false
	}
	if h.findRecord(name) >= 0 {
		return false
	}

	off := h.recordOffset(count)
	nameBuff := h.data()[off : off+headerNameSize]
	for i := range nameBuff {
		nameBuff[i] = 0
	}
	copy(nameBuff, name)
	util.WriteInt4(h.data(), off+headerNameSize, int32(rootPageID))
	h.setRecordCount(count + 1)
	return true
}

// UpdateRecord overwrites the root page id of an existing record.
// Returns false when the name is absent.
func (h *HeaderPage) UpdateRecord(name string, rootPageID basic.PageID) bool {
	idx := h.findRecord(name)
	if idx < 0 {
		return false
	}
	util.WriteInt4(h.data(), h.recordOffset(idx)+headerNameSize, int32(rootPageID))
	return true
}

// DeleteRecord removes the record, compacting the tail. Returns false
// when the name is absent.
func (h *HeaderPage) DeleteRecord(name string) bool {
	idx := h.findRecord(name)
	if idx < 0 {
		return false
	}
	count := h.GetRecordCount()
	start := h.recordOffset(idx)
	end := h.recordOffset(count)
	copy(h.data()[start:], h.data()[start+headerRecordSize:end])
	h.setRecordCount(count - 1)
	return true
}

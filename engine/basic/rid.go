package basic

import (
	"fmt"

	"github.com/zhukovaskychina/xstorage/util"
)

// RIDSize RID的序列化长度
const RIDSize = 8

// RID 行记录标识，叶子节点的值负载。内容对本层不透明，仅按定宽编码搬运
type RID struct {
	PageID  PageID
	SlotNum uint32
}

// NewRID creates a record id from a page number and a slot number.
func NewRID(pageID PageID, slotNum uint32) RID {
	return RID{PageID: pageID, SlotNum: slotNum}
}

// Bytes returns the 8-byte serialized form.
func (r RID) Bytes() []byte {
	buff := make([]byte, RIDSize)
	util.WriteInt4(buff, 0, int32(r.PageID))
	util.WriteUInt4(buff, 4, r.SlotNum)
	return buff
}

// WriteTo serializes the record id at buff[offset:offset+8].
func (r RID) WriteTo(buff []byte, offset int) {
	util.WriteInt4(buff, offset, int32(r.PageID))
	util.WriteUInt4(buff, offset+4, r.SlotNum)
}

// RIDFromBytes parses an 8-byte serialized record id.
func RIDFromBytes(buff []byte) RID {
	return RID{
		PageID:  PageID(util.ReadInt4(buff, 0)),
		SlotNum: util.ReadUInt4(buff, 4),
	}
}

func (r RID) String() string {
	return fmt.Sprintf("RID{page=%d, slot=%d}", r.PageID, r.SlotNum)
}

package index

import (
	"bytes"

	"github.com/zhukovaskychina/xstorage/util"
)

// Int64KeySize 整型键的定宽编码长度
const Int64KeySize = 8

// Int64Key encodes a signed integer into an order-preserving 8-byte
// big-endian form: flipping the sign bit makes byte order match numeric
// order, so CompareKeys works unchanged.
func Int64Key(v int64) []byte {
	return util.ConvertULong8Bytes(uint64(v) ^ (1 << 63))
}

// Int64FromKey decodes an Int64Key encoding.
func Int64FromKey(key []byte) int64 {
	return int64(util.ReadUB8Byte2ULong(key) ^ (1 << 63))
}

// CompareKeys is the byte-order comparator, suitable for any
// order-preserving fixed-width encoding.
func CompareKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}

package util

import "encoding/binary"

// 大端字节序，与页面落盘格式保持一致

func ConvertUInt4Bytes(i uint32) []byte {
	buff := make([]byte, 4)
	binary.BigEndian.PutUint32(buff, i)
	return buff
}

func ConvertInt4Bytes(i int32) []byte {
	return ConvertUInt4Bytes(uint32(i))
}

func ConvertULong8Bytes(i uint64) []byte {
	buff := make([]byte, 8)
	binary.BigEndian.PutUint64(buff, i)
	return buff
}

func ConvertLong8Bytes(i int64) []byte {
	return ConvertULong8Bytes(uint64(i))
}

func ReadUB4Byte2UInt32(buff []byte) uint32 {
	return binary.BigEndian.Uint32(buff)
}

func ReadB4Byte2Int32(buff []byte) int32 {
	return int32(binary.BigEndian.Uint32(buff))
}

func ReadUB8Byte2ULong(buff []byte) uint64 {
	return binary.BigEndian.Uint64(buff)
}

func ReadB8Byte2Long(buff []byte) int64 {
	return int64(binary.BigEndian.Uint64(buff))
}

// WriteUInt4 writes i at buff[offset:offset+4].
func WriteUInt4(buff []byte, offset int, i uint32) {
	binary.BigEndian.PutUint32(buff[offset:], i)
}

// WriteInt4 writes i at buff[offset:offset+4].
func WriteInt4(buff []byte, offset int, i int32) {
	binary.BigEndian.PutUint32(buff[offset:], uint32(i))
}

// WriteULong8 writes i at buff[offset:offset+8].
func WriteULong8(buff []byte, offset int, i uint64) {
	binary.BigEndian.PutUint64(buff[offset:], i)
}

// ReadUInt4 reads a uint32 at buff[offset:offset+4].
func ReadUInt4(buff []byte, offset int) uint32 {
	return binary.BigEndian.Uint32(buff[offset:])
}

// ReadInt4 reads an int32 at buff[offset:offset+4].
func ReadInt4(buff []byte, offset int) int32 {
	return int32(binary.BigEndian.Uint32(buff[offset:]))
}

// ReadULong8 reads a uint64 at buff[offset:offset+8].
func ReadULong8(buff []byte, offset int) uint64 {
	return binary.BigEndian.Uint64(buff[offset:])
}

package buffer_pool

import (
	"sync"

	"github.com/zhukovaskychina/xstorage/engine/basic"
)

// Page 缓冲池中的一帧：定长字节缓冲加控制体。
// pageID/pinCount/isDirty 由缓冲池在自己的锁内维护；data 的并发访问
// 由持有pin的调用方通过页面读写锁自行串行化。pin计数归零后帧随时可能
// 被驱逐复用，继续持有指针属未定义行为
type Page struct {
	rwlatch sync.RWMutex

	data     []byte
	pageID   basic.PageID
	pinCount int
	isDirty  bool
}

func newPage() *Page {
	return &Page{
		data:   make([]byte, basic.PageSize),
		pageID: basic.InvalidPageID,
	}
}

// Data returns the frame's byte buffer.
func (p *Page) Data() []byte {
	return p.data
}

// ID returns the id of the resident page.
func (p *Page) ID() basic.PageID {
	return p.pageID
}

// PinCount returns the current pin count.
func (p *Page) PinCount() int {
	return p.pinCount
}

// IsDirty reports whether the in-memory bytes may differ from disk.
func (p *Page) IsDirty() bool {
	return p.isDirty
}

// resetMemory 清零页面内容
func (p *Page) resetMemory() {
	for i := range p.data {
		p.data[i] = 0
	}
}

// RLatch acquires the page latch shared.
func (p *Page) RLatch() {
	p.rwlatch.RLock()
}

// RUnlatch releases the shared page latch.
func (p *Page) RUnlatch() {
	p.rwlatch.RUnlock()
}

// WLatch acquires the page latch exclusive.
func (p *Page) WLatch() {
	p.rwlatch.Lock()
}

// WUnlatch releases the exclusive page latch.
func (p *Page) WUnlatch() {
	p.rwlatch.Unlock()
}

package store

import (
	"sync"

	"github.com/juju/errors"
	"github.com/zhukovaskychina/xstorage/engine/basic"
)

var _ basic.DiskManager = (*MemoryDiskManager)(nil)

// MemoryDiskManager 内存磁盘管理器，用于测试
type MemoryDiskManager struct {
	mu          sync.Mutex
	pages       map[basic.PageID][]byte
	deallocated map[basic.PageID]struct{}
	numWrite    uint64
}

// NewMemoryDiskManager creates an in-memory page store.
func NewMemoryDiskManager() *MemoryDiskManager {
	return &MemoryDiskManager{
		pages:       make(map[basic.PageID][]byte),
		deallocated: make(map[basic.PageID]struct{}),
	}
}

func (dm *MemoryDiskManager) ReadPage(pageID basic.PageID, buff []byte) error {
	if len(buff) != basic.PageSize {
		return errors.Trace(basic.ErrInvalidPageSize)
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if data, ok := dm.pages[pageID]; ok {
		copy(buff, data)
		return nil
	}
	// 未写过的页面返回全零镜像
	for i := range buff {
		buff[i] = 0
	}
	return nil
}

func (dm *MemoryDiskManager) WritePage(pageID basic.PageID, data []byte) error {
	if len(data) != basic.PageSize {
		return errors.Trace(basic.ErrInvalidPageSize)
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	img := make([]byte, basic.PageSize)
	copy(img, data)
	dm.pages[pageID] = img
	delete(dm.deallocated, pageID)
	dm.numWrite++
	return nil
}

func (dm *MemoryDiskManager) DeallocatePage(pageID basic.PageID) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	delete(dm.pages, pageID)
	dm.deallocated[pageID] = struct{}{}
}

// IsDeallocated reports whether the page was deallocated and not rewritten.
func (dm *MemoryDiskManager) IsDeallocated(pageID basic.PageID) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	_, ok := dm.deallocated[pageID]
	return ok
}

// NumWrites returns the number of page writes performed.
func (dm *MemoryDiskManager) NumWrites() uint64 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.numWrite
}

func (dm *MemoryDiskManager) Close() error {
	return nil
}

package buffer_pool

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/zhukovaskychina/xstorage/engine/basic"
	enginehash "github.com/zhukovaskychina/xstorage/engine/hash"
	"github.com/zhukovaskychina/xstorage/logger"
	"github.com/zhukovaskychina/xstorage/util"
)

const (
	// DefaultPoolSize 默认缓冲池大小（页数）
	DefaultPoolSize = 512
	// DefaultReplacerK 默认LRU-K参数
	DefaultReplacerK = 2

	// pageTableBucketSize 页表哈希目录的桶容量
	pageTableBucketSize = 4
)

// BufferPoolManager 缓冲池管理器。固定帧数组、空闲链表、页表
// （可扩展哈希目录）、LRU-K替换器与磁盘管理器，全部状态由单把锁保护。
// 磁盘读写在临界区内完成
type BufferPoolManager struct {
	mu sync.Mutex

	poolSize    int
	pages       []*Page
	freeList    *list.List // FrameID
	pageTable   *enginehash.ExtendibleHashTable[basic.PageID, basic.FrameID]
	replacer    *LRUKReplacer
	diskManager basic.DiskManager

	// 下一个待分配页面号。0号页保留给头页面
	nextPageID basic.PageID

	// 统计信息
	stats struct {
		hits       uint64 // 缓存命中次数
		misses     uint64 // 缓存未命中次数
		evictions  uint64 // 页面驱逐次数
		writeBacks uint64 // 脏页回写次数
	}
}

// NewBufferPoolManager creates a pool of poolSize frames over the disk
// manager, with an LRU-K replacer of parameter replacerK.
func NewBufferPoolManager(poolSize int, replacerK int, diskManager basic.DiskManager) *BufferPoolManager {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	if replacerK <= 0 {
		replacerK = DefaultReplacerK
	}

	bpm := &BufferPoolManager{
		poolSize: poolSize,
		pages:    make([]*Page, poolSize),
		freeList: list.New(),
		pageTable: enginehash.NewExtendibleHashTable[basic.PageID, basic.FrameID](
			pageTableBucketSize,
			func(pid basic.PageID) uint64 { return util.HashInt32(int32(pid)) },
		),
		replacer:    NewLRUKReplacer(poolSize, replacerK),
		diskManager: diskManager,
		nextPageID:  basic.HeaderPageID + 1,
	}

	// 初始时所有帧都在空闲链表里
	for i := 0; i < poolSize; i++ {
		bpm.pages[i] = newPage()
		bpm.freeList.PushBack(basic.FrameID(i))
	}

	return bpm
}

// allocatePage 分配一个新页面号
func (bpm *BufferPoolManager) allocatePage() basic.PageID {
	pid := bpm.nextPageID
	bpm.nextPageID++
	return pid
}

// acquireFrame 取一帧可用帧：优先空闲链表，否则驱逐。
// 脏页回写后才交出帧。调用方持有bpm.mu
func (bpm *BufferPoolManager) acquireFrame() (basic.FrameID, bool) {
	if bpm.freeList.Len() > 0 {
		front := bpm.freeList.Front()
		bpm.freeList.Remove(front)
		return front.Value.(basic.FrameID), true
	}

	frameID, ok := bpm.replacer.Evict()
	if !ok {
		return 0, false
	}
	atomic.AddUint64(&bpm.stats.evictions, 1)

	victim := bpm.pages[frameID]
	if victim.isDirty {
		if err := bpm.diskManager.WritePage(victim.pageID, victim.data); err != nil {
			logger.Errorf("failed to write back page %d during eviction: %v", victim.pageID, err)
		}
		atomic.AddUint64(&bpm.stats.writeBacks, 1)
	}
	logger.Debugf("evicted page %d from frame %d", victim.pageID, frameID)
	bpm.pageTable.Remove(victim.pageID)
	return frameID, true
}

// NewPage allocates a fresh zeroed page pinned into a frame. Returns nil
// when every frame is pinned.
func (bpm *BufferPoolManager) NewPage() *Page {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.acquireFrame()
	if !ok {
		logger.Debugf("buffer pool saturated, NewPage failed")
		return nil
	}

	pageID := bpm.allocatePage()
	page := bpm.pages[frameID]
	page.pageID = pageID
	page.pinCount = 1
	page.isDirty = false
	page.resetMemory()

	bpm.pageTable.Insert(pageID, frameID)
	bpm.replacer.RecordAccess(frameID)
	bpm.replacer.SetEvictable(frameID, false)

	return page
}

// FetchPage pins the page into a frame, reading it from disk on a miss.
// Returns nil when the page is not resident and every frame is pinned.
func (bpm *BufferPoolManager) FetchPage(pageID basic.PageID) *Page {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if frameID, ok := bpm.pageTable.Find(pageID); ok {
		atomic.AddUint64(&bpm.stats.hits, 1)
		page := bpm.pages[frameID]
		page.pinCount++
		bpm.replacer.RecordAccess(frameID)
		bpm.replacer.SetEvictable(frameID, false)
		return page
	}
	atomic.AddUint64(&bpm.stats.misses, 1)

	frameID, ok := bpm.acquireFrame()
	if !ok {
		logger.Debugf("buffer pool saturated, FetchPage(%d) failed", pageID)
		return nil
	}

	page := bpm.pages[frameID]
	if err := bpm.diskManager.ReadPage(pageID, page.data); err != nil {
		logger.Errorf("failed to read page %d: %v", pageID, err)
	}
	page.pageID = pageID
	page.pinCount = 1
	page.isDirty = false

	bpm.pageTable.Insert(pageID, frameID)
	bpm.replacer.RecordAccess(frameID)
	bpm.replacer.SetEvictable(frameID, false)

	return page
}

// UnpinPage drops one pin on the page. The dirty flag is sticky: once a
// page is dirty it stays dirty until flushed. Returns false when the
// page is not resident or its pin count is already zero.
func (bpm *BufferPoolManager) UnpinPage(pageID basic.PageID, isDirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return false
	}
	page := bpm.pages[frameID]
	if page.pinCount <= 0 {
		return false
	}

	page.pinCount--
	if page.pinCount == 0 {
		bpm.replacer.SetEvictable(frameID, true)
	}
	page.isDirty = page.isDirty || isDirty
	return true
}

// FlushPage writes the page image to disk regardless of the dirty flag
// and clears it. Pin count is ignored. Returns false when the page is
// not resident.
func (bpm *BufferPoolManager) FlushPage(pageID basic.PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return false
	}
	page := bpm.pages[frameID]
	if err := bpm.diskManager.WritePage(page.pageID, page.data); err != nil {
		logger.Errorf("failed to flush page %d: %v", pageID, err)
		return false
	}
	page.isDirty = false
	return true
}

// FlushAllPages writes every resident page to disk and clears the dirty
// flags. Frames without a resident page are skipped.
func (bpm *BufferPoolManager) FlushAllPages() {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	for _, page := range bpm.pages {
		if !page.pageID.IsValid() {
			continue
		}
		if err := bpm.diskManager.WritePage(page.pageID, page.data); err != nil {
			logger.Errorf("failed to flush page %d: %v", page.pageID, err)
			continue
		}
		page.isDirty = false
	}
}

// DeletePage evicts the page from its frame and deallocates its storage.
// The content is discarded without write-back. Returns true when the
// page is not resident, false when it is still pinned.
func (bpm *BufferPoolManager) DeletePage(pageID basic.PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return true
	}
	page := bpm.pages[frameID]
	if page.pinCount > 0 {
		return false
	}

	bpm.pageTable.Remove(pageID)
	bpm.replacer.Remove(frameID)
	bpm.freeList.PushBack(frameID)

	page.pageID = basic.InvalidPageID
	page.pinCount = 0
	page.isDirty = false
	page.resetMemory()

	bpm.diskManager.DeallocatePage(pageID)
	return true
}

// PoolSize returns the number of frames.
func (bpm *BufferPoolManager) PoolSize() int {
	return bpm.poolSize
}

// FreeFrameCount returns the current length of the free list.
func (bpm *BufferPoolManager) FreeFrameCount() int {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	return bpm.freeList.Len()
}

// ResidentPageCount returns the number of pages in the page table.
func (bpm *BufferPoolManager) ResidentPageCount() int {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	return bpm.pageTable.Size()
}

// Stats returns a snapshot of the pool counters.
func (bpm *BufferPoolManager) Stats() map[string]uint64 {
	return map[string]uint64{
		"hits":        atomic.LoadUint64(&bpm.stats.hits),
		"misses":      atomic.LoadUint64(&bpm.stats.misses),
		"evictions":   atomic.LoadUint64(&bpm.stats.evictions),
		"write_backs": atomic.LoadUint64(&bpm.stats.writeBacks),
	}
}

// HitRatio returns the cache hit ratio.
func (bpm *BufferPoolManager) HitRatio() float64 {
	hits := atomic.LoadUint64(&bpm.stats.hits)
	misses := atomic.LoadUint64(&bpm.stats.misses)
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

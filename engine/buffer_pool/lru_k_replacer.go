package buffer_pool

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/zhukovaskychina/xstorage/engine/basic"
)

// frameRecord 帧的访问档案。history保存最近K次访问的时间戳，旧在前
type frameRecord struct {
	nAccess   int
	history   []uint64
	evictable bool
	elem      *list.Element
}

// kthTimestamp K距离的参照时间戳。nAccess >= K 时为第K近一次访问
func (r *frameRecord) kthTimestamp() uint64 {
	return r.history[0]
}

// LRUKReplacer LRU-K替换器。后向K距离最大的可驱逐帧优先出局；
// 访问次数不足K次的帧K距离视为正无穷，彼此之间按最早访问时间用
// 经典LRU决胜。两条有序队列配合：fifo按首次访问先后保存不足K次的帧，
// lru按第K近访问时间戳升序保存满K次的帧
type LRUKReplacer struct {
	mu sync.Mutex

	numFrames int
	k         int
	currentTS uint64
	currSize  int // 可驱逐帧数量

	frames map[basic.FrameID]*frameRecord
	fifo   *list.List // FrameID, n < K
	lru    *list.List // FrameID, n >= K
}

// NewLRUKReplacer creates a replacer able to track numFrames frames.
func NewLRUKReplacer(numFrames int, k int) *LRUKReplacer {
	if k <= 0 {
		panic(fmt.Sprintf("lru-k replacer requires k > 0, got %d", k))
	}
	return &LRUKReplacer{
		numFrames: numFrames,
		k:         k,
		frames:    make(map[basic.FrameID]*frameRecord),
		fifo:      list.New(),
		lru:       list.New(),
	}
}

func (r *LRUKReplacer) checkFrameID(frameID basic.FrameID) {
	if int(frameID) >= r.numFrames || frameID < 0 {
		panic(fmt.Sprintf("frame id %d out of range [0, %d)", frameID, r.numFrames))
	}
}

// Evict removes the evictable frame with the largest backward K-distance
// and returns its id. Frames with fewer than K recorded accesses are
// scanned first, earliest first access first.
func (r *LRUKReplacer) Evict() (basic.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for e := r.fifo.Front(); e != nil; e = e.Next() {
		fid := e.Value.(basic.FrameID)
		if r.frames[fid].evictable {
			r.fifo.Remove(e)
			delete(r.frames, fid)
			r.currSize--
			return fid, true
		}
	}
	for e := r.lru.Front(); e != nil; e = e.Next() {
		fid := e.Value.(basic.FrameID)
		if r.frames[fid].evictable {
			r.lru.Remove(e)
			delete(r.frames, fid)
			r.currSize--
			return fid, true
		}
	}
	return 0, false
}

// RecordAccess notes an access to the frame at the current logical
// timestamp. A frame seen for the first time starts non-evictable.
func (r *LRUKReplacer) RecordAccess(frameID basic.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrameID(frameID)

	r.currentTS++
	rec, ok := r.frames[frameID]
	if !ok {
		rec = &frameRecord{}
		r.frames[frameID] = rec
	}
	rec.nAccess++
	rec.history = append(rec.history, r.currentTS)
	if len(rec.history) > r.k {
		rec.history = rec.history[1:]
	}

	switch {
	case rec.nAccess == 1:
		rec.elem = r.fifo.PushBack(frameID)
	case rec.nAccess == r.k:
		r.fifo.Remove(rec.elem)
		rec.elem = r.lruInsert(frameID, rec)
	case rec.nAccess > r.k:
		r.lru.Remove(rec.elem)
		rec.elem = r.lruInsert(frameID, rec)
	}
}

// lruInsert 按第K近访问时间戳升序插入lru队列
func (r *LRUKReplacer) lruInsert(frameID basic.FrameID, rec *frameRecord) *list.Element {
	for e := r.lru.Back(); e != nil; e = e.Prev() {
		other := r.frames[e.Value.(basic.FrameID)]
		if other.kthTimestamp() <= rec.kthTimestamp() {
			return r.lru.InsertAfter(frameID, e)
		}
	}
	return r.lru.PushFront(frameID)
}

// SetEvictable toggles the frame's evictable flag, adjusting the
// replacer size. Unknown frames are ignored.
func (r *LRUKReplacer) SetEvictable(frameID basic.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrameID(frameID)

	rec, ok := r.frames[frameID]
	if !ok {
		return
	}
	if rec.evictable != evictable {
		if evictable {
			r.currSize++
		} else {
			r.currSize--
		}
	}
	rec.evictable = evictable
}

// Remove drops the frame's access history regardless of its K-distance.
// Removing a non-evictable frame is a contract violation.
func (r *LRUKReplacer) Remove(frameID basic.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.frames[frameID]
	if !ok {
		return
	}
	if !rec.evictable {
		panic(fmt.Sprintf("removing non-evictable frame %d", frameID))
	}
	if rec.nAccess < r.k {
		r.fifo.Remove(rec.elem)
	} else {
		r.lru.Remove(rec.elem)
	}
	delete(r.frames, frameID)
	r.currSize--
}

// Size returns the number of evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}

// Package history implements the writer- and reader-side history caches:
// bounded stores of cache changes keyed by (writer GUID, sequence
// number), per spec.md §3 and §4.2.
package history

import (
	"sort"
	"sync"
	"time"

	"github.com/nimbora/rtpscore/internal/ddserrors"
	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/types"
)

type key struct {
	writer types.Guid
	seq    types.SequenceNumber
}

// instanceKey groups changes for KEEP_LAST eviction and
// max_samples_per_instance accounting.
type instanceKey struct {
	writer   types.Guid
	instance types.InstanceHandle
}

// WriterCache is the history cache a stateful/stateless writer owns: the
// set of changes it has produced but not yet evicted.
type WriterCache struct {
	mu       sync.Mutex
	limits   qos.ResourceLimits
	history  qos.History
	changes  map[key]*types.CacheChange
	order    []key // insertion order, oldest first
	perInst  map[instanceKey][]key
	nextSeq  types.SequenceNumber
	writer   types.Guid
}

func NewWriterCache(writer types.Guid, h qos.History, limits qos.ResourceLimits) *WriterCache {
	return &WriterCache{
		writer:  writer,
		history: h,
		limits:  limits,
		changes: make(map[key]*types.CacheChange),
		perInst: make(map[instanceKey][]key),
		nextSeq: 1,
	}
}

// AddChange assigns the next sequence number atomically and stores the
// change, evicting per QoS. Returns OutOfResources for a KEEP_ALL cache
// that would exceed max_samples.
func (c *WriterCache) AddChange(kind types.ChangeKind, instance types.InstanceHandle, data []byte, qosInline types.ParameterList) (*types.CacheChange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ik := instanceKey{writer: c.writer, instance: instance}

	if c.limits.MaxSamples != qos.LengthUnlimited && len(c.changes) >= c.limits.MaxSamples {
		if c.history.Kind == qos.KeepAll {
			return nil, ddserrors.ErrOutOfResources
		}
		c.evictOldestGlobal()
	}
	if c.history.Kind == qos.KeepLast {
		c.evictOverDepth(ik, c.history.Depth-1)
	}
	if c.limits.MaxSamplesPerInstance != qos.LengthUnlimited {
		c.evictOverDepth(ik, c.limits.MaxSamplesPerInstance-1)
	}

	seq := c.nextSeq
	c.nextSeq++
	ch := &types.CacheChange{
		Kind:           kind,
		WriterGuid:     c.writer,
		InstanceHandle: instance,
		SequenceNumber: seq,
		Data:           data,
		InlineQos:      qosInline,
	}
	k := key{writer: c.writer, seq: seq}
	c.changes[k] = ch
	c.order = append(c.order, k)
	c.perInst[ik] = append(c.perInst[ik], k)
	return ch, nil
}

// evictOverDepth drops oldest changes for ik until at most keep remain.
func (c *WriterCache) evictOverDepth(ik instanceKey, keep int) {
	if keep < 0 {
		keep = 0
	}
	keys := c.perInst[ik]
	for len(keys) > keep {
		oldest := keys[0]
		keys = keys[1:]
		c.removeKeyLocked(oldest)
	}
	c.perInst[ik] = keys
}

func (c *WriterCache) evictOldestGlobal() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.removeKeyLocked(oldest)
}

func (c *WriterCache) removeKeyLocked(k key) {
	delete(c.changes, k)
	for i, o := range c.order {
		if o == k {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// RemoveChange drops a change once all matched readers have acknowledged
// it. O(log N) in spirit: map delete plus a linear scan of the small
// order slice (bounded by history depth in practice).
func (c *WriterCache) RemoveChange(seq types.SequenceNumber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeKeyLocked(key{writer: c.writer, seq: seq})
}

func (c *WriterCache) Get(seq types.SequenceNumber) (*types.CacheChange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.changes[key{writer: c.writer, seq: seq}]
	return ch, ok
}

// SeqNumMin/Max are O(1): c.order is kept in ascending sequence order, so
// its head is the minimum; the maximum is tracked by c.nextSeq.
func (c *WriterCache) SeqNumMin() (types.SequenceNumber, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		return 0, false
	}
	return c.order[0].seq, true
}

func (c *WriterCache) SeqNumMax() types.SequenceNumber {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nextSeq == 1 {
		return 0
	}
	return c.nextSeq - 1
}

func (c *WriterCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.changes)
}

// ReaderCache orders delivered changes for a matched reader, honoring
// DestinationOrder (spec.md §4.2): reception order by default, or
// (source_timestamp, writer_guid) under BY_SOURCE_TIMESTAMP.
//
// Open Question resolution: under BY_SOURCE_TIMESTAMP, a KEEP_ALL
// overflow rejects the newest (late) arrival rather than evicting the
// oldest, keeping the existing ordered window intact.
type ReaderCache struct {
	mu      sync.Mutex
	order   qos.DestinationOrderKind
	history qos.History
	limits  qos.ResourceLimits
	changes []*types.CacheChange
	perInst map[types.InstanceHandle][]*types.CacheChange
}

func NewReaderCache(order qos.DestinationOrderKind, h qos.History, limits qos.ResourceLimits) *ReaderCache {
	return &ReaderCache{
		order:   order,
		history: h,
		limits:  limits,
		perInst: make(map[types.InstanceHandle][]*types.CacheChange),
	}
}

// Add inserts ch into delivery order, applying eviction policy. Returns
// false only if the change was rejected by a KEEP_ALL overflow; under
// KEEP_LAST the change is always accepted and older samples are evicted.
func (rc *ReaderCache) Add(ch *types.CacheChange) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.limits.MaxSamples != qos.LengthUnlimited && len(rc.changes) >= rc.limits.MaxSamples {
		if rc.history.Kind == qos.KeepAll {
			if rc.order == qos.BySourceTimestamp {
				// reject newest: the arriving change is dropped whether or
				// not it sorts after everything already held.
				if rc.isNewest(ch) {
					return false
				}
			}
			return false
		}
		rc.evictOldestLocked()
	}

	rc.changes = append(rc.changes, ch)
	rc.perInst[ch.InstanceHandle] = append(rc.perInst[ch.InstanceHandle], ch)

	if rc.order == qos.BySourceTimestamp {
		sort.SliceStable(rc.changes, func(i, j int) bool {
			return rc.less(rc.changes[i], rc.changes[j])
		})
	}

	if rc.history.Kind == qos.KeepLast {
		rc.evictInstanceOverDepth(ch.InstanceHandle)
	}
	return true
}

func (rc *ReaderCache) less(a, b *types.CacheChange) bool {
	at, bt := tsOrZero(a), tsOrZero(b)
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	ab, bb := a.WriterGuid.Bytes(), b.WriterGuid.Bytes()
	return string(ab[:]) < string(bb[:])
}

func (rc *ReaderCache) isNewest(ch *types.CacheChange) bool {
	for _, existing := range rc.changes {
		if rc.less(ch, existing) {
			return false
		}
	}
	return true
}

func (rc *ReaderCache) evictOldestLocked() {
	if len(rc.changes) == 0 {
		return
	}
	oldest := rc.changes[0]
	rc.changes = rc.changes[1:]
	rc.removeFromInstance(oldest)
}

func (rc *ReaderCache) evictInstanceOverDepth(instance types.InstanceHandle) {
	keep := rc.history.Depth
	list := rc.perInst[instance]
	for len(list) > keep {
		drop := list[0]
		list = list[1:]
		rc.removeChangeLocked(drop)
	}
	rc.perInst[instance] = list
}

func (rc *ReaderCache) removeFromInstance(ch *types.CacheChange) {
	list := rc.perInst[ch.InstanceHandle]
	for i, c := range list {
		if c == ch {
			rc.perInst[ch.InstanceHandle] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

func (rc *ReaderCache) removeChangeLocked(ch *types.CacheChange) {
	for i, c := range rc.changes {
		if c == ch {
			rc.changes = append(rc.changes[:i], rc.changes[i+1:]...)
			break
		}
	}
}

// Take returns up to max changes in delivery order and removes them.
func (rc *ReaderCache) Take(max int) []*types.CacheChange {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if max <= 0 || max > len(rc.changes) {
		max = len(rc.changes)
	}
	out := make([]*types.CacheChange, max)
	copy(out, rc.changes[:max])
	for _, ch := range out {
		rc.removeFromInstance(ch)
	}
	rc.changes = rc.changes[max:]
	return out
}

// Read returns up to max changes without removing them.
func (rc *ReaderCache) Read(max int) []*types.CacheChange {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if max <= 0 || max > len(rc.changes) {
		max = len(rc.changes)
	}
	out := make([]*types.CacheChange, max)
	copy(out, rc.changes[:max])
	return out
}

func (rc *ReaderCache) Len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.changes)
}

func tsOrZero(ch *types.CacheChange) time.Time {
	if ch.SourceTimestamp != nil {
		return *ch.SourceTimestamp
	}
	return time.Time{}
}

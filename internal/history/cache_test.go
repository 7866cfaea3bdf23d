package history

import (
	"testing"
	"time"

	"github.com/nimbora/rtpscore/internal/ddserrors"
	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/types"
)

func testWriter(t *testing.T, h qos.History, limits qos.ResourceLimits) *WriterCache {
	t.Helper()
	g := types.Guid{Prefix: types.NewGuidPrefix(1, 2, 3), EntityId: types.EntityId{1, 0, 0, 0}}
	return NewWriterCache(g, h, limits)
}

func TestWriterCacheAssignsIncreasingSequenceNumbers(t *testing.T) {
	wc := testWriter(t, qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{MaxSamples: qos.LengthUnlimited, MaxSamplesPerInstance: qos.LengthUnlimited})
	var inst types.InstanceHandle
	for i := 1; i <= 3; i++ {
		ch, err := wc.AddChange(types.ChangeKindAlive, inst, []byte("x"), types.ParameterList{})
		if err != nil {
			t.Fatalf("add change %d: %v", i, err)
		}
		if ch.SequenceNumber != types.SequenceNumber(i) {
			t.Fatalf("expected seq %d, got %d", i, ch.SequenceNumber)
		}
	}
	if min, ok := wc.SeqNumMin(); !ok || min != 1 {
		t.Fatalf("expected min 1, got %d ok=%v", min, ok)
	}
	if max := wc.SeqNumMax(); max != 3 {
		t.Fatalf("expected max 3, got %d", max)
	}
}

func TestWriterCacheKeepAllOutOfResources(t *testing.T) {
	wc := testWriter(t, qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{MaxSamples: 2, MaxSamplesPerInstance: qos.LengthUnlimited})
	var inst types.InstanceHandle
	if _, err := wc.AddChange(types.ChangeKindAlive, inst, nil, types.ParameterList{}); err != nil {
		t.Fatalf("add 1: %v", err)
	}
	if _, err := wc.AddChange(types.ChangeKindAlive, inst, nil, types.ParameterList{}); err != nil {
		t.Fatalf("add 2: %v", err)
	}
	if _, err := wc.AddChange(types.ChangeKindAlive, inst, nil, types.ParameterList{}); err != ddserrors.ErrOutOfResources {
		t.Fatalf("expected OutOfResources, got %v", err)
	}
}

func TestWriterCacheKeepLastEvictsOldest(t *testing.T) {
	wc := testWriter(t, qos.History{Kind: qos.KeepLast, Depth: 2}, qos.ResourceLimits{MaxSamples: qos.LengthUnlimited, MaxSamplesPerInstance: qos.LengthUnlimited})
	var inst types.InstanceHandle
	for i := 0; i < 3; i++ {
		if _, err := wc.AddChange(types.ChangeKindAlive, inst, nil, types.ParameterList{}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if wc.Len() != 2 {
		t.Fatalf("expected 2 samples retained under KEEP_LAST(2), got %d", wc.Len())
	}
	if _, ok := wc.Get(1); ok {
		t.Fatalf("expected sequence 1 to have been evicted")
	}
	if _, ok := wc.Get(3); !ok {
		t.Fatalf("expected sequence 3 to survive")
	}
}

func TestWriterCacheRemoveChange(t *testing.T) {
	wc := testWriter(t, qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{MaxSamples: qos.LengthUnlimited, MaxSamplesPerInstance: qos.LengthUnlimited})
	var inst types.InstanceHandle
	ch, _ := wc.AddChange(types.ChangeKindAlive, inst, nil, types.ParameterList{})
	wc.RemoveChange(ch.SequenceNumber)
	if _, ok := wc.Get(ch.SequenceNumber); ok {
		t.Fatalf("expected change to be removed")
	}
	if wc.Len() != 0 {
		t.Fatalf("expected empty cache, got len %d", wc.Len())
	}
}

func withTimestamp(ch *types.CacheChange, t time.Time) *types.CacheChange {
	ch.SourceTimestamp = &t
	return ch
}

func TestReaderCacheReceptionOrderByDefault(t *testing.T) {
	rc := NewReaderCache(qos.ByReceptionTimestamp, qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{MaxSamples: qos.LengthUnlimited})
	g := types.Guid{EntityId: types.EntityId{1}}
	c1 := &types.CacheChange{WriterGuid: g, SequenceNumber: 1}
	c2 := &types.CacheChange{WriterGuid: g, SequenceNumber: 2}
	rc.Add(c2)
	rc.Add(c1)
	got := rc.Read(0)
	if len(got) != 2 || got[0].SequenceNumber != 2 || got[1].SequenceNumber != 1 {
		t.Fatalf("expected reception order preserved (2 then 1), got %+v", got)
	}
}

func TestReaderCacheBySourceTimestampOrdering(t *testing.T) {
	rc := NewReaderCache(qos.BySourceTimestamp, qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{MaxSamples: qos.LengthUnlimited})
	g := types.Guid{EntityId: types.EntityId{1}}
	base := time.Unix(1000, 0)
	c1 := withTimestamp(&types.CacheChange{WriterGuid: g, SequenceNumber: 1}, base.Add(2*time.Second))
	c2 := withTimestamp(&types.CacheChange{WriterGuid: g, SequenceNumber: 2}, base.Add(1*time.Second))
	rc.Add(c1)
	rc.Add(c2)
	got := rc.Read(0)
	if len(got) != 2 || got[0].SequenceNumber != 2 || got[1].SequenceNumber != 1 {
		t.Fatalf("expected source-timestamp order (seq 2 before seq 1), got %+v", got)
	}
}

func TestReaderCacheKeepAllOverflowRejectsNewestUnderSourceTimestamp(t *testing.T) {
	rc := NewReaderCache(qos.BySourceTimestamp, qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{MaxSamples: 2})
	g := types.Guid{EntityId: types.EntityId{1}}
	base := time.Unix(2000, 0)
	c1 := withTimestamp(&types.CacheChange{WriterGuid: g, SequenceNumber: 1}, base)
	c2 := withTimestamp(&types.CacheChange{WriterGuid: g, SequenceNumber: 2}, base.Add(time.Second))
	c3 := withTimestamp(&types.CacheChange{WriterGuid: g, SequenceNumber: 3}, base.Add(2*time.Second))

	if ok := rc.Add(c1); !ok {
		t.Fatalf("expected c1 accepted")
	}
	if ok := rc.Add(c2); !ok {
		t.Fatalf("expected c2 accepted")
	}
	if ok := rc.Add(c3); ok {
		t.Fatalf("expected the newest late arrival (c3) to be rejected under KEEP_ALL overflow")
	}
	if rc.Len() != 2 {
		t.Fatalf("expected window to remain at 2, got %d", rc.Len())
	}
}

func TestReaderCacheKeepLastEvictsPerInstance(t *testing.T) {
	rc := NewReaderCache(qos.ByReceptionTimestamp, qos.History{Kind: qos.KeepLast, Depth: 1}, qos.ResourceLimits{MaxSamples: qos.LengthUnlimited})
	g := types.Guid{EntityId: types.EntityId{1}}
	var inst types.InstanceHandle
	rc.Add(&types.CacheChange{WriterGuid: g, InstanceHandle: inst, SequenceNumber: 1})
	rc.Add(&types.CacheChange{WriterGuid: g, InstanceHandle: inst, SequenceNumber: 2})
	if rc.Len() != 1 {
		t.Fatalf("expected KEEP_LAST(1) to retain a single sample, got %d", rc.Len())
	}
	got := rc.Read(0)
	if got[0].SequenceNumber != 2 {
		t.Fatalf("expected most recent sample retained, got seq %d", got[0].SequenceNumber)
	}
}

func TestReaderCacheTakeRemoves(t *testing.T) {
	rc := NewReaderCache(qos.ByReceptionTimestamp, qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{MaxSamples: qos.LengthUnlimited})
	g := types.Guid{EntityId: types.EntityId{1}}
	rc.Add(&types.CacheChange{WriterGuid: g, SequenceNumber: 1})
	rc.Add(&types.CacheChange{WriterGuid: g, SequenceNumber: 2})
	taken := rc.Take(1)
	if len(taken) != 1 || taken[0].SequenceNumber != 1 {
		t.Fatalf("expected to take seq 1, got %+v", taken)
	}
	if rc.Len() != 1 {
		t.Fatalf("expected 1 remaining after take, got %d", rc.Len())
	}
}

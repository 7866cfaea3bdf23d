package rtpsproxy

import (
	"reflect"
	"testing"

	"github.com/nimbora/rtpscore/internal/types"
)

// S3 — reader missing-set progression.
func TestWriterProxyMissingSetProgressionS3(t *testing.T) {
	wp := NewWriterProxy(types.Guid{EntityId: types.EntityId{1}}, nil, nil)

	wp.MissingChangesUpdate(3)
	wp.ReceivedChangeSet(2)

	missing := wp.MissingChanges()
	wantMissing := []types.SequenceNumber{1, 3}
	if !reflect.DeepEqual(missing, wantMissing) {
		t.Fatalf("missing = %v, want %v", missing, wantMissing)
	}
	if got := wp.AvailableChangesMax(); got != 0 {
		t.Fatalf("available_changes_max = %d, want 0", got)
	}

	wp.ReceivedChangeSet(1)
	missing = wp.MissingChanges()
	wantMissing = []types.SequenceNumber{3}
	if !reflect.DeepEqual(missing, wantMissing) {
		t.Fatalf("missing after receiving 1 = %v, want %v", missing, wantMissing)
	}
	if got := wp.AvailableChangesMax(); got != 2 {
		t.Fatalf("available_changes_max after receiving 1 = %d, want 2", got)
	}
}

func TestWriterProxyIrrelevantCountsAsAvailable(t *testing.T) {
	wp := NewWriterProxy(types.Guid{EntityId: types.EntityId{1}}, nil, nil)
	wp.MissingChangesUpdate(2)
	wp.IrrelevantChangeSet(1)
	wp.ReceivedChangeSet(2)
	if got := wp.AvailableChangesMax(); got != 2 {
		t.Fatalf("available_changes_max = %d, want 2", got)
	}
	if len(wp.MissingChanges()) != 0 {
		t.Fatalf("expected no missing changes, got %v", wp.MissingChanges())
	}
}

func TestWriterProxyLostChangesUpdateAdvancesFirstAvailable(t *testing.T) {
	wp := NewWriterProxy(types.Guid{EntityId: types.EntityId{1}}, nil, nil)
	wp.MissingChangesUpdate(5)
	wp.LostChangesUpdate(4) // 1..3 are lost, not missing
	missing := wp.MissingChanges()
	want := []types.SequenceNumber{4, 5}
	if !reflect.DeepEqual(missing, want) {
		t.Fatalf("missing = %v, want %v", missing, want)
	}
}

func TestWriterProxyOnHeartbeatIgnoresStaleCount(t *testing.T) {
	wp := NewWriterProxy(types.Guid{EntityId: types.EntityId{1}}, nil, nil)
	if ok := wp.OnHeartbeat(1, 5, 3, false); !ok {
		t.Fatalf("expected first heartbeat to apply")
	}
	if !wp.MustSendAckNacks {
		t.Fatalf("expected must_send_ack_nacks after non-final heartbeat")
	}
	if ok := wp.OnHeartbeat(1, 10, 2, true); ok {
		t.Fatalf("expected stale (lower) heartbeat count to be ignored")
	}
	if wp.lastAvailable != 5 {
		t.Fatalf("stale heartbeat must not have mutated lastAvailable, got %d", wp.lastAvailable)
	}
}

// S4 — writer unsent progression.
func TestReaderProxyUnsentProgressionS4(t *testing.T) {
	rp := NewReaderProxy(types.Guid{EntityId: types.EntityId{2}}, nil, false)
	const lastChangeSeq = types.SequenceNumber(5)

	seq, ok := rp.NextUnsentChange(lastChangeSeq)
	if !ok || seq != 1 {
		t.Fatalf("next_unsent_change = (%d, %v), want (1, true)", seq, ok)
	}

	unsent := rp.UnsentChanges(lastChangeSeq)
	want := []types.SequenceNumber{2, 3, 4, 5}
	if !reflect.DeepEqual(unsent, want) {
		t.Fatalf("unsent_changes = %v, want %v", unsent, want)
	}

	rp.RequestedChangesSet([]types.SequenceNumber{3, 5, 7}, 1, 5)
	requested := rp.RequestedChanges()
	wantRequested := []types.SequenceNumber{3, 5}
	if !reflect.DeepEqual(requested, wantRequested) {
		t.Fatalf("requested_changes = %v, want %v", requested, wantRequested)
	}

	for _, want := range []types.SequenceNumber{3, 5} {
		got, ok := rp.NextRequestedChange()
		if !ok || got != want {
			t.Fatalf("next_requested_change = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
	if _, ok := rp.NextRequestedChange(); ok {
		t.Fatalf("expected no more requested changes")
	}
}

func TestReaderProxyAckedChangesMonotonic(t *testing.T) {
	rp := NewReaderProxy(types.Guid{EntityId: types.EntityId{2}}, nil, false)
	rp.AckedChangesSet(5)
	rp.AckedChangesSet(3) // must not regress
	if rp.highestAcknowledgedChangeSeq != 5 {
		t.Fatalf("expected acked seq to stay at 5, got %d", rp.highestAcknowledgedChangeSeq)
	}
	unacked := rp.UnackedChanges(8)
	want := []types.SequenceNumber{6, 7, 8}
	if !reflect.DeepEqual(unacked, want) {
		t.Fatalf("unacked_changes = %v, want %v", unacked, want)
	}
}

func TestReaderLocatorSendsRequestedBeforeUnsent(t *testing.T) {
	rl := NewReaderLocator(types.LocatorInvalid, false)
	rl.highestSent = 3
	rl.RequestedChangesSet([]types.SequenceNumber{1})

	out := rl.UnsentChanges(5)
	want := []types.SequenceNumber{1, 4, 5}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("unsent_changes = %v, want %v (requested-for-resend before forward progress)", out, want)
	}
}

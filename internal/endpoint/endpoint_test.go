package endpoint

import (
	"testing"

	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/rtpsproxy"
	"github.com/nimbora/rtpscore/internal/types"
	"github.com/nimbora/rtpscore/internal/wire"
)

func guidFor(kind byte) types.Guid {
	return types.Guid{Prefix: types.NewGuidPrefix(1, 2, 3), EntityId: types.EntityId{0, 0, kind, 0}}
}

func TestStatelessWriterSendsToEachLocator(t *testing.T) {
	w := NewStatelessWriter(guidFor(1), qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{MaxSamples: qos.LengthUnlimited, MaxSamplesPerInstance: qos.LengthUnlimited}, wire.LittleEndian)
	w.AddReaderLocator(rtpsproxy.NewReaderLocator(types.NewLocatorUDPv4(nil, 7400), false))

	var inst types.InstanceHandle
	if _, err := w.Cache.AddChange(types.ChangeKindAlive, inst, []byte("hi"), types.ParameterList{}); err != nil {
		t.Fatalf("add change: %v", err)
	}

	out := w.Send(types.EntityIdUnknown)
	if len(out) != 1 {
		t.Fatalf("expected 1 outbound DATA, got %d", len(out))
	}
	d, err := wire.DecodeData(out[0].Sub)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(d.SerializedPayload) != "hi" {
		t.Fatalf("payload mismatch: %q", d.SerializedPayload)
	}
}

func TestStatefulWriterHeartbeatFinalFlagReflectsUnacked(t *testing.T) {
	w := NewStatefulWriter(guidFor(2), qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{MaxSamples: qos.LengthUnlimited, MaxSamplesPerInstance: qos.LengthUnlimited}, wire.LittleEndian, true)
	reader := rtpsproxy.NewReaderProxy(guidFor(3), []types.Locator{types.NewLocatorUDPv4(nil, 7410)}, false)
	w.MatchedReaderAdd(reader)

	var inst types.InstanceHandle
	w.Cache.AddChange(types.ChangeKindAlive, inst, []byte("x"), types.ParameterList{})

	out := w.Tick(true)
	var sawHB bool
	for _, od := range out {
		if od.Sub.ID == wire.SubmsgHeartbeat {
			sawHB = true
			hb, err := wire.DecodeHeartbeat(od.Sub)
			if err != nil {
				t.Fatalf("decode heartbeat: %v", err)
			}
			if hb.FinalFlag {
				t.Fatalf("expected final_flag=false while a sample remains unacked")
			}
		}
	}
	if !sawHB {
		t.Fatalf("expected a heartbeat to be emitted on the boundary tick")
	}
}

func TestStatefulReaderComposesAckNackFromMissingChanges(t *testing.T) {
	r := NewStatefulReader(guidFor(4), qos.ByReceptionTimestamp, qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{MaxSamples: qos.LengthUnlimited})
	writerGuid := guidFor(5)
	wp := rtpsproxy.NewWriterProxy(writerGuid, nil, nil)
	r.MatchedWriterAdd(wp)

	schedule := r.OnHeartbeat(writerGuid, 1, 3, 1, false)
	if !schedule {
		t.Fatalf("expected ACKNACK to be scheduled after a non-final heartbeat with missing changes")
	}

	an, ok := r.ComposeAckNack(writerGuid)
	if !ok {
		t.Fatalf("expected ACKNACK to be composable")
	}
	if an.ReaderSNBase != 1 {
		t.Fatalf("expected reader_sn_base=1, got %d", an.ReaderSNBase)
	}
	if len(an.ReaderSNSet) != 3 {
		t.Fatalf("expected 3 missing sequences, got %v", an.ReaderSNSet)
	}
}

func TestStatefulReaderOnDataClassifiesAliveVsDisposed(t *testing.T) {
	r := NewStatefulReader(guidFor(6), qos.ByReceptionTimestamp, qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{MaxSamples: qos.LengthUnlimited})
	writerGuid := guidFor(7)
	wp := rtpsproxy.NewWriterProxy(writerGuid, nil, nil)
	r.MatchedWriterAdd(wp)

	var inst types.InstanceHandle
	r.OnData(writerGuid, 1, true, false, inst, []byte("alive"), types.ParameterList{})
	r.OnData(writerGuid, 2, false, true, inst, nil, types.ParameterList{})

	samples := r.Cache.Read(0)
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].Kind != types.ChangeKindAlive {
		t.Fatalf("expected first sample ALIVE, got %v", samples[0].Kind)
	}
	if samples[1].Kind != types.ChangeKindNotAliveDisposed {
		t.Fatalf("expected second sample NOT_ALIVE_DISPOSED, got %v", samples[1].Kind)
	}
	if wp.AvailableChangesMax() != 2 {
		t.Fatalf("expected writer proxy to have received both changes, available_changes_max=%d", wp.AvailableChangesMax())
	}
}

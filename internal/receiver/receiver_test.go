package receiver

import (
	"testing"

	"github.com/nimbora/rtpscore/internal/endpoint"
	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/rtpsproxy"
	"github.com/nimbora/rtpscore/internal/types"
	"github.com/nimbora/rtpscore/internal/wire"
)

type fakeEndpoints struct {
	statefulReaders map[types.Guid]*endpoint.StatefulReader
	statefulWriters map[types.EntityId]*endpoint.StatefulWriter
}

func (f *fakeEndpoints) StatefulReaderByWriter(writerGuid types.Guid) (*endpoint.StatefulReader, bool) {
	r, ok := f.statefulReaders[writerGuid]
	return r, ok
}

func (f *fakeEndpoints) StatelessReaderForEntity(id types.EntityId) (*endpoint.StatelessReader, bool) {
	return nil, false
}

func (f *fakeEndpoints) StatefulWriterByEntity(id types.EntityId) (*endpoint.StatefulWriter, bool) {
	w, ok := f.statefulWriters[id]
	return w, ok
}

func TestDispatchDataRoutesToMatchingReader(t *testing.T) {
	localPrefix := types.NewGuidPrefix(9, 9, 9)
	remotePrefix := types.NewGuidPrefix(1, 1, 1)
	writerID := types.EntityId{0, 0, 1, 0}
	writerGuid := types.Guid{Prefix: remotePrefix, EntityId: writerID}

	readerGuid := types.Guid{Prefix: localPrefix, EntityId: types.EntityId{0, 0, 2, 0}}
	reader := endpoint.NewStatefulReader(readerGuid, qos.ByReceptionTimestamp, qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{MaxSamples: qos.LengthUnlimited})
	reader.MatchedWriterAdd(rtpsproxy.NewWriterProxy(writerGuid, nil, nil))

	eps := &fakeEndpoints{statefulReaders: map[types.Guid]*endpoint.StatefulReader{writerGuid: reader}}

	ctx := NewContext(wire.MessageHeader{GuidPrefix: remotePrefix}, localPrefix)
	data := wire.Data{WriterId: writerID, WriterSN: 1, DataFlag: true, SerializedPayload: []byte("payload")}
	sub := wire.EncodeData(data, wire.LittleEndian)

	Dispatch(ctx, sub, localPrefix, eps)

	samples := reader.Cache.Read(0)
	if len(samples) != 1 {
		t.Fatalf("expected 1 delivered sample, got %d", len(samples))
	}
	if string(samples[0].Data) != "payload" {
		t.Fatalf("payload mismatch: %q", samples[0].Data)
	}
}

func TestDispatchInfoDstMismatchDropsRest(t *testing.T) {
	localPrefix := types.NewGuidPrefix(9, 9, 9)
	otherPrefix := types.NewGuidPrefix(5, 5, 5)
	eps := &fakeEndpoints{statefulReaders: map[types.Guid]*endpoint.StatefulReader{}}
	ctx := NewContext(wire.MessageHeader{GuidPrefix: types.NewGuidPrefix(1, 1, 1)}, localPrefix)

	Dispatch(ctx, wire.EncodeInfoDst(wire.InfoDst{GuidPrefix: otherPrefix}, wire.LittleEndian), localPrefix, eps)
	if !ctx.dropRest {
		t.Fatalf("expected dropRest to be set after INFO_DST targeting a different participant")
	}

	// Subsequent submessages should be ignored (no panic, no side effect).
	data := wire.EncodeData(wire.Data{WriterId: types.EntityId{1}, WriterSN: 1, DataFlag: true}, wire.LittleEndian)
	Dispatch(ctx, data, localPrefix, eps)
}

func TestDispatchInfoTsSetsTimestamp(t *testing.T) {
	localPrefix := types.NewGuidPrefix(9, 9, 9)
	eps := &fakeEndpoints{}
	ctx := NewContext(wire.MessageHeader{GuidPrefix: types.NewGuidPrefix(1, 1, 1)}, localPrefix)

	Dispatch(ctx, wire.EncodeInfoTs(wire.InfoTs{Seconds: 1000, Fraction: 0}, wire.LittleEndian), localPrefix, eps)
	if !ctx.HaveTimestamp {
		t.Fatalf("expected HaveTimestamp to be set")
	}

	Dispatch(ctx, wire.EncodeInfoTs(wire.InfoTs{Invalidate: true}, wire.LittleEndian), localPrefix, eps)
	if ctx.HaveTimestamp {
		t.Fatalf("expected HaveTimestamp to be cleared by invalidate flag")
	}
}

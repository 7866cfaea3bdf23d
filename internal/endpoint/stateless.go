// Package endpoint implements the four endpoint state machines: stateless
// writer/reader (best-effort, used by SPDP) and stateful writer/reader
// (reliable, used by SEDP and user topics), per spec.md §4.5-§4.7.
package endpoint

import (
	"github.com/nimbora/rtpscore/internal/history"
	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/rtpsproxy"
	"github.com/nimbora/rtpscore/internal/types"
	"github.com/nimbora/rtpscore/internal/wire"
)

// OutboundData is a fully composed DATA submessage plus the locator it
// should be sent to.
type OutboundData struct {
	Locator types.Locator
	Sub     wire.RawSubmessage
}

// StatelessWriter is the best-effort writer used for SPDP participant
// announcements: no HEARTBEAT, no ACKNACK, just push.
type StatelessWriter struct {
	Guid     types.Guid
	Cache    *history.WriterCache
	Locators []*rtpsproxy.ReaderLocator
	Endian   wire.Endianness
}

func NewStatelessWriter(guid types.Guid, h qos.History, limits qos.ResourceLimits, e wire.Endianness) *StatelessWriter {
	return &StatelessWriter{
		Guid:   guid,
		Cache:  history.NewWriterCache(guid, h, limits),
		Endian: e,
	}
}

func (w *StatelessWriter) AddReaderLocator(l *rtpsproxy.ReaderLocator) {
	w.Locators = append(w.Locators, l)
}

// Send enumerates unsent changes (requested retransmits first) for each
// reader locator and composes a DATA submessage per change.
func (w *StatelessWriter) Send(readerID types.EntityId) []OutboundData {
	lastSeq := w.Cache.SeqNumMax()
	var out []OutboundData
	for _, rl := range w.Locators {
		for _, seq := range rl.UnsentChanges(lastSeq) {
			ch, ok := w.Cache.Get(seq)
			if !ok {
				continue
			}
			out = append(out, OutboundData{
				Locator: rl.Locator,
				Sub:     composeData(ch, readerID, w.Guid.EntityId, w.Endian),
			})
		}
	}
	return out
}

func composeData(ch *types.CacheChange, readerID, writerID types.EntityId, e wire.Endianness) wire.RawSubmessage {
	d := wire.Data{
		ReaderId:          readerID,
		WriterId:          writerID,
		WriterSN:          ch.SequenceNumber,
		InlineQos:         ch.InlineQos,
		InlineQosFlag:     len(ch.InlineQos.Parameters) > 0,
		SerializedPayload: ch.Data,
		DataFlag:          ch.Kind == types.ChangeKindAlive,
		KeyFlag:           ch.Kind != types.ChangeKindAlive,
		PayloadRepresentation: reprFor(e),
	}
	return wire.EncodeData(d, e)
}

func reprFor(e wire.Endianness) wire.RepresentationId {
	if e == wire.LittleEndian {
		return wire.ReprPL_CDR_LE
	}
	return wire.ReprPL_CDR_BE
}

// StatelessReader is the best-effort reader used for SPDP detection: it
// has no writer proxies, just a cache fed directly by incoming DATA.
type StatelessReader struct {
	Guid  types.Guid
	Cache *history.ReaderCache
}

func NewStatelessReader(guid types.Guid, order qos.DestinationOrderKind, h qos.History, limits qos.ResourceLimits) *StatelessReader {
	return &StatelessReader{Guid: guid, Cache: history.NewReaderCache(order, h, limits)}
}

// OnData appends a freshly-decoded DATA payload directly to the cache,
// with no writer-proxy bookkeeping (best-effort: no loss detection).
func (r *StatelessReader) OnData(writerGuid types.Guid, seq types.SequenceNumber, kind types.ChangeKind, instance types.InstanceHandle, data []byte, inlineQos types.ParameterList) bool {
	ch := &types.CacheChange{
		Kind:           kind,
		WriterGuid:     writerGuid,
		InstanceHandle: instance,
		SequenceNumber: seq,
		Data:           data,
		InlineQos:      inlineQos,
	}
	return r.Cache.Add(ch)
}

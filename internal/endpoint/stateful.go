package endpoint

import (
	"github.com/nimbora/rtpscore/internal/history"
	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/rtpsproxy"
	"github.com/nimbora/rtpscore/internal/types"
	"github.com/nimbora/rtpscore/internal/wire"
)

// StatefulWriter is the reliable writer used for SEDP and user topics: it
// drives matched ReaderProxies with periodic HEARTBEAT and retransmits on
// ACKNACK, per spec.md §4.6.
type StatefulWriter struct {
	Guid      types.Guid
	Cache     *history.WriterCache
	PushMode  bool
	Endian    wire.Endianness
	proxies   map[types.Guid]*rtpsproxy.ReaderProxy
	hbCount   uint32
}

func NewStatefulWriter(guid types.Guid, h qos.History, limits qos.ResourceLimits, e wire.Endianness, pushMode bool) *StatefulWriter {
	return &StatefulWriter{
		Guid:     guid,
		Cache:    history.NewWriterCache(guid, h, limits),
		PushMode: pushMode,
		Endian:   e,
		proxies:  make(map[types.Guid]*rtpsproxy.ReaderProxy),
	}
}

func (w *StatefulWriter) MatchedReaderAdd(p *rtpsproxy.ReaderProxy) {
	w.proxies[p.RemoteReaderGuid] = p
}

func (w *StatefulWriter) MatchedReaderRemove(guid types.Guid) {
	delete(w.proxies, guid)
}

func (w *StatefulWriter) MatchedReader(guid types.Guid) (*rtpsproxy.ReaderProxy, bool) {
	p, ok := w.proxies[guid]
	return p, ok
}

// MatchedReaderGuids lists the remote readers currently matched, for
// get_matched_subscriptions (spec.md §6).
func (w *StatefulWriter) MatchedReaderGuids() []types.Guid {
	out := make([]types.Guid, 0, len(w.proxies))
	for g := range w.proxies {
		out = append(out, g)
	}
	return out
}

// Tick emits pending DATA (for requested or unsent changes) for every
// matched reader, then a HEARTBEAT if heartbeatBoundary is true.
func (w *StatefulWriter) Tick(heartbeatBoundary bool) []OutboundData {
	lastSeq := w.Cache.SeqNumMax()
	var out []OutboundData

	for _, p := range w.proxies {
		unacked := p.UnackedChanges(lastSeq)
		if !w.PushMode && len(unacked) == 0 {
			continue
		}
		for {
			seq, ok := p.NextRequestedChange()
			if !ok {
				break
			}
			if ch, found := w.Cache.Get(seq); found {
				out = append(out, w.dataFor(p, ch))
			}
		}
		for {
			seq, ok := p.NextUnsentChange(lastSeq)
			if !ok {
				break
			}
			if ch, found := w.Cache.Get(seq); found {
				out = append(out, w.dataFor(p, ch))
			}
		}
	}

	if heartbeatBoundary {
		for _, p := range w.proxies {
			out = append(out, w.heartbeatFor(p))
		}
	}
	return out
}

func (w *StatefulWriter) dataFor(p *rtpsproxy.ReaderProxy, ch *types.CacheChange) OutboundData {
	loc := types.LocatorInvalid
	if len(p.Locators) > 0 {
		loc = p.Locators[0]
	}
	return OutboundData{Locator: loc, Sub: composeData(ch, p.RemoteReaderGuid.EntityId, w.Guid.EntityId, w.Endian)}
}

func (w *StatefulWriter) heartbeatFor(p *rtpsproxy.ReaderProxy) OutboundData {
	w.hbCount++
	min, hasMin := w.Cache.SeqNumMin()
	if !hasMin {
		min = w.Cache.SeqNumMax() + 1
	}
	max := w.Cache.SeqNumMax()
	hb := wire.Heartbeat{
		ReaderId:  p.RemoteReaderGuid.EntityId,
		WriterId:  w.Guid.EntityId,
		FirstSN:   min,
		LastSN:    max,
		Count:     w.hbCount,
		FinalFlag: len(p.UnackedChanges(max)) == 0,
	}
	loc := types.LocatorInvalid
	if len(p.Locators) > 0 {
		loc = p.Locators[0]
	}
	return OutboundData{Locator: loc, Sub: wire.EncodeHeartbeat(hb, w.Endian)}
}

// OnAckNack applies an incoming ACKNACK to the matching reader proxy.
func (w *StatefulWriter) OnAckNack(readerGuid types.Guid, an wire.AckNack) {
	p, ok := w.proxies[readerGuid]
	if !ok {
		return
	}
	cacheMin, _ := w.Cache.SeqNumMin()
	cacheMax := w.Cache.SeqNumMax()
	p.OnAckNack(an.ReaderSNBase, an.ReaderSNSet, an.Count, cacheMin, cacheMax)
}

// StatefulReader is the reliable reader used for SEDP and user topics: it
// tracks a WriterProxy per matched writer and schedules ACKNACK replies,
// per spec.md §4.7.
type StatefulReader struct {
	Guid               types.Guid
	Cache              *history.ReaderCache
	HeartbeatResponseDelay bool // simplified scheduling: true means a response is currently due
	proxies            map[types.Guid]*rtpsproxy.WriterProxy
	ackNackCount       uint32
}

func NewStatefulReader(guid types.Guid, order qos.DestinationOrderKind, h qos.History, limits qos.ResourceLimits) *StatefulReader {
	return &StatefulReader{
		Guid:    guid,
		Cache:   history.NewReaderCache(order, h, limits),
		proxies: make(map[types.Guid]*rtpsproxy.WriterProxy),
	}
}

func (r *StatefulReader) MatchedWriterAdd(p *rtpsproxy.WriterProxy) {
	r.proxies[p.RemoteWriterGuid] = p
}

func (r *StatefulReader) MatchedWriterRemove(guid types.Guid) {
	delete(r.proxies, guid)
}

func (r *StatefulReader) MatchedWriter(guid types.Guid) (*rtpsproxy.WriterProxy, bool) {
	p, ok := r.proxies[guid]
	return p, ok
}

// MatchedWriterGuids lists the remote writers currently matched, for
// get_matched_publications (spec.md §6).
func (r *StatefulReader) MatchedWriterGuids() []types.Guid {
	out := make([]types.Guid, 0, len(r.proxies))
	for g := range r.proxies {
		out = append(out, g)
	}
	return out
}

// OnData handles an incoming DATA from a matched writer: classifies the
// change kind from (dataFlag, keyFlag), appends to the cache and marks the
// sequence received on the writer proxy.
func (r *StatefulReader) OnData(writerGuid types.Guid, seq types.SequenceNumber, dataFlag, keyFlag bool, instance types.InstanceHandle, payload []byte, inlineQos types.ParameterList) {
	p, ok := r.proxies[writerGuid]
	if !ok {
		return
	}
	kind := changeKindFor(dataFlag, keyFlag, inlineQos)
	ch := &types.CacheChange{
		Kind:           kind,
		WriterGuid:     writerGuid,
		InstanceHandle: instance,
		SequenceNumber: seq,
		Data:           payload,
		InlineQos:      inlineQos,
	}
	r.Cache.Add(ch)
	p.ReceivedChangeSet(seq)
}

// changeKindFor classifies a sample per spec.md §4.7: (T,F) -> ALIVE,
// (F,T) -> NOT_ALIVE_DISPOSED or NOT_ALIVE_UNREGISTERED depending on the
// PID_STATUS_INFO bits carried in the inline QoS.
func changeKindFor(dataFlag, keyFlag bool, inlineQos types.ParameterList) types.ChangeKind {
	if dataFlag && !keyFlag {
		return types.ChangeKindAlive
	}
	if statusInfo, ok := inlineQos.Find(0x71); ok && len(statusInfo) >= 4 {
		disposed := statusInfo[3]&0x01 != 0
		unregistered := statusInfo[3]&0x02 != 0
		switch {
		case disposed && unregistered:
			return types.ChangeKindNotAliveDisposedUnregistered
		case unregistered:
			return types.ChangeKindNotAliveUnregistered
		}
	}
	return types.ChangeKindNotAliveDisposed
}

// OnGap marks every sequence in [gapStart, gapListBase) and the explicit
// gapList as irrelevant on the matching writer proxy.
func (r *StatefulReader) OnGap(writerGuid types.Guid, gapStart, gapListBase types.SequenceNumber, gapList []types.SequenceNumber) {
	p, ok := r.proxies[writerGuid]
	if !ok {
		return
	}
	for s := gapStart; s < gapListBase; s++ {
		p.IrrelevantChangeSet(s)
	}
	for _, s := range gapList {
		p.IrrelevantChangeSet(s)
	}
}

// OnHeartbeat applies §4.3's reliable read-path update and reports whether
// an ACKNACK reply should now be scheduled.
func (r *StatefulReader) OnHeartbeat(writerGuid types.Guid, firstSN, lastSN types.SequenceNumber, count uint32, finalFlag bool) (scheduleAckNack bool) {
	p, ok := r.proxies[writerGuid]
	if !ok {
		return false
	}
	if !p.OnHeartbeat(firstSN, lastSN, count, finalFlag) {
		return false
	}
	if finalFlag && len(p.MissingChanges()) == 0 {
		return false
	}
	return true
}

// ComposeAckNack builds the ACKNACK reply for a matched writer proxy, per
// spec.md §4.7.
func (r *StatefulReader) ComposeAckNack(writerGuid types.Guid) (wire.AckNack, bool) {
	p, ok := r.proxies[writerGuid]
	if !ok {
		return wire.AckNack{}, false
	}
	r.ackNackCount++
	return wire.AckNack{
		ReaderId:     r.Guid.EntityId,
		WriterId:     writerGuid.EntityId,
		ReaderSNBase: p.AvailableChangesMax() + 1,
		ReaderSNSet:  p.MissingChanges(),
		Count:        r.ackNackCount,
		FinalFlag:    true,
	}, true
}

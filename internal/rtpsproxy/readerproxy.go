package rtpsproxy

import (
	"github.com/nimbora/rtpscore/internal/types"
)

// ReaderProxy tracks, from a writer's perspective, what a matched remote
// reader has been sent and has acknowledged.
type ReaderProxy struct {
	RemoteReaderGuid  types.Guid
	Locators          []types.Locator
	ExpectsInlineQos  bool

	highestSentChangeSeq         types.SequenceNumber
	highestAcknowledgedChangeSeq types.SequenceNumber
	requestedChanges              *types.SequenceNumberSet

	LastReceivedAckNackCount uint32
}

func NewReaderProxy(remote types.Guid, locators []types.Locator, expectsInlineQos bool) *ReaderProxy {
	return &ReaderProxy{
		RemoteReaderGuid: remote,
		Locators:         locators,
		ExpectsInlineQos: expectsInlineQos,
		requestedChanges: types.NewSequenceNumberSet(),
	}
}

// NextUnsentChange returns highestSentChangeSeq+1 and advances it, as
// long as the result is <= lastChangeSeq. ok is false once caught up.
func (p *ReaderProxy) NextUnsentChange(lastChangeSeq types.SequenceNumber) (seq types.SequenceNumber, ok bool) {
	next := p.highestSentChangeSeq + 1
	if next > lastChangeSeq {
		return 0, false
	}
	p.highestSentChangeSeq = next
	return next, true
}

// UnsentChanges returns (highestSentChangeSeq, lastChangeSeq] without
// advancing the cursor.
func (p *ReaderProxy) UnsentChanges(lastChangeSeq types.SequenceNumber) []types.SequenceNumber {
	var out []types.SequenceNumber
	for s := p.highestSentChangeSeq + 1; s <= lastChangeSeq; s++ {
		out = append(out, s)
	}
	return out
}

// RequestedChangesSet unions set into the pending retransmit set, clipped
// to the present cache range [cacheMin, cacheMax].
func (p *ReaderProxy) RequestedChangesSet(set []types.SequenceNumber, cacheMin, cacheMax types.SequenceNumber) {
	for _, s := range set {
		if s < cacheMin || s > cacheMax {
			continue
		}
		p.requestedChanges.Add(s)
	}
}

// NextRequestedChange returns and removes the smallest pending retransmit,
// or ok=false if none remain.
func (p *ReaderProxy) NextRequestedChange() (seq types.SequenceNumber, ok bool) {
	s, found := p.requestedChanges.Min()
	if !found {
		return 0, false
	}
	p.requestedChanges.Remove(s)
	return s, true
}

// RequestedChanges exposes the pending retransmit set, ascending.
func (p *ReaderProxy) RequestedChanges() []types.SequenceNumber {
	return p.requestedChanges.Sorted()
}

// AckedChangesSet advances highestAcknowledgedChangeSeq monotonically.
func (p *ReaderProxy) AckedChangesSet(committed types.SequenceNumber) {
	if committed > p.highestAcknowledgedChangeSeq {
		p.highestAcknowledgedChangeSeq = committed
	}
}

// UnackedChanges returns (highestAcknowledgedChangeSeq, lastChangeSeq].
func (p *ReaderProxy) UnackedChanges(lastChangeSeq types.SequenceNumber) []types.SequenceNumber {
	var out []types.SequenceNumber
	for s := p.highestAcknowledgedChangeSeq + 1; s <= lastChangeSeq; s++ {
		out = append(out, s)
	}
	return out
}

// OnAckNack applies an incoming ACKNACK: everything below base is
// acknowledged, the bitmap becomes (or extends) the pending retransmit set.
func (p *ReaderProxy) OnAckNack(base types.SequenceNumber, bitmap []types.SequenceNumber, count uint32, cacheMin, cacheMax types.SequenceNumber) {
	p.AckedChangesSet(base - 1)
	p.RequestedChangesSet(bitmap, cacheMin, cacheMax)
	p.LastReceivedAckNackCount = count
}

// ReaderLocator is the stateless-writer equivalent of a ReaderProxy: no
// HEARTBEAT, no ACKNACK, just a destination and a send cursor. Used by the
// SPDP participant announcer (spec.md §4.3's "no HEARTBEAT" stateless path).
type ReaderLocator struct {
	Locator          types.Locator
	ExpectsInlineQos bool

	highestSent types.SequenceNumber
	requested   *types.SequenceNumberSet
}

func NewReaderLocator(locator types.Locator, expectsInlineQos bool) *ReaderLocator {
	return &ReaderLocator{Locator: locator, ExpectsInlineQos: expectsInlineQos, requested: types.NewSequenceNumberSet()}
}

func (l *ReaderLocator) RequestedChangesSet(set []types.SequenceNumber) {
	for _, s := range set {
		l.requested.Add(s)
	}
}

// UnsentChanges enumerates pending requested changes first, then the
// remaining unsent range, per spec.md §4.3's send ordering.
func (l *ReaderLocator) UnsentChanges(lastChangeSeq types.SequenceNumber) []types.SequenceNumber {
	out := l.requested.Sorted()
	for _, s := range out {
		l.requested.Remove(s)
	}
	for s := l.highestSent + 1; s <= lastChangeSeq; s++ {
		out = append(out, s)
	}
	if lastChangeSeq > l.highestSent {
		l.highestSent = lastChangeSeq
	}
	return out
}

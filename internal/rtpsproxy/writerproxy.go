// Package rtpsproxy implements the reader-held WriterProxy and
// writer-held ReaderProxy state machines, per spec.md §4.3/§4.4.
package rtpsproxy

import (
	"sort"

	"github.com/nimbora/rtpscore/internal/types"
)

// WriterProxy tracks, from a reader's perspective, what a matched remote
// writer has made available and what this reader has received from it.
type WriterProxy struct {
	RemoteWriterGuid types.Guid
	UnicastLocators  []types.Locator
	MulticastLocators []types.Locator

	firstAvailable types.SequenceNumber
	lastAvailable  types.SequenceNumber
	received       *types.SequenceNumberSet
	irrelevant     *types.SequenceNumberSet

	MustSendAckNacks  bool
	LastHeartbeatCount uint32
	AckNackCount       uint32
}

func NewWriterProxy(remote types.Guid, unicast, multicast []types.Locator) *WriterProxy {
	return &WriterProxy{
		RemoteWriterGuid:  remote,
		UnicastLocators:   unicast,
		MulticastLocators: multicast,
		firstAvailable:    1,
		received:          types.NewSequenceNumberSet(),
		irrelevant:        types.NewSequenceNumberSet(),
	}
}

// ReceivedChangeSet marks s as received.
func (p *WriterProxy) ReceivedChangeSet(s types.SequenceNumber) {
	p.received.Add(s)
	p.bumpAvailable(s)
}

// IrrelevantChangeSet marks s as received-irrelevant (e.g. announced via GAP).
func (p *WriterProxy) IrrelevantChangeSet(s types.SequenceNumber) {
	p.irrelevant.Add(s)
	p.bumpAvailable(s)
}

func (p *WriterProxy) bumpAvailable(s types.SequenceNumber) {
	if s > p.lastAvailable {
		p.lastAvailable = s
	}
}

// LostChangesUpdate marks any unseen sequence strictly below firstAvailable
// as LOST: they move permanently out of the "missing" set.
func (p *WriterProxy) LostChangesUpdate(firstAvailable types.SequenceNumber) {
	if firstAvailable > p.firstAvailable {
		p.firstAvailable = firstAvailable
	}
}

// MissingChangesUpdate declares every unseen sequence up to lastAvailable
// as MISSING (known to exist but not yet received).
func (p *WriterProxy) MissingChangesUpdate(lastAvailable types.SequenceNumber) {
	p.bumpAvailable(lastAvailable)
}

// MissingChanges returns the sequences in [firstAvailable, lastAvailable]
// not yet in received ∪ irrelevant, sorted ascending.
func (p *WriterProxy) MissingChanges() []types.SequenceNumber {
	var out []types.SequenceNumber
	for s := p.firstAvailable; s <= p.lastAvailable; s++ {
		if p.received.Has(s) || p.irrelevant.Has(s) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AvailableChangesMax is the largest N such that 1..N are all
// received-or-irrelevant-or-lost: min(missing)-1 if anything is missing,
// else everything through the high-water mark has arrived.
func (p *WriterProxy) AvailableChangesMax() types.SequenceNumber {
	missing := p.MissingChanges()
	if len(missing) > 0 {
		return missing[0] - 1
	}
	if p.lastAvailable < p.firstAvailable-1 {
		return p.firstAvailable - 1
	}
	return p.lastAvailable
}

// OnHeartbeat applies the reliable read-path update a HEARTBEAT with a
// strictly greater count triggers, per spec.md §4.3.
func (p *WriterProxy) OnHeartbeat(firstSN, lastSN types.SequenceNumber, count uint32, finalFlag bool) bool {
	if count <= p.LastHeartbeatCount && p.LastHeartbeatCount != 0 {
		return false
	}
	p.LastHeartbeatCount = count
	p.LostChangesUpdate(firstSN)
	p.MissingChangesUpdate(lastSN)
	p.MustSendAckNacks = !finalFlag
	return true
}

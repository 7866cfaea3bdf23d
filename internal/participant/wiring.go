package participant

import (
	"time"

	"github.com/nimbora/rtpscore/internal/discovery"
	"github.com/nimbora/rtpscore/internal/endpoint"
	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/rtpsmetrics"
	"github.com/nimbora/rtpscore/internal/rtpsproxy"
	"github.com/nimbora/rtpscore/internal/types"
	"github.com/nimbora/rtpscore/internal/wire"
)

type readerSnapshot struct {
	guid     types.Guid
	topic    string
	typeName string
	qos      qos.Policies
}

type writerSnapshot struct {
	guid     types.Guid
	topic    string
	typeName string
	qos      qos.Policies
}

// announceOnce publishes the local ParticipantProxy as a new SPDP sample,
// rate-limited per spec.md §5's backpressure policy.
func (p *Participant) announceOnce() {
	if !p.announceLimiter.Allow() {
		return
	}
	pp := discovery.ParticipantProxy{
		DomainId:                  p.domainID,
		DomainTag:                 p.domainTag,
		ProtocolVersion:           types.ProtocolVersion24,
		GuidPrefix:                p.guidPrefix,
		VendorId:                  p.vendorID,
		MetatrafficUnicast:        p.metatrafficUnicast,
		MetatrafficMulticast:      p.metatrafficMulticast,
		DefaultUnicast:            p.defaultUnicast,
		AvailableBuiltinEndpoints: discovery.DefaultBuiltinEndpoints,
		LeaseDuration:             p.leaseDuration,
	}
	payload := discovery.EncodeParticipantProxy(pp, p.endian)

	var instance types.InstanceHandle
	copy(instance[:], p.guidPrefix[:])
	p.spdpWriter.Cache.AddChange(types.ChangeKindAlive, instance, payload, types.ParameterList{})
	p.flushSPDP()
}

func (p *Participant) flushSPDP() {
	for _, out := range p.spdpWriter.Send(types.EntityIdSPDPBuiltinParticipantReader) {
		p.send(out.Locator, out.Sub)
	}
}

// pumpOnce drains every builtin reader's cache into the discovery tables,
// expires stale participant leases, and flushes every stateful writer's
// pending DATA/HEARTBEAT traffic, per spec.md §4.10's periodic pump.
func (p *Participant) pumpOnce(now time.Time) {
	p.participants.ExpireLeases(now)

	for _, ch := range p.spdpReader.Cache.Take(0) {
		pp, err := discovery.DecodeParticipantProxy(ch.Data)
		if err != nil {
			continue
		}
		p.participants.OnSPDPReceived(pp, p.domainID, p.domainTag, now)
	}

	for _, ch := range p.sedpPubReader.Cache.Take(0) {
		d, err := discovery.DecodeDiscoveredWriterData(ch.Data)
		if err != nil {
			continue
		}
		p.writers.Add(d)
	}

	for _, ch := range p.sedpSubReader.Cache.Take(0) {
		d, err := discovery.DecodeDiscoveredReaderData(ch.Data)
		if err != nil {
			continue
		}
		p.readers.Add(d)
	}

	for _, ch := range p.sedpTopicsReader.Cache.Take(0) {
		d, err := discovery.DecodeDiscoveredTopicData(ch.Data)
		if err != nil {
			continue
		}
		p.topics.Add(d)
	}

	p.flushWriter(p.sedpPubWriter)
	p.flushWriter(p.sedpSubWriter)
	p.flushWriter(p.sedpTopicsWriter)
	for _, dw := range p.dataWriters {
		p.flushWriter(dw.writer)
	}

	p.flushReader(p.sedpPubReader)
	p.flushReader(p.sedpSubReader)
	p.flushReader(p.sedpTopicsReader)
	for _, dr := range p.dataReaders {
		p.flushReader(dr.reader)
	}

	rtpsmetrics.SetDiscoveredParticipants(len(p.participants.All()))
}

// flushReader sends an ACKNACK to every matched writer proxy, applying
// backpressure implicitly through the pump's own interval rather than
// a per-heartbeat response-delay timer.
func (p *Participant) flushReader(r *endpoint.StatefulReader) {
	for _, wguid := range r.MatchedWriterGuids() {
		an, ok := r.ComposeAckNack(wguid)
		if !ok {
			continue
		}
		wp, ok := r.MatchedWriter(wguid)
		if !ok {
			continue
		}
		loc := types.LocatorInvalid
		switch {
		case len(wp.UnicastLocators) > 0:
			loc = wp.UnicastLocators[0]
		case len(wp.MulticastLocators) > 0:
			loc = wp.MulticastLocators[0]
		}
		rtpsmetrics.IncAckNacksSent()
		p.send(loc, wire.EncodeAckNack(an, p.endian))
	}
}

// flushWriter emits w's pending DATA and a HEARTBEAT boundary to every
// matched reader's locator.
func (p *Participant) flushWriter(w *endpoint.StatefulWriter) {
	for _, out := range w.Tick(true) {
		p.send(out.Locator, out.Sub)
	}
	for range w.MatchedReaderGuids() {
		rtpsmetrics.IncHeartbeatsSent()
	}
}

// onParticipantAdded matches a newly-discovered remote participant's
// builtin SEDP endpoints onto the local builtin endpoints, per the
// literal wiring in spec.md §4.9/§8 scenario S5.
func (p *Participant) onParticipantAdded(pp discovery.ParticipantProxy) {
	locators := types.DedupLocators(append(append([]types.Locator{}, pp.MetatrafficUnicast...), pp.MetatrafficMulticast...))

	if pp.AvailableBuiltinEndpoints&discovery.BuiltinPublicationsAnnouncer != 0 {
		guid := types.Guid{Prefix: pp.GuidPrefix, EntityId: types.EntityIdSEDPBuiltinPublicationsWriter}
		p.sedpPubReader.MatchedWriterAdd(rtpsproxy.NewWriterProxy(guid, locators, nil))
	}
	if pp.AvailableBuiltinEndpoints&discovery.BuiltinPublicationsDetector != 0 {
		guid := types.Guid{Prefix: pp.GuidPrefix, EntityId: types.EntityIdSEDPBuiltinPublicationsReader}
		p.sedpPubWriter.MatchedReaderAdd(rtpsproxy.NewReaderProxy(guid, locators, false))
	}
	if pp.AvailableBuiltinEndpoints&discovery.BuiltinSubscriptionsAnnouncer != 0 {
		guid := types.Guid{Prefix: pp.GuidPrefix, EntityId: types.EntityIdSEDPBuiltinSubscriptionsWriter}
		p.sedpSubReader.MatchedWriterAdd(rtpsproxy.NewWriterProxy(guid, locators, nil))
	}
	if pp.AvailableBuiltinEndpoints&discovery.BuiltinSubscriptionsDetector != 0 {
		guid := types.Guid{Prefix: pp.GuidPrefix, EntityId: types.EntityIdSEDPBuiltinSubscriptionsReader}
		p.sedpSubWriter.MatchedReaderAdd(rtpsproxy.NewReaderProxy(guid, locators, false))
	}
	if pp.AvailableBuiltinEndpoints&discovery.BuiltinTopicsAnnouncer != 0 {
		guid := types.Guid{Prefix: pp.GuidPrefix, EntityId: types.EntityIdSEDPBuiltinTopicsWriter}
		p.sedpTopicsReader.MatchedWriterAdd(rtpsproxy.NewWriterProxy(guid, locators, nil))
	}
	if pp.AvailableBuiltinEndpoints&discovery.BuiltinTopicsDetector != 0 {
		guid := types.Guid{Prefix: pp.GuidPrefix, EntityId: types.EntityIdSEDPBuiltinTopicsReader}
		p.sedpTopicsWriter.MatchedReaderAdd(rtpsproxy.NewReaderProxy(guid, locators, false))
	}
}

// onParticipantExpired drops every builtin and user endpoint proxy that
// belonged to a participant whose lease lapsed, per spec.md §4.9.
func (p *Participant) onParticipantExpired(prefix types.GuidPrefix) {
	p.sedpPubReader.MatchedWriterRemove(types.Guid{Prefix: prefix, EntityId: types.EntityIdSEDPBuiltinPublicationsWriter})
	p.sedpPubWriter.MatchedReaderRemove(types.Guid{Prefix: prefix, EntityId: types.EntityIdSEDPBuiltinPublicationsReader})
	p.sedpSubReader.MatchedWriterRemove(types.Guid{Prefix: prefix, EntityId: types.EntityIdSEDPBuiltinSubscriptionsWriter})
	p.sedpSubWriter.MatchedReaderRemove(types.Guid{Prefix: prefix, EntityId: types.EntityIdSEDPBuiltinSubscriptionsReader})
	p.sedpTopicsReader.MatchedWriterRemove(types.Guid{Prefix: prefix, EntityId: types.EntityIdSEDPBuiltinTopicsWriter})
	p.sedpTopicsWriter.MatchedReaderRemove(types.Guid{Prefix: prefix, EntityId: types.EntityIdSEDPBuiltinTopicsReader})

	for guid, dw := range p.dataWriters {
		for _, rg := range dw.writer.MatchedReaderGuids() {
			if rg.Prefix == prefix {
				dw.writer.MatchedReaderRemove(rg)
			}
		}
		_ = guid
	}
	for guid, dr := range p.dataReaders {
		for _, wg := range dr.reader.MatchedWriterGuids() {
			if wg.Prefix == prefix {
				dr.reader.MatchedWriterRemove(wg)
			}
		}
		_ = guid
	}
}

// onDiscoveredWriter offloads QoS-compatibility matching against every
// local datareader to the worker pool, posting proxy additions back to
// the mailbox to keep state mutation FIFO-serialized (spec.md §5).
func (p *Participant) onDiscoveredWriter(d discovery.DiscoveredWriterData) {
	snapshot := make([]readerSnapshot, 0, len(p.dataReaders))
	for guid, dr := range p.dataReaders {
		snapshot = append(snapshot, readerSnapshot{guid: guid, topic: dr.topic.Name, typeName: dr.topic.TypeName, qos: dr.qos})
	}

	p.pool.submit(func() {
		var matched []types.Guid
		for _, s := range snapshot {
			if ok, _ := discovery.TopicMatch(s.topic, s.typeName, s.qos, d.TopicName, d.TypeName, d.QoS); ok {
				matched = append(matched, s.guid)
			}
		}
		if len(matched) == 0 {
			return
		}
		p.postMatch(func(pp *Participant) {
			for _, rguid := range matched {
				dr, ok := pp.dataReaders[rguid]
				if !ok {
					continue
				}
				dr.reader.MatchedWriterAdd(rtpsproxy.NewWriterProxy(d.EndpointGuid, d.UnicastLocators, d.MulticastLocators))
			}
			total := 0
			for _, r := range pp.dataReaders {
				total += len(r.reader.MatchedWriterGuids())
			}
			rtpsmetrics.SetMatchedWriters(total)
		})
	})
}

// onDiscoveredReader is the symmetric match for newly-discovered remote
// readers against local datawriters.
func (p *Participant) onDiscoveredReader(d discovery.DiscoveredReaderData) {
	snapshot := make([]writerSnapshot, 0, len(p.dataWriters))
	for guid, dw := range p.dataWriters {
		snapshot = append(snapshot, writerSnapshot{guid: guid, topic: dw.topic.Name, typeName: dw.topic.TypeName, qos: dw.qos})
	}

	p.pool.submit(func() {
		var matched []types.Guid
		for _, s := range snapshot {
			if ok, _ := discovery.TopicMatch(s.topic, s.typeName, s.qos, d.TopicName, d.TypeName, d.QoS); ok {
				matched = append(matched, s.guid)
			}
		}
		if len(matched) == 0 {
			return
		}
		p.postMatch(func(pp *Participant) {
			for _, wguid := range matched {
				dw, ok := pp.dataWriters[wguid]
				if !ok {
					continue
				}
				dw.writer.MatchedReaderAdd(rtpsproxy.NewReaderProxy(d.EndpointGuid, d.UnicastLocators, d.ExpectsInlineQos))
			}
			total := 0
			for _, w := range pp.dataWriters {
				total += len(w.writer.MatchedReaderGuids())
			}
			rtpsmetrics.SetMatchedReaders(total)
		})
	})
}

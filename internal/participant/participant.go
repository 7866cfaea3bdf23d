package participant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/nimbora/rtpscore/internal/ddserrors"
	"github.com/nimbora/rtpscore/internal/discovery"
	"github.com/nimbora/rtpscore/internal/endpoint"
	"github.com/nimbora/rtpscore/internal/limits"
	"github.com/nimbora/rtpscore/internal/logging"
	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/receiver"
	"github.com/nimbora/rtpscore/internal/rtpsmetrics"
	"github.com/nimbora/rtpscore/internal/rtpsproxy"
	"github.com/nimbora/rtpscore/internal/transport"
	"github.com/nimbora/rtpscore/internal/types"
	"github.com/nimbora/rtpscore/internal/wire"
)

const (
	defaultAnnounceInterval = 100 * time.Millisecond
	defaultPumpInterval     = 50 * time.Millisecond
	defaultLeaseDuration    = 100 * time.Second
	defaultWorkers          = 4
	defaultWorkerQueueSize  = 64
	defaultMailboxSize      = 256
	defaultAnnounceRate       = 20.0
	defaultDatagramRate       = 2000.0
	defaultMaxInFlightMatches = 32
	defaultCPUSampleInterval  = 5 * time.Second
	sendTimeout               = 2 * time.Second
	ackPollInterval           = 5 * time.Millisecond
)

// Config configures a new Participant, per spec.md §6's constructor
// "(host_id, app_id, transport_factory)" generalized to this module's
// concrete transport and discovery parameters.
type Config struct {
	DomainID      uint32
	DomainTag     string
	ParticipantID uint32
	GuidPrefix    types.GuidPrefix
	VendorId      types.VendorId

	Transport            transport.Transport
	MetatrafficUnicast   []types.Locator
	MetatrafficMulticast []types.Locator
	DefaultUnicast       []types.Locator

	AnnounceInterval time.Duration
	PumpInterval     time.Duration
	LeaseDuration    time.Duration

	AnnounceRatePerSecond float64
	DatagramRatePerSecond float64
	Workers               int
	WorkerQueueSize       int
	MaxInFlightMatches    int
	CPUSampleInterval     time.Duration

	Logger zerolog.Logger
}

type dataWriterState struct {
	guid       types.Guid
	topic      TopicDescription
	publisher  PublisherHandle
	qos        qos.Policies
	writer     *endpoint.StatefulWriter
}

type dataReaderState struct {
	guid       types.Guid
	topic      TopicDescription
	subscriber SubscriberHandle
	qos        qos.Policies
	reader     *endpoint.StatefulReader
}

type mailItem func(p *Participant)

// Participant is the mailbox-serialized actor owning every endpoint,
// proxy, history cache and the transport handle, per spec.md §4.10.
type Participant struct {
	domainID   uint32
	domainTag  string
	guidPrefix types.GuidPrefix
	vendorID   types.VendorId
	endian     wire.Endianness

	transportH           transport.Transport
	metatrafficUnicast   []types.Locator
	metatrafficMulticast []types.Locator
	defaultUnicast       []types.Locator

	announceInterval  time.Duration
	pumpInterval      time.Duration
	leaseDuration     time.Duration
	cpuSampleInterval time.Duration

	logger zerolog.Logger

	mailbox chan mailItem
	done    chan struct{}
	failed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pool            *workerPool
	workers         int
	guard           *limits.ResourceGuard
	announceLimiter *rate.Limiter
	datagramLimiter *rate.Limiter

	// built-in endpoints
	spdpWriter       *endpoint.StatelessWriter
	spdpReader       *endpoint.StatelessReader
	sedpPubWriter    *endpoint.StatefulWriter
	sedpPubReader    *endpoint.StatefulReader
	sedpSubWriter    *endpoint.StatefulWriter
	sedpSubReader    *endpoint.StatefulReader
	sedpTopicsWriter *endpoint.StatefulWriter
	sedpTopicsReader *endpoint.StatefulReader

	participants *discovery.ParticipantTable
	writers      *discovery.WriterTable
	readers      *discovery.ReaderTable
	topics       *discovery.TopicTable

	topicDescs  map[string]TopicDescription
	publishers  map[uint64]*publisherState
	subscribers map[uint64]*subscriberState
	dataWriters map[types.Guid]*dataWriterState
	dataReaders map[types.Guid]*dataReaderState

	nextEntityKey uint32
	nextHandle    uint64
}

func unlimitedResourceLimits() qos.ResourceLimits {
	return qos.ResourceLimits{
		MaxSamples:            qos.LengthUnlimited,
		MaxInstances:          qos.LengthUnlimited,
		MaxSamplesPerInstance: qos.LengthUnlimited,
	}
}

// New constructs a Participant and starts its mailbox loop. Periodic
// tasks (announcement, message pump, receive loop) start on Enable.
func New(cfg Config) *Participant {
	if cfg.AnnounceInterval == 0 {
		cfg.AnnounceInterval = defaultAnnounceInterval
	}
	if cfg.PumpInterval == 0 {
		cfg.PumpInterval = defaultPumpInterval
	}
	if cfg.LeaseDuration == 0 {
		cfg.LeaseDuration = defaultLeaseDuration
	}
	if cfg.AnnounceRatePerSecond == 0 {
		cfg.AnnounceRatePerSecond = defaultAnnounceRate
	}
	if cfg.DatagramRatePerSecond == 0 {
		cfg.DatagramRatePerSecond = defaultDatagramRate
	}
	if cfg.Workers == 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.WorkerQueueSize == 0 {
		cfg.WorkerQueueSize = defaultWorkerQueueSize
	}
	if cfg.MaxInFlightMatches == 0 {
		cfg.MaxInFlightMatches = defaultMaxInFlightMatches
	}
	if cfg.CPUSampleInterval == 0 {
		cfg.CPUSampleInterval = defaultCPUSampleInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	guard := limits.NewResourceGuard(cfg.MaxInFlightMatches, cfg.Logger)

	p := &Participant{
		domainID:             cfg.DomainID,
		domainTag:            cfg.DomainTag,
		guidPrefix:           cfg.GuidPrefix,
		vendorID:             cfg.VendorId,
		endian:               wire.LittleEndian,
		transportH:           cfg.Transport,
		metatrafficUnicast:   cfg.MetatrafficUnicast,
		metatrafficMulticast: cfg.MetatrafficMulticast,
		defaultUnicast:       cfg.DefaultUnicast,
		announceInterval:     cfg.AnnounceInterval,
		pumpInterval:         cfg.PumpInterval,
		leaseDuration:        cfg.LeaseDuration,
		cpuSampleInterval:    cfg.CPUSampleInterval,
		logger:               cfg.Logger,
		mailbox:              make(chan mailItem, defaultMailboxSize),
		done:                 make(chan struct{}),
		ctx:                  ctx,
		cancel:               cancel,
		pool:                 newWorkerPool(cfg.WorkerQueueSize, guard, cfg.Logger),
		workers:              cfg.Workers,
		guard:                guard,
		announceLimiter:      rate.NewLimiter(rate.Limit(cfg.AnnounceRatePerSecond), 1),
		datagramLimiter:      rate.NewLimiter(rate.Limit(cfg.DatagramRatePerSecond), int(cfg.DatagramRatePerSecond)),
		participants:         discovery.NewParticipantTable(),
		writers:              discovery.NewWriterTable(),
		readers:              discovery.NewReaderTable(),
		topics:               discovery.NewTopicTable(),
		topicDescs:           make(map[string]TopicDescription),
		publishers:           make(map[uint64]*publisherState),
		subscribers:          make(map[uint64]*subscriberState),
		dataWriters:          make(map[types.Guid]*dataWriterState),
		dataReaders:          make(map[types.Guid]*dataReaderState),
	}

	limits := unlimitedResourceLimits()
	p.spdpWriter = endpoint.NewStatelessWriter(
		types.Guid{Prefix: cfg.GuidPrefix, EntityId: types.EntityIdSPDPBuiltinParticipantWriter},
		qos.History{Kind: qos.KeepLast, Depth: 1}, limits, p.endian)
	p.spdpWriter.AddReaderLocator(rtpsproxy.NewReaderLocator(discovery.SPDPMulticastLocator(cfg.DomainID), false))
	if err := cfg.Transport.JoinMulticastGroup(discovery.SPDPMulticastLocator(cfg.DomainID)); err != nil {
		cfg.Logger.Warn().Err(err).Msg("failed to join SPDP multicast group")
	}

	p.spdpReader = endpoint.NewStatelessReader(
		types.Guid{Prefix: cfg.GuidPrefix, EntityId: types.EntityIdSPDPBuiltinParticipantReader},
		qos.ByReceptionTimestamp, qos.History{Kind: qos.KeepLast, Depth: 32}, limits)

	builtinHistory := qos.History{Kind: qos.KeepLast, Depth: 64}
	p.sedpPubWriter = endpoint.NewStatefulWriter(
		types.Guid{Prefix: cfg.GuidPrefix, EntityId: types.EntityIdSEDPBuiltinPublicationsWriter},
		builtinHistory, limits, p.endian, true)
	p.sedpPubReader = endpoint.NewStatefulReader(
		types.Guid{Prefix: cfg.GuidPrefix, EntityId: types.EntityIdSEDPBuiltinPublicationsReader},
		qos.ByReceptionTimestamp, builtinHistory, limits)
	p.sedpSubWriter = endpoint.NewStatefulWriter(
		types.Guid{Prefix: cfg.GuidPrefix, EntityId: types.EntityIdSEDPBuiltinSubscriptionsWriter},
		builtinHistory, limits, p.endian, true)
	p.sedpSubReader = endpoint.NewStatefulReader(
		types.Guid{Prefix: cfg.GuidPrefix, EntityId: types.EntityIdSEDPBuiltinSubscriptionsReader},
		qos.ByReceptionTimestamp, builtinHistory, limits)
	p.sedpTopicsWriter = endpoint.NewStatefulWriter(
		types.Guid{Prefix: cfg.GuidPrefix, EntityId: types.EntityIdSEDPBuiltinTopicsWriter},
		builtinHistory, limits, p.endian, true)
	p.sedpTopicsReader = endpoint.NewStatefulReader(
		types.Guid{Prefix: cfg.GuidPrefix, EntityId: types.EntityIdSEDPBuiltinTopicsReader},
		qos.ByReceptionTimestamp, builtinHistory, limits)

	p.participants.OnAdd = p.onParticipantAdded
	p.participants.OnExpire = p.onParticipantExpired
	p.writers.OnDiscovered = p.onDiscoveredWriter
	p.readers.OnDiscovered = p.onDiscoveredReader

	p.wg.Add(1)
	go p.run(ctx)

	return p
}

// Enable starts the periodic announcement/pump tasks, the receive loop
// and the SEDP-matching worker pool, per spec.md §5's task list. Every
// task shares the participant's own lifetime context; cancelling ctx
// cancels that context, which stops the tasks, but does not wait for them,
// stop the worker pool or close the transport the way Close does.
func (p *Participant) Enable(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			p.cancel()
		case <-p.ctx.Done():
		}
	}()

	p.pool.start(p.ctx, p.workers)
	p.guard.StartSampling(p.ctx, p.cpuSampleInterval)

	p.wg.Add(3)
	go p.announceLoop(p.ctx)
	go p.pumpLoop(p.ctx)
	go p.recvLoop(p.ctx)
}

// Close cancels every running task and waits for them to exit.
func (p *Participant) Close() error {
	p.cancel()
	p.wg.Wait()
	p.pool.stop()
	return p.transportH.Close()
}

// run is the mailbox loop: the single point of serialized mutation.
// A panic here is recovered once, per spec.md §7, and transitions the
// actor to a failed state that answers AlreadyDeleted to every
// subsequent and outstanding reply channel.
func (p *Participant) run(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.done)
	for {
		select {
		case item := <-p.mailbox:
			if !p.safeRun(item) {
				p.failed = true
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Participant) safeRun(item mailItem) (ok bool) {
	ok = true
	defer func() {
		if r := recover(); r != nil {
			rtpsmetrics.IncActorPanics()
			logging.LogPanic(p.logger, r, "participant actor panic recovered, participant failed")
			ok = false
		}
	}()
	item(p)
	return
}

// call posts fn to the mailbox and blocks for its reply, or returns
// AlreadyDeleted if the actor has stopped.
func (p *Participant) call(fn func(p *Participant) (interface{}, error)) (interface{}, error) {
	type result struct {
		v   interface{}
		err error
	}
	reply := make(chan result, 1)
	item := func(p *Participant) {
		v, err := fn(p)
		reply <- result{v, err}
	}
	select {
	case p.mailbox <- item:
	case <-p.done:
		return nil, ddserrors.ErrAlreadyDeleted
	}
	select {
	case r := <-reply:
		return r.v, r.err
	case <-p.done:
		return nil, ddserrors.ErrAlreadyDeleted
	}
}

// postMatch delivers a worker-pool result back into the mailbox, skipping
// it under backpressure rather than blocking the worker goroutine.
func (p *Participant) postMatch(item mailItem) {
	select {
	case p.mailbox <- item:
	default:
		rtpsmetrics.IncMailboxDropped()
	}
}

func (p *Participant) announceLoop(ctx context.Context) {
	defer p.wg.Done()
	t := time.NewTicker(p.announceInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			select {
			case p.mailbox <- func(pp *Participant) { pp.announceOnce() }:
			default:
				rtpsmetrics.IncMailboxDropped()
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Participant) pumpLoop(ctx context.Context) {
	defer p.wg.Done()
	t := time.NewTicker(p.pumpInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			now := time.Now()
			select {
			case p.mailbox <- func(pp *Participant) { pp.pumpOnce(now) }:
			default:
				rtpsmetrics.IncMailboxDropped()
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Participant) recvLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		dg, err := p.transportH.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Debug().Err(err).Msg("transport receive error")
			continue
		}
		if !p.datagramLimiter.Allow() {
			continue // backpressure: drop the datagram rather than block the pump
		}
		payload := dg.Payload
		select {
		case p.mailbox <- func(pp *Participant) { pp.onDatagram(payload) }:
		case <-ctx.Done():
			return
		default:
			// mailbox saturated: drop, per spec.md §5 backpressure policy
			rtpsmetrics.IncMailboxDropped()
		}
	}
}

func (p *Participant) onDatagram(payload []byte) {
	rtpsmetrics.IncDatagramsReceived()
	msg, err := wire.Decode(payload)
	if err != nil {
		rtpsmetrics.IncDatagramsMalformed()
		p.logger.Debug().Err(err).Msg("dropping malformed RTPS message")
		return
	}
	ctx := receiver.NewContext(msg.Header, p.guidPrefix)
	for _, sub := range msg.Submessages {
		receiver.Dispatch(ctx, sub, p.guidPrefix, p)
	}
}

func (p *Participant) send(loc types.Locator, sub wire.RawSubmessage) {
	if loc.IsInvalid() {
		return
	}
	msg := wire.Message{Header: wire.NewHeader(p.guidPrefix, p.vendorID), Submessages: []wire.RawSubmessage{sub}}
	payload := wire.Encode(msg)
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := p.transportH.Send(ctx, loc, payload); err != nil {
		p.logger.Debug().Err(err).Str("locator", loc.String()).Msg("transport send failed")
	}
}

func entityKeyBytes(key uint32) [3]byte {
	return [3]byte{byte(key >> 16), byte(key >> 8), byte(key)}
}

func instanceFor(g types.Guid) types.InstanceHandle {
	var h types.InstanceHandle
	b := g.Bytes()
	copy(h[:], b[:])
	return h
}

func toSamples(changes []*types.CacheChange) []Sample {
	out := make([]Sample, 0, len(changes))
	for _, ch := range changes {
		var ts time.Time
		if ch.SourceTimestamp != nil {
			ts = *ch.SourceTimestamp
		}
		out = append(out, Sample{Data: ch.Data, Kind: ch.Kind, SourceTimestamp: ts, WriterGuid: ch.WriterGuid})
	}
	return out
}

// CreatePublisher creates a publisher entity grouping datawriters under a
// shared default QoS, per spec.md §6.
func (p *Participant) CreatePublisher(defaultQoS qos.Policies) (PublisherHandle, error) {
	v, err := p.call(func(pp *Participant) (interface{}, error) {
		pp.nextHandle++
		h := PublisherHandle(pp.nextHandle)
		pp.publishers[uint64(h)] = &publisherState{handle: h, defaultQoS: defaultQoS}
		return h, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(PublisherHandle), nil
}

// CreateSubscriber creates a subscriber entity, the datareader analogue
// of CreatePublisher.
func (p *Participant) CreateSubscriber(defaultQoS qos.Policies) (SubscriberHandle, error) {
	v, err := p.call(func(pp *Participant) (interface{}, error) {
		pp.nextHandle++
		h := SubscriberHandle(pp.nextHandle)
		pp.subscribers[uint64(h)] = &subscriberState{handle: h, defaultQoS: defaultQoS}
		return h, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(SubscriberHandle), nil
}

// CreateTopic registers a (name, type, QoS) description, per spec.md §6.
func (p *Participant) CreateTopic(name, typeName string, q qos.Policies) (TopicDescription, error) {
	if err := q.Validate(); err != nil {
		return TopicDescription{}, fmt.Errorf("%w: %v", ddserrors.ErrInconsistentPolicy, err)
	}
	td := TopicDescription{Name: name, TypeName: typeName, QoS: q}
	_, err := p.call(func(pp *Participant) (interface{}, error) {
		pp.topicDescs[name] = td
		key := pp.nextEntityKey
		pp.nextEntityKey++
		topicGuid := types.Guid{Prefix: pp.guidPrefix, EntityId: types.NewEntityId(entityKeyBytes(key), types.EntityKindUnknown)}
		d := discovery.DiscoveredTopicData{Key: instanceFor(topicGuid), TopicName: name, TypeName: typeName, QoS: q}
		pp.topics.Add(d)
		pp.sedpTopicsWriter.Cache.AddChange(types.ChangeKindAlive, instanceFor(topicGuid), discovery.EncodeDiscoveredTopicData(d, pp.endian), types.ParameterList{})
		return nil, nil
	})
	if err != nil {
		return TopicDescription{}, err
	}
	return td, nil
}

// CreateDataWriter creates a reliable/best-effort writer for topic, under
// pub, and announces it over SEDP, per spec.md §6/§4.9.
func (p *Participant) CreateDataWriter(pub PublisherHandle, topic TopicDescription, q qos.Policies) (types.Guid, error) {
	if err := q.Validate(); err != nil {
		return types.GuidUnknown, fmt.Errorf("%w: %v", ddserrors.ErrInconsistentPolicy, err)
	}
	v, err := p.call(func(pp *Participant) (interface{}, error) {
		if _, ok := pp.publishers[uint64(pub)]; !ok {
			return nil, ddserrors.NewPreconditionNotMet("publisher does not belong to this participant")
		}
		key := pp.nextEntityKey
		pp.nextEntityKey++
		guid := types.Guid{Prefix: pp.guidPrefix, EntityId: types.NewEntityId(entityKeyBytes(key), types.EntityKindWriterWithKey)}
		w := endpoint.NewStatefulWriter(guid, q.History, q.ResourceLimits, pp.endian, true)
		pp.dataWriters[guid] = &dataWriterState{guid: guid, topic: topic, publisher: pub, qos: q, writer: w}

		d := discovery.DiscoveredWriterData{
			EndpointGuid:    guid,
			TopicName:       topic.Name,
			TypeName:        topic.TypeName,
			QoS:             q,
			UnicastLocators: []types.Locator{pp.transportH.LocalLocator()},
		}
		pp.sedpPubWriter.Cache.AddChange(types.ChangeKindAlive, instanceFor(guid), discovery.EncodeDiscoveredWriterData(d, pp.endian), types.ParameterList{})
		return guid, nil
	})
	if err != nil {
		return types.GuidUnknown, err
	}
	return v.(types.Guid), nil
}

// CreateDataReader creates a reader for topic, under sub, and announces
// it over SEDP.
func (p *Participant) CreateDataReader(sub SubscriberHandle, topic TopicDescription, q qos.Policies) (types.Guid, error) {
	if err := q.Validate(); err != nil {
		return types.GuidUnknown, fmt.Errorf("%w: %v", ddserrors.ErrInconsistentPolicy, err)
	}
	v, err := p.call(func(pp *Participant) (interface{}, error) {
		if _, ok := pp.subscribers[uint64(sub)]; !ok {
			return nil, ddserrors.NewPreconditionNotMet("subscriber does not belong to this participant")
		}
		key := pp.nextEntityKey
		pp.nextEntityKey++
		guid := types.Guid{Prefix: pp.guidPrefix, EntityId: types.NewEntityId(entityKeyBytes(key), types.EntityKindReaderWithKey)}
		r := endpoint.NewStatefulReader(guid, q.DestinationOrder.Kind, q.History, q.ResourceLimits)
		pp.dataReaders[guid] = &dataReaderState{guid: guid, topic: topic, subscriber: sub, qos: q, reader: r}

		d := discovery.DiscoveredReaderData{
			EndpointGuid:    guid,
			TopicName:       topic.Name,
			TypeName:        topic.TypeName,
			QoS:             q,
			UnicastLocators: []types.Locator{pp.transportH.LocalLocator()},
		}
		pp.sedpSubWriter.Cache.AddChange(types.ChangeKindAlive, instanceFor(guid), discovery.EncodeDiscoveredReaderData(d, pp.endian), types.ParameterList{})
		return guid, nil
	})
	if err != nil {
		return types.GuidUnknown, err
	}
	return v.(types.Guid), nil
}

// Write publishes data as a new ALIVE sample from writer.
func (p *Participant) Write(writer types.Guid, data []byte, ts time.Time) error {
	_, err := p.call(func(pp *Participant) (interface{}, error) {
		dw, ok := pp.dataWriters[writer]
		if !ok {
			return nil, ddserrors.ErrBadParameter
		}
		var instance types.InstanceHandle
		ch, err := dw.writer.Cache.AddChange(types.ChangeKindAlive, instance, data, types.ParameterList{})
		if err != nil {
			rtpsmetrics.RecordSampleRejected(dw.topic.Name, "resource_limits")
			return nil, err
		}
		t := ts
		ch.SourceTimestamp = &t
		rtpsmetrics.RecordSampleWritten(dw.topic.Name)
		return nil, nil
	})
	return err
}

// Take returns up to max samples from reader and removes them from its
// cache.
func (p *Participant) Take(reader types.Guid, max int) ([]Sample, error) {
	v, err := p.call(func(pp *Participant) (interface{}, error) {
		dr, ok := pp.dataReaders[reader]
		if !ok {
			return nil, ddserrors.ErrBadParameter
		}
		samples := toSamples(dr.reader.Cache.Take(max))
		for range samples {
			rtpsmetrics.RecordSampleDelivered(dr.topic.Name)
		}
		return samples, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Sample), nil
}

// Read returns up to max samples from reader without removing them.
func (p *Participant) Read(reader types.Guid, max int) ([]Sample, error) {
	v, err := p.call(func(pp *Participant) (interface{}, error) {
		dr, ok := pp.dataReaders[reader]
		if !ok {
			return nil, ddserrors.ErrBadParameter
		}
		return toSamples(dr.reader.Cache.Read(max)), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Sample), nil
}

// WaitForAcknowledgments blocks until every matched reader proxy of
// writer has acknowledged all currently-written changes, or timeout
// elapses, per spec.md §6/§7.
func (p *Participant) WaitForAcknowledgments(writer types.Guid, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		v, err := p.call(func(pp *Participant) (interface{}, error) {
			dw, ok := pp.dataWriters[writer]
			if !ok {
				return nil, ddserrors.ErrBadParameter
			}
			max := dw.writer.Cache.SeqNumMax()
			for _, rg := range dw.writer.MatchedReaderGuids() {
				rp, ok := dw.writer.MatchedReader(rg)
				if !ok {
					continue
				}
				if len(rp.UnackedChanges(max)) > 0 {
					return false, nil
				}
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		if v.(bool) {
			return nil
		}
		if time.Now().After(deadline) {
			return ddserrors.ErrTimeout
		}
		time.Sleep(ackPollInterval)
	}
}

// GetDiscoveredParticipants lists the GUID prefixes of every currently
// leased remote participant.
func (p *Participant) GetDiscoveredParticipants() ([]types.GuidPrefix, error) {
	v, err := p.call(func(pp *Participant) (interface{}, error) {
		proxies := pp.participants.All()
		out := make([]types.GuidPrefix, 0, len(proxies))
		for _, proxy := range proxies {
			out = append(out, proxy.GuidPrefix)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.GuidPrefix), nil
}

// GetDiscoveredTopics lists every topic name known locally or via SEDP.
func (p *Participant) GetDiscoveredTopics() ([]string, error) {
	v, err := p.call(func(pp *Participant) (interface{}, error) {
		seen := make(map[string]struct{})
		var out []string
		for name := range pp.topicDescs {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
		for _, d := range pp.writers.All() {
			if _, ok := seen[d.TopicName]; !ok {
				seen[d.TopicName] = struct{}{}
				out = append(out, d.TopicName)
			}
		}
		for _, d := range pp.readers.All() {
			if _, ok := seen[d.TopicName]; !ok {
				seen[d.TopicName] = struct{}{}
				out = append(out, d.TopicName)
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// GetMatchedPublications lists the remote writer GUIDs matched to reader.
func (p *Participant) GetMatchedPublications(reader types.Guid) ([]types.Guid, error) {
	v, err := p.call(func(pp *Participant) (interface{}, error) {
		dr, ok := pp.dataReaders[reader]
		if !ok {
			return nil, ddserrors.ErrBadParameter
		}
		return dr.reader.MatchedWriterGuids(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.Guid), nil
}

// GetMatchedSubscriptions lists the remote reader GUIDs matched to writer.
func (p *Participant) GetMatchedSubscriptions(writer types.Guid) ([]types.Guid, error) {
	v, err := p.call(func(pp *Participant) (interface{}, error) {
		dw, ok := pp.dataWriters[writer]
		if !ok {
			return nil, ddserrors.ErrBadParameter
		}
		return dw.writer.MatchedReaderGuids(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.Guid), nil
}

// receiver.Endpoints implementation, so internal/receiver never needs to
// depend on this package.

func (p *Participant) StatefulReaderByWriter(writerGuid types.Guid) (*endpoint.StatefulReader, bool) {
	if _, ok := p.sedpPubReader.MatchedWriter(writerGuid); ok {
		return p.sedpPubReader, true
	}
	if _, ok := p.sedpSubReader.MatchedWriter(writerGuid); ok {
		return p.sedpSubReader, true
	}
	if _, ok := p.sedpTopicsReader.MatchedWriter(writerGuid); ok {
		return p.sedpTopicsReader, true
	}
	for _, dr := range p.dataReaders {
		if _, ok := dr.reader.MatchedWriter(writerGuid); ok {
			return dr.reader, true
		}
	}
	return nil, false
}

func (p *Participant) StatelessReaderForEntity(id types.EntityId) (*endpoint.StatelessReader, bool) {
	if id == types.EntityIdSPDPBuiltinParticipantReader || id == types.EntityIdUnknown {
		return p.spdpReader, true
	}
	return nil, false
}

func (p *Participant) StatefulWriterByEntity(id types.EntityId) (*endpoint.StatefulWriter, bool) {
	if id == p.sedpPubWriter.Guid.EntityId {
		return p.sedpPubWriter, true
	}
	if id == p.sedpSubWriter.Guid.EntityId {
		return p.sedpSubWriter, true
	}
	if id == p.sedpTopicsWriter.Guid.EntityId {
		return p.sedpTopicsWriter, true
	}
	for _, dw := range p.dataWriters {
		if dw.writer.Guid.EntityId == id {
			return dw.writer, true
		}
	}
	return nil, false
}

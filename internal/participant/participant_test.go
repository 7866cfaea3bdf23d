package participant

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nimbora/rtpscore/internal/discovery"
	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/transport/faketransport"
	"github.com/nimbora/rtpscore/internal/types"
)

func newTestParticipant(t *testing.T, net *faketransport.Network, host, app uint32) *Participant {
	t.Helper()
	prefix := types.NewGuidPrefix(host, app, 1)
	loc := types.NewLocatorUDPv4([]byte{127, 0, 0, 1}, 17000+host)
	tr := net.NewTransport(loc)
	if err := tr.JoinMulticastGroup(discovery.SPDPMulticastLocator(0)); err != nil {
		t.Fatalf("join multicast: %v", err)
	}

	p := New(Config{
		DomainID:           0,
		GuidPrefix:         prefix,
		VendorId:           types.VendorIdThisImplementation,
		Transport:          tr,
		MetatrafficUnicast: []types.Locator{loc},
		DefaultUnicast:     []types.Locator{loc},
		AnnounceInterval:   5 * time.Millisecond,
		PumpInterval:       2 * time.Millisecond,
		LeaseDuration:      10 * time.Second,
		Logger:             zerolog.Nop(),
	})
	p.Enable(context.Background())
	t.Cleanup(func() { p.Close() })
	return p
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

// TestReliableWriterReaderAcknowledgment exercises the reliable,
// KEEP_ALL, resource-limited scenario: three published samples collapse
// to two delivered once the reader's max_samples limit is reached, and
// WaitForAcknowledgments unblocks once the reader has caught up to
// everything the writer could still retain.
func TestReliableWriterReaderAcknowledgment(t *testing.T) {
	net := faketransport.NewNetwork()
	pubP := newTestParticipant(t, net, 1, 1)
	subP := newTestParticipant(t, net, 2, 1)

	reliableQoS := qos.Policies{
		Reliability: qos.Reliability{Kind: qos.Reliable},
		History:     qos.History{Kind: qos.KeepAll},
		ResourceLimits: qos.ResourceLimits{
			MaxSamples:            qos.LengthUnlimited,
			MaxInstances:          qos.LengthUnlimited,
			MaxSamplesPerInstance: qos.LengthUnlimited,
		},
	}
	readerQoS := reliableQoS
	readerQoS.ResourceLimits.MaxSamples = 2

	pub, err := pubP.CreatePublisher(reliableQoS)
	if err != nil {
		t.Fatalf("CreatePublisher: %v", err)
	}
	sub, err := subP.CreateSubscriber(readerQoS)
	if err != nil {
		t.Fatalf("CreateSubscriber: %v", err)
	}

	topicPub, err := pubP.CreateTopic("Weather", "WeatherSample", reliableQoS)
	if err != nil {
		t.Fatalf("CreateTopic (pub side): %v", err)
	}
	topicSub, err := subP.CreateTopic("Weather", "WeatherSample", readerQoS)
	if err != nil {
		t.Fatalf("CreateTopic (sub side): %v", err)
	}

	writer, err := pubP.CreateDataWriter(pub, topicPub, reliableQoS)
	if err != nil {
		t.Fatalf("CreateDataWriter: %v", err)
	}
	reader, err := subP.CreateDataReader(sub, topicSub, readerQoS)
	if err != nil {
		t.Fatalf("CreateDataReader: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		pubs, _ := subP.GetMatchedPublications(reader)
		return len(pubs) == 1
	})
	waitFor(t, 2*time.Second, func() bool {
		subs, _ := pubP.GetMatchedSubscriptions(writer)
		return len(subs) == 1
	})

	for i, payload := range [][]byte{[]byte("sample-1"), []byte("sample-2"), []byte("sample-3")} {
		if err := pubP.Write(writer, payload, time.Now()); err != nil {
			t.Fatalf("Write sample %d: %v", i, err)
		}
	}

	if err := pubP.WaitForAcknowledgments(writer, 2*time.Second); err != nil {
		t.Fatalf("WaitForAcknowledgments: %v", err)
	}

	samples, err := subP.Take(reader, 0)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected exactly 2 surviving samples under max_samples=2, got %d", len(samples))
	}
}

// TestParticipantDiscovery exercises SPDP/SEDP wiring end to end: two
// participants on the same domain discover each other's builtin
// endpoints without any topic-level entities being created.
func TestParticipantDiscovery(t *testing.T) {
	net := faketransport.NewNetwork()
	a := newTestParticipant(t, net, 10, 1)
	b := newTestParticipant(t, net, 20, 1)

	waitFor(t, 2*time.Second, func() bool {
		pa, _ := a.GetDiscoveredParticipants()
		pb, _ := b.GetDiscoveredParticipants()
		return len(pa) == 1 && len(pb) == 1
	})
}

// TestCreateDataWriterRejectsForeignPublisher ensures CreateDataWriter
// returns an error for a publisher handle this participant never created.
func TestCreateDataWriterRejectsForeignPublisher(t *testing.T) {
	net := faketransport.NewNetwork()
	p := newTestParticipant(t, net, 1, 1)

	topic, err := p.CreateTopic("Foo", "FooType", qos.Default())
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	_, err = p.CreateDataWriter(PublisherHandle(9999), topic, qos.Default())
	if err == nil {
		t.Fatalf("expected error for unknown publisher handle")
	}
}

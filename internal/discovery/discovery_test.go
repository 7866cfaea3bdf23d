package discovery

import (
	"testing"
	"time"

	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/types"
	"github.com/nimbora/rtpscore/internal/wire"
)

func TestParticipantProxyRoundTrip(t *testing.T) {
	pp := ParticipantProxy{
		DomainId:         7,
		DomainTag:        "",
		ProtocolVersion:  types.ProtocolVersion24,
		GuidPrefix:       types.NewGuidPrefix(1, 2, 3),
		VendorId:         types.VendorIdThisImplementation,
		MetatrafficUnicast: []types.Locator{types.NewLocatorUDPv4(nil, 7410)},
		AvailableBuiltinEndpoints: DefaultBuiltinEndpoints,
		LeaseDuration:    30 * time.Second,
	}
	encoded := EncodeParticipantProxy(pp, wire.LittleEndian)
	decoded, err := DecodeParticipantProxy(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.DomainId != pp.DomainId {
		t.Fatalf("domain id mismatch: got %d want %d", decoded.DomainId, pp.DomainId)
	}
	if decoded.GuidPrefix != pp.GuidPrefix {
		t.Fatalf("guid prefix mismatch")
	}
	if decoded.AvailableBuiltinEndpoints != pp.AvailableBuiltinEndpoints {
		t.Fatalf("builtin endpoints mismatch: got %x want %x", decoded.AvailableBuiltinEndpoints, pp.AvailableBuiltinEndpoints)
	}
	if decoded.LeaseDuration != pp.LeaseDuration {
		t.Fatalf("lease duration mismatch: got %v want %v", decoded.LeaseDuration, pp.LeaseDuration)
	}
	if len(decoded.MetatrafficUnicast) != 1 || decoded.MetatrafficUnicast[0].Port != 7410 {
		t.Fatalf("metatraffic unicast locator mismatch: %+v", decoded.MetatrafficUnicast)
	}
}

func TestParticipantTableLeaseExpiry(t *testing.T) {
	table := NewParticipantTable()
	var added, expired bool
	table.OnAdd = func(ParticipantProxy) { added = true }
	table.OnExpire = func(types.GuidPrefix) { expired = true }

	now := time.Unix(1000, 0)
	pp := ParticipantProxy{DomainId: 1, GuidPrefix: types.NewGuidPrefix(1, 1, 1), LeaseDuration: 10 * time.Second}
	table.OnSPDPReceived(pp, 1, "", now)
	if !added {
		t.Fatalf("expected OnAdd to fire for a matching domain")
	}
	if _, ok := table.Get(pp.GuidPrefix); !ok {
		t.Fatalf("expected participant to be present")
	}

	table.ExpireLeases(now.Add(5 * time.Second))
	if expired {
		t.Fatalf("did not expect expiry before lease duration elapses")
	}

	table.ExpireLeases(now.Add(11 * time.Second))
	if !expired {
		t.Fatalf("expected expiry after lease duration elapses")
	}
	if _, ok := table.Get(pp.GuidPrefix); ok {
		t.Fatalf("expected participant to be removed after expiry")
	}
}

func TestParticipantTableIgnoresDomainMismatch(t *testing.T) {
	table := NewParticipantTable()
	var added bool
	table.OnAdd = func(ParticipantProxy) { added = true }
	pp := ParticipantProxy{DomainId: 2, GuidPrefix: types.NewGuidPrefix(1, 1, 1)}
	table.OnSPDPReceived(pp, 1, "", time.Unix(0, 0))
	if added {
		t.Fatalf("expected mismatched domain id to be rejected")
	}
}

// SEDP writer matching: a writer added to the WriterTable is reported via
// OnDiscovered and matches a local reader on the same topic/type with
// compatible QoS.
func TestWriterTableMatchS5(t *testing.T) {
	wt := NewWriterTable()
	var matched DiscoveredWriterData
	wt.OnDiscovered = func(d DiscoveredWriterData) { matched = d }

	localReaderQoS := qos.Default()
	remoteWriterQoS := qos.Default()

	d := DiscoveredWriterData{
		EndpointGuid: types.Guid{Prefix: types.NewGuidPrefix(9, 9, 9), EntityId: types.EntityIdSEDPBuiltinPublicationsWriter},
		TopicName:    "chatter",
		TypeName:     "std_msgs::String",
		QoS:          remoteWriterQoS,
	}
	wt.Add(d)
	if matched.TopicName != "chatter" {
		t.Fatalf("expected OnDiscovered callback to fire with the added writer")
	}

	ok, reason := TopicMatch(d.TopicName, d.TypeName, d.QoS, "chatter", "std_msgs::String", localReaderQoS)
	if !ok {
		t.Fatalf("expected match, got incompatible: %s", reason)
	}
}

func TestTopicMatchRejectsTypeMismatch(t *testing.T) {
	ok, reason := TopicMatch("chatter", "TypeA", qos.Default(), "chatter", "TypeB", qos.Default())
	if ok {
		t.Fatalf("expected type name mismatch to be rejected")
	}
	if reason == "" {
		t.Fatalf("expected a reason string")
	}
}

func TestDiscoveredWriterDataRoundTrip(t *testing.T) {
	d := DiscoveredWriterData{
		EndpointGuid: types.Guid{Prefix: types.NewGuidPrefix(1, 2, 3), EntityId: types.EntityId{0, 1, 0, byte(types.EntityKindWriterWithKey)}},
		TopicName:    "topicA",
		TypeName:     "typeA",
		QoS:          qos.Default(),
		UnicastLocators: []types.Locator{types.NewLocatorUDPv4(nil, 7411)},
	}
	encoded := EncodeDiscoveredWriterData(d, wire.LittleEndian)
	decoded, err := DecodeDiscoveredWriterData(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.TopicName != d.TopicName || decoded.TypeName != d.TypeName {
		t.Fatalf("name mismatch: %+v", decoded)
	}
	if decoded.EndpointGuid != d.EndpointGuid {
		t.Fatalf("guid mismatch: got %+v want %+v", decoded.EndpointGuid, d.EndpointGuid)
	}
}

package discovery

import (
	"time"

	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/types"
	"github.com/nimbora/rtpscore/internal/wire"
)

// DiscoveredTopicData is the SEDP topic-announcer payload. Key is the
// builtin-topic key (PID_ENDPOINT_GUID on the wire, despite topics having
// no addressable GUID of their own), per spec.md §8 scenario S1.
type DiscoveredTopicData struct {
	Key       types.InstanceHandle
	TopicName string
	TypeName  string
	QoS       qos.Policies
}

// DiscoveredWriterData is the SEDP publications-announcer payload: a
// DiscoveredTopicData plus the writer's identity and locators.
type DiscoveredWriterData struct {
	EndpointGuid types.Guid
	TopicName    string
	TypeName     string
	QoS          qos.Policies
	UnicastLocators   []types.Locator
	MulticastLocators []types.Locator
}

// DiscoveredReaderData mirrors DiscoveredWriterData for the
// subscriptions-announcer.
type DiscoveredReaderData struct {
	EndpointGuid types.Guid
	TopicName    string
	TypeName     string
	QoS          qos.Policies
	UnicastLocators   []types.Locator
	MulticastLocators []types.Locator
	ExpectsInlineQos  bool
}

func encodeCDRString(s string, e wire.Endianness) []byte {
	w := wire.NewWriter(e)
	w.WriteString(s)
	return w.Bytes()
}

func decodeCDRString(b []byte, e wire.Endianness) string {
	r := wire.NewReader(b, e)
	s, _ := r.ReadString()
	return s
}

// encodeQoS appends the compatibility-relevant policy parameters common to
// DiscoveredTopicData/WriterData/ReaderData, per spec.md §6's endpoint
// discovery parameter set. Each parameter is omitted when it equals the
// RTPS default, matching the source's mutable-struct encoding (only
// non-default policies are sent over the wire).
func encodeQoS(pl *types.ParameterList, q qos.Policies, e wire.Endianness) {
	def := qos.Default()
	if q.Reliability != def.Reliability {
		pl.Add(wire.PidReliability, []byte{byte(q.Reliability.Kind), 0, 0, 0})
	}
	if q.Durability != def.Durability {
		pl.Add(wire.PidDurability, []byte{byte(q.Durability.Kind), 0, 0, 0})
	}
	if q.History != def.History {
		pl.Add(wire.PidHistory, append([]byte{byte(q.History.Kind), 0, 0, 0}, u32le(uint32(q.History.Depth), e)...))
	}
	if q.Ownership != def.Ownership {
		pl.Add(wire.PidOwnership, []byte{byte(q.Ownership.Kind), 0, 0, 0})
	}
	if q.DestinationOrder != def.DestinationOrder {
		pl.Add(wire.PidDestinationOrder, []byte{byte(q.DestinationOrder.Kind), 0, 0, 0})
	}
	if q.Deadline != def.Deadline {
		pl.Add(wire.PidDeadline, u32le(uint32(q.Deadline.Period.Nanoseconds()/1e6), e))
	}
	if q.Liveliness != def.Liveliness {
		pl.Add(wire.PidLiveliness, append([]byte{byte(q.Liveliness.Kind), 0, 0, 0}, u32le(uint32(q.Liveliness.LeaseDuration.Nanoseconds()/1e6), e)...))
	}
	if q.ResourceLimits != def.ResourceLimits {
		pl.Add(wire.PidResourceLimits, append(append(
			u32le(int32AsU32(q.ResourceLimits.MaxSamples), e),
			u32le(int32AsU32(q.ResourceLimits.MaxInstances), e)...),
			u32le(int32AsU32(q.ResourceLimits.MaxSamplesPerInstance), e)...))
	}
}

func int32AsU32(v int) uint32 { return uint32(int32(v)) }

func decodeQoS(pl types.ParameterList, e wire.Endianness) qos.Policies {
	q := qos.Default()
	for _, p := range pl.Parameters {
		switch p.ID {
		case wire.PidReliability:
			q.Reliability.Kind = qos.ReliabilityKind(p.Value[0])
		case wire.PidDurability:
			q.Durability.Kind = qos.DurabilityKind(p.Value[0])
		case wire.PidHistory:
			q.History.Kind = qos.HistoryKind(p.Value[0])
			if len(p.Value) >= 8 {
				q.History.Depth = int(int32(readU32le(p.Value[4:8], e)))
			}
		case wire.PidOwnership:
			q.Ownership.Kind = qos.OwnershipKind(p.Value[0])
		case wire.PidDestinationOrder:
			q.DestinationOrder.Kind = qos.DestinationOrderKind(p.Value[0])
		case wire.PidDeadline:
			q.Deadline.Period = msToDuration(readU32le(p.Value, e))
		case wire.PidLiveliness:
			q.Liveliness.Kind = qos.LivelinessKind(p.Value[0])
			if len(p.Value) >= 8 {
				q.Liveliness.LeaseDuration = msToDuration(readU32le(p.Value[4:8], e))
			}
		case wire.PidResourceLimits:
			if len(p.Value) >= 12 {
				q.ResourceLimits.MaxSamples = int(int32(readU32le(p.Value[0:4], e)))
				q.ResourceLimits.MaxInstances = int(int32(readU32le(p.Value[4:8], e)))
				q.ResourceLimits.MaxSamplesPerInstance = int(int32(readU32le(p.Value[8:12], e)))
			}
		}
	}
	return q
}

func msToDuration(ms uint32) time.Duration { return time.Duration(ms) * time.Millisecond }

// EncodeDiscoveredTopicData serializes t as PL_CDR, field order key
// (PID_ENDPOINT_GUID), then topic_name, type_name, then only the QoS
// parameters that differ from default — matching spec.md §8 scenario S1.
func EncodeDiscoveredTopicData(t DiscoveredTopicData, e wire.Endianness) []byte {
	var pl types.ParameterList
	pl.Add(wire.PidEndpointGuid, t.Key[:])
	pl.Add(wire.PidTopicName, encodeCDRString(t.TopicName, e))
	pl.Add(wire.PidTypeName, encodeCDRString(t.TypeName, e))
	encodeQoS(&pl, t.QoS, e)
	return wire.EncodePLCDR(pl, e)
}

func DecodeDiscoveredTopicData(buf []byte) (DiscoveredTopicData, error) {
	pl, err := wire.DecodePLCDR(buf)
	if err != nil {
		return DiscoveredTopicData{}, err
	}
	e := headerEndianness(buf)
	var t DiscoveredTopicData
	for _, p := range pl.Parameters {
		switch p.ID {
		case wire.PidEndpointGuid:
			copy(t.Key[:], p.Value)
		case wire.PidTopicName:
			t.TopicName = decodeCDRString(p.Value, e)
		case wire.PidTypeName:
			t.TypeName = decodeCDRString(p.Value, e)
		}
	}
	t.QoS = decodeQoS(pl, e)
	return t, nil
}

func EncodeDiscoveredWriterData(d DiscoveredWriterData, e wire.Endianness) []byte {
	var pl types.ParameterList
	guidBytes := d.EndpointGuid.Bytes()
	pl.Add(wire.PidEndpointGuid, guidBytes[:])
	pl.Add(wire.PidTopicName, encodeCDRString(d.TopicName, e))
	pl.Add(wire.PidTypeName, encodeCDRString(d.TypeName, e))
	for _, l := range d.UnicastLocators {
		pl.Add(wire.PidDefaultUnicastLocator, encodeLocator(l, e))
	}
	for _, l := range d.MulticastLocators {
		pl.Add(wire.PidDefaultMulticastLocator, encodeLocator(l, e))
	}
	encodeQoS(&pl, d.QoS, e)
	return wire.EncodePLCDR(pl, e)
}

func DecodeDiscoveredWriterData(buf []byte) (DiscoveredWriterData, error) {
	pl, err := wire.DecodePLCDR(buf)
	if err != nil {
		return DiscoveredWriterData{}, err
	}
	e := headerEndianness(buf)
	var d DiscoveredWriterData
	for _, p := range pl.Parameters {
		switch p.ID {
		case wire.PidEndpointGuid:
			copy(d.EndpointGuid.Prefix[:], p.Value[:12])
			copy(d.EndpointGuid.EntityId[:], p.Value[12:16])
		case wire.PidTopicName:
			d.TopicName = decodeCDRString(p.Value, e)
		case wire.PidTypeName:
			d.TypeName = decodeCDRString(p.Value, e)
		case wire.PidDefaultUnicastLocator:
			d.UnicastLocators = append(d.UnicastLocators, decodeLocator(p.Value, e))
		case wire.PidDefaultMulticastLocator:
			d.MulticastLocators = append(d.MulticastLocators, decodeLocator(p.Value, e))
		}
	}
	d.QoS = decodeQoS(pl, e)
	return d, nil
}

func EncodeDiscoveredReaderData(d DiscoveredReaderData, e wire.Endianness) []byte {
	var pl types.ParameterList
	guidBytes := d.EndpointGuid.Bytes()
	pl.Add(wire.PidEndpointGuid, guidBytes[:])
	pl.Add(wire.PidTopicName, encodeCDRString(d.TopicName, e))
	pl.Add(wire.PidTypeName, encodeCDRString(d.TypeName, e))
	for _, l := range d.UnicastLocators {
		pl.Add(wire.PidDefaultUnicastLocator, encodeLocator(l, e))
	}
	for _, l := range d.MulticastLocators {
		pl.Add(wire.PidDefaultMulticastLocator, encodeLocator(l, e))
	}
	if d.ExpectsInlineQos {
		pl.Add(wire.PidExpectsInlineQos, []byte{1, 0, 0, 0})
	}
	encodeQoS(&pl, d.QoS, e)
	return wire.EncodePLCDR(pl, e)
}

func DecodeDiscoveredReaderData(buf []byte) (DiscoveredReaderData, error) {
	pl, err := wire.DecodePLCDR(buf)
	if err != nil {
		return DiscoveredReaderData{}, err
	}
	e := headerEndianness(buf)
	var d DiscoveredReaderData
	for _, p := range pl.Parameters {
		switch p.ID {
		case wire.PidEndpointGuid:
			copy(d.EndpointGuid.Prefix[:], p.Value[:12])
			copy(d.EndpointGuid.EntityId[:], p.Value[12:16])
		case wire.PidTopicName:
			d.TopicName = decodeCDRString(p.Value, e)
		case wire.PidTypeName:
			d.TypeName = decodeCDRString(p.Value, e)
		case wire.PidDefaultUnicastLocator:
			d.UnicastLocators = append(d.UnicastLocators, decodeLocator(p.Value, e))
		case wire.PidDefaultMulticastLocator:
			d.MulticastLocators = append(d.MulticastLocators, decodeLocator(p.Value, e))
		case wire.PidExpectsInlineQos:
			d.ExpectsInlineQos = len(p.Value) > 0 && p.Value[0] != 0
		}
	}
	d.QoS = decodeQoS(pl, e)
	return d, nil
}

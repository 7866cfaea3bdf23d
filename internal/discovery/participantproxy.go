package discovery

import (
	"time"

	"github.com/nimbora/rtpscore/internal/types"
	"github.com/nimbora/rtpscore/internal/wire"
)

// ParticipantProxy is the decoded SPDP payload for a remote participant,
// per spec.md §3.
type ParticipantProxy struct {
	DomainId                uint32
	DomainTag                string
	ProtocolVersion          types.ProtocolVersion
	GuidPrefix               types.GuidPrefix
	VendorId                 types.VendorId
	ExpectsInlineQos         bool
	MetatrafficUnicast       []types.Locator
	MetatrafficMulticast     []types.Locator
	DefaultUnicast           []types.Locator
	DefaultMulticast         []types.Locator
	AvailableBuiltinEndpoints uint32
	ManualLivelinessCount    uint32
	LeaseDuration            time.Duration
}

const defaultLeaseSeconds = 100

// EncodeParticipantProxy serializes pp as PL_CDR, per the parameter ids
// enumerated in spec.md §6.
func EncodeParticipantProxy(pp ParticipantProxy, e wire.Endianness) []byte {
	var pl types.ParameterList
	pl.Add(wire.PidProtocolVersion, []byte{pp.ProtocolVersion.Major, pp.ProtocolVersion.Minor, 0, 0})
	pl.Add(wire.PidVendorId, []byte{pp.VendorId[0], pp.VendorId[1], 0, 0})
	pl.Add(wire.PidParticipantGuid, append(append([]byte{}, pp.GuidPrefix[:]...), types.EntityIdParticipant[:]...))
	pl.Add(wire.PidDomainId, u32le(pp.DomainId, e))
	if pp.DomainTag != "" {
		w := wire.NewWriter(e)
		w.WriteString(pp.DomainTag)
		pl.Add(wire.PidDomainTag, w.Bytes())
	}
	for _, l := range pp.MetatrafficUnicast {
		pl.Add(wire.PidMetatrafficUnicastLocator, encodeLocator(l, e))
	}
	for _, l := range pp.MetatrafficMulticast {
		pl.Add(wire.PidMetatrafficMulticastLocator, encodeLocator(l, e))
	}
	for _, l := range pp.DefaultUnicast {
		pl.Add(wire.PidDefaultUnicastLocator, encodeLocator(l, e))
	}
	for _, l := range pp.DefaultMulticast {
		pl.Add(wire.PidDefaultMulticastLocator, encodeLocator(l, e))
	}
	pl.Add(wire.PidBuiltinEndpointSet, u32le(pp.AvailableBuiltinEndpoints, e))
	pl.Add(wire.PidParticipantManualLiveliness, u32le(pp.ManualLivelinessCount, e))
	leaseSec := uint32(pp.LeaseDuration / time.Second)
	pl.Add(wire.PidParticipantLeaseDuration, append(u32le(leaseSec, e), u32le(0, e)...))
	return wire.EncodePLCDR(pl, e)
}

// DecodeParticipantProxy parses an SPDP payload.
func DecodeParticipantProxy(buf []byte) (ParticipantProxy, error) {
	pl, err := wire.DecodePLCDR(buf)
	if err != nil {
		return ParticipantProxy{}, err
	}
	e := headerEndianness(buf)
	var pp ParticipantProxy
	pp.LeaseDuration = defaultLeaseSeconds * time.Second
	for _, p := range pl.Parameters {
		switch p.ID {
		case wire.PidProtocolVersion:
			pp.ProtocolVersion = types.ProtocolVersion{Major: p.Value[0], Minor: p.Value[1]}
		case wire.PidVendorId:
			pp.VendorId = types.VendorId{p.Value[0], p.Value[1]}
		case wire.PidParticipantGuid:
			copy(pp.GuidPrefix[:], p.Value[:12])
		case wire.PidDomainId:
			pp.DomainId = readU32le(p.Value, e)
		case wire.PidDomainTag:
			r := wire.NewReader(p.Value, e)
			pp.DomainTag, _ = r.ReadString()
		case wire.PidMetatrafficUnicastLocator:
			pp.MetatrafficUnicast = append(pp.MetatrafficUnicast, decodeLocator(p.Value, e))
		case wire.PidMetatrafficMulticastLocator:
			pp.MetatrafficMulticast = append(pp.MetatrafficMulticast, decodeLocator(p.Value, e))
		case wire.PidDefaultUnicastLocator:
			pp.DefaultUnicast = append(pp.DefaultUnicast, decodeLocator(p.Value, e))
		case wire.PidDefaultMulticastLocator:
			pp.DefaultMulticast = append(pp.DefaultMulticast, decodeLocator(p.Value, e))
		case wire.PidBuiltinEndpointSet:
			pp.AvailableBuiltinEndpoints = readU32le(p.Value, e)
		case wire.PidParticipantManualLiveliness:
			pp.ManualLivelinessCount = readU32le(p.Value, e)
		case wire.PidParticipantLeaseDuration:
			sec := readU32le(p.Value[:4], e)
			pp.LeaseDuration = time.Duration(sec) * time.Second
		}
	}
	return pp, nil
}

func headerEndianness(buf []byte) wire.Endianness {
	if len(buf) < 2 {
		return wire.LittleEndian
	}
	repr := wire.RepresentationId(uint16(buf[0])<<8 | uint16(buf[1]))
	return repr.Endianness()
}

func u32le(v uint32, e wire.Endianness) []byte {
	w := wire.NewWriter(e)
	w.WriteU32(v)
	return w.Bytes()
}

func readU32le(b []byte, e wire.Endianness) uint32 {
	r := wire.NewReader(b, e)
	v, _ := r.ReadU32()
	return v
}

// encodeLocator writes the 24-byte RTPS locator representation: kind(i32)
// + port(u32) + address(16 bytes), always in the payload's own endianness.
func encodeLocator(l types.Locator, e wire.Endianness) []byte {
	w := wire.NewWriter(e)
	w.WriteI32(int32(l.Kind))
	w.WriteU32(l.Port)
	w.WriteBytes(l.Address[:])
	return w.Bytes()
}

func decodeLocator(buf []byte, e wire.Endianness) types.Locator {
	r := wire.NewReader(buf, e)
	kind, _ := r.ReadI32()
	port, _ := r.ReadU32()
	addrBytes, _ := r.ReadBytes(16)
	var l types.Locator
	l.Kind = types.LocatorKind(kind)
	l.Port = port
	copy(l.Address[:], addrBytes)
	return l
}

package wire

import (
	"fmt"

	"github.com/nimbora/rtpscore/internal/types"
)

// PidSentinel terminates a parameter list.
const PidSentinel uint16 = 0x0001

// Endpoint/topic discovery parameter ids, per spec.md §6.
const (
	PidTopicName         uint16 = 0x05
	PidTypeName          uint16 = 0x07
	PidDurability        uint16 = 0x1d
	PidDeadline          uint16 = 0x23
	PidLatencyBudget     uint16 = 0x27
	PidLiveliness        uint16 = 0x1b
	PidReliability       uint16 = 0x1a
	PidLifespan          uint16 = 0x2b
	PidDestinationOrder  uint16 = 0x25
	PidHistory           uint16 = 0x40
	PidResourceLimits    uint16 = 0x41
	PidOwnership         uint16 = 0x1f
	PidTopicData         uint16 = 0x2e
	PidDataRepresentation uint16 = 0x73
	PidEndpointGuid      uint16 = 0x5a
	PidTransportPriority uint16 = 0x49

	// SPDP participant-proxy parameter ids.
	PidProtocolVersion            uint16 = 0x15
	PidVendorId                   uint16 = 0x16
	PidParticipantGuid            uint16 = 0x50
	PidDomainId                   uint16 = 0x0f
	PidDomainTag                  uint16 = 0x4014
	PidExpectsInlineQos           uint16 = 0x43
	PidMetatrafficUnicastLocator  uint16 = 0x32
	PidMetatrafficMulticastLocator uint16 = 0x33
	PidDefaultUnicastLocator      uint16 = 0x31
	PidDefaultMulticastLocator    uint16 = 0x48
	PidBuiltinEndpointSet         uint16 = 0x58
	PidParticipantManualLiveliness uint16 = 0x34
	PidParticipantLeaseDuration   uint16 = 0x02
	PidStatusInfo                 uint16 = 0x71
)

// alignUp4 rounds n up to the next multiple of 4.
func alignUp4(n int) int {
	if n%4 == 0 {
		return n
	}
	return n + (4 - n%4)
}

// EncodePLCDR wraps a parameter list with its 4-byte CDR encapsulation
// header (representation id + options, always big-endian on the wire),
// producing the self-contained blob the serialization interface (§6)
// hands back for a built-in discovery type.
func EncodePLCDR(pl types.ParameterList, e Endianness) []byte {
	repr := ReprPL_CDR_BE
	if e == LittleEndian {
		repr = ReprPL_CDR_LE
	}
	out := []byte{byte(uint16(repr) >> 8), byte(uint16(repr)), 0, 0}
	return append(out, EncodeParameterList(pl, e)...)
}

// DecodePLCDR reads a 4-byte CDR encapsulation header and decodes the
// parameter list that follows in the endianness the header specifies.
func DecodePLCDR(buf []byte) (types.ParameterList, error) {
	if len(buf) < 4 {
		return types.ParameterList{}, ErrTruncated
	}
	repr := RepresentationId(uint16(buf[0])<<8 | uint16(buf[1]))
	if !repr.IsParameterList() {
		return types.ParameterList{}, fmt.Errorf("wire: representation 0x%04x is not a parameter list", repr)
	}
	return DecodeParameterList(buf[4:], repr.Endianness())
}

// EncodeParameterList writes pl's parameters in order, each value padded
// to a 4-byte boundary, terminated by PID_SENTINEL.
func EncodeParameterList(pl types.ParameterList, e Endianness) []byte {
	w := NewWriter(e)
	for _, p := range pl.Parameters {
		padded := alignUp4(len(p.Value))
		w.WriteU16(p.ID)
		w.WriteU16(uint16(padded))
		w.WriteBytes(p.Value)
		for i := len(p.Value); i < padded; i++ {
			w.WriteByte(0)
		}
	}
	w.WriteU16(PidSentinel)
	w.WriteU16(0)
	return w.Bytes()
}

// DecodeParameterList reads a parameter list until PID_SENTINEL or EOF.
// Reads at most 2^16 parameters. Unknown PIDs are preserved with their
// raw (padded) value bytes, not interpreted. The sentinel's length field
// is read but ignored, per spec.md §4.1.
func DecodeParameterList(buf []byte, e Endianness) (types.ParameterList, error) {
	r := NewReader(buf, e)
	var pl types.ParameterList
	for i := 0; i < 1<<16; i++ {
		if r.Remaining() < 4 {
			return pl, nil // malformed: missing sentinel, treat as end-of-list
		}
		pid, err := r.ReadU16()
		if err != nil {
			return pl, err
		}
		length, err := r.ReadU16()
		if err != nil {
			return pl, err
		}
		if pid == PidSentinel {
			return pl, nil
		}
		if int(length) > r.Remaining() {
			return pl, fmt.Errorf("wire: parameter 0x%04x declares length %d exceeding remaining buffer", pid, length)
		}
		value, err := r.ReadBytes(int(length))
		if err != nil {
			return pl, err
		}
		valCopy := make([]byte, len(value))
		copy(valCopy, value)
		pl.Add(pid, valCopy)
	}
	return pl, fmt.Errorf("wire: parameter list exceeds maximum parameter count")
}

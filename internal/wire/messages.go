package wire

import (
	"fmt"

	"github.com/nimbora/rtpscore/internal/types"
)

func writeSeqNum(w *Writer, sn types.SequenceNumber) {
	w.WriteI32(int32(int64(sn) >> 32))
	w.WriteU32(uint32(int64(sn) & 0xffffffff))
}

func readSeqNum(r *Reader) (types.SequenceNumber, error) {
	high, err := r.ReadI32()
	if err != nil {
		return 0, err
	}
	low, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return types.SequenceNumber(int64(high)<<32 | int64(low)), nil
}

func writeEntityId(w *Writer, id types.EntityId) { w.WriteBytes(id[:]) }

func readEntityId(r *Reader) (types.EntityId, error) {
	b, err := r.ReadBytes(types.EntityIdLength)
	if err != nil {
		return types.EntityId{}, err
	}
	var id types.EntityId
	copy(id[:], b)
	return id, nil
}

// writeSequenceNumberSet writes a SequenceNumberSet submessage element:
// base SequenceNumber, numBits (u32), then ceil(numBits/32) bitmaps.
func writeSequenceNumberSet(w *Writer, base types.SequenceNumber, members []types.SequenceNumber) {
	writeSeqNum(w, base)
	if len(members) == 0 {
		w.WriteU32(0)
		return
	}
	maxOffset := int64(0)
	for _, m := range members {
		off := int64(m) - int64(base)
		if off > maxOffset {
			maxOffset = off
		}
	}
	numBits := uint32(maxOffset + 1)
	w.WriteU32(numBits)
	numWords := (int(numBits) + 31) / 32
	bitmap := make([]uint32, numWords)
	for _, m := range members {
		off := int64(m) - int64(base)
		if off < 0 {
			continue
		}
		word := off / 32
		bit := uint(off % 32)
		bitmap[word] |= 1 << (31 - bit) // MSB-first, per RTPS bitmap convention
	}
	for _, word := range bitmap {
		w.WriteU32(word)
	}
}

func readSequenceNumberSet(r *Reader) (base types.SequenceNumber, members []types.SequenceNumber, err error) {
	base, err = readSeqNum(r)
	if err != nil {
		return
	}
	numBits, err := r.ReadU32()
	if err != nil {
		return
	}
	numWords := (int(numBits) + 31) / 32
	for i := 0; i < numWords; i++ {
		word, werr := r.ReadU32()
		if werr != nil {
			err = werr
			return
		}
		for bit := 0; bit < 32; bit++ {
			offset := i*32 + bit
			if offset >= int(numBits) {
				break
			}
			if word&(1<<(31-uint(bit))) != 0 {
				members = append(members, types.SequenceNumber(int64(base)+int64(offset)))
			}
		}
	}
	return
}

// Heartbeat is the HEARTBEAT submessage (spec.md §4.6).
type Heartbeat struct {
	ReaderId   types.EntityId
	WriterId   types.EntityId
	FirstSN    types.SequenceNumber
	LastSN     types.SequenceNumber
	Count      uint32
	FinalFlag  bool
	LivelinessFlag bool
}

func EncodeHeartbeat(hb Heartbeat, e Endianness) RawSubmessage {
	w := NewWriter(e)
	writeEntityId(w, hb.ReaderId)
	writeEntityId(w, hb.WriterId)
	writeSeqNum(w, hb.FirstSN)
	writeSeqNum(w, hb.LastSN)
	w.WriteU32(hb.Count)
	flags := flagEndianness
	if hb.FinalFlag {
		flags |= 0x02
	}
	if hb.LivelinessFlag {
		flags |= 0x04
	}
	if e == BigEndian {
		flags = flags &^ flagEndianness
	}
	return RawSubmessage{ID: SubmsgHeartbeat, Flags: flags, Body: w.Bytes()}
}

func DecodeHeartbeat(raw RawSubmessage) (Heartbeat, error) {
	r := NewReader(raw.Body, raw.Endianness())
	var hb Heartbeat
	var err error
	if hb.ReaderId, err = readEntityId(r); err != nil {
		return hb, err
	}
	if hb.WriterId, err = readEntityId(r); err != nil {
		return hb, err
	}
	if hb.FirstSN, err = readSeqNum(r); err != nil {
		return hb, err
	}
	if hb.LastSN, err = readSeqNum(r); err != nil {
		return hb, err
	}
	if hb.Count, err = r.ReadU32(); err != nil {
		return hb, err
	}
	hb.FinalFlag = raw.Flags&0x02 != 0
	hb.LivelinessFlag = raw.Flags&0x04 != 0
	if hb.FirstSN < 1 {
		return hb, fmt.Errorf("wire: invalid HEARTBEAT first_sn %d (must be >= 1)", hb.FirstSN)
	}
	if hb.LastSN < hb.FirstSN-1 {
		return hb, fmt.Errorf("wire: invalid HEARTBEAT last_sn %d < first_sn-1 %d", hb.LastSN, hb.FirstSN-1)
	}
	return hb, nil
}

// AckNack is the ACKNACK submessage (spec.md §4.3, §4.6).
type AckNack struct {
	ReaderId       types.EntityId
	WriterId       types.EntityId
	ReaderSNBase   types.SequenceNumber
	ReaderSNSet    []types.SequenceNumber
	Count          uint32
	FinalFlag      bool
}

func EncodeAckNack(an AckNack, e Endianness) RawSubmessage {
	w := NewWriter(e)
	writeEntityId(w, an.ReaderId)
	writeEntityId(w, an.WriterId)
	writeSequenceNumberSet(w, an.ReaderSNBase, an.ReaderSNSet)
	w.WriteU32(an.Count)
	flags := flagEndianness
	if an.FinalFlag {
		flags |= 0x02
	}
	if e == BigEndian {
		flags = flags &^ flagEndianness
	}
	return RawSubmessage{ID: SubmsgAckNack, Flags: flags, Body: w.Bytes()}
}

func DecodeAckNack(raw RawSubmessage) (AckNack, error) {
	r := NewReader(raw.Body, raw.Endianness())
	var an AckNack
	var err error
	if an.ReaderId, err = readEntityId(r); err != nil {
		return an, err
	}
	if an.WriterId, err = readEntityId(r); err != nil {
		return an, err
	}
	if an.ReaderSNBase, an.ReaderSNSet, err = readSequenceNumberSet(r); err != nil {
		return an, err
	}
	if an.Count, err = r.ReadU32(); err != nil {
		return an, err
	}
	an.FinalFlag = raw.Flags&0x02 != 0
	if an.ReaderSNBase < 1 {
		return an, fmt.Errorf("wire: invalid ACKNACK base %d (must be >= 1)", an.ReaderSNBase)
	}
	return an, nil
}

// Gap is the GAP submessage: an irrelevant-range [gapStart, gapList.base)
// plus an explicit set of additional irrelevant sequence numbers.
type Gap struct {
	ReaderId types.EntityId
	WriterId types.EntityId
	GapStart types.SequenceNumber
	GapListBase types.SequenceNumber
	GapList  []types.SequenceNumber
}

func EncodeGap(g Gap, e Endianness) RawSubmessage {
	w := NewWriter(e)
	writeEntityId(w, g.ReaderId)
	writeEntityId(w, g.WriterId)
	writeSeqNum(w, g.GapStart)
	writeSequenceNumberSet(w, g.GapListBase, g.GapList)
	flags := flagEndianness
	if e == BigEndian {
		flags = 0
	}
	return RawSubmessage{ID: SubmsgGap, Flags: flags, Body: w.Bytes()}
}

func DecodeGap(raw RawSubmessage) (Gap, error) {
	r := NewReader(raw.Body, raw.Endianness())
	var g Gap
	var err error
	if g.ReaderId, err = readEntityId(r); err != nil {
		return g, err
	}
	if g.WriterId, err = readEntityId(r); err != nil {
		return g, err
	}
	if g.GapStart, err = readSeqNum(r); err != nil {
		return g, err
	}
	if g.GapListBase, g.GapList, err = readSequenceNumberSet(r); err != nil {
		return g, err
	}
	return g, nil
}

// IsNoOp reports whether this GAP has an empty list and gap_start ==
// gap_end (gap_list_base), per spec.md §8 boundary behavior.
func (g Gap) IsNoOp() bool {
	return len(g.GapList) == 0 && g.GapStart == g.GapListBase
}

// Data is the DATA submessage (spec.md §4.7, §6).
type Data struct {
	ReaderId            types.EntityId
	WriterId            types.EntityId
	WriterSN            types.SequenceNumber
	InlineQos           types.ParameterList
	SerializedPayload   []byte
	PayloadRepresentation RepresentationId
	InlineQosFlag       bool
	DataFlag            bool
	KeyFlag             bool
	NonStandardPayloadFlag bool
}

// octetsToInlineQosFixed is the constant byte count from immediately
// after the octets_to_inline_qos field to the start of inline QoS / the
// serialized payload: readerId(4) + writerId(4) + writerSN(8).
const octetsToInlineQosFixed = 16

func EncodeData(d Data, e Endianness) RawSubmessage {
	w := NewWriter(e)
	w.WriteU16(0) // extraFlags
	w.WriteU16(octetsToInlineQosFixed)
	writeEntityId(w, d.ReaderId)
	writeEntityId(w, d.WriterId)
	writeSeqNum(w, d.WriterSN)

	if d.InlineQosFlag {
		w.WriteBytes(EncodeParameterList(d.InlineQos, e))
	}
	if d.DataFlag || d.KeyFlag {
		repr := d.PayloadRepresentation
		if repr == 0 {
			if e == LittleEndian {
				repr = ReprCDR_LE
			} else {
				repr = ReprCDR_BE
			}
		}
		// the representation id + options header is always big-endian.
		w.WriteByte(byte(uint16(repr) >> 8))
		w.WriteByte(byte(uint16(repr)))
		w.WriteByte(0)
		w.WriteByte(0)
		w.WriteBytes(d.SerializedPayload)
	}

	flags := flagEndianness
	if d.InlineQosFlag {
		flags |= 0x02
	}
	if d.DataFlag {
		flags |= 0x04
	}
	if d.KeyFlag {
		flags |= 0x08
	}
	if d.NonStandardPayloadFlag {
		flags |= 0x10
	}
	if e == BigEndian {
		flags = flags &^ flagEndianness
	}
	return RawSubmessage{ID: SubmsgData, Flags: flags, Body: w.Bytes()}
}

func DecodeData(raw RawSubmessage) (Data, error) {
	e := raw.Endianness()
	r := NewReader(raw.Body, e)
	var d Data
	d.InlineQosFlag = raw.Flags&0x02 != 0
	d.DataFlag = raw.Flags&0x04 != 0
	d.KeyFlag = raw.Flags&0x08 != 0
	d.NonStandardPayloadFlag = raw.Flags&0x10 != 0

	if _, err := r.ReadU16(); err != nil { // extraFlags
		return d, err
	}
	octetsToInlineQos, err := r.ReadU16()
	if err != nil {
		return d, err
	}
	inlineQosBase := r.pos
	if d.ReaderId, err = readEntityId(r); err != nil {
		return d, err
	}
	if d.WriterId, err = readEntityId(r); err != nil {
		return d, err
	}
	if d.WriterSN, err = readSeqNum(r); err != nil {
		return d, err
	}
	_ = octetsToInlineQos
	r.pos = inlineQosBase + int(octetsToInlineQos)

	if d.InlineQosFlag {
		qos, err := DecodeParameterList(raw.Body[r.pos:], e)
		if err != nil {
			return d, err
		}
		d.InlineQos = qos
		r.pos += len(EncodeParameterList(qos, e))
	}
	if d.DataFlag || d.KeyFlag {
		if r.Remaining() < 4 {
			return d, ErrTruncated
		}
		reprBytes, err := r.ReadBytes(2)
		if err != nil {
			return d, err
		}
		d.PayloadRepresentation = RepresentationId(uint16(reprBytes[0])<<8 | uint16(reprBytes[1]))
		if _, err := r.ReadBytes(2); err != nil { // options
			return d, err
		}
		rest, err := r.ReadBytes(r.Remaining())
		if err != nil {
			return d, err
		}
		d.SerializedPayload = append([]byte(nil), rest...)
	}
	return d, nil
}

// InfoTs is the INFO_TS submessage.
type InfoTs struct {
	Invalidate bool
	Seconds    int32
	Fraction   uint32
}

func EncodeInfoTs(ts InfoTs, e Endianness) RawSubmessage {
	w := NewWriter(e)
	flags := flagEndianness
	if ts.Invalidate {
		flags |= 0x02
	} else {
		w.WriteI32(ts.Seconds)
		w.WriteU32(ts.Fraction)
	}
	if e == BigEndian {
		flags = flags &^ flagEndianness
	}
	return RawSubmessage{ID: SubmsgInfoTs, Flags: flags, Body: w.Bytes()}
}

func DecodeInfoTs(raw RawSubmessage) (InfoTs, error) {
	var ts InfoTs
	ts.Invalidate = raw.Flags&0x02 != 0
	if ts.Invalidate {
		return ts, nil
	}
	r := NewReader(raw.Body, raw.Endianness())
	var err error
	if ts.Seconds, err = r.ReadI32(); err != nil {
		return ts, err
	}
	if ts.Fraction, err = r.ReadU32(); err != nil {
		return ts, err
	}
	return ts, nil
}

// InfoSrc replaces source protocol version, vendor id and guid prefix.
type InfoSrc struct {
	Version    types.ProtocolVersion
	VendorId   types.VendorId
	GuidPrefix types.GuidPrefix
}

func EncodeInfoSrc(is InfoSrc, e Endianness) RawSubmessage {
	w := NewWriter(e)
	w.WriteU32(0) // unused
	w.WriteByte(is.Version.Major)
	w.WriteByte(is.Version.Minor)
	w.WriteByte(is.VendorId[0])
	w.WriteByte(is.VendorId[1])
	w.WriteBytes(is.GuidPrefix[:])
	flags := flagEndianness
	if e == BigEndian {
		flags = 0
	}
	return RawSubmessage{ID: SubmsgInfoSrc, Flags: flags, Body: w.Bytes()}
}

func DecodeInfoSrc(raw RawSubmessage) (InfoSrc, error) {
	r := NewReader(raw.Body, raw.Endianness())
	var is InfoSrc
	if _, err := r.ReadU32(); err != nil {
		return is, err
	}
	maj, err := r.ReadByte()
	if err != nil {
		return is, err
	}
	min, err := r.ReadByte()
	if err != nil {
		return is, err
	}
	is.Version = types.ProtocolVersion{Major: maj, Minor: min}
	v0, err := r.ReadByte()
	if err != nil {
		return is, err
	}
	v1, err := r.ReadByte()
	if err != nil {
		return is, err
	}
	is.VendorId = types.VendorId{v0, v1}
	b, err := r.ReadBytes(types.GuidPrefixLength)
	if err != nil {
		return is, err
	}
	copy(is.GuidPrefix[:], b)
	return is, nil
}

// InfoDst replaces the destination guid prefix.
type InfoDst struct {
	GuidPrefix types.GuidPrefix
}

func EncodeInfoDst(id InfoDst, e Endianness) RawSubmessage {
	w := NewWriter(e)
	w.WriteBytes(id.GuidPrefix[:])
	flags := flagEndianness
	if e == BigEndian {
		flags = 0
	}
	return RawSubmessage{ID: SubmsgInfoDst, Flags: flags, Body: w.Bytes()}
}

func DecodeInfoDst(raw RawSubmessage) (InfoDst, error) {
	r := NewReader(raw.Body, raw.Endianness())
	var id InfoDst
	b, err := r.ReadBytes(types.GuidPrefixLength)
	if err != nil {
		return id, err
	}
	copy(id.GuidPrefix[:], b)
	return id, nil
}

// Pad is an empty placeholder submessage.
func EncodePad(e Endianness) RawSubmessage {
	flags := byte(0)
	if e == LittleEndian {
		flags = flagEndianness
	}
	return RawSubmessage{ID: SubmsgPad, Flags: flags, Body: nil}
}

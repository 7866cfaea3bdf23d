package wire

import (
	"bytes"
	"testing"

	"github.com/nimbora/rtpscore/internal/types"
)

func hexBytes(t *testing.T, spaced string) []byte {
	t.Helper()
	var out []byte
	cur := byte(0)
	nibble := 0
	have := false
	for _, c := range spaced {
		if c == ' ' || c == '\n' || c == '\t' {
			continue
		}
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = byte(c - '0')
		case c >= 'a' && c <= 'f':
			v = byte(c-'a') + 10
		default:
			t.Fatalf("bad hex char %q", c)
		}
		if !have {
			cur = v << 4
			have = true
		} else {
			cur |= v
			out = append(out, cur)
			have = false
		}
		nibble++
	}
	return out
}

// S2 — HEARTBEAT encoding (little-endian).
func TestHeartbeatEncodeS2(t *testing.T) {
	hb := Heartbeat{
		ReaderId:  types.EntityId{0x10, 0x12, 0x14, 0x04},
		WriterId:  types.EntityId{0x26, 0x24, 0x22, 0x02},
		FirstSN:   1233,
		LastSN:    1237,
		Count:     8,
		FinalFlag: true,
	}
	raw := EncodeHeartbeat(hb, LittleEndian)
	got := append([]byte{byte(raw.ID), raw.Flags, byte(len(raw.Body)), byte(len(raw.Body) >> 8)}, raw.Body...)
	want := hexBytes(t, "07 03 1c 00  10 12 14 04  26 24 22 02  00 00 00 00 d1 04 00 00  00 00 00 00 d5 04 00 00  08 00 00 00")
	if !bytes.Equal(got, want) {
		t.Fatalf("heartbeat encoding mismatch:\n got  %x\n want %x", got, want)
	}
}

func TestHeartbeatDecodeRoundTrip(t *testing.T) {
	hb := Heartbeat{
		ReaderId:  types.EntityId{0x10, 0x12, 0x14, 0x04},
		WriterId:  types.EntityId{0x26, 0x24, 0x22, 0x02},
		FirstSN:   1233,
		LastSN:    1237,
		Count:     8,
		FinalFlag: true,
	}
	raw := EncodeHeartbeat(hb, LittleEndian)
	got, err := DecodeHeartbeat(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != hb {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, hb)
	}
}

func TestHeartbeatValidityBoundary(t *testing.T) {
	// HEARTBEAT with first_sn=1, last_sn=0 is valid (empty cache).
	hb := Heartbeat{FirstSN: 1, LastSN: 0, Count: 1}
	raw := EncodeHeartbeat(hb, LittleEndian)
	if _, err := DecodeHeartbeat(raw); err != nil {
		t.Fatalf("expected first_sn=1,last_sn=0 to be valid: %v", err)
	}

	bad := Heartbeat{FirstSN: 0, LastSN: 0, Count: 1}
	raw = EncodeHeartbeat(bad, LittleEndian)
	if _, err := DecodeHeartbeat(raw); err == nil {
		t.Fatalf("expected first_sn=0 to be rejected")
	}
}

func TestAckNackBaseZeroInvalid(t *testing.T) {
	an := AckNack{ReaderSNBase: 0, Count: 1}
	raw := EncodeAckNack(an, LittleEndian)
	if _, err := DecodeAckNack(raw); err == nil {
		t.Fatalf("expected ACKNACK base=0 to be rejected")
	}
}

func TestGapNoOp(t *testing.T) {
	g := Gap{GapStart: 5, GapListBase: 5}
	if !g.IsNoOp() {
		t.Fatalf("expected empty gap_list with gap_start==gap_list_base to be a no-op")
	}
}

func TestMessageRoundTripBothEndiannesses(t *testing.T) {
	for _, e := range []Endianness{LittleEndian, BigEndian} {
		hb := Heartbeat{ReaderId: types.EntityId{1, 2, 3, 4}, WriterId: types.EntityId{5, 6, 7, 8}, FirstSN: 10, LastSN: 20, Count: 3, FinalFlag: true}
		an := AckNack{ReaderId: types.EntityId{1, 2, 3, 4}, WriterId: types.EntityId{5, 6, 7, 8}, ReaderSNBase: 11, ReaderSNSet: []types.SequenceNumber{11, 13, 15}, Count: 1}
		gap := Gap{ReaderId: types.EntityId{1, 2, 3, 4}, WriterId: types.EntityId{5, 6, 7, 8}, GapStart: 5, GapListBase: 6, GapList: []types.SequenceNumber{6, 8}}
		data := Data{ReaderId: types.EntityId{1, 2, 3, 4}, WriterId: types.EntityId{5, 6, 7, 8}, WriterSN: 7, DataFlag: true, SerializedPayload: []byte("hello-rtps"), PayloadRepresentation: ReprCDR_LE}
		ts := InfoTs{Seconds: 100, Fraction: 200}

		msg := Message{
			Header: NewHeader(types.NewGuidPrefix(1, 2, 3), types.VendorIdThisImplementation),
			Submessages: []RawSubmessage{
				EncodeInfoTs(ts, e),
				EncodeHeartbeat(hb, e),
				EncodeAckNack(an, e),
				EncodeGap(gap, e),
				EncodeData(data, e),
			},
		}

		encoded := Encode(msg)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.Header != msg.Header {
			t.Fatalf("header mismatch: got %+v want %+v", decoded.Header, msg.Header)
		}
		if len(decoded.Submessages) != 5 {
			t.Fatalf("expected 5 submessages, got %d", len(decoded.Submessages))
		}

		gotHB, err := DecodeHeartbeat(decoded.Submessages[1])
		if err != nil || gotHB != hb {
			t.Fatalf("heartbeat mismatch: %+v err=%v", gotHB, err)
		}
		gotAN, err := DecodeAckNack(decoded.Submessages[2])
		if err != nil {
			t.Fatalf("acknack decode: %v", err)
		}
		if gotAN.ReaderSNBase != an.ReaderSNBase || len(gotAN.ReaderSNSet) != len(an.ReaderSNSet) {
			t.Fatalf("acknack mismatch: %+v", gotAN)
		}
		gotGap, err := DecodeGap(decoded.Submessages[3])
		if err != nil || gotGap.GapStart != gap.GapStart {
			t.Fatalf("gap mismatch: %+v err=%v", gotGap, err)
		}
		gotData, err := DecodeData(decoded.Submessages[4])
		if err != nil || !bytes.Equal(gotData.SerializedPayload, data.SerializedPayload) {
			t.Fatalf("data mismatch: %+v err=%v", gotData, err)
		}
	}
}

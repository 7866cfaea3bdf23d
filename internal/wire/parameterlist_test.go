package wire

import (
	"bytes"
	"testing"

	"github.com/nimbora/rtpscore/internal/types"
)

func TestParameterListRoundTrip(t *testing.T) {
	var pl types.ParameterList
	pl.Add(PidEndpointGuid, []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0})
	pl.Add(PidTopicName, func() []byte {
		w := NewWriter(LittleEndian)
		w.WriteString("ab")
		return w.Bytes()
	}())

	encoded := EncodeParameterList(pl, LittleEndian)
	decoded, err := DecodeParameterList(encoded, LittleEndian)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Parameters) != len(pl.Parameters) {
		t.Fatalf("parameter count mismatch: got %d want %d", len(decoded.Parameters), len(pl.Parameters))
	}
	for i := range pl.Parameters {
		if decoded.Parameters[i].ID != pl.Parameters[i].ID {
			t.Fatalf("parameter %d id mismatch", i)
		}
		if !bytes.Equal(decoded.Parameters[i].Value, pl.Parameters[i].Value) {
			t.Fatalf("parameter %d value mismatch: got %x want %x", i, decoded.Parameters[i].Value, pl.Parameters[i].Value)
		}
	}

	// re-encoding the decoded list must be byte-identical (idempotent).
	reencoded := EncodeParameterList(decoded, LittleEndian)
	if !bytes.Equal(reencoded, encoded) {
		t.Fatalf("re-encode mismatch:\n got  %x\n want %x", reencoded, encoded)
	}
}

func TestParameterListDecodeIgnoresUnknownPIDsAndSentinelLookingBytes(t *testing.T) {
	var pl types.ParameterList
	// A value that embeds bytes 01 00 00 00 (which look like the
	// PID_SENTINEL header) inside its payload; decode must not stop early
	// since it advances purely by declared length, never scans values.
	pl.Add(0x9999, []byte{0xaa, 0xbb, 0x01, 0x00, 0x00, 0x00, 0xcc, 0xdd})
	pl.Add(PidTypeName, []byte{0x11, 0x22, 0x33, 0x44})

	encoded := EncodeParameterList(pl, LittleEndian)
	decoded, err := DecodeParameterList(encoded, LittleEndian)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Parameters) != 2 {
		t.Fatalf("expected both parameters to survive despite embedded sentinel-looking bytes, got %d", len(decoded.Parameters))
	}
	if decoded.Parameters[1].ID != PidTypeName {
		t.Fatalf("second parameter should still be PidTypeName, got 0x%04x", decoded.Parameters[1].ID)
	}
}

// PL_CDR framing itself (header + sentinel) for a parameter list shaped
// like a DiscoveredTopicData payload. The actual discovery-layer wire
// format for DiscoveredTopicData is exercised end-to-end in
// internal/discovery's TestDiscoveredTopicDataSerializationS1, which calls
// EncodeDiscoveredTopicData directly rather than hand-building a
// ParameterList here.
func TestEncodePLCDRFraming(t *testing.T) {
	var pl types.ParameterList
	pl.Add(PidEndpointGuid, []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0})

	nameW := NewWriter(LittleEndian)
	nameW.WriteString("ab")
	pl.Add(PidTopicName, nameW.Bytes())

	typeW := NewWriter(LittleEndian)
	typeW.WriteString("cd")
	pl.Add(PidTypeName, typeW.Bytes())

	got := EncodePLCDR(pl, LittleEndian)
	want := hexBytes(t, `
		00 03 00 00
		5a 00 10 00
		01 00 00 00 02 00 00 00 03 00 00 00 04 00 00 00
		05 00 08 00
		03 00 00 00 61 62 00 00
		07 00 08 00
		03 00 00 00 63 64 00 00
		01 00 00 00
	`)
	if !bytes.Equal(got, want) {
		t.Fatalf("framing mismatch:\n got  %x\n want %x", got, want)
	}

	decodedPL, err := DecodePLCDR(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decodedPL.Parameters) != 3 {
		t.Fatalf("expected 3 parameters, got %d", len(decodedPL.Parameters))
	}
}

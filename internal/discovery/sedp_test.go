package discovery

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/types"
	"github.com/nimbora/rtpscore/internal/wire"
)

func hexBytes(t *testing.T, spaced string) []byte {
	t.Helper()
	clean := strings.ReplaceAll(strings.ReplaceAll(strings.ReplaceAll(spaced, " ", ""), "\t", ""), "\n", "")
	b, err := hex.DecodeString(clean)
	if err != nil {
		t.Fatalf("bad hex literal: %v", err)
	}
	return b
}

// S1 — DiscoveredTopicData serialization (PL_CDR_LE), default QoS omits
// every QoS parameter from the wire.
func TestDiscoveredTopicDataSerializationS1(t *testing.T) {
	d := DiscoveredTopicData{
		Key:       types.InstanceHandle{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0},
		TopicName: "ab",
		TypeName:  "cd",
		QoS:       qos.Default(),
	}

	got := EncodeDiscoveredTopicData(d, wire.LittleEndian)
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
		t.Fatalf("DiscoveredTopicData mismatch:\n got  %x\n want %x", got, want)
	}

	back, err := DecodeDiscoveredTopicData(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Key != d.Key {
		t.Fatalf("key mismatch: got %x want %x", back.Key, d.Key)
	}
	if back.TopicName != d.TopicName || back.TypeName != d.TypeName {
		t.Fatalf("name mismatch: got %q/%q want %q/%q", back.TopicName, back.TypeName, d.TopicName, d.TypeName)
	}
	if back.QoS != d.QoS {
		t.Fatalf("qos mismatch: got %+v want %+v", back.QoS, d.QoS)
	}
}

// A non-default QoS field must round-trip and appear on the wire.
func TestDiscoveredTopicDataSerializationNonDefaultQoS(t *testing.T) {
	q := qos.Default()
	q.Reliability.Kind = qos.Reliable
	q.History.Depth = 5

	d := DiscoveredTopicData{
		Key:       types.InstanceHandle{9, 9, 9, 9, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		TopicName: "weather",
		TypeName:  "Temperature",
		QoS:       q,
	}

	encoded := EncodeDiscoveredTopicData(d, wire.LittleEndian)
	back, err := DecodeDiscoveredTopicData(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.QoS.Reliability.Kind != qos.Reliable {
		t.Fatalf("expected reliability to round-trip as Reliable, got %v", back.QoS.Reliability.Kind)
	}
	if back.QoS.History.Depth != 5 {
		t.Fatalf("expected history depth 5, got %d", back.QoS.History.Depth)
	}
	if back.Key != d.Key || back.TopicName != d.TopicName || back.TypeName != d.TypeName {
		t.Fatalf("identity fields did not round-trip")
	}
}

package wire

import (
	"fmt"

	"github.com/nimbora/rtpscore/internal/types"
)

// MessageHeaderLength is the fixed 20-byte RTPS message header size:
// 4-byte magic + 2-byte version + 2-byte vendor id + 12-byte guid prefix.
const MessageHeaderLength = 20

var rtpsMagic = [4]byte{'R', 'T', 'P', 'S'}

// MessageHeader is the fixed preamble of every RTPS message.
type MessageHeader struct {
	Version     types.ProtocolVersion
	VendorId    types.VendorId
	GuidPrefix  types.GuidPrefix
}

func EncodeMessageHeader(h MessageHeader) []byte {
	buf := make([]byte, MessageHeaderLength)
	copy(buf[0:4], rtpsMagic[:])
	buf[4] = h.Version.Major
	buf[5] = h.Version.Minor
	buf[6] = h.VendorId[0]
	buf[7] = h.VendorId[1]
	copy(buf[8:20], h.GuidPrefix[:])
	return buf
}

func DecodeMessageHeader(buf []byte) (MessageHeader, error) {
	var h MessageHeader
	if len(buf) < MessageHeaderLength {
		return h, ErrTruncated
	}
	if buf[0] != rtpsMagic[0] || buf[1] != rtpsMagic[1] || buf[2] != rtpsMagic[2] || buf[3] != rtpsMagic[3] {
		return h, fmt.Errorf("wire: bad RTPS magic %q", buf[0:4])
	}
	h.Version = types.ProtocolVersion{Major: buf[4], Minor: buf[5]}
	h.VendorId = types.VendorId{buf[6], buf[7]}
	copy(h.GuidPrefix[:], buf[8:20])
	return h, nil
}

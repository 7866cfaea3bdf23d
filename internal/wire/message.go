package wire

import "github.com/nimbora/rtpscore/internal/types"

// Message is a full RTPS message: header plus an ordered list of
// submessages.
type Message struct {
	Header      MessageHeader
	Submessages []RawSubmessage
}

func Encode(m Message) []byte {
	out := EncodeMessageHeader(m.Header)
	out = append(out, EncodeSubmessages(m.Submessages)...)
	return out
}

func Decode(buf []byte) (Message, error) {
	h, err := DecodeMessageHeader(buf)
	if err != nil {
		return Message{}, err
	}
	subs := DecodeSubmessages(buf[MessageHeaderLength:])
	return Message{Header: h, Submessages: subs}, nil
}

// NewHeader builds a message header for the given source participant.
func NewHeader(prefix types.GuidPrefix, vendor types.VendorId) MessageHeader {
	return MessageHeader{
		Version:    types.ProtocolVersion24,
		VendorId:   vendor,
		GuidPrefix: prefix,
	}
}

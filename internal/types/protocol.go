package types

// ProtocolVersion is the 2-byte RTPS protocol version (major.minor).
type ProtocolVersion struct {
	Major, Minor byte
}

// ProtocolVersion24 is the version this module implements.
var ProtocolVersion24 = ProtocolVersion{Major: 2, Minor: 4}

// VendorId identifies the implementation that produced a message.
type VendorId [2]byte

// VendorIdUnknown is used for vendor-agnostic test fixtures; real
// deployments should register a vendor id.
var VendorIdUnknown = VendorId{0x00, 0x00}

// This module's own vendor id (unregistered / experimental range).
var VendorIdThisImplementation = VendorId{0x01, 0x0f}

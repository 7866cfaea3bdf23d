// Package discovery implements SPDP participant discovery and SEDP
// endpoint discovery, per spec.md §4.9.
package discovery

// BuiltinEndpointSet bits, per spec.md's available_builtin_endpoints
// bitmask (RTPS v2.4 table 8.40 layout).
const (
	BuiltinParticipantAnnouncer  uint32 = 1 << 0
	BuiltinParticipantDetector   uint32 = 1 << 1
	BuiltinPublicationsAnnouncer uint32 = 1 << 2
	BuiltinPublicationsDetector  uint32 = 1 << 3
	BuiltinSubscriptionsAnnouncer uint32 = 1 << 4
	BuiltinSubscriptionsDetector  uint32 = 1 << 5
	BuiltinTopicsAnnouncer       uint32 = 1 << 28
	BuiltinTopicsDetector        uint32 = 1 << 29
)

// DefaultBuiltinEndpoints is the set this implementation always offers.
const DefaultBuiltinEndpoints = BuiltinParticipantAnnouncer | BuiltinParticipantDetector |
	BuiltinPublicationsAnnouncer | BuiltinPublicationsDetector |
	BuiltinSubscriptionsAnnouncer | BuiltinSubscriptionsDetector |
	BuiltinTopicsAnnouncer | BuiltinTopicsDetector

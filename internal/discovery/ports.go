package discovery

import (
	"net"

	"github.com/nimbora/rtpscore/internal/types"
)

// Default port offsets and the well-known SPDP multicast group, per
// spec.md §6.
const (
	portBase       = 7400
	domainGain     = 250
	participantGain = 2
	offsetMulticastSPDP = 0
	offsetUnicastMetatraffic = 10
	offsetMulticastUserData  = 1
	offsetUnicastUserData    = 11
)

var spdpMulticastGroup = net.IPv4(239, 255, 0, 1)

// SPDPMulticastLocator is the well-known locator every participant in
// domain D joins to send and receive SPDP announcements.
func SPDPMulticastLocator(domainID uint32) types.Locator {
	port := portBase + domainGain*domainID + offsetMulticastSPDP
	return types.NewLocatorUDPv4(spdpMulticastGroup, port)
}

// MetatrafficUnicastPort is the discovery-traffic unicast port for a
// given domain and participant id.
func MetatrafficUnicastPort(domainID, participantID uint32) uint32 {
	return portBase + domainGain*domainID + offsetUnicastMetatraffic + participantGain*participantID
}

// UserDataMulticastPort is the shared multicast port for user-topic data
// within a domain.
func UserDataMulticastPort(domainID uint32) uint32 {
	return portBase + domainGain*domainID + offsetMulticastUserData
}

// UserDataUnicastPort is the per-participant unicast port for user-topic
// data.
func UserDataUnicastPort(domainID, participantID uint32) uint32 {
	return portBase + domainGain*domainID + offsetUnicastUserData + participantGain*participantID
}

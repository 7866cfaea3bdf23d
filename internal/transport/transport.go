// Package transport defines the datagram transport abstraction the
// participant actor sends and receives through, per SPEC_FULL.md §4.12.
package transport

import (
	"context"

	"github.com/nimbora/rtpscore/internal/types"
)

// Datagram is a received UDP payload plus its source locator.
type Datagram struct {
	Payload []byte
	Source  types.Locator
}

// Transport abstracts UDP unicast/multicast send and receive so the
// participant actor can be driven by a real socket or a deterministic fake
// in tests.
type Transport interface {
	Send(ctx context.Context, to types.Locator, payload []byte) error
	Recv(ctx context.Context) (Datagram, error)
	JoinMulticastGroup(group types.Locator) error
	LeaveMulticastGroup(group types.Locator) error
	LocalLocator() types.Locator
	Close() error
}

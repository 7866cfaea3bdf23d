// Package faketransport provides a deterministic in-memory Transport for
// tests: participants bound to the same Network deliver datagrams through
// buffered channels instead of real sockets.
package faketransport

import (
	"context"
	"sync"

	"github.com/nimbora/rtpscore/internal/transport"
	"github.com/nimbora/rtpscore/internal/types"
)

// Network is a shared registry of fake transports, keyed by locator.
// Multiple Transports created against the same Network can exchange
// datagrams and join multicast groups.
type Network struct {
	mu       sync.Mutex
	members  map[types.Locator]*Transport
	groups   map[types.Locator]map[types.Locator]bool // group -> member locator -> joined
}

func NewNetwork() *Network {
	return &Network{
		members: make(map[types.Locator]*Transport),
		groups:  make(map[types.Locator]map[types.Locator]bool),
	}
}

// Transport is a fake, in-memory Transport bound to one locator on a Network.
type Transport struct {
	net    *Network
	local  types.Locator
	inbox  chan transport.Datagram
	closed chan struct{}
}

// NewTransport registers a new fake transport at the given locator.
func (n *Network) NewTransport(local types.Locator) *Transport {
	t := &Transport{net: n, local: local, inbox: make(chan transport.Datagram, 256), closed: make(chan struct{})}
	n.mu.Lock()
	n.members[local] = t
	n.mu.Unlock()
	return t
}

func (t *Transport) LocalLocator() types.Locator { return t.local }

func (t *Transport) Send(ctx context.Context, to types.Locator, payload []byte) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()

	if group, ok := t.net.groups[to]; ok {
		for member := range group {
			if dst, ok := t.net.members[member]; ok {
				t.deliver(dst, payload)
			}
		}
		return nil
	}
	if dst, ok := t.net.members[to]; ok {
		t.deliver(dst, payload)
	}
	return nil
}

func (t *Transport) deliver(dst *Transport, payload []byte) {
	cp := append([]byte(nil), payload...)
	select {
	case dst.inbox <- transport.Datagram{Payload: cp, Source: t.local}:
	default: // bounded inbox: drop rather than block, matching real socket backpressure
	}
}

func (t *Transport) Recv(ctx context.Context) (transport.Datagram, error) {
	select {
	case d := <-t.inbox:
		return d, nil
	case <-ctx.Done():
		return transport.Datagram{}, ctx.Err()
	case <-t.closed:
		return transport.Datagram{}, context.Canceled
	}
}

func (t *Transport) JoinMulticastGroup(group types.Locator) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	members, ok := t.net.groups[group]
	if !ok {
		members = make(map[types.Locator]bool)
		t.net.groups[group] = members
	}
	members[t.local] = true
	return nil
}

func (t *Transport) LeaveMulticastGroup(group types.Locator) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	if members, ok := t.net.groups[group]; ok {
		delete(members, t.local)
	}
	return nil
}

func (t *Transport) Close() error {
	t.net.mu.Lock()
	delete(t.net.members, t.local)
	t.net.mu.Unlock()
	close(t.closed)
	return nil
}

var _ transport.Transport = (*Transport)(nil)

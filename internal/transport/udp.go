package transport

import (
	"context"
	"net"

	"golang.org/x/net/ipv4"

	"github.com/nimbora/rtpscore/internal/types"
)

// UDPTransport is the concrete net.ListenUDP-backed Transport, per
// SPEC_FULL.md §4.12. Multicast group membership is managed through
// golang.org/x/net/ipv4's PacketConn wrapper rather than raw socket
// options, matching how the teacher's websocket layer prefers a
// higher-level library surface over hand-rolled syscalls.
type UDPTransport struct {
	conn    *net.UDPConn
	pconn   *ipv4.PacketConn
	iface   *net.Interface
	local   types.Locator
}

// NewUDPTransport opens a UDP socket on the given locator's port, bound to
// all interfaces. ifaceName selects the interface used for multicast group
// joins; empty selects the system default.
func NewUDPTransport(local types.Locator, ifaceName string) (*UDPTransport, error) {
	addr := &net.UDPAddr{Port: int(local.Port)}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, err
	}
	var iface *net.Interface
	if ifaceName != "" {
		iface, err = net.InterfaceByName(ifaceName)
		if err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &UDPTransport{
		conn:  conn,
		pconn: ipv4.NewPacketConn(conn),
		iface: iface,
		local: local,
	}, nil
}

func (t *UDPTransport) LocalLocator() types.Locator { return t.local }

func (t *UDPTransport) Send(ctx context.Context, to types.Locator, payload []byte) error {
	addr := &net.UDPAddr{IP: to.IP(), Port: int(to.Port)}
	if dl, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(dl)
	}
	_, err := t.conn.WriteToUDP(payload, addr)
	return err
}

func (t *UDPTransport) Recv(ctx context.Context) (Datagram, error) {
	buf := make([]byte, 65536)
	if dl, ok := ctx.Deadline(); ok {
		t.conn.SetReadDeadline(dl)
	}
	n, addr, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		return Datagram{}, err
	}
	return Datagram{
		Payload: buf[:n],
		Source:  types.NewLocatorUDPv4(addr.IP, uint32(addr.Port)),
	}, nil
}

func (t *UDPTransport) JoinMulticastGroup(group types.Locator) error {
	return t.pconn.JoinGroup(t.iface, &net.UDPAddr{IP: group.IP()})
}

func (t *UDPTransport) LeaveMulticastGroup(group types.Locator) error {
	return t.pconn.LeaveGroup(t.iface, &net.UDPAddr{IP: group.IP()})
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// ListenMulticastUDPTransport opens a socket joined to a multicast group on
// the given port, for the SPDP metatraffic multicast receive path.
func ListenMulticastUDPTransport(group types.Locator, ifaceName string) (*UDPTransport, error) {
	var iface *net.Interface
	var err error
	if ifaceName != "" {
		iface, err = net.InterfaceByName(ifaceName)
		if err != nil {
			return nil, err
		}
	}
	conn, err := net.ListenMulticastUDP("udp4", iface, &net.UDPAddr{IP: group.IP(), Port: int(group.Port)})
	if err != nil {
		return nil, err
	}
	return &UDPTransport{
		conn:  conn,
		pconn: ipv4.NewPacketConn(conn),
		iface: iface,
		local: types.NewLocatorUDPv4(group.IP(), group.Port),
	}, nil
}

var _ Transport = (*UDPTransport)(nil)

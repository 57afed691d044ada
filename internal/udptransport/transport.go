// Package udptransport implements ice.Transport over real UDP sockets,
// demuxing STUN traffic from media traffic on each socket the way the
// reference deployment always has: one socket per component, STUN and
// data interleaved on it, split by internal/mux.
package udptransport

import (
	"net"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/lanikai/iceagent/internal/ice"
	"github.com/lanikai/iceagent/internal/logging"
	"github.com/lanikai/iceagent/internal/mux"
)

var log = logging.DefaultLogger.WithTag("udptransport")

// dataBufferSize bounds a single UDP datagram; RTP/RTCP packets never
// approach the 64K theoretical ceiling.
const dataBufferSize = 1500

type stream struct {
	rtpConn   *net.UDPConn
	rtpAddrs  *addressedConn
	rtpMux    *mux.Mux
	rtpStun   *mux.Endpoint
	rtcpConn  *net.UDPConn
	rtcpAddrs *addressedConn
	rtcpMux   *mux.Mux
	rtcpStun  *mux.Endpoint
}

// addressedConn wraps a listening *net.UDPConn so it can serve as the
// net.Conn Mux reads from while still recovering each datagram's sender
// address, which plain Conn.Read discards. Mux.readLoop only ever calls
// Read from a single goroutine and we register exactly one endpoint per
// Mux here, so pushing the address onto addrs in Read order and popping
// it after the matching Endpoint.Read preserves the pairing.
type addressedConn struct {
	*net.UDPConn
	addrs chan *net.UDPAddr
}

func newAddressedConn(c *net.UDPConn) *addressedConn {
	return &addressedConn{UDPConn: c, addrs: make(chan *net.UDPAddr, 32)}
}

func (c *addressedConn) Read(b []byte) (int, error) {
	n, addr, err := c.UDPConn.ReadFromUDP(b)
	if err != nil {
		return n, err
	}
	c.addrs <- addr
	return n, nil
}

// socketHandle is the concrete value behind the interface{} socket
// handle ice.Transport passes back to the core opaquely. It pairs the
// STUN-only mux endpoint (used to know which component a send belongs
// to) with the underlying connectionless UDP socket (needed to address
// the send, since a listening UDPConn has no fixed peer).
type socketHandle struct {
	conn *net.UDPConn
	ep   *mux.Endpoint
}

// Transport binds one UDP socket pair (RTP, RTCP) per media stream and
// implements ice.Transport over them.
type Transport struct {
	mu      sync.Mutex
	streams map[string]*stream
	codec   ice.StunCodec
	events  chan ice.StunEvent
}

// New returns a Transport that decodes demuxed STUN packets with codec
// and delivers them on Events.
func New(codec ice.StunCodec) *Transport {
	return &Transport{
		streams: make(map[string]*stream),
		codec:   codec,
		events:  make(chan ice.StunEvent, 64),
	}
}

// Events returns the channel the caller's scheduler loop should drain
// and feed into CheckList.HandleStunPacket, in the same program order
// they were received.
func (t *Transport) Events() <-chan ice.StunEvent {
	return t.events
}

// AddStream opens a UDP socket pair for mid: rtpPort for RTP, rtpPort+1
// for RTCP, matching the Transport interface's RecvPort contract.
func (t *Transport) AddStream(mid string, ip string, rtpPort int) error {
	rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(ip), Port: rtpPort})
	if err != nil {
		return errors.Wrap(err, "udptransport: listening RTP socket")
	}
	rtcpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(ip), Port: rtpPort + 1})
	if err != nil {
		rtpConn.Close()
		return errors.Wrap(err, "udptransport: listening RTCP socket")
	}

	s := &stream{rtpConn: rtpConn, rtcpConn: rtcpConn}
	s.rtpAddrs = newAddressedConn(rtpConn)
	s.rtpMux = mux.NewMux(s.rtpAddrs, dataBufferSize)
	s.rtpStun = s.rtpMux.NewEndpoint(mux.MatchSTUN)
	s.rtcpAddrs = newAddressedConn(rtcpConn)
	s.rtcpMux = mux.NewMux(s.rtcpAddrs, dataBufferSize)
	s.rtcpStun = s.rtcpMux.NewEndpoint(mux.MatchSTUN)

	t.mu.Lock()
	t.streams[mid] = s
	t.mu.Unlock()

	go t.readStun(mid, socketHandle{conn: rtpConn, ep: s.rtpStun}, s.rtpAddrs.addrs, 1)
	go t.readStun(mid, socketHandle{conn: rtcpConn, ep: s.rtcpStun}, s.rtcpAddrs.addrs, 2)

	return nil
}

func (t *Transport) readStun(mid string, sh socketHandle, addrs <-chan *net.UDPAddr, componentID uint16) {
	buf := make([]byte, dataBufferSize)
	for {
		n, err := sh.ep.Read(buf)
		if err != nil {
			return
		}
		packet := append([]byte(nil), buf[:n]...)
		src := <-addrs
		msg, err := t.codec.Parse(packet)
		if err != nil {
			log.Warn("udptransport: dropping malformed STUN packet: %s", err)
			continue
		}

		localHost, localPortStr, _ := net.SplitHostPort(sh.conn.LocalAddr().String())
		localPort, _ := strconv.Atoi(localPortStr)

		t.events <- ice.StunEvent{
			StreamMid:   mid,
			Socket:      sh,
			Message:     msg,
			RawPacket:   packet,
			SrcIP:       src.IP.String(),
			SrcPort:     uint16(src.Port),
			LocalIP:     localHost,
			LocalPort:   uint16(localPort),
			ComponentID: componentID,
		}
	}
}

func (t *Transport) RTPSocket(mid string) (interface{}, error) {
	s, err := t.lookup(mid)
	if err != nil {
		return nil, err
	}
	return socketHandle{conn: s.rtpConn, ep: s.rtpStun}, nil
}

func (t *Transport) RTCPSocket(mid string) (interface{}, error) {
	s, err := t.lookup(mid)
	if err != nil {
		return nil, err
	}
	return socketHandle{conn: s.rtcpConn, ep: s.rtcpStun}, nil
}

func (t *Transport) RecvPort(mid string, kind ice.SocketKind) (uint16, error) {
	s, err := t.lookup(mid)
	if err != nil {
		return 0, err
	}
	conn := s.rtpConn
	if kind == ice.RTCPSocket {
		conn = s.rtcpConn
	}
	_, portStr, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, err
	}
	return uint16(port), nil
}

func (t *Transport) SendPacket(socket interface{}, packet []byte, destIP string, destPort uint16) error {
	sh, ok := socket.(socketHandle)
	if !ok {
		return errors.New("udptransport: socket handle is not one of ours")
	}
	dest := &net.UDPAddr{IP: net.ParseIP(destIP), Port: int(destPort)}
	_, err := sh.conn.WriteToUDP(packet, dest)
	return err
}

func (t *Transport) lookup(mid string) (*stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.streams[mid]
	if !ok {
		return nil, errors.Errorf("udptransport: no stream %q", mid)
	}
	return s, nil
}

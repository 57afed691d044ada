package ice

// SocketKind names which of a stream's two sockets a call concerns.
type SocketKind int

const (
	RTPSocket SocketKind = iota
	RTCPSocket
)

func socketKindForComponent(componentID uint16) (SocketKind, error) {
	switch componentID {
	case 1:
		return RTPSocket, nil
	case 2:
		return RTCPSocket, nil
	default:
		return 0, errUnknownComponent
	}
}

// Transport is the external collaborator that owns sockets and moves
// bytes. The core never dials or reads a socket itself; it asks for a
// handle, and asks the transport to send on it.
type Transport interface {
	// RTPSocket returns the socket handle carrying component 1 traffic
	// for the named stream.
	RTPSocket(streamMid string) (interface{}, error)

	// RTCPSocket returns the socket handle carrying component 2 traffic.
	RTCPSocket(streamMid string) (interface{}, error)

	// RecvPort returns the local port bound by the given socket kind for
	// the named stream. RTCP is conventionally RTP's port plus one.
	RecvPort(streamMid string, kind SocketKind) (uint16, error)

	// SendPacket writes a packet to dest through socket.
	SendPacket(socket interface{}, packet []byte, destIP string, destPort uint16) error
}

// StunEvent is one parsed inbound STUN packet, delivered by the
// transport's demuxer into HandleStunPacket. It is the event-queue
// payload mentioned by the concurrency model: transport and core run on
// the same ticker thread, and events for a given stream arrive in
// program order.
type StunEvent struct {
	StreamMid string
	Socket    interface{}
	Message   *StunMessage

	// RawPacket is the undecoded packet, needed to recompute
	// MESSAGE-INTEGRITY and FINGERPRINT over the exact bytes received.
	RawPacket []byte

	// SrcIP/SrcPort is the packet's source address, used for the
	// symmetric address check and for learning peer-reflexive
	// candidates.
	SrcIP   string
	SrcPort uint16

	// LocalIP/LocalPort is the local address the packet arrived on,
	// used to locate the receiving base candidate.
	LocalIP   string
	LocalPort uint16

	ComponentID uint16
}

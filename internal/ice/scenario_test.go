package ice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentPacket records one call to fakeTransport.SendPacket, so a scenario
// test can assert what the scheduler tried to put on the wire without
// actually touching a socket.
type sentPacket struct {
	socket   interface{}
	packet   []byte
	destIP   string
	destPort uint16
}

type fakeTransport struct {
	sent []sentPacket
}

func (f *fakeTransport) RTPSocket(mid string) (interface{}, error)  { return "rtp:" + mid, nil }
func (f *fakeTransport) RTCPSocket(mid string) (interface{}, error) { return "rtcp:" + mid, nil }
func (f *fakeTransport) RecvPort(mid string, kind SocketKind) (uint16, error) {
	if kind == RTPSocket {
		return 5000, nil
	}
	return 5001, nil
}
func (f *fakeTransport) SendPacket(socket interface{}, packet []byte, destIP string, destPort uint16) error {
	f.sent = append(f.sent, sentPacket{socket: socket, packet: packet, destIP: destIP, destPort: destPort})
	return nil
}

// fakeCodec never touches real STUN wire format; Encode just returns a
// fixed placeholder so scheduler/response code has bytes to hand the
// transport, and integrity always passes unless integrityFails is set.
type fakeCodec struct {
	integrityFails bool
}

func (c *fakeCodec) Parse(packet []byte) (*StunMessage, error) { return &StunMessage{}, nil }
func (c *fakeCodec) Encode(msg *StunMessage, key string) ([]byte, error) {
	return []byte("fake-stun-packet"), nil
}
func (c *fakeCodec) VerifyIntegrityShortTerm(packet []byte, key string) bool {
	return !c.integrityFails
}

func newScenarioSession(role Role, transport Transport, codec StunCodec) *Session {
	s, err := NewSession(role, transport, codec)
	if err != nil {
		panic(err)
	}
	return s
}

func TestScenarioHappyPathSingleComponentControlling(t *testing.T) {
	transport := &fakeTransport{}
	codec := &fakeCodec{}
	session := newScenarioSession(Controlling, transport, codec)
	session.SetRemoteCredentials("remoteufrag", "remotepwd")
	cl := session.AddCheckList("0")

	local, err := cl.AddLocalCandidate(Host, "10.0.0.1", 5000, 1, nil)
	require.NoError(t, err)
	remote, err := cl.AddRemoteCandidate(Host, "10.0.0.2", 6000, 1, computePriority(Host, 1), "r1")
	require.NoError(t, err)
	require.NoError(t, session.PairCandidates())

	now := time.Unix(0, 0)
	require.NoError(t, cl.Process(now))
	require.Len(t, transport.sent, 1)

	p := cl.Pairs[0]
	require.Equal(t, InProgress, p.State)

	event := StunEvent{
		StreamMid: "0",
		Message: &StunMessage{
			Class:               StunSuccessResponse,
			TransactionID:       p.TransactionID,
			HasUsername:         true,
			HasFingerprint:      true,
			HasXorMappedAddress: true,
			XorMappedAddress:    local.TAddr,
		},
		SrcIP:     remote.TAddr.IP,
		SrcPort:   remote.TAddr.Port,
		LocalIP:   local.TAddr.IP,
		LocalPort: local.TAddr.Port,
	}

	require.NoError(t, cl.HandleStunPacket(now, event))

	assert.Equal(t, Succeeded, p.State)
	assert.True(t, p.IsNominated)
	assert.Equal(t, Completed, cl.State)
}

func TestScenarioRoleConflictFlipsRoleAndRetries(t *testing.T) {
	transport := &fakeTransport{}
	codec := &fakeCodec{}
	session := newScenarioSession(Controlling, transport, codec)
	cl := session.AddCheckList("0")

	local, _ := cl.AddLocalCandidate(Host, "10.0.0.1", 5000, 1, nil)
	remote, _ := cl.AddRemoteCandidate(Host, "10.0.0.2", 6000, 1, computePriority(Host, 1), "r1")
	p := newCandidatePair(local, remote, Controlling)
	p.State = InProgress
	txID, err := generateTransactionID()
	require.NoError(t, err)
	p.TransactionID = txID
	cl.Pairs = append(cl.Pairs, p)
	cl.rebuildCheckListLocked()

	event := StunEvent{
		Message: &StunMessage{
			Class:         StunErrorResponse,
			TransactionID: txID,
			HasErrorCode:  true,
			ErrorCode:     StunErrorCode{Class: roleConflictErrorClass, Number: roleConflictErrorNumber},
		},
	}

	now := time.Unix(0, 0)
	require.NoError(t, cl.HandleStunPacket(now, event))

	assert.Equal(t, Controlled, session.Role)
	assert.Equal(t, Controlled, p.Role)
	assert.Equal(t, Waiting, p.State)
	assert.Equal(t, [12]byte{}, p.TransactionID)
}

func TestScenarioPeerReflexiveLearnedFromInboundRequest(t *testing.T) {
	transport := &fakeTransport{}
	codec := &fakeCodec{}
	session := newScenarioSession(Controlled, transport, codec)
	session.SetRemoteCredentials("remoteufrag", "remotepwd")
	cl := session.AddCheckList("0")

	local, err := cl.AddLocalCandidate(Host, "10.0.0.1", 5000, 1, nil)
	require.NoError(t, err)

	event := StunEvent{
		Message: &StunMessage{
			Class:             StunRequest,
			TransactionID:     [12]byte{1, 2, 3},
			HasUsername:       true,
			Username:          session.LocalUfrag + ":remoteufrag",
			HasMessageIntegrity: true,
			HasFingerprint:    true,
			HasPriority:       true,
			Priority:          computePriority(PeerReflexive, 1),
			HasIceControlling: true,
			IceControlling:    1,
		},
		SrcIP:       "10.0.0.9",
		SrcPort:     7777,
		LocalIP:     local.TAddr.IP,
		LocalPort:   local.TAddr.Port,
		ComponentID: 1,
	}

	now := time.Unix(0, 0)
	require.NoError(t, cl.HandleStunPacket(now, event))

	require.Len(t, cl.RemoteCandidates, 1)
	assert.Equal(t, PeerReflexive, cl.RemoteCandidates[0].Type)
	assert.Equal(t, "10.0.0.9", cl.RemoteCandidates[0].TAddr.IP)
	require.Len(t, cl.Pairs, 1)
	assert.Equal(t, Waiting, cl.Pairs[0].State)
	require.Len(t, transport.sent, 1)
}

func TestScenarioRetransmissionExhaustionFailsPair(t *testing.T) {
	transport := &fakeTransport{}
	codec := &fakeCodec{}
	session := newScenarioSession(Controlling, transport, codec)
	cl := session.AddCheckList("0")

	local, _ := cl.AddLocalCandidate(Host, "10.0.0.1", 5000, 1, nil)
	remote, _ := cl.AddRemoteCandidate(Host, "10.0.0.2", 6000, 1, computePriority(Host, 1), "r1")
	p := newCandidatePair(local, remote, Controlling)
	p.State = InProgress
	p.Retransmissions = maxRetransmissions
	p.RTO = time.Millisecond
	p.TransmissionTime = time.Unix(0, 0)
	cl.Pairs = append(cl.Pairs, p)
	cl.rebuildCheckListLocked()

	require.NoError(t, cl.Process(time.Unix(0, 0).Add(time.Second)))

	assert.Equal(t, Failed, p.State)
}

func TestScenarioTwoComponentsBothMustNominateBeforeCompletion(t *testing.T) {
	transport := &fakeTransport{}
	codec := &fakeCodec{}
	session := newScenarioSession(Controlling, transport, codec)
	cl := session.AddCheckList("0")

	rtpLocal, _ := cl.AddLocalCandidate(Host, "10.0.0.1", 5000, 1, nil)
	rtcpLocal, _ := cl.AddLocalCandidate(Host, "10.0.0.1", 5001, 2, nil)
	rtpRemote, _ := cl.AddRemoteCandidate(Host, "10.0.0.2", 6000, 1, computePriority(Host, 1), "r1")
	rtcpRemote, _ := cl.AddRemoteCandidate(Host, "10.0.0.2", 6001, 2, computePriority(Host, 2), "r2")
	require.NoError(t, session.PairCandidates())

	var rtpPair, rtcpPair *CandidatePair
	for _, p := range cl.Pairs {
		if p.ComponentID == 1 {
			rtpPair = p
		} else {
			rtcpPair = p
		}
	}
	require.NotNil(t, rtpPair)
	require.NotNil(t, rtcpPair)

	now := time.Unix(0, 0)
	rtpPair.setState(Waiting)
	require.NoError(t, cl.sendCheckLocked(rtpPair, now))

	respond := func(p *CandidatePair, local *Candidate, remote *Candidate) {
		event := StunEvent{
			Message: &StunMessage{
				Class:               StunSuccessResponse,
				TransactionID:       p.TransactionID,
				HasUsername:         true,
				HasFingerprint:      true,
				HasXorMappedAddress: true,
				XorMappedAddress:    local.TAddr,
			},
			SrcIP:     remote.TAddr.IP,
			SrcPort:   remote.TAddr.Port,
			LocalIP:   local.TAddr.IP,
			LocalPort: local.TAddr.Port,
		}
		require.NoError(t, cl.HandleStunPacket(now, event))
	}

	respond(rtpPair, rtpLocal, rtpRemote)
	assert.NotEqual(t, Completed, cl.State, "only one of two components nominated so far")

	rtcpPair.setState(Waiting)
	require.NoError(t, cl.sendCheckLocked(rtcpPair, now))
	respond(rtcpPair, rtcpLocal, rtcpRemote)

	assert.Equal(t, Completed, cl.State)
}

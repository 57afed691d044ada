package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(role Role, maxChecks int) *Session {
	return &Session{
		Role:                  role,
		MaxConnectivityChecks: maxChecks,
	}
}

func newTestCheckList(t *testing.T, role Role, maxChecks int) *CheckList {
	t.Helper()
	session := newTestSession(role, maxChecks)
	cl := NewCheckList(session, "0", nil, nil)
	session.Streams = append(session.Streams, cl)
	return cl
}

func TestAddLocalCandidateHost(t *testing.T) {
	cl := newTestCheckList(t, Controlling, 100)
	c, err := cl.AddLocalCandidate(Host, "10.0.0.1", 5000, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, Host, c.Type)
	assert.Len(t, cl.LocalCandidates, 1)
	assert.Contains(t, cl.ComponentIDs, uint16(1))
}

func TestAddLocalCandidateServerReflexiveRequiresBase(t *testing.T) {
	cl := newTestCheckList(t, Controlling, 100)
	_, err := cl.AddLocalCandidate(ServerReflexive, "203.0.113.1", 9000, 1, nil)
	assert.Error(t, err)
}

func TestAddLocalCandidateBoundedAtMaxCandidatesPerSide(t *testing.T) {
	cl := newTestCheckList(t, Controlling, 100)
	for i := 0; i < maxCandidatesPerSide; i++ {
		_, err := cl.AddLocalCandidate(Host, "10.0.0.1", uint16(5000+i), 1, nil)
		require.NoError(t, err)
	}
	_, err := cl.AddLocalCandidate(Host, "10.0.0.1", 6000, 1, nil)
	assert.Equal(t, errTooManyCandidates, err)
}

func TestAddRemoteCandidateCarriesWireValues(t *testing.T) {
	cl := newTestCheckList(t, Controlling, 100)
	c, err := cl.AddRemoteCandidate(Host, "10.0.0.2", 6000, 1, 12345, "abcd1234")
	require.NoError(t, err)
	assert.Equal(t, uint32(12345), c.Priority)
	assert.Equal(t, "abcd1234", c.Foundation)
}

func TestPairCandidatesFormsCrossProductByComponent(t *testing.T) {
	cl := newTestCheckList(t, Controlling, 100)
	l1, _ := cl.AddLocalCandidate(Host, "10.0.0.1", 5000, 1, nil)
	l2, _ := cl.AddLocalCandidate(Host, "10.0.0.1", 5001, 2, nil)
	_, _ = cl.AddRemoteCandidate(Host, "10.0.0.2", 6000, 1, computePriority(Host, 1), "r1")
	_, _ = cl.AddRemoteCandidate(Host, "10.0.0.2", 6001, 2, computePriority(Host, 2), "r2")

	require.NoError(t, cl.PairCandidates(true))

	require.Len(t, cl.Pairs, 2)
	for _, p := range cl.Pairs {
		if p.ComponentID == 1 {
			assert.Same(t, l1, p.Local)
		} else {
			assert.Same(t, l2, p.Local)
		}
	}
}

func TestPairCandidatesReplacesServerReflexiveLocalWithBase(t *testing.T) {
	cl := newTestCheckList(t, Controlling, 100)
	base, _ := cl.AddLocalCandidate(Host, "10.0.0.1", 5000, 1, nil)
	_, err := cl.AddLocalCandidate(ServerReflexive, "203.0.113.1", 9000, 1, base)
	require.NoError(t, err)
	_, _ = cl.AddRemoteCandidate(Host, "10.0.0.2", 6000, 1, computePriority(Host, 1), "r1")

	require.NoError(t, cl.PairCandidates(true))

	require.Len(t, cl.Pairs, 1)
	assert.Same(t, base, cl.Pairs[0].Local)
}

func TestPairCandidatesUnfreezesBestOnFirstStreamOnly(t *testing.T) {
	cl := newTestCheckList(t, Controlling, 100)
	_, _ = cl.AddLocalCandidate(Host, "10.0.0.1", 5000, 1, nil)
	_, _ = cl.AddRemoteCandidate(Host, "10.0.0.2", 6000, 1, computePriority(Host, 1), "r1")
	require.NoError(t, cl.PairCandidates(true))

	waiting := 0
	for _, p := range cl.List {
		if p.State == Waiting {
			waiting++
		}
	}
	assert.Equal(t, 1, waiting)

	cl2 := newTestCheckList(t, Controlling, 100)
	_, _ = cl2.AddLocalCandidate(Host, "10.0.0.1", 5000, 1, nil)
	_, _ = cl2.AddRemoteCandidate(Host, "10.0.0.2", 6000, 1, computePriority(Host, 1), "r1")
	require.NoError(t, cl2.PairCandidates(false))

	for _, p := range cl2.List {
		assert.Equal(t, Frozen, p.State)
	}
}

func TestPairCandidatesTruncatesToMaxConnectivityChecks(t *testing.T) {
	cl := newTestCheckList(t, Controlling, 25)

	for i := 0; i < maxCandidatesPerSide; i++ {
		_, _ = cl.AddLocalCandidate(Host, "10.0.0.1", uint16(5000+i), 1, nil)
	}
	for i := 0; i < maxCandidatesPerSide; i++ {
		_, _ = cl.AddRemoteCandidate(Host, "10.0.0.2", uint16(6000+i), 1, computePriority(Host, 1)+uint32(i), "r")
	}

	require.NoError(t, cl.PairCandidates(true))

	require.Len(t, cl.Pairs, maxCandidatesPerSide*maxCandidatesPerSide)
	assert.Len(t, cl.List, 25)

	for i := 1; i < len(cl.List); i++ {
		assert.True(t, cl.List[i-1].Priority >= cl.List[i].Priority)
	}
}

func TestPrunePairsKeepsHigherPriorityDuplicate(t *testing.T) {
	local, remote := hostPair(t)
	a := newCandidatePair(local, remote, Controlling)
	b := newCandidatePair(local, remote, Controlling)
	b.Priority = a.Priority + 1

	kept := prunePairs([]*CandidatePair{a, b})
	require.Len(t, kept, 1)
	assert.Equal(t, b.Priority, kept[0].Priority)
}

func TestFindLocalAndRemoteCandidateLocked(t *testing.T) {
	cl := newTestCheckList(t, Controlling, 100)
	local, _ := cl.AddLocalCandidate(Host, "10.0.0.1", 5000, 1, nil)
	remote, _ := cl.AddRemoteCandidate(Host, "10.0.0.2", 6000, 1, computePriority(Host, 1), "r1")

	assert.Same(t, local, cl.findLocalCandidateLocked(local.TAddr))
	assert.Same(t, remote, cl.findRemoteCandidateLocked(remote.TAddr))
	assert.Nil(t, cl.findLocalCandidateLocked(TransportAddress{IP: "0.0.0.0", Port: 1}))
}

func TestEnqueueTriggeredLockedDeduplicates(t *testing.T) {
	cl := newTestCheckList(t, Controlling, 100)
	local, _ := cl.AddLocalCandidate(Host, "10.0.0.1", 5000, 1, nil)
	remote, _ := cl.AddRemoteCandidate(Host, "10.0.0.2", 6000, 1, computePriority(Host, 1), "r1")
	p := newCandidatePair(local, remote, Controlling)

	cl.enqueueTriggeredLocked(p)
	cl.enqueueTriggeredLocked(p)
	assert.Len(t, cl.TriggeredQueue, 1)
}

func TestRecomputeAllPairPrioritiesAppliesNewRole(t *testing.T) {
	cl := newTestCheckList(t, Controlling, 100)
	_, _ = cl.AddLocalCandidate(Host, "10.0.0.1", 5000, 1, nil)
	_, _ = cl.AddRemoteCandidate(Host, "10.0.0.2", 6000, 1, computePriority(Host, 1), "r1")
	require.NoError(t, cl.PairCandidates(true))

	cl.recomputeAllPairPriorities(Controlled)

	for _, p := range cl.Pairs {
		assert.Equal(t, Controlled, p.Role)
	}
}

func TestGetRemoteAddrAndPortsFromValidPairs(t *testing.T) {
	cl := newTestCheckList(t, Controlling, 100)
	local, _ := cl.AddLocalCandidate(Host, "10.0.0.1", 5000, 1, nil)
	remote, _ := cl.AddRemoteCandidate(Host, "10.0.0.2", 6000, 1, computePriority(Host, 1), "r1")

	p := newCandidatePair(local, remote, Controlling)
	p.IsNominated = true
	cl.ValidList = append(cl.ValidList, ValidPair{Valid: p, GeneratedFrom: p})

	ip, rtpPort, _, ok := cl.GetRemoteAddrAndPortsFromValidPairs()
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.2", ip)
	assert.Equal(t, uint16(6000), rtpPort)
}

package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/lanikai/iceagent/internal/ice"
	"github.com/lanikai/iceagent/internal/logging"
	"github.com/lanikai/iceagent/internal/stunio"
	"github.com/lanikai/iceagent/internal/udptransport"
)

var log = logging.DefaultLogger.WithTag("main")

// remotePriorityBase stands in for a priority that a real deployment
// reads off the wire (an SDP a=candidate line's priority field); this
// demo has no signaling channel of its own, so a single remote host
// candidate is taken from the command line instead.
const remotePriorityBase = 2130706431

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		version()
		os.Exit(0)
	}

	remoteAddr := flag.Arg(0)
	if remoteAddr == "" {
		fmt.Fprintln(os.Stderr, "ice-agent: missing required REMOTE-ADDR argument (ip:port of the peer's RTP candidate)")
		os.Exit(1)
	}
	remoteIP, remotePortStr, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ice-agent: invalid remote address %q: %s\n", remoteAddr, err)
		os.Exit(1)
	}
	remotePort, err := strconv.Atoi(remotePortStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ice-agent: invalid remote port %q: %s\n", remotePortStr, err)
		os.Exit(1)
	}

	bindIP, err := resolveBindIP(flagBindIP)
	if err != nil {
		log.Error("resolving bind address: %s", err)
		os.Exit(1)
	}

	codec := stunio.New()
	transport := udptransport.New(codec)
	if err := transport.AddStream(flagMid, bindIP, flagRTPPort); err != nil {
		log.Error("opening sockets: %s", err)
		os.Exit(1)
	}

	role := ice.Controlled
	if flagControlling {
		role = ice.Controlling
	}

	session, err := ice.NewSession(role, transport, codec)
	if err != nil {
		log.Error("creating session: %s", err)
		os.Exit(1)
	}
	session.SetRemoteCredentials(flagRemoteUfrag, flagRemotePwd)

	cl := session.AddCheckList(flagMid)

	rtpPort, err := transport.RecvPort(flagMid, ice.RTPSocket)
	if err != nil {
		log.Error("reading bound RTP port: %s", err)
		os.Exit(1)
	}
	rtcpPort, err := transport.RecvPort(flagMid, ice.RTCPSocket)
	if err != nil {
		log.Error("reading bound RTCP port: %s", err)
		os.Exit(1)
	}

	if _, err := cl.AddLocalCandidate(ice.Host, bindIP, rtpPort, 1, nil); err != nil {
		log.Error("adding local RTP candidate: %s", err)
		os.Exit(1)
	}
	if _, err := cl.AddLocalCandidate(ice.Host, bindIP, rtcpPort, 2, nil); err != nil {
		log.Error("adding local RTCP candidate: %s", err)
		os.Exit(1)
	}

	if _, err := cl.AddRemoteCandidate(ice.Host, remoteIP, uint16(remotePort), 1, remotePriorityBase, "remote1"); err != nil {
		log.Error("adding remote RTP candidate: %s", err)
		os.Exit(1)
	}
	if _, err := cl.AddRemoteCandidate(ice.Host, remoteIP, uint16(remotePort)+1, 2, remotePriorityBase-1, "remote2"); err != nil {
		log.Error("adding remote RTCP candidate: %s", err)
		os.Exit(1)
	}

	session.ComputeCandidatesFoundations()
	session.ChooseDefaultCandidates()
	if err := session.PairCandidates(); err != nil {
		log.Error("pairing candidates: %s", err)
		os.Exit(1)
	}

	cl.RegisterSuccessCallback(func(cl *ice.CheckList) {
		ip, rtp, rtcp, ok := cl.GetRemoteAddrAndPortsFromValidPairs()
		if ok {
			log.Info("nominated: remote=%s rtp=%d rtcp=%d", ip, rtp, rtcp)
		}
	})

	log.Info("local credentials: ufrag=%s pwd=%s (share these with the peer out of band)", session.LocalUfrag, session.LocalPwd)
	log.Info("role=%s mid=%s bind=%s:%d/%d remote=%s", role, flagMid, bindIP, rtpPort, rtcpPort, remoteAddr)

	run(session, cl, transport)
}

func run(session *ice.Session, cl *ice.CheckList, transport *udptransport.Transport) {
	ticker := time.NewTicker(time.Duration(flagTickMillis) * time.Millisecond)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case now := <-ticker.C:
			if err := cl.Process(now); err != nil {
				log.Warn("scheduler tick: %s", err)
			}
		case event := <-transport.Events():
			if err := cl.HandleStunPacket(time.Now(), event); err != nil {
				log.Warn("handling STUN packet: %s", err)
			}
		case <-sigCh:
			session.Destroy()
			return
		}
	}
}

// resolveBindIP returns ip unchanged unless it is the wildcard address,
// in which case it picks the first non-loopback IPv4 address bound to a
// local interface -- candidates need a concrete, routable address, not a
// wildcard.
func resolveBindIP(ip string) (string, error) {
	if ip != "0.0.0.0" && ip != "::" {
		return ip, nil
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil && !strings.HasPrefix(v4.String(), "169.254.") {
			return v4.String(), nil
		}
	}
	return "", fmt.Errorf("no routable IPv4 address found on any local interface")
}

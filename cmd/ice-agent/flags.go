package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagControlling bool
	flagMid         string
	flagBindIP      string
	flagRTPPort     int
	flagRemoteUfrag string
	flagRemotePwd   string
	flagTickMillis  int
	flagHelp        bool
	flagVersion     bool
)

func init() {
	flag.BoolVarP(&flagControlling, "controlling", "c", true, "Act as the controlling agent (default: true)")
	flag.StringVarP(&flagMid, "mid", "m", "0", "Media stream identifier")
	flag.StringVarP(&flagBindIP, "bind", "b", "0.0.0.0", "Local address to bind RTP/RTCP sockets to")
	flag.IntVarP(&flagRTPPort, "rtp-port", "p", 5000, "Local RTP port (RTCP binds to rtp-port+1)")
	flag.StringVarP(&flagRemoteUfrag, "remote-ufrag", "u", "", "Remote ICE username fragment")
	flag.StringVarP(&flagRemotePwd, "remote-pwd", "P", "", "Remote ICE password")
	flag.IntVarP(&flagTickMillis, "tick", "t", 20, "Scheduler tick interval, in milliseconds")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `A standalone ICE connectivity-establishment agent

Usage: ice-agent [OPTION]...

Role:
  -c, --controlling        Act as the controlling agent (default: true)
  -m, --mid=MID            Media stream identifier (default: 0)

Network:
  -b, --bind=IP            Local address to bind RTP/RTCP sockets to
  -p, --rtp-port=NUM       Local RTP port; RTCP binds to rtp-port+1
  -t, --tick=MS            Scheduler tick interval, in milliseconds

Remote credentials (exchanged out of band):
  -u, --remote-ufrag=FRAG  Remote ICE username fragment
  -P, --remote-pwd=PWD     Remote ICE password

Miscellaneous:
  -h, --help               Prints this help message and exits
  -v, --version            Prints version information and exits`

func help() {
	b := color.New(color.FgCyan)
	y := color.New(color.FgYellow)

	b.Printf("ice-agent")
	y.Println(" -- connectivity establishment, standalone")
	fmt.Println(helpString)
}

func version() {
	fmt.Println("ice-agent (development build)")
}

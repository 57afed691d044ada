package ice

import "fmt"

// TransportAddress is a bare IP:port tuple.
//
// Equality is case-sensitive string equality on IP plus numeric equality on
// Port, which is exactly what Go's == gives us for a struct of two
// comparable fields -- no custom Equal method needed.
type TransportAddress struct {
	IP   string
	Port uint16
}

func (ta TransportAddress) String() string {
	return fmt.Sprintf("%s:%d", ta.IP, ta.Port)
}

func (ta TransportAddress) zero() bool {
	return ta == TransportAddress{}
}

package socket

import (
	"fmt"
	"net"
	"strings"
)

// DefaultPort is used when an endpoint string carries no explicit port.
const DefaultPort = "12382"

// ParseEndpoint splits "host[:port]" into host and port, defaulting the
// port to DefaultPort, mirroring socket_wrapper::string_to_endpoint's
// regex-based split.
func ParseEndpoint(s string) (host, port string) {
	host, port, found := strings.Cut(s, ":")
	if !found || port == "" {
		return s, DefaultPort
	}
	return host, port
}

// ResolveEndpoint parses and resolves an endpoint string to a UDP address.
func ResolveEndpoint(s string) (*net.UDPAddr, error) {
	host, port := ParseEndpoint(s)

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("resolve endpoint %q: %w", s, err)
	}

	return addr, nil
}

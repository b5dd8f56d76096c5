package mavlink

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/gomavlib/v2"
)

const defaultBaudRate = 57600

// ParseEndpoint converts a connection string into a gomavlib endpoint.
//
// Supported forms:
//   - tcp:host:port       TCP client
//   - tcpin:host:port     TCP server
//   - udp:host:port       UDP client (also udpout:)
//   - udpin:host:port     UDP server
//   - serial:device[:baud] serial port, 57600 baud by default
func ParseEndpoint(s string) (gomavlib.EndpointConf, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || rest == "" {
		return nil, fmt.Errorf("invalid endpoint '%s'", s)
	}

	switch strings.ToLower(scheme) {
	case "tcp":
		return gomavlib.EndpointTCPClient{Address: rest}, nil

	case "tcpin":
		return gomavlib.EndpointTCPServer{Address: rest}, nil

	case "udp", "udpout":
		return gomavlib.EndpointUDPClient{Address: rest}, nil

	case "udpin":
		return gomavlib.EndpointUDPServer{Address: rest}, nil

	case "serial":
		device, baud, hasBaud := strings.Cut(rest, ":")
		if device == "" {
			return nil, fmt.Errorf("invalid endpoint '%s': missing device", s)
		}

		rate := defaultBaudRate
		if hasBaud {
			var err error
			if rate, err = strconv.Atoi(baud); err != nil || rate <= 0 {
				return nil, fmt.Errorf("invalid endpoint '%s': bad baud rate '%s'", s, baud)
			}
		}
		return gomavlib.EndpointSerial{Device: device, Baud: rate}, nil

	default:
		return nil, fmt.Errorf("invalid endpoint '%s': unknown scheme '%s'", s, scheme)
	}
}

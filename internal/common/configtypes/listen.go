package configtypes

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ParseListenAddress splits a listen address into host and port.
// A bare port ("3000") and an empty host (":3000") both mean all interfaces.
func ParseListenAddress(listen string) (host string, port int, err error) {
	if listen == "" {
		return "", 0, fmt.Errorf("listen address is empty")
	}

	if !strings.Contains(listen, ":") {
		p, err := strconv.Atoi(listen)
		if err != nil {
			return "", 0, fmt.Errorf("invalid listen address format: %s", listen)
		}
		return "", p, nil
	}

	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen address format: %s: %w", listen, err)
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in listen address: %s", portStr)
	}
	return host, port, nil
}

// ValidateListenAddress checks the address format and port range
func ValidateListenAddress(listen string) error {
	_, port, err := ParseListenAddress(listen)
	if err != nil {
		return err
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ListenFromHostPort overrides the host and/or port of listen. Empty
// arguments keep the corresponding part of the current address.
func ListenFromHostPort(listen, host, port string) (string, error) {
	curHost, curPort, err := ParseListenAddress(listen)
	if err != nil {
		return "", err
	}
	if host != "" {
		curHost = host
	}
	if port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return "", fmt.Errorf("invalid port %q: %w", port, err)
		}
		curPort = p
	}
	return net.JoinHostPort(curHost, strconv.Itoa(curPort)), nil
}

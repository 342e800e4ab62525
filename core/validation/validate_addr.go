package validation

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ValidateListenAddr validates that an address has a valid host:port format
// suitable for net.Listen. This is a pure function with no side effects.
//
// Returns nil if the address is valid, or an error describing the validation
// failure.
func ValidateListenAddr(addr string) error {
	// Trim whitespace first
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}

	// Empty host means all interfaces, which is fine. A non-empty host must
	// be an IP literal or a resolvable name shape; reject obvious garbage.
	if host != "" && strings.ContainsAny(host, " /") {
		return fmt.Errorf("invalid host: %q", host)
	}

	if port == "" {
		return fmt.Errorf("address must include a port")
	}
	// Port 0 is allowed: the OS assigns an ephemeral port.
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric, got: %q", port)
	}
	if n < 0 || n > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got: %d", n)
	}

	return nil
}

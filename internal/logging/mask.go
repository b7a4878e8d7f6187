package logging

import (
	"net"
	"strings"
)

// Sensitive values (wallet addresses, IPs, API tokens) must never reach the
// log sink verbatim. These helpers are the boundary contract for every call
// path that logs such fields.

const (
	addressMask = "******"
	tokenMask   = "****"
	octetMask   = "***"
)

// MaskAddress keeps the address prefix and replaces the trailing six
// characters with a fixed mask. Inputs shorter than the mask are fully
// masked.
func MaskAddress(addr string) string {
	if len(addr) <= len(addressMask) {
		return addressMask
	}
	return addr[:len(addr)-len(addressMask)] + addressMask
}

// MaskToken replaces the trailing four characters of a generic secret with a
// fixed mask.
func MaskToken(token string) string {
	if len(token) <= len(tokenMask) {
		return tokenMask
	}
	return token[:len(token)-len(tokenMask)] + tokenMask
}

// MaskIP masks the last octet of an IPv4 address. IPv6 and unparseable
// inputs fall back to trailing-character masking.
func MaskIP(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed != nil && parsed.To4() != nil {
		if idx := strings.LastIndex(ip, "."); idx >= 0 {
			return ip[:idx+1] + octetMask
		}
	}
	return MaskToken(ip)
}

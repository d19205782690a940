package reputation

import (
	"net"
	"strings"
)

// privateBlocks covers the RFC 1918 ranges plus loopback, link-local
// and the IPv6 unique-local space.
var privateBlocks = mustParseBlocks(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseBlocks(cidrs ...string) []*net.IPNet {
	blocks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("reputation: bad private cidr " + cidr)
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// PrivateIP reports whether the address belongs to a private or
// internal range. Addresses that do not parse report false.
func PrivateIP(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	for _, block := range privateBlocks {
		if block.Contains(parsed) {
			return true
		}
	}
	return false
}

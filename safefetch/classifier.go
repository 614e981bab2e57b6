package safefetch

import (
	"fmt"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// RangeKind names one class of disallowed destination.
type RangeKind uint8

const (
	RangeNone RangeKind = iota
	RangeMetadata
	RangeUnspecified
	RangeLoopback
	RangePrivate
	RangeCarrierNAT
	RangeLinkLocal
	RangeUniqueLocal
	RangeMulticast
	RangeBroadcast
	RangeReserved
)

func (k RangeKind) String() string {
	switch k {
	case RangeMetadata:
		return "metadata"
	case RangeUnspecified:
		return "unspecified"
	case RangeLoopback:
		return "loopback"
	case RangePrivate:
		return "private"
	case RangeCarrierNAT:
		return "carrier-nat"
	case RangeLinkLocal:
		return "link-local"
	case RangeUniqueLocal:
		return "unique-local"
	case RangeMulticast:
		return "multicast"
	case RangeBroadcast:
		return "broadcast"
	case RangeReserved:
		return "reserved"
	}
	return "none"
}

// Evaluated top to bottom. Metadata endpoints come first and stay a separate
// kind because some of them sit outside every generic range.
var rangeSpecs = []struct {
	kind     RangeKind
	prefixes []string
}{
	{RangeMetadata, []string{
		"169.254.169.254/32", // AWS, GCP, Azure, OpenStack
		"169.254.169.123/32", // AWS time sync
		"169.254.170.2/32",   // ECS task metadata
		"100.100.100.200/32", // Alibaba Cloud
		"fd00:ec2::254/128",  // AWS IMDS over IPv6
	}},
	{RangeUnspecified, []string{"0.0.0.0/8", "::/128"}},
	{RangeLoopback, []string{"127.0.0.0/8", "::1/128"}},
	{RangePrivate, []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}},
	{RangeCarrierNAT, []string{"100.64.0.0/10"}},
	{RangeLinkLocal, []string{"169.254.0.0/16", "fe80::/10"}},
	{RangeUniqueLocal, []string{"fc00::/7"}},
	{RangeMulticast, []string{"224.0.0.0/4", "ff00::/8"}},
	{RangeBroadcast, []string{"255.255.255.255/32"}},
	{RangeReserved, []string{
		"192.0.0.0/24",
		"192.0.2.0/24",
		"198.18.0.0/15",
		"198.51.100.0/24",
		"203.0.113.0/24",
		"240.0.0.0/4",
	}},
}

type blockedRange struct {
	kind RangeKind
	set  *netipx.IPSet
}

// blockedTable is built once and only ever read.
var blockedTable = buildBlockedTable()

var nat64Prefix = netip.MustParsePrefix("64:ff9b::/96")

func buildBlockedTable() []blockedRange {
	table := make([]blockedRange, 0, len(rangeSpecs))
	for _, spec := range rangeSpecs {
		var b netipx.IPSetBuilder
		for _, p := range spec.prefixes {
			b.AddPrefix(netip.MustParsePrefix(p))
		}
		set, err := b.IPSet()
		if err != nil {
			panic(fmt.Sprintf("invalid blocked range table entry %s: %v", spec.kind, err))
		}
		table = append(table, blockedRange{kind: spec.kind, set: set})
	}
	return table
}

// Classify returns the first range kind addr falls in, or RangeNone.
func Classify(addr netip.Addr) RangeKind {
	if !addr.IsValid() {
		return RangeNone
	}
	addr = normalizeAddr(addr)
	for _, r := range blockedTable {
		if r.set.Contains(addr) {
			return r.kind
		}
	}
	return RangeNone
}

// IsBlocked reports whether the textual IP literal is a disallowed
// destination. Anything that does not parse as an IP is not blocked here.
func IsBlocked(literal string) bool {
	addr, ok := parseIPLiteral(literal)
	if !ok {
		return false
	}
	return Classify(addr) != RangeNone
}

// normalizeAddr reduces addr to the form the table is keyed on: no zone,
// IPv4-mapped and NAT64 addresses collapsed to their IPv4 payload.
func normalizeAddr(addr netip.Addr) netip.Addr {
	addr = addr.WithZone("").Unmap()
	if addr.Is6() && nat64Prefix.Contains(addr) {
		b := addr.As16()
		return netip.AddrFrom4([4]byte{b[12], b[13], b[14], b[15]})
	}
	return addr
}

// parseIPLiteral accepts dotted-quad IPv4 and IPv6 text, with optional
// brackets and zone.
func parseIPLiteral(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

package safefetch

import (
	"net/netip"
	"testing"
)

func TestIsBlocked_BlockedRanges(t *testing.T) {
	blocked := []string{
		// 0.0.0.0/8
		"0.0.0.0",
		"0.255.255.255",
		// 10.0.0.0/8
		"10.0.0.1",
		"10.255.255.255",
		// 100.64.0.0/10
		"100.64.0.1",
		"100.127.255.255",
		// 127.0.0.0/8
		"127.0.0.1",
		"127.1.2.3",
		// 169.254.0.0/16
		"169.254.0.1",
		"169.254.255.255",
		// 172.16.0.0/12
		"172.16.0.1",
		"172.31.255.255",
		// 192.0.0.0/24
		"192.0.0.8",
		// 192.168.0.0/16
		"192.168.1.100",
		// 198.18.0.0/15
		"198.18.0.1",
		"198.19.255.255",
		// 224.0.0.0/4
		"224.0.0.1",
		"239.255.255.250",
		// broadcast
		"255.255.255.255",
		// IPv6
		"::1",
		"::",
		"fe80::1",
		"fe80::abcd:1234%eth0",
		"fc00::1",
		"fdff:ffff:ffff:ffff:ffff:ffff:ffff:ffff",
		"ff02::1",
		"[::1]",
		// IPv4-mapped private ranges
		"::ffff:127.0.0.1",
		"::ffff:10.0.0.1",
		"::ffff:192.168.1.1",
		"::ffff:172.16.0.1",
		"::ffff:169.254.169.254",
		// NAT64 wrapping a private address
		"64:ff9b::a00:1",
	}

	for _, literal := range blocked {
		t.Run(literal, func(t *testing.T) {
			if !IsBlocked(literal) {
				t.Errorf("IsBlocked(%q) = false, want true", literal)
			}
		})
	}
}

func TestIsBlocked_PublicAddresses(t *testing.T) {
	public := []string{
		"8.8.8.8",
		"1.1.1.1",
		"93.184.216.34",
		"172.32.0.1",      // just above 172.16/12
		"172.15.255.255",  // just below 172.16/12
		"11.0.0.1",        // just above 10/8
		"192.169.0.1",     // just above 192.168/16
		"100.63.255.255",  // just below 100.64/10
		"100.128.0.1",     // just above 100.64/10
		"198.20.0.1",      // just above 198.18/15
		"2607:f8b0:4004::1",
		"2001:4860:4860::8888",
		"::ffff:8.8.8.8",
		"64:ff9b::808:808", // NAT64 wrapping 8.8.8.8
	}

	for _, literal := range public {
		t.Run(literal, func(t *testing.T) {
			if IsBlocked(literal) {
				t.Errorf("IsBlocked(%q) = true, want false", literal)
			}
		})
	}
}

func TestIsBlocked_NotAnIP(t *testing.T) {
	for _, literal := range []string{"", "example.com", "localhost", "2130706433", "0x7f000001", "999.1.1.1", "1.2.3"} {
		if IsBlocked(literal) {
			t.Errorf("IsBlocked(%q) = true, want false for non-IP input", literal)
		}
	}
}

func TestClassify_MetadataTakesPrecedence(t *testing.T) {
	tests := []struct {
		addr string
		want RangeKind
	}{
		{"169.254.169.254", RangeMetadata},
		{"169.254.169.123", RangeMetadata},
		{"169.254.170.2", RangeMetadata},
		{"100.100.100.200", RangeMetadata},
		{"fd00:ec2::254", RangeMetadata},
		{"::ffff:169.254.169.254", RangeMetadata},
		{"169.254.1.1", RangeLinkLocal},
		{"100.100.100.201", RangeCarrierNAT},
		{"127.0.0.1", RangeLoopback},
		{"10.1.1.1", RangePrivate},
		{"fd00::1", RangeUniqueLocal},
		{"255.255.255.255", RangeBroadcast},
		{"250.1.1.1", RangeReserved},
		{"0.0.0.0", RangeUnspecified},
		{"8.8.8.8", RangeNone},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := Classify(netip.MustParseAddr(tt.addr)); got != tt.want {
				t.Errorf("Classify(%s) = %s, want %s", tt.addr, got, tt.want)
			}
		})
	}
}

func TestClassify_InvalidAddr(t *testing.T) {
	if got := Classify(netip.Addr{}); got != RangeNone {
		t.Errorf("Classify(zero Addr) = %s, want none", got)
	}
}

func TestBlockedTableCoversEveryKind(t *testing.T) {
	seen := map[RangeKind]bool{}
	for _, r := range blockedTable {
		if r.set == nil {
			t.Fatalf("range %s has no set", r.kind)
		}
		seen[r.kind] = true
	}
	for k := RangeMetadata; k <= RangeReserved; k++ {
		if !seen[k] {
			t.Errorf("blocked table is missing kind %s", k)
		}
	}
}

package safefetch

import (
	"context"
	"net"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"
)

// fakeResolver answers from a static table and counts lookups.
type fakeResolver struct {
	mu      sync.Mutex
	hosts   map[string][]string
	failing map[string]error // keyed by network
	calls   int
}

func newFakeResolver(hosts map[string][]string) *fakeResolver {
	return &fakeResolver{hosts: hosts, failing: map[string]error{}}
}

func (r *fakeResolver) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	if err, ok := r.failing[network]; ok {
		return nil, err
	}
	var out []netip.Addr
	for _, s := range r.hosts[host] {
		addr := netip.MustParseAddr(s)
		if (network == "ip4") == addr.Is4() {
			out = append(out, addr)
		}
	}
	if len(out) == 0 {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return out, nil
}

func (r *fakeResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// dialRecorder sends every connection to one httptest server and remembers
// the addresses it was asked to dial.
type dialRecorder struct {
	mu     sync.Mutex
	target string
	dialed []string
}

func newDialRecorder(srv *httptest.Server) *dialRecorder {
	return &dialRecorder{target: srv.Listener.Addr().String()}
}

func (d *dialRecorder) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	d.mu.Lock()
	d.dialed = append(d.dialed, addr)
	d.mu.Unlock()
	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", d.target)
}

func (d *dialRecorder) Dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dialed...)
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.FetchTimeout = 2 * time.Second
	p.ResolveTimeout = time.Second
	return p
}

func assertCode(t *testing.T, err error, want Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := CodeOf(err); got != want {
		t.Fatalf("expected %s error, got %s (%v)", want, got, err)
	}
}

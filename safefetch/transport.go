package safefetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// newTransport clones the default transport, turns proxies off and, when the
// policy asks for it, pins every connection to an address vetted at dial time.
func newTransport(policy Policy, hosts *HostValidator, dial DialFunc) *http.Transport {
	transport := &http.Transport{}
	if base, ok := http.DefaultTransport.(*http.Transport); ok && base != nil {
		transport = base.Clone()
	}
	transport.Proxy = nil
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ResponseHeaderTimeout = policy.FetchTimeout

	if dial == nil {
		d := &net.Dialer{Timeout: policy.FetchTimeout, KeepAlive: 30 * time.Second}
		dial = d.DialContext
	}
	if policy.PinResolvedAddrs {
		dial = pinnedDialer(hosts, dial)
	}
	transport.DialContext = dial
	return transport
}

// pinnedDialer resolves and classifies the host again at connect time and
// dials the vetted IP itself, so the resolver answer used for the connection
// is the one that was checked.
func pinnedDialer(hosts *HostValidator, dial DialFunc) DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, newError(CodeMalformedURL, err, "dial address %q", addr)
		}
		addrs, err := hosts.Resolve(ctx, host)
		if err != nil {
			return nil, err
		}

		var errs []error
		for _, ip := range addrs {
			if network == "tcp4" && !ip.Unmap().Is4() || network == "tcp6" && !ip.Is6() {
				continue
			}
			conn, err := dial(ctx, network, net.JoinHostPort(ip.String(), port))
			if err == nil {
				return conn, nil
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return nil, newError(CodeNetworkError, nil, "no %s address for %s", network, host)
		}
		return nil, errors.Join(errs...)
	}
}

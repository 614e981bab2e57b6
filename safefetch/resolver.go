package safefetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Resolver looks up the addresses of a host for one network ("ip4" or "ip6").
// *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

var errNoAddresses = errors.New("no addresses returned")

// HostValidator resolves hostnames and rejects any that map to a blocked
// address.
type HostValidator struct {
	resolver Resolver
	timeout  time.Duration
}

// NewHostValidator returns a validator using r, or net.DefaultResolver when r
// is nil. Each lookup is bounded by timeout.
func NewHostValidator(r Resolver, timeout time.Duration) *HostValidator {
	if r == nil {
		r = net.DefaultResolver
	}
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &HostValidator{resolver: r, timeout: timeout}
}

// Validate fails with BlockedAddress or ResolutionFailure.
func (v *HostValidator) Validate(ctx context.Context, host string) error {
	_, err := v.Resolve(ctx, host)
	return err
}

// Resolve returns every address host maps to, provided none of them is
// blocked. IP literals are classified directly without DNS.
func (v *HostValidator) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, ok := parseIPLiteral(host); ok {
		if kind := Classify(addr); kind != RangeNone {
			return nil, newError(CodeBlockedAddress, nil, "host %s is a %s address", host, kind)
		}
		return []netip.Addr{addr.WithZone("")}, nil
	}

	name := strings.TrimSuffix(strings.ToLower(host), ".")
	if name == "" {
		return nil, newError(CodeMalformedURL, nil, "empty hostname")
	}

	caller := ctx
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	// A failed family is a lookupResult value for combineLookups, never a
	// group error, so it cannot cancel the other family. Only the caller
	// giving up fails the group.
	var v4, v6 lookupResult
	var g errgroup.Group
	g.Go(func() error {
		v4 = v.lookup(ctx, "ip4", name)
		return caller.Err()
	})
	g.Go(func() error {
		v6 = v.lookup(ctx, "ip6", name)
		return caller.Err()
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newError(CodeTimeout, err, "resolve %s", name)
		}
		return nil, newError(CodeNetworkError, err, "resolve %s", name)
	}

	addrs, err := combineLookups(v4, v6)
	if err != nil {
		return nil, newError(CodeResolutionFailure, err, "resolve %s", name)
	}
	for _, addr := range addrs {
		if kind := Classify(addr); kind != RangeNone {
			return nil, newError(CodeBlockedAddress, nil, "host %s resolves to %s address %s", name, kind, addr)
		}
	}
	return addrs, nil
}

// lookupResult is the outcome of resolving one address family.
type lookupResult struct {
	network string
	addrs   []netip.Addr
	err     error
}

func (r lookupResult) ok() bool {
	return r.err == nil && len(r.addrs) > 0
}

func (v *HostValidator) lookup(ctx context.Context, network, host string) lookupResult {
	addrs, err := v.resolver.LookupNetIP(ctx, network, host)
	if err == nil && len(addrs) == 0 {
		err = errNoAddresses
	}
	if err != nil {
		return lookupResult{network: network, err: fmt.Errorf("%s lookup: %w", network, err)}
	}
	return lookupResult{network: network, addrs: addrs}
}

// combineLookups merges the per-family results. One family failing is
// tolerated; both failing is not.
func combineLookups(results ...lookupResult) ([]netip.Addr, error) {
	var addrs []netip.Addr
	var errs []error
	succeeded := 0
	for _, r := range results {
		if !r.ok() {
			err := r.err
			if err == nil {
				err = fmt.Errorf("%s lookup: %w", r.network, errNoAddresses)
			}
			errs = append(errs, err)
			continue
		}
		succeeded++
		addrs = append(addrs, r.addrs...)
	}
	if succeeded == 0 {
		if len(errs) == 0 {
			return nil, errNoAddresses
		}
		return nil, errors.Join(errs...)
	}
	return addrs, nil
}

package safefetch

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	DefaultMaxBodyBytes   = 10 << 20
	DefaultFetchTimeout   = 10 * time.Second
	DefaultResolveTimeout = 5 * time.Second
	DefaultMaxRedirects   = 1
	DefaultUserAgent      = "SEOAnalyzer/1.0 (+metadata preview)"
)

// Policy holds the tunable limits of the fetch pipeline.
type Policy struct {
	AllowedSchemes   []string      `yaml:"allowed_schemes"`
	AllowedPorts     []int         `yaml:"allowed_ports"`
	MaxRedirects     int           `yaml:"max_redirects"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	ResolveTimeout   time.Duration `yaml:"resolve_timeout"`
	UserAgent        string        `yaml:"user_agent"`
	PinResolvedAddrs bool          `yaml:"pin_resolved_addrs"`
}

// DefaultPolicy returns the production limits.
func DefaultPolicy() Policy {
	return Policy{
		AllowedSchemes:   []string{"http", "https"},
		AllowedPorts:     []int{80, 443, 8080, 8443},
		MaxRedirects:     DefaultMaxRedirects,
		MaxBodyBytes:     DefaultMaxBodyBytes,
		FetchTimeout:     DefaultFetchTimeout,
		ResolveTimeout:   DefaultResolveTimeout,
		UserAgent:        DefaultUserAgent,
		PinResolvedAddrs: true,
	}
}

// Validate checks that the policy can be enforced.
func (p Policy) Validate() error {
	var errs []error
	if len(p.AllowedSchemes) == 0 {
		errs = append(errs, errors.New("allowed_schemes must not be empty"))
	}
	for _, s := range p.AllowedSchemes {
		if s := strings.ToLower(s); s != "http" && s != "https" {
			errs = append(errs, fmt.Errorf("scheme %q cannot be fetched", s))
		}
	}
	if len(p.AllowedPorts) == 0 {
		errs = append(errs, errors.New("allowed_ports must not be empty"))
	}
	for _, port := range p.AllowedPorts {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("port %d out of range", port))
		}
	}
	if p.MaxRedirects < 0 {
		errs = append(errs, errors.New("max_redirects must not be negative"))
	}
	if p.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	if p.FetchTimeout <= 0 {
		errs = append(errs, errors.New("fetch_timeout must be positive"))
	}
	if p.ResolveTimeout <= 0 {
		errs = append(errs, errors.New("resolve_timeout must be positive"))
	}
	return errors.Join(errs...)
}

func (p Policy) schemeAllowed(scheme string) bool {
	return slices.ContainsFunc(p.AllowedSchemes, func(s string) bool {
		return strings.EqualFold(s, scheme)
	})
}

func (p Policy) portAllowed(port int) bool {
	return slices.Contains(p.AllowedPorts, port)
}

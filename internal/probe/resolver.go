package probe

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// DNSResolver performs reverse lookups with a bounded per-lookup timeout.
type DNSResolver struct {
	resolver *net.Resolver
	timeout  time.Duration
}

var _ Resolver = (*DNSResolver)(nil)

func NewDNSResolver(timeout time.Duration) *DNSResolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DNSResolver{resolver: net.DefaultResolver, timeout: timeout}
}

// LookupAddr returns the first PTR name of ip without the trailing dot.
func (r *DNSResolver) LookupAddr(ctx context.Context, ip string) (string, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	names, err := r.resolver.LookupAddr(lookupCtx, ip)
	if err != nil {
		return "", fmt.Errorf("reverse lookup %s: %w", ip, err)
	}
	for _, name := range names {
		if name = strings.TrimSuffix(name, "."); name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("reverse lookup %s: no names", ip)
}

package probe

import (
	"context"
	"net/url"
)

// Diagnose resolves the host of target and returns its DNS classification.
// It is only used to enrich logs for unreachable monitors.
func Diagnose(ctx context.Context, target string) DNSStatus {
	return CheckDNS(ctx, extractHost(target))
}

func extractHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

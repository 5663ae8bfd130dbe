// Package auth implements the origin allow-listing applied to browser
// connections before upgrade.
package auth

import (
	"strings"

	"k8s.io/utils/set"
)

// OriginPolicy decides whether a request origin may connect. One policy
// instance backs both the WebSocket origin check and the CORS layer so the
// two paths can never disagree on canonicalization.
type OriginPolicy struct {
	allowed  set.Set[string]
	allowAll bool
}

// ParseAllowedOrigins splits a comma-separated allow-list, trimming
// surrounding whitespace and dropping empty entries.
func ParseAllowedOrigins(raw string) []string {
	if raw == "" {
		return nil
	}

	var origins []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// NewOriginPolicy builds a policy from an allow-list. An empty list yields an
// allow-all policy, intended for development only.
func NewOriginPolicy(origins []string) *OriginPolicy {
	if len(origins) == 0 {
		return &OriginPolicy{allowAll: true}
	}

	allowed := set.New[string]()
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			allowed.Insert(o)
		}
	}
	return &OriginPolicy{allowed: allowed}
}

// AllowAll reports whether the policy accepts any origin.
func (p *OriginPolicy) AllowAll() bool {
	return p.allowAll
}

// Origins returns the allow-list in sorted order.
func (p *OriginPolicy) Origins() []string {
	if p.allowAll {
		return nil
	}
	return p.allowed.SortedList()
}

// Permits reports whether the given Origin header value is acceptable.
// Matching is exact after trimming surrounding whitespace.
func (p *OriginPolicy) Permits(origin string) bool {
	if p.allowAll {
		return true
	}
	return p.allowed.Has(strings.TrimSpace(origin))
}

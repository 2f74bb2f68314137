// Package content resolves content addresses through public gateways and
// uploads new content to a pinning service. Gateways are unreliable and
// non-authoritative: every read walks an ordered list of hosts with a
// bounded timeout per host, and exhausting the list is an expected outcome
// that yields a fallback rather than an error.
package content

import (
	"slices"
	"strings"
)

// ValidRef reports whether ref looks like a content address. CIDv0 hashes
// start with "Qm"; CIDv1 hashes are base32 ("b") or base16 ("f") encoded.
func ValidRef(ref string) bool {
	switch {
	case ref == "":
		return false
	case strings.HasPrefix(ref, "Qm"):
		return len(ref) >= 46
	case strings.HasPrefix(ref, "b"), strings.HasPrefix(ref, "f"):
		return len(ref) >= 50
	default:
		return false
	}
}

// GatewayURL joins a gateway base and a content address.
func GatewayURL(gateway, ref string) string {
	return strings.TrimRight(gateway, "/") + "/" + ref
}

// Fallbacks maps project categories to placeholder images.
type Fallbacks struct {
	byCategory map[string]string
	def        string
}

// NewFallbacks creates a fallback table. def is used for unknown categories.
func NewFallbacks(byCategory map[string]string, def string) Fallbacks {
	m := make(map[string]string, len(byCategory))
	for k, v := range byCategory {
		m[k] = v
	}
	return Fallbacks{byCategory: m, def: def}
}

// For returns the fallback image for a category.
func (f Fallbacks) For(category string) string {
	if url, ok := f.byCategory[category]; ok {
		return url
	}
	for k, url := range f.byCategory {
		if strings.EqualFold(k, strings.TrimSpace(category)) {
			return url
		}
	}
	return f.def
}

// Categories returns the known category names in sorted order.
func (f Fallbacks) Categories() []string {
	out := make([]string, 0, len(f.byCategory))
	for k := range f.byCategory {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// ProfileDocument is the off-chain profile JSON a user registers with.
// Older documents carry the role under "userType".
type ProfileDocument struct {
	Name             string `json:"name,omitempty"`
	Role             string `json:"role,omitempty"`
	UserType         string `json:"userType,omitempty"`
	Bio              string `json:"bio,omitempty"`
	Location         string `json:"location,omitempty"`
	Experience       string `json:"experience,omitempty"`
	RegistrationDate string `json:"registrationDate,omitempty"`
}

// EffectiveRole returns Role, falling back to UserType.
func (d *ProfileDocument) EffectiveRole() string {
	if d == nil {
		return ""
	}
	if d.Role != "" {
		return d.Role
	}
	return d.UserType
}

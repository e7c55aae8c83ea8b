package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MaxNamespaceLen is the Postgres identifier limit.
const MaxNamespaceLen = 63

const namespacePrefix = "bakery_"

var (
	namespacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	slugStrip        = regexp.MustCompile(`[^a-z0-9]+`)
)

// Namespace names one tenant's isolated set of tables. A Namespace can only
// hold an allow-listed identifier: it is built by DeriveNamespace at
// provisioning or checked by ParseNamespace, so it is always safe to quote
// into SQL.
type Namespace struct {
	name string
}

// PublicNamespace is the neutral namespace holding the global tables.
var PublicNamespace = Namespace{name: "public"}

// ParseNamespace validates a stored or transported namespace identifier.
// The neutral and system namespaces are rejected; tenants never own them.
func ParseNamespace(s string) (Namespace, error) {
	if s == "" || len(s) > MaxNamespaceLen || !namespacePattern.MatchString(s) {
		return Namespace{}, fmt.Errorf("invalid namespace identifier %q", s)
	}
	lower := strings.ToLower(s)
	if lower == "public" || lower == "information_schema" || strings.HasPrefix(lower, "pg_") {
		return Namespace{}, fmt.Errorf("reserved namespace identifier %q", s)
	}
	return Namespace{name: s}, nil
}

// randomSuffix is swapped in tests.
var randomSuffix = func() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "000000"
	}
	return hex.EncodeToString(buf)
}

// DeriveNamespace computes a fresh namespace for a tenant display name. The
// creation time and a random suffix keep two registrations of the same name
// apart even when they race.
func DeriveNamespace(displayName string, at time.Time) (Namespace, error) {
	slug := strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(displayName), "_"), "_")
	if slug == "" {
		slug = "tenant"
	}
	suffix := fmt.Sprintf("_%d_%s", at.UnixMilli(), randomSuffix())
	room := MaxNamespaceLen - len(namespacePrefix) - len(suffix)
	if len(slug) > room {
		slug = strings.TrimRight(slug[:room], "_")
	}
	return ParseNamespace(namespacePrefix + slug + suffix)
}

func (n Namespace) String() string { return n.name }

// IsZero reports whether no namespace is set.
func (n Namespace) IsZero() bool { return n.name == "" }

// IsPublic reports whether n is the neutral namespace.
func (n Namespace) IsPublic() bool { return n.name == PublicNamespace.name }

func (n Namespace) MarshalText() ([]byte, error) {
	return []byte(n.name), nil
}

func (n *Namespace) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*n = Namespace{}
		return nil
	}
	parsed, err := ParseNamespace(string(b))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

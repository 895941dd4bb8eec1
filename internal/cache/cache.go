// Package cache is the durable research cache: a TTL'd sqlite store with four
// namespaces (search, scrape, company, person) and an in-process hot layer.
// Cache failures never propagate: reads degrade to misses and writes are
// best-effort.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/sells-group/company-research/internal/model"
)

// Namespace identifies one logical cache region with its own TTL.
type Namespace string

const (
	NamespaceSearch  Namespace = "search"
	NamespaceScrape  Namespace = "scrape"
	NamespaceCompany Namespace = "company"
	NamespacePerson  Namespace = "person"
)

// Namespaces lists all valid namespaces.
func Namespaces() []Namespace {
	return []Namespace{NamespaceSearch, NamespaceScrape, NamespaceCompany, NamespacePerson}
}

// Valid reports whether ns is a known namespace.
func (n Namespace) Valid() bool {
	switch n {
	case NamespaceSearch, NamespaceScrape, NamespaceCompany, NamespacePerson:
		return true
	}
	return false
}

// QueryKey returns the cache key for a search query: SHA-256 of the
// lowercased, whitespace-collapsed query text.
func QueryKey(query string) string {
	return hashKey(model.NormalizeName(query))
}

// URLKey returns the cache key for a page URL. Fragments and trailing slashes
// are ignored so trivially different spellings hit the same entry.
func URLKey(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return hashKey(strings.TrimSpace(raw))
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	s := strings.TrimSuffix(u.String(), "/")
	return hashKey(s)
}

// EntityKey returns the cache key for a company or person name.
func EntityKey(name string) string {
	return model.NormalizeName(name)
}

// PersonKey returns the cache key for a person researched in the context of a
// company. The same name at two firms is two entries.
func PersonKey(personName, companyName string) string {
	return EntityKey(personName) + ":" + EntityKey(companyName)
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

package listing

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultKeyPrefix versions the key layout; bump it when the payload shape changes.
const DefaultKeyPrefix = "listing:v1"

// KeyDeriver maps a normalized request to its cache key.
type KeyDeriver struct {
	Prefix string
}

// DeriveKey derives a key with the default prefix.
func DeriveKey(namespace string, r Request) string {
	return KeyDeriver{Prefix: DefaultKeyPrefix}.Derive(namespace, r)
}

// Derive returns
//
//	<prefix>:<namespace>:search=<q>:page=<n>:limit=<n>:sort=<q>:order=<asc|desc>
//
// Free-text values are query-escaped, so they never contain ':' and every
// request maps to a distinct key. Search case is preserved.
func (k KeyDeriver) Derive(namespace string, r Request) string {
	var b strings.Builder
	b.WriteString(k.prefix())
	b.WriteString(":")
	b.WriteString(namespace)
	b.WriteString(":search=")
	b.WriteString(url.QueryEscape(r.Search))
	b.WriteString(":page=")
	b.WriteString(strconv.Itoa(r.Page))
	b.WriteString(":limit=")
	b.WriteString(strconv.Itoa(r.Limit))
	b.WriteString(":sort=")
	b.WriteString(url.QueryEscape(r.SortField))
	b.WriteString(":order=")
	b.WriteString(string(r.SortOrder))
	return b.String()
}

// Pattern returns the glob matching every key of namespace, or of all
// namespaces when namespace is empty.
func (k KeyDeriver) Pattern(namespace string) string {
	if namespace == "" {
		return k.prefix() + ":*"
	}
	return k.prefix() + ":" + namespace + ":*"
}

func (k KeyDeriver) prefix() string {
	if k.Prefix == "" {
		return DefaultKeyPrefix
	}
	return k.Prefix
}

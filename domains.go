package ddns

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/miekg/dns"
)

// ApexToken is the domain token that refers to the zone itself.
const ApexToken = "@"

// ConfigError reports a domain configuration problem.
// A cycle that hits one is abandoned without touching any record.
type ConfigError struct {
	Token  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "invalid domain configuration"
	if e.Token != "" {
		msg += fmt.Sprintf(" (token %q)", e.Token)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DomainSet is a set of fully-qualified domain names.
type DomainSet map[string]struct{}

// NewDomainSet returns a set holding names.
func NewDomainSet(names ...string) DomainSet {
	s := make(DomainSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s DomainSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order.
func (s DomainSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BuildDomainSet expands the configured tokens into fully-qualified names under zoneName.
//
// Token "@" becomes zoneName and any other token t becomes t.zoneName.
// A single invalid token fails the whole build with a *ConfigError.
func BuildDomainSet(zoneName string, tokens []string) (DomainSet, error) {
	set := make(DomainSet, len(tokens))
	for _, t := range tokens {
		if !ValidLabel(t) {
			return nil, &ConfigError{Token: t, Reason: "does not match the subdomain pattern"}
		}
		fqdn := zoneName
		if t != ApexToken {
			fqdn = t + "." + zoneName
		}
		if _, ok := dns.IsDomainName(fqdn); !ok {
			return nil, &ConfigError{Token: t, Reason: fmt.Sprintf("%q is not a valid domain name", fqdn)}
		}
		set[fqdn] = struct{}{}
	}
	return set, nil
}

// DomainSource supplies the configured domain tokens.
// It is consulted at the start of every cycle.
type DomainSource interface {
	Tokens() ([]string, error)
}

// StaticDomains is a fixed list of domain tokens.
type StaticDomains []string

// Tokens implements ddns.DomainSource.
func (s StaticDomains) Tokens() ([]string, error) {
	return append([]string(nil), s...), nil
}

// DomainFile reads domain tokens from a JSON file holding an array of strings, e.g.
//
//	["@", "www", "vpn"]
//
// The file is read again on every call so edits apply on the next cycle.
type DomainFile string

// Tokens implements ddns.DomainSource.
func (f DomainFile) Tokens() ([]string, error) {
	b, err := os.ReadFile(string(f))
	if err != nil {
		return nil, &ConfigError{Reason: "unable to read domain file", Err: err}
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil || raw == nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("%s did not contain a JSON array", string(f)), Err: err}
	}
	tokens := make([]string, 0, len(raw))
	for _, r := range raw {
		var t string
		if err := json.Unmarshal(r, &t); err != nil || string(r) == "null" {
			return nil, &ConfigError{Token: string(r), Reason: "is not a string"}
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

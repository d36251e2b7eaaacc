package tenant

import (
	"os"
	"sort"
	"strings"
)

// Registry is the static set of recognized journal codes. Resolution
// substitutes the fallback journal for anything outside the set, so
// lookups never fail.
type Registry struct {
	codes    map[string]struct{}
	fallback string
}

// NewRegistry builds a registry from known codes and a fallback code.
// The fallback is always a member.
func NewRegistry(codes []string, fallback string) *Registry {
	set := make(map[string]struct{}, len(codes)+1)
	for _, c := range codes {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	fallback = strings.ToLower(strings.TrimSpace(fallback))
	if fallback != "" {
		set[fallback] = struct{}{}
	}
	return &Registry{codes: set, fallback: fallback}
}

// Known reports whether code is a recognized journal.
func (r *Registry) Known(code string) bool {
	_, ok := r.codes[strings.ToLower(code)]
	return ok
}

// Fallback returns the journal substituted for unknown codes.
func (r *Registry) Fallback() string {
	return r.fallback
}

// Codes returns the recognized journal codes in sorted order.
func (r *Registry) Codes() []string {
	out := make([]string, 0, len(r.codes))
	for c := range r.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ScanEnvDir lists journal codes that have a tenant env file in dir,
// following the ".env.<code>" naming convention. A missing directory
// yields no codes.
func ScanEnvDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var codes []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if code, ok := strings.CutPrefix(name, ".env."); ok && code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

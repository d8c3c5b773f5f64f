package locale

import (
	"fmt"
	"strings"

	"github.com/hpungsan/parley/internal/errors"
)

// Registry is an ordered, immutable set of profiles.
// Detection walks profiles in registration order.
type Registry struct {
	profiles []*Profile
	byName   map[string]*Profile
}

// NewRegistry builds a registry from profiles in the given order.
func NewRegistry(profiles ...*Profile) (*Registry, error) {
	r := &Registry{
		profiles: make([]*Profile, 0, len(profiles)),
		byName:   make(map[string]*Profile, len(profiles)),
	}
	for _, p := range profiles {
		if p == nil {
			return nil, fmt.Errorf("nil locale profile")
		}
		if _, dup := r.byName[p.name]; dup {
			return nil, fmt.Errorf("duplicate locale %q", p.name)
		}
		r.profiles = append(r.profiles, p)
		r.byName[p.name] = p
	}
	return r, nil
}

// DefaultRegistry returns a fresh registry holding the built-in profiles (he, en).
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Hebrew(), English())
	if err != nil {
		panic(err)
	}
	return r
}

// With returns a new registry where p replaces the profile of the same name in
// place, or is appended if the name is new. The receiver is left untouched.
func (r *Registry) With(p *Profile) *Registry {
	out := &Registry{
		profiles: make([]*Profile, 0, len(r.profiles)+1),
		byName:   make(map[string]*Profile, len(r.profiles)+1),
	}
	replaced := false
	for _, existing := range r.profiles {
		if existing.name == p.name {
			existing = p
			replaced = true
		}
		out.profiles = append(out.profiles, existing)
		out.byName[existing.name] = existing
	}
	if !replaced {
		out.profiles = append(out.profiles, p)
		out.byName[p.name] = p
	}
	return out
}

// Profiles returns the profiles in registration order.
func (r *Registry) Profiles() []*Profile {
	out := make([]*Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// Get returns the profile registered under name.
func (r *Registry) Get(name string) (*Profile, error) {
	p, ok := r.byName[normalizeName(name)]
	if !ok {
		return nil, errors.NewUnknownLocale(name)
	}
	return p, nil
}

// Detect returns the first profile, in registration order, whose directionality
// mark occurs in sample. Date text is deliberately ignored: "03.05.24" style
// dates are ambiguous across dialects, the mark is not.
func (r *Registry) Detect(sample string) (*Profile, error) {
	for _, p := range r.profiles {
		if p.mark == 0 {
			continue
		}
		if strings.ContainsRune(sample, p.mark) {
			return p, nil
		}
	}
	return nil, errors.NewUnsupportedLocale(sample)
}

// Sample returns the first non-blank line of text, which is enough for Detect.
// A leading byte order mark is dropped.
func Sample(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	for len(text) > 0 {
		line, rest, _ := strings.Cut(text, "\n")
		if strings.TrimSpace(line) != "" {
			return strings.TrimRight(line, "\r")
		}
		text = rest
	}
	return ""
}

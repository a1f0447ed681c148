package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
)

// Filter selects profiles in List. A nil Filter matches everything.
type Filter func(ServerProfile) bool

// Registry is the in-memory set of server profiles and group labels. It is
// not safe for concurrent mutation; a single goroutine owns it.
type Registry struct {
	profiles map[string]ServerProfile
	groups   map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[string]ServerProfile),
		groups:   make(map[string]struct{}),
	}
}

// Len returns the number of profiles.
func (r *Registry) Len() int {
	return len(r.profiles)
}

// Add stores a new profile. The registry is unchanged on error.
func (r *Registry) Add(profile ServerProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	if _, exists := r.profiles[profile.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, profile.ID)
	}
	r.profiles[profile.ID] = profile.Clone()
	r.addGroup(profile.Group)
	return nil
}

// Remove deletes the profile with the given identifier.
func (r *Registry) Remove(id string) error {
	if _, exists := r.profiles[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.profiles, id)
	return nil
}

// Edit applies mutate to a copy of the profile and stores the result if
// mutate succeeds and the result is valid. The mutator may change the
// identifier as long as the new one is free.
func (r *Registry) Edit(id string, mutate func(*ServerProfile) error) error {
	current, exists := r.profiles[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	edited := current.Clone()
	if err := mutate(&edited); err != nil {
		return err
	}
	if err := edited.Validate(); err != nil {
		return err
	}
	if edited.ID != id {
		if _, taken := r.profiles[edited.ID]; taken {
			return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, edited.ID)
		}
		delete(r.profiles, id)
	}
	r.profiles[edited.ID] = edited
	r.addGroup(edited.Group)
	return nil
}

// Get returns a copy of the profile with the given identifier.
func (r *Registry) Get(id string) (ServerProfile, bool) {
	p, ok := r.profiles[id]
	if !ok {
		return ServerProfile{}, false
	}
	return p.Clone(), true
}

// List yields copies of the profiles matching filter ordered by group then
// identifier. The order is fixed when iteration starts.
func (r *Registry) List(filter Filter) iter.Seq[ServerProfile] {
	return func(yield func(ServerProfile) bool) {
		for _, p := range r.sorted() {
			if filter != nil && !filter(p) {
				continue
			}
			if !yield(p.Clone()) {
				return
			}
		}
	}
}

// Profiles returns every profile in List order.
func (r *Registry) Profiles() []ServerProfile {
	return slices.Collect(r.List(nil))
}

func (r *Registry) sorted() []ServerProfile {
	out := slices.Collect(maps.Values(r.profiles))
	slices.SortFunc(out, func(a, b ServerProfile) int {
		return cmp.Or(cmp.Compare(a.Group, b.Group), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Groups returns the known group labels, sorted.
func (r *Registry) Groups() []string {
	return slices.Sorted(maps.Keys(r.groups))
}

// AddGroup registers a label even if no profile uses it yet.
func (r *Registry) AddGroup(label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return fmt.Errorf("%w: group label is empty", ErrInvalidProfile)
	}
	r.addGroup(label)
	return nil
}

func (r *Registry) addGroup(label string) {
	if label != "" {
		r.groups[label] = struct{}{}
	}
}

// RemoveGroup forgets a label. Profiles in it become ungrouped; none are
// deleted. It returns the identifiers that were ungrouped.
func (r *Registry) RemoveGroup(label string) ([]string, error) {
	if _, ok := r.groups[label]; !ok {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, label)
	}
	delete(r.groups, label)

	var moved []string
	for id, p := range r.profiles {
		if p.Group == label {
			p.Group = ""
			r.profiles[id] = p
			moved = append(moved, id)
		}
	}
	slices.Sort(moved)
	return moved, nil
}

// RenameGroup relabels a group and all of its members.
func (r *Registry) RenameGroup(from, to string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("%w: group label is empty", ErrInvalidProfile)
	}
	if _, ok := r.groups[from]; !ok {
		return fmt.Errorf("%w: group %s", ErrNotFound, from)
	}
	delete(r.groups, from)
	r.groups[to] = struct{}{}
	for id, p := range r.profiles {
		if p.Group == from {
			p.Group = to
			r.profiles[id] = p
		}
	}
	return nil
}

// SkippedDuplicate reports an imported entry that was not added because its
// identifier is already taken.
type SkippedDuplicate struct {
	ID   string
	Host string
}

// RejectedEntry reports an imported entry that did not form a valid profile.
type RejectedEntry struct {
	ID  string
	Err error
}

// ImportReport summarizes ImportFrom.
type ImportReport struct {
	Added    []string
	Skipped  []SkippedDuplicate
	Rejected []RejectedEntry
}

// ImportFrom merges ssh_config host entries. Existing profiles are never
// overwritten; colliding entries are reported as skipped.
func (r *Registry) ImportFrom(entries []HostEntry) ImportReport {
	var report ImportReport
	for _, e := range entries {
		if _, exists := r.profiles[e.Alias]; exists {
			report.Skipped = append(report.Skipped, SkippedDuplicate{ID: e.Alias, Host: e.Host})
			continue
		}
		if err := r.Add(ProfileFromHostEntry(e)); err != nil {
			report.Rejected = append(report.Rejected, RejectedEntry{ID: e.Alias, Err: err})
			continue
		}
		report.Added = append(report.Added, e.Alias)
	}
	return report
}

// ProfileFromHostEntry converts an ssh_config entry into a profile in the
// Imported group. Entries with an identity file use it, others use the agent.
func ProfileFromHostEntry(e HostEntry) ServerProfile {
	host := e.Host
	if host == "" {
		host = e.Alias
	}
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	auth := AuthMethod{Kind: AuthAgent}
	if e.IdentityFile != "" {
		auth = AuthMethod{Kind: AuthKeyFile, KeyPath: e.IdentityFile}
	}
	return ServerProfile{
		ID:       e.Alias,
		Host:     host,
		Port:     port,
		Username: e.User,
		Group:    ImportedGroup,
		Auth:     auth,
	}
}

type registryFile struct {
	Profiles []ServerProfile `json:"profiles"`
	Groups   []string        `json:"groups"`
}

// MarshalJSON encodes the registry with profiles in List order.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(registryFile{
		Profiles: r.sorted(),
		Groups:   r.Groups(),
	})
}

// UnmarshalJSON replaces the registry contents, enforcing identifier
// uniqueness.
func (r *Registry) UnmarshalJSON(data []byte) error {
	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	fresh := NewRegistry()
	for _, g := range file.Groups {
		fresh.addGroup(g)
	}
	for _, p := range file.Profiles {
		if err := fresh.Add(p); err != nil {
			return err
		}
	}
	*r = *fresh
	return nil
}

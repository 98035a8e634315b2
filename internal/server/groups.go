package server

import (
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Group is a named set of members. The member list always contains the
// creator and does not change after creation.
type Group struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// HasMember reports whether username belongs to g.
func (g Group) HasMember(username string) bool {
	return slices.Contains(g.Members, username)
}

// GroupDirectory records the groups created since the process started. The
// first creation of a name wins; later attempts fail with ErrGroupExists.
type GroupDirectory struct {
	mu     sync.RWMutex
	groups map[string]Group
	router *Router
	log    zerolog.Logger
}

// NewGroupDirectory returns an empty directory that announces new groups
// through router.
func NewGroupDirectory(router *Router, logger zerolog.Logger) *GroupDirectory {
	return &GroupDirectory{
		groups: make(map[string]Group),
		router: router,
		log:    logger,
	}
}

// Create registers a group and notifies every member that is online. The
// creator is added to the members if the request left it out, and duplicate
// members are collapsed.
func (d *GroupDirectory) Create(name string, members []string, creator string) (Group, error) {
	g := Group{
		Name:    name,
		Members: lo.Uniq(append(slices.Clone(members), creator)),
	}

	d.mu.Lock()
	if _, exists := d.groups[name]; exists {
		d.mu.Unlock()
		return Group{}, fmt.Errorf("%w: %q", ErrGroupExists, name)
	}
	d.groups[name] = g
	d.mu.Unlock()

	notified := d.router.NotifyGroupCreated(g)
	d.log.Info().
		Str("group", name).
		Str("creator", creator).
		Int("members", len(g.Members)).
		Int("notified", notified).
		Msg("group created")

	return cloneGroup(g), nil
}

// Get returns the group called name.
func (d *GroupDirectory) Get(name string) (Group, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.groups[name]
	if !ok {
		return Group{}, false
	}
	return cloneGroup(g), true
}

// Len returns the number of groups.
func (d *GroupDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.groups)
}

func cloneGroup(g Group) Group {
	return Group{Name: g.Name, Members: slices.Clone(g.Members)}
}

package registry

import (
	"context"
	"slices"

	"github.com/dmitrymomot/sessioncore/core/logger"
)

// JoinGroup adds a registered client to group. Returns false for unknown clients.
func (r *Registry) JoinGroup(ctx context.Context, clientID, group string) bool {
	r.mu.Lock()
	e, ok := r.conns[clientID]
	if !ok || group == "" {
		r.mu.Unlock()
		return false
	}

	members, ok := r.groups[group]
	if !ok {
		members = make(map[string]struct{})
		r.groups[group] = members
	}
	members[clientID] = struct{}{}
	e.groups[group] = struct{}{}
	r.mu.Unlock()

	r.logger.DebugContext(ctx, "client joined group",
		logger.ClientID(clientID),
		logger.GroupName(group))
	return true
}

// LeaveGroup removes the client from group. Empty groups are deleted.
func (r *Registry) LeaveGroup(ctx context.Context, clientID, group string) {
	r.mu.Lock()
	if e, ok := r.conns[clientID]; ok {
		delete(e.groups, group)
	}
	r.leaveLocked(clientID, group)
	r.mu.Unlock()

	r.logger.DebugContext(ctx, "client left group",
		logger.ClientID(clientID),
		logger.GroupName(group))
}

func (r *Registry) leaveLocked(clientID, group string) {
	members, ok := r.groups[group]
	if !ok {
		return
	}
	delete(members, clientID)
	if len(members) == 0 {
		delete(r.groups, group)
	}
}

// Members returns the ids in group in lexical order.
func (r *Registry) Members(group string) []string {
	r.mu.RLock()
	members := r.groups[group]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Groups returns the existing group names in lexical order.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.groups))
	for g := range r.groups {
		names = append(names, g)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

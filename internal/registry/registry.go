package registry

import (
	"sort"
	"sync"
)

type set map[string]struct{}

// Registry tracks which participants are in which rooms.
//
// Absent rooms and participants behave as empty sets; no operation fails.
// A room whose last member leaves is deleted.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]set
	// byParticipant is the reverse index used for disconnect cleanup.
	byParticipant map[string]set
}

func New() *Registry {
	return &Registry{
		rooms:         make(map[string]set),
		byParticipant: make(map[string]set),
	}
}

// Add inserts participant into room and reports whether it was newly added.
func (r *Registry) Add(room, participant string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(set)
		r.rooms[room] = members
	}
	if _, exists := members[participant]; exists {
		return false
	}
	members[participant] = struct{}{}

	joined, ok := r.byParticipant[participant]
	if !ok {
		joined = make(set)
		r.byParticipant[participant] = joined
	}
	joined[room] = struct{}{}
	return true
}

// Remove deletes participant from room and reports whether it was present.
func (r *Registry) Remove(room, participant string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, exists := members[participant]; !exists {
		return false
	}
	delete(members, participant)
	if len(members) == 0 {
		delete(r.rooms, room)
	}

	if joined, ok := r.byParticipant[participant]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.byParticipant, participant)
		}
	}
	return true
}

// Contains reports whether participant is a member of room.
func (r *Registry) Contains(room, participant string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][participant]
	return ok
}

// Members returns the sorted members of room.
func (r *Registry) Members(room string) []string {
	return r.MembersExcluding(room, "")
}

// MembersExcluding returns the sorted members of room other than participant.
func (r *Registry) MembersExcluding(room, participant string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]string, 0, len(members))
	for id := range members {
		if id != participant {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// RoomsContaining returns the sorted rooms participant currently occupies.
func (r *Registry) RoomsContaining(participant string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := r.byParticipant[participant]
	out := make([]string, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

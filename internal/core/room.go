package core

import (
	"sort"
	"sync"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// Room groups sessions subscribed to the same channel.
type Room struct {
	Name string

	mu      sync.Mutex
	members map[string]*Session // by session ID
}

// NewRoom constructs a room with no members.
func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		members: make(map[string]*Session),
	}
}

// AddMember inserts a session into the room. Returns true if newly added.
func (r *Room) AddMember(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[s.ID]; exists {
		return false
	}
	r.members[s.ID] = s
	return true
}

// RemoveMember deletes a session from the room. Returns true if removed.
func (r *Room) RemoveMember(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[s.ID]; !exists {
		return false
	}
	delete(r.members, s.ID)
	return true
}

// HasMember reports whether the session is in the room.
func (r *Room) HasMember(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.members[s.ID]
	return ok
}

// Members returns a snapshot of the current members.
func (r *Room) Members() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make([]*Session, 0, len(r.members))
	for _, s := range r.members {
		snapshot = append(snapshot, s)
	}
	return snapshot
}

// Len returns the number of members.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Broadcast queues env for every member except exclude. The member set is
// snapshotted under the lock and delivery happens after releasing it.
// A member that cannot take the envelope is closed; its own cleanup removes
// it from the room. Returns the number of members the envelope was queued for.
func (r *Room) Broadcast(env proto.Envelope, exclude *Session) int {
	delivered := 0
	for _, member := range r.Members() {
		if member == exclude {
			continue
		}
		if err := member.Send(env); err != nil {
			member.log.Warn().Err(err).Str("room", r.Name).Msg("dropping member on failed delivery")
			member.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// Registry maps room names to live rooms.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty room registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Ensure returns the named room, creating the in-memory entry if needed.
func (r *Registry) Ensure(name string) *Room {
	r.mu.RLock()
	room, ok := r.rooms[name]
	r.mu.RUnlock()
	if ok {
		return room
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok = r.rooms[name]; ok {
		return room
	}
	room = NewRoom(name)
	r.rooms[name] = room
	return room
}

// Get returns the named room if it has been registered.
func (r *Registry) Get(name string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[name]
	return room, ok
}

// Join adds s to the named room. Returns true if newly added.
func (r *Registry) Join(name string, s *Session) bool {
	return r.Ensure(name).AddMember(s)
}

// Leave removes s from the named room. Returns true if it was a member.
func (r *Registry) Leave(name string, s *Session) bool {
	room, ok := r.Get(name)
	if !ok {
		return false
	}
	return room.RemoveMember(s)
}

// Broadcast fans env out to the named room, skipping exclude.
func (r *Registry) Broadcast(name string, env proto.Envelope, exclude *Session) int {
	room, ok := r.Get(name)
	if !ok {
		return 0
	}
	return room.Broadcast(env, exclude)
}

// RoomStat is a point-in-time view of a room.
type RoomStat struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// Stats returns every registered room with the usernames of its members,
// sorted by room name.
func (r *Registry) Stats() []RoomStat {
	r.mu.RLock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	stats := make([]RoomStat, 0, len(rooms))
	for _, room := range rooms {
		members := room.Members()
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, m.Username())
		}
		sort.Strings(names)
		stats = append(stats, RoomStat{Name: room.Name, Members: names})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

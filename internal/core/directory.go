package core

import (
	"sort"
	"sync"
)

// Directory maps authenticated usernames to their live session.
// At most one session per username.
type Directory struct {
	mu    sync.RWMutex
	users map[string]*Session
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{users: make(map[string]*Session)}
}

// Insert registers s under username. A username held by another live
// session is rejected with ErrAlreadyLoggedIn.
func (d *Directory) Insert(username string, s *Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.users[username]; ok && existing != s {
		return ErrAlreadyLoggedIn
	}
	d.users[username] = s
	return nil
}

// Remove deletes the entry for username if it still points at s.
func (d *Directory) Remove(username string, s *Session) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.users[username]; ok && existing == s {
		delete(d.users, username)
		return true
	}
	return false
}

// Lookup returns the live session for username.
func (d *Directory) Lookup(username string) (*Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.users[username]
	return s, ok
}

// Online returns the sorted list of usernames with a live session.
func (d *Directory) Online() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.users))
	for name := range d.users {
		names = append(names, name)
	}
	d.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of online users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

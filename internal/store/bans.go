package store

import (
	"sort"
	"sync"
)

// BanSet is the set of banned usernames, persisted as a JSON array. Bans
// are written back immediately on every change so they survive a crash.
type BanSet struct {
	path string

	mu   sync.Mutex
	bans map[string]struct{}
}

// OpenBans loads the ban set at path. A missing file yields an empty set and
// no error; any other failure yields an empty, usable set plus the error for
// the caller to log.
func OpenBans(path string) (*BanSet, error) {
	s := &BanSet{path: path, bans: make(map[string]struct{})}

	var names []string
	if err := loadJSON(path, &names); err != nil {
		if isNotExist(err) {
			return s, nil
		}
		return s, err
	}
	for _, name := range names {
		s.bans[name] = struct{}{}
	}
	return s, nil
}

// Path returns the file the set persists to.
func (s *BanSet) Path() string {
	return s.path
}

// Banned reports whether username is in the set.
func (s *BanSet) Banned(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bans[username]
	return ok
}

// Ban adds username to the set.
func (s *BanSet) Ban(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bans[username] = struct{}{}
}

// Unban removes username from the set.
func (s *BanSet) Unban(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bans, username)
}

// Names returns the banned usernames, sorted.
func (s *BanSet) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.bans))
	for name := range s.bans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes the set to disk as a sorted JSON array.
func (s *BanSet) Save() error {
	return saveJSON(s.path, s.Names())
}

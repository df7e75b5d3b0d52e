package store

import (
	"fmt"
	"sort"
)

// Roles a user record can carry.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is one account record. Password holds a bcrypt digest, never the
// plain text.
type User struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UserStore holds the account records, persisted as a JSON object keyed by
// username. The server treats it as read-only once serving; mutation happens
// through the adduser command before startup.
type UserStore struct {
	path  string
	users map[string]User
}

// OpenUsers loads the user store at path. A missing file yields an empty
// store and no error. On any other failure the returned store is empty and
// usable; the error tells the caller to log a warning.
func OpenUsers(path string) (*UserStore, error) {
	s := &UserStore{path: path, users: make(map[string]User)}

	var records map[string]User
	if err := loadJSON(path, &records); err != nil {
		if isNotExist(err) {
			return s, nil
		}
		return s, err
	}
	if records != nil {
		s.users = records
	}
	return s, nil
}

// Get returns the record for username.
func (s *UserStore) Get(username string) (User, bool) {
	u, ok := s.users[username]
	return u, ok
}

// Add inserts a new record. Existing usernames are not overwritten.
func (s *UserStore) Add(u User) error {
	if u.Username == "" {
		return fmt.Errorf("adding user: empty username")
	}
	if _, ok := s.users[u.Username]; ok {
		return fmt.Errorf("adding user %q: %w", u.Username, ErrUserExists)
	}
	s.users[u.Username] = u
	return nil
}

// Len returns the number of records.
func (s *UserStore) Len() int {
	return len(s.users)
}

// AdminNames returns the usernames holding the admin role, sorted.
func (s *UserStore) AdminNames() []string {
	var names []string
	for name, u := range s.users {
		if u.Role == RoleAdmin {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Save writes the records back to disk.
func (s *UserStore) Save() error {
	return saveJSON(s.path, s.users)
}

// Package pool manages the PgBouncer side of a credential: the userlist
// file the pooler authenticates against, and the password hash schemes it
// understands.
package pool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultUserlistPath is PgBouncer's conventional credential store.
const DefaultUserlistPath = "/etc/pgbouncer/userlist.txt"

// Userlist is the parsed pooler credential store: ordered ("role", "hash")
// pairs. Entries already present in the file, including hand-added ones,
// survive a save.
type Userlist struct {
	path  string
	roles []string
	hash  map[string]string
}

// LoadUserlist reads the userlist at path; a missing file yields an empty
// list (first credential creates it).
func LoadUserlist(path string) (*Userlist, error) {
	if path == "" {
		path = DefaultUserlistPath
	}
	u := &Userlist{path: path, hash: map[string]string{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return u, nil
		}
		return nil, fmt.Errorf("read userlist: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		role, hash, ok := parseUserlistLine(line)
		if !ok {
			continue
		}
		if _, seen := u.hash[role]; !seen {
			u.roles = append(u.roles, role)
		}
		u.hash[role] = hash
	}
	return u, nil
}

// parseUserlistLine parses one `"role" "hash"` line.
func parseUserlistLine(line string) (role, hash string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	fields := strings.SplitN(line, `" "`, 2)
	if len(fields) != 2 {
		return "", "", false
	}
	role = strings.TrimPrefix(fields[0], `"`)
	hash = strings.TrimSuffix(fields[1], `"`)
	if role == "" || hash == "" {
		return "", "", false
	}
	return role, hash, true
}

// Lookup returns the stored hash for role.
func (u *Userlist) Lookup(role string) (string, bool) {
	h, ok := u.hash[role]
	return h, ok
}

// Upsert sets the hash for role, appending the role on first sight and
// replacing its hash in place otherwise.
func (u *Userlist) Upsert(role, hash string) {
	if _, seen := u.hash[role]; !seen {
		u.roles = append(u.roles, role)
	}
	u.hash[role] = hash
}

// Save writes the userlist atomically with owner-only permissions, since it
// holds credential material.
func (u *Userlist) Save() error {
	var b strings.Builder
	for _, role := range u.roles {
		fmt.Fprintf(&b, "%q %q\n", role, u.hash[role])
	}

	dir := filepath.Dir(u.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(u.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp userlist: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod userlist: %w", err)
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("write userlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close userlist: %w", err)
	}
	if err := os.Rename(tmp.Name(), u.path); err != nil {
		return fmt.Errorf("rename userlist: %w", err)
	}
	return nil
}

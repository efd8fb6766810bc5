// Package hba models the PostgreSQL client authentication rule file
// (pg_hba.conf) as an ordered list of rule lines that can be extended
// without duplicating equivalent rules.
package hba

import (
	"fmt"
	"os"
	"strings"
)

// Rule is one authentication rule line: connection type, database, user,
// source address, and auth method. Local (socket) rules carry no address.
type Rule struct {
	ConnType string // "local", "host", "hostssl"
	Database string
	User     string
	Address  string // CIDR; empty for ConnType "local"
	Method   string // "peer", "md5", "scram-sha-256", ...
}

// String renders the rule as a pg_hba.conf line.
func (r Rule) String() string {
	if r.ConnType == "local" {
		return fmt.Sprintf("local\t%s\t%s\t%s", r.Database, r.User, r.Method)
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%s", r.ConnType, r.Database, r.User, r.Address, r.Method)
}

// Equivalent reports whether two rules grant the same access. The auth
// method is deliberately excluded: a rule for the same (type, database,
// user, address) with a different method already decides that client, and
// appending a second one would never be reached.
func (r Rule) Equivalent(o Rule) bool {
	return r.ConnType == o.ConnType &&
		r.Database == o.Database &&
		r.User == o.User &&
		r.Address == o.Address
}

// File is a parsed pg_hba.conf: raw lines plus the rules recognized in them.
type File struct {
	lines []string
	rules []Rule
}

// ParseFile reads and parses path.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hba file: %w", err)
	}
	return Parse(string(data)), nil
}

// Parse builds a File from raw content.
func Parse(content string) *File {
	f := &File{}
	if content == "" {
		return f
	}
	for _, text := range strings.Split(strings.TrimSuffix(content, "\n"), "\n") {
		f.lines = append(f.lines, text)
		if r, ok := parseRule(text); ok {
			f.rules = append(f.rules, r)
		}
	}
	return f
}

func parseRule(text string) (Rule, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Rule{}, false
	}
	fields := strings.Fields(trimmed)
	switch fields[0] {
	case "local":
		if len(fields) < 4 {
			return Rule{}, false
		}
		return Rule{ConnType: "local", Database: fields[1], User: fields[2], Method: fields[3]}, true
	case "host", "hostssl", "hostnossl":
		if len(fields) < 5 {
			return Rule{}, false
		}
		return Rule{ConnType: fields[0], Database: fields[1], User: fields[2], Address: fields[3], Method: fields[4]}, true
	}
	return Rule{}, false
}

// Ensure appends r unless an equivalent rule already exists. It reports
// whether the file changed.
func (f *File) Ensure(r Rule) bool {
	for _, have := range f.rules {
		if have.Equivalent(r) {
			return false
		}
	}
	f.lines = append(f.lines, r.String())
	f.rules = append(f.rules, r)
	return true
}

// Contains reports whether an equivalent rule exists.
func (f *File) Contains(r Rule) bool {
	for _, have := range f.rules {
		if have.Equivalent(r) {
			return true
		}
	}
	return false
}

// Rules returns the recognized rules in file order.
func (f *File) Rules() []Rule {
	return append([]Rule(nil), f.rules...)
}

// String serializes the file with a trailing newline.
func (f *File) String() string {
	if len(f.lines) == 0 {
		return ""
	}
	return strings.Join(f.lines, "\n") + "\n"
}

// WriteFile serializes to path with the given mode.
func (f *File) WriteFile(path string, mode os.FileMode) error {
	if err := os.WriteFile(path, []byte(f.String()), mode); err != nil {
		return fmt.Errorf("write hba file: %w", err)
	}
	return nil
}

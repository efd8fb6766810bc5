// Package conffile applies idempotent edits to line-oriented configuration
// files (postgresql.conf, pgbouncer.ini). Files are parsed into a line model
// rather than pattern-substituted, so repeated or conflicting directives
// collapse to a single active occurrence instead of accumulating.
package conffile

import (
	"fmt"
	"regexp"
	"strings"
)

type lineKind int

const (
	kindOther     lineKind = iota // blank, prose comment, anything unrecognized
	kindDirective                 // active "key = value"
	kindCommented                 // "#key = value", a disabled directive
	kindSection                   // "[name]" INI section header
)

// directiveRe matches an optionally comment-prefixed key = value line.
var directiveRe = regexp.MustCompile(`^(\s*)(#+\s*)?([A-Za-z_][A-Za-z0-9_.]*)\s*=\s*(.*)$`)

// sectionRe matches an INI section header.
var sectionRe = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*$`)

type line struct {
	kind    lineKind
	raw     string
	key     string // directive and commented lines
	value   string
	section string // section this line belongs to ("" before any header)
}

// File is a parsed configuration file.
type File struct {
	lines []line
	// noFinalNewline records a file whose last line is unterminated, so
	// serialization round-trips byte-identically.
	noFinalNewline bool
}

// Parse builds a File from raw content.
func Parse(content string) *File {
	f := &File{}
	if content == "" {
		return f
	}
	f.noFinalNewline = !strings.HasSuffix(content, "\n")
	raw := strings.Split(strings.TrimSuffix(content, "\n"), "\n")

	section := ""
	for _, text := range raw {
		l := line{kind: kindOther, raw: text, section: section}
		if m := sectionRe.FindStringSubmatch(text); m != nil {
			section = m[1]
			l.kind = kindSection
			l.section = section
		} else if m := directiveRe.FindStringSubmatch(text); m != nil {
			l.key = m[3]
			l.value = strings.TrimSpace(m[4])
			if m[2] == "" {
				l.kind = kindDirective
			} else {
				l.kind = kindCommented
			}
		}
		f.lines = append(f.lines, l)
	}
	return f
}

// String serializes the file.
func (f *File) String() string {
	if len(f.lines) == 0 {
		return ""
	}
	var b strings.Builder
	for i, l := range f.lines {
		b.WriteString(l.raw)
		if i < len(f.lines)-1 || !f.noFinalNewline {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Upsert ensures exactly one active line sets key to value, ignoring INI
// sections (for flat files like postgresql.conf). It is idempotent: a second
// call with the same inputs leaves the serialized file byte-identical.
func (f *File) Upsert(key, value string) {
	f.upsert("", key, value, false)
}

// UpsertSection ensures exactly one active line sets key to value within the
// named INI section, creating the section header if absent.
func (f *File) UpsertSection(section, key, value string) {
	f.upsert(section, key, value, true)
}

func (f *File) upsert(section, key, value string, sectioned bool) {
	match := func(l line) bool {
		if l.key != key {
			return false
		}
		return !sectioned || l.section == section
	}

	// First active occurrence wins; any further active duplicates (left by
	// a prior buggy run or hand edits) are disabled in place so the file
	// converges instead of accumulating conflicts.
	first := -1
	for i, l := range f.lines {
		if l.kind != kindDirective || !match(l) {
			continue
		}
		if first == -1 {
			first = i
			continue
		}
		f.lines[i].kind = kindCommented
		f.lines[i].raw = "#" + strings.TrimLeft(f.lines[i].raw, " \t")
	}
	if first != -1 {
		f.setDirective(first, key, value)
		return
	}

	// No active line: activate a commented-out form in place, keeping the
	// documentation around it where the distribution put it.
	for i, l := range f.lines {
		if l.kind == kindCommented && match(l) {
			f.setDirective(i, key, value)
			return
		}
	}

	// Nothing to take over: append.
	if sectioned {
		f.appendToSection(section, key, value)
		return
	}
	f.appendLine(line{
		kind:  kindDirective,
		raw:   fmt.Sprintf("%s = %s", key, value),
		key:   key,
		value: value,
	})
}

// setDirective rewrites line i as an active directive, preserving its
// leading indentation.
func (f *File) setDirective(i int, key, value string) {
	indent := ""
	if m := directiveRe.FindStringSubmatch(f.lines[i].raw); m != nil {
		indent = m[1]
	}
	f.lines[i].kind = kindDirective
	f.lines[i].key = key
	f.lines[i].value = value
	f.lines[i].raw = fmt.Sprintf("%s%s = %s", indent, key, value)
}

func (f *File) appendToSection(section, key, value string) {
	// Insert after the last line of the section, or create the section.
	last := -1
	for i, l := range f.lines {
		if l.section == section {
			last = i
		}
	}
	nl := line{
		kind:    kindDirective,
		raw:     fmt.Sprintf("%s = %s", key, value),
		key:     key,
		value:   value,
		section: section,
	}
	if last == -1 {
		f.appendLine(line{kind: kindSection, raw: "[" + section + "]", section: section})
		f.appendLine(nl)
		return
	}
	f.lines = append(f.lines[:last+1], append([]line{nl}, f.lines[last+1:]...)...)
}

func (f *File) appendLine(l line) {
	f.noFinalNewline = false
	f.lines = append(f.lines, l)
}

// Value returns the value of the single active directive for key, if any.
func (f *File) Value(key string) (string, bool) {
	for _, l := range f.lines {
		if l.kind == kindDirective && l.key == key {
			return l.value, true
		}
	}
	return "", false
}

// ActiveCount reports how many active lines define key. After an Upsert it
// is at most one; it exists so callers and tests can check convergence.
func (f *File) ActiveCount(key string) int {
	n := 0
	for _, l := range f.lines {
		if l.kind == kindDirective && l.key == key {
			n++
		}
	}
	return n
}

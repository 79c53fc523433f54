package ldap

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Attribute is one attribute of an entry. Name is lower-cased.
type Attribute struct {
	Name   string
	Values []string
}

// Entry is a directory entry with its attributes in server order.
type Entry struct {
	DN         string
	Attributes []*Attribute
}

// Get returns all values of the named attribute, nil if absent.
func (e *Entry) Get(name string) []string {
	if e == nil {
		return nil
	}
	name = strings.ToLower(name)
	for _, a := range e.Attributes {
		if a.Name == name {
			return a.Values
		}
	}
	return nil
}

// First returns the first value of the named attribute, "" if absent.
func (e *Entry) First(name string) string {
	values := e.Get(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Result is the normalized outcome of a search or read. Count == 0 means
// nothing matched.
type Result struct {
	Count   int
	Entries []*Entry

	// RoleSuffix is set by AuthenticateUser when the username used the
	// "first.last+suffix" form.
	RoleSuffix string
}

// First returns the first entry, nil if the result is empty.
func (r *Result) First() *Entry {
	if r == nil || len(r.Entries) == 0 {
		return nil
	}
	return r.Entries[0]
}

func newResult(sr *ldap.SearchResult) *Result {
	if sr == nil {
		return &Result{}
	}
	entries := make([]*Entry, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		entries = append(entries, newEntry(e))
	}
	return &Result{Count: len(entries), Entries: entries}
}

func newEntry(e *ldap.Entry) *Entry {
	entry := &Entry{DN: e.DN, Attributes: make([]*Attribute, 0, len(e.Attributes))}
	for _, a := range e.Attributes {
		values := make([]string, len(a.Values))
		copy(values, a.Values)
		entry.Attributes = append(entry.Attributes, &Attribute{
			Name:   strings.ToLower(a.Name),
			Values: values,
		})
	}
	return entry
}

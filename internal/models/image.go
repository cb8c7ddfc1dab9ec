package models

import "sort"

// ImageRecord is one image on the wall. Name is the stored filename
// and the record's identity; Description is the caption shown under it.
type ImageRecord struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MaxDescriptionLen caps captions at upload time.
const MaxDescriptionLen = 70

// TruncateDescription clips a caption to MaxDescriptionLen.
func TruncateDescription(s string) string {
	if len(s) > MaxDescriptionLen {
		return s[:MaxDescriptionLen]
	}
	return s
}

// Less is the wall-wide ordering rule: shorter names first, ties
// broken lexicographically. Every participant sorts with this rule so
// index-based operations agree across clients.
func Less(a, b ImageRecord) bool {
	if len(a.Name) == len(b.Name) {
		return a.Name < b.Name
	}
	return len(a.Name) < len(b.Name)
}

// SortRecords orders records in place by the wall-wide rule.
func SortRecords(records []ImageRecord) {
	sort.Slice(records, func(i, j int) bool {
		return Less(records[i], records[j])
	})
}

// Collection is an ordered, name-keyed set of image records. It is the
// shared shape of the server's authoritative list and each viewer's
// read-only projection of it.
type Collection struct {
	records []ImageRecord
	index   map[string]struct{}
}

func NewCollection() *Collection {
	return &Collection{index: make(map[string]struct{})}
}

// Add inserts a record at its sorted position. Duplicate names are
// ignored so replayed events are harmless.
func (c *Collection) Add(rec ImageRecord) bool {
	if _, ok := c.index[rec.Name]; ok {
		return false
	}
	i := sort.Search(len(c.records), func(i int) bool {
		return !Less(c.records[i], rec)
	})
	c.records = append(c.records, ImageRecord{})
	copy(c.records[i+1:], c.records[i:])
	c.records[i] = rec
	c.index[rec.Name] = struct{}{}
	return true
}

// Remove drops the record with the given name, reporting whether it
// was present.
func (c *Collection) Remove(name string) bool {
	if _, ok := c.index[name]; !ok {
		return false
	}
	delete(c.index, name)
	for i, rec := range c.records {
		if rec.Name == name {
			c.records = append(c.records[:i], c.records[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether a record with the name is present.
func (c *Collection) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// IndexOf returns the sorted position of a name, or -1.
func (c *Collection) IndexOf(name string) int {
	for i, rec := range c.records {
		if rec.Name == name {
			return i
		}
	}
	return -1
}

// At returns the record at position i.
func (c *Collection) At(i int) ImageRecord {
	return c.records[i]
}

func (c *Collection) Len() int {
	return len(c.records)
}

// Records returns a copy of the ordered records.
func (c *Collection) Records() []ImageRecord {
	out := make([]ImageRecord, len(c.records))
	copy(out, c.records)
	return out
}

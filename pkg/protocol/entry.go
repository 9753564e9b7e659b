package protocol

import (
	"fmt"
	"sort"
)

// FieldKind describes how a decorated field should be rendered.
type FieldKind uint32

const (
	FieldString FieldKind = iota
	FieldNumber
	FieldDate
	FieldBadge
	FieldBoolean
)

func (k FieldKind) String() string {
	switch k {
	case FieldString:
		return "string"
	case FieldNumber:
		return "number"
	case FieldDate:
		return "date"
	case FieldBadge:
		return "badge"
	case FieldBoolean:
		return "boolean"
	default:
		return fmt.Sprintf("FieldKind(%d)", uint32(k))
	}
}

// FieldType is rendering metadata for one custom field. It never affects decoding.
type FieldType struct {
	Kind FieldKind
	// Format is a free-form hint such as a unit or a color name.
	Format string
}

// EntryMetadata carries filesystem metadata; times are unix seconds.
type EntryMetadata struct {
	Size        uint64
	Modified    uint64
	Accessed    uint64
	Created     uint64
	IsDir       bool
	IsFile      bool
	IsSymlink   bool
	Permissions uint32
	UID         uint32
	GID         uint32
}

// Entry is one filesystem object as seen by plugins.
type Entry struct {
	Path         string
	Metadata     *EntryMetadata
	CustomFields map[string]string
	FieldTypes   map[string]FieldType
}

// FieldTypeOf returns the declared type of a field, defaulting to string.
func (e Entry) FieldTypeOf(key string) FieldType {
	if ft, ok := e.FieldTypes[key]; ok {
		return ft
	}
	return FieldType{Kind: FieldString}
}

// Validate checks that every typed field is also a present custom field.
func (e Entry) Validate() error {
	for key := range e.FieldTypes {
		if _, ok := e.CustomFields[key]; !ok {
			return fmt.Errorf("entry %s: field type for unknown field %q", e.Path, key)
		}
	}
	return nil
}

// DropOrphanFieldTypes removes field types that have no custom field of the
// same name and returns the removed names in lexical order.
func (e *Entry) DropOrphanFieldTypes() []string {
	var dropped []string
	for key := range e.FieldTypes {
		if _, ok := e.CustomFields[key]; !ok {
			dropped = append(dropped, key)
		}
	}
	if len(dropped) == 0 {
		return nil
	}
	sort.Strings(dropped)
	for _, key := range dropped {
		delete(e.FieldTypes, key)
	}
	if len(e.FieldTypes) == 0 {
		e.FieldTypes = nil
	}
	return dropped
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	dup := Entry{Path: e.Path}
	if e.Metadata != nil {
		md := *e.Metadata
		dup.Metadata = &md
	}
	if e.CustomFields != nil {
		dup.CustomFields = make(map[string]string, len(e.CustomFields))
		for k, v := range e.CustomFields {
			dup.CustomFields[k] = v
		}
	}
	if e.FieldTypes != nil {
		dup.FieldTypes = make(map[string]FieldType, len(e.FieldTypes))
		for k, v := range e.FieldTypes {
			dup.FieldTypes[k] = v
		}
	}
	return dup
}

// Merge copies the custom fields and field types of other into e, overwriting
// existing keys. Path and metadata are left untouched.
func (e *Entry) Merge(other Entry) {
	if len(other.CustomFields) > 0 && e.CustomFields == nil {
		e.CustomFields = make(map[string]string, len(other.CustomFields))
	}
	for k, v := range other.CustomFields {
		e.CustomFields[k] = v
	}
	if len(other.FieldTypes) > 0 && e.FieldTypes == nil {
		e.FieldTypes = make(map[string]FieldType, len(other.FieldTypes))
	}
	for k, v := range other.FieldTypes {
		e.FieldTypes[k] = v
	}
}

// SortedFieldNames returns the custom field names in lexical order.
func (e Entry) SortedFieldNames() []string {
	return sortedKeys(e.CustomFields)
}

// ConfigPayload is delivered to every plugin once at startup.
type ConfigPayload struct {
	Theme         string
	DefaultFormat string
	ShowIcons     bool
	// Shortcuts maps a shortcut name to "plugin:action".
	Shortcuts map[string]string
	// Values holds additional host settings such as "version" and "api_version".
	Values map[string]string
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package resolve

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// KeyStrategy decides whether a property key names the logical field.
type KeyStrategy struct {
	Name  string
	Match func(key, field string) bool
}

const suffixPattern = `(?:-[A-Za-z0-9_]+)?$`

// DefaultStrategies is the ordered key-matching table. The first strategy
// that finds a key wins.
var DefaultStrategies = []KeyStrategy{
	{Name: "exact", Match: func(key, field string) bool {
		return key == field
	}},
	{Name: "user-namespace", Match: func(key, field string) bool {
		return namespaced(`^:?user\.property/`, field).MatchString(key)
	}},
	{Name: "plugin-namespace", Match: func(key, field string) bool {
		return namespaced(`^:?plugin\.property\.[^/]+/`, field).MatchString(key)
	}},
	{Name: "suffixed", Match: func(key, field string) bool {
		return strings.HasPrefix(key, field+"-") && namespaced(`^`, field).MatchString(key)
	}},
}

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

func namespaced(prefix, field string) *regexp.Regexp {
	expr := prefix + regexp.QuoteMeta(field) + suffixPattern
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[expr]; ok {
		return re
	}
	re := regexp.MustCompile(expr)
	patternCache[expr] = re
	return re
}

// FindKey returns the key in props that names field, trying strategies in
// order. Within one strategy keys are tried in sorted order so the result
// does not depend on map iteration.
func FindKey(props map[string]any, field string, strategies []KeyStrategy) (string, bool) {
	if len(props) == 0 || field == "" {
		return "", false
	}
	if _, ok := props[field]; ok {
		return field, true
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, s := range strategies {
		for _, k := range keys {
			if s.Match(k, field) {
				return k, true
			}
		}
	}
	return "", false
}

// Field lists the aliases under which one logical property may be stored.
type Field struct {
	Name    string
	Aliases []string
}

// Logical fields of a person page.
var (
	FieldBirthday     = Field{Name: "birthday", Aliases: []string{"birthday", "birthdate", "born"}}
	FieldLastContact  = Field{Name: "last-contact", Aliases: []string{"last-contact", "lastcontact", "last_contact", "last-contacted"}}
	FieldFrequency    = Field{Name: "contact-frequency", Aliases: []string{"contact-frequency", "contactfrequency", "contact_frequency", "frequency"}}
	FieldRelationship = Field{Name: "relationship", Aliases: []string{"relationship", "relation"}}
	FieldEmail        = Field{Name: "email", Aliases: []string{"email", "e-mail"}}
)

// Lookup finds the first alias of f present in props.
func Lookup(props map[string]any, f Field, strategies []KeyStrategy) (any, string, bool) {
	for _, alias := range f.Aliases {
		if key, ok := FindKey(props, alias, strategies); ok {
			return props[key], key, true
		}
	}
	return nil, "", false
}

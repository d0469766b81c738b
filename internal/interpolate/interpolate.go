// Package interpolate resolves ${placeholder} references in provider URL and
// parameter templates against a flow's connection config. Templates are
// checked for satisfiability before any outbound request is built, so a
// missing value aborts a flow instead of producing a malformed provider URL.
package interpolate

import (
	"fmt"
	"sort"
	"strings"
)

// Placeholders returns the distinct placeholder names referenced by template,
// in sorted order. A placeholder is written `${name}`; an unterminated `${`
// is treated as literal text.
func Placeholders(template string) []string {
	seen := make(map[string]bool)
	for i := 0; i < len(template); {
		start := strings.Index(template[i:], "${")
		if start < 0 {
			break
		}
		start += i
		end := strings.Index(template[start:], "}")
		if end < 0 {
			break
		}
		end += start
		name := template[start+2 : end]
		if name != "" {
			seen[name] = true
		}
		i = end + 1
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Missing returns the placeholders in template that have no non-empty value
// in values. An empty result means the template is satisfiable.
func Missing(template string, values map[string]string) []string {
	var missing []string
	for _, name := range Placeholders(template) {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Validate checks that every placeholder in template is satisfied by values.
// The returned error names the template and the unsatisfied placeholders.
func Validate(name, template string, values map[string]string) error {
	if missing := Missing(template, values); len(missing) > 0 {
		return fmt.Errorf(
			"template %q has unsatisfied placeholders: %s",
			name, strings.Join(missing, ", "),
		)
	}
	return nil
}

// ValidateAll checks a set of named templates against the same values.
// The first unsatisfied template wins.
func ValidateAll(templates map[string]string, values map[string]string) error {
	// Stable order so error messages are deterministic.
	names := make([]string, 0, len(templates))
	for n := range templates {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		if err := Validate(n, templates[n], values); err != nil {
			return err
		}
	}
	return nil
}

// Apply substitutes every satisfied placeholder in template with its value.
// Callers are expected to have run Validate first; unsatisfied placeholders
// are left in place.
func Apply(template string, values map[string]string) string {
	if !strings.Contains(template, "${") {
		return template
	}
	out := template
	for _, name := range Placeholders(template) {
		if v := values[name]; v != "" {
			out = strings.ReplaceAll(out, "${"+name+"}", v)
		}
	}
	return out
}

// ApplyMap substitutes placeholders in every value of params, leaving keys
// untouched.
func ApplyMap(params map[string]string, values map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = Apply(v, values)
	}
	return out
}

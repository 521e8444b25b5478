package prompt

import (
	"fmt"
	"strings"

	"tailor/internal/services"
)

// Bindings carries placeholder values and the names that must be resolved.
type Bindings struct {
	Values   map[string]string
	Required []string
}

// NewBindings returns empty bindings ready for Set/Require calls.
func NewBindings() Bindings {
	return Bindings{Values: map[string]string{}}
}

// Set binds name to value.
func (b *Bindings) Set(name, value string) {
	if b.Values == nil {
		b.Values = map[string]string{}
	}
	b.Values[name] = value
}

// Require marks names as required placeholders.
func (b *Bindings) Require(names ...string) {
	b.Required = append(b.Required, names...)
}

func (b Bindings) isRequired(name string) bool {
	for _, candidate := range b.Required {
		if candidate == name {
			return true
		}
	}
	return false
}

// MissingBindingError lists required placeholders that had no value.
type MissingBindingError struct {
	Names []string
}

func (e *MissingBindingError) Error() string {
	return fmt.Sprintf("missing binding for %s", strings.Join(e.Names, ", "))
}

func (e *MissingBindingError) Unwrap() error { return services.ErrMissingBinding }

// Render substitutes every bound placeholder occurrence in template.
func Render(template string, bindings Bindings) (string, error) {
	var (
		out     strings.Builder
		missing []string
	)
	out.Grow(len(template))

	for i := 0; i < len(template); {
		name, end, ok := placeholderAt(template, i)
		if !ok {
			out.WriteByte(template[i])
			i++
			continue
		}
		if value, bound := bindings.Values[name]; bound {
			out.WriteString(value)
		} else {
			if bindings.isRequired(name) && !contains(missing, name) {
				missing = append(missing, name)
			}
			out.WriteString(template[i:end])
		}
		i = end
	}

	if len(missing) > 0 {
		return "", &MissingBindingError{Names: missing}
	}
	return out.String(), nil
}

// Placeholders lists the distinct placeholder names in template in order of first appearance.
func Placeholders(template string) []string {
	var names []string
	for i := 0; i < len(template); {
		name, end, ok := placeholderAt(template, i)
		if !ok {
			i++
			continue
		}
		if !contains(names, name) {
			names = append(names, name)
		}
		i = end
	}
	return names
}

// placeholderAt reports whether a placeholder starts at template[i], returning
// its name and the index just past the closing brace.
func placeholderAt(template string, i int) (string, int, bool) {
	if template[i] != '{' {
		return "", 0, false
	}
	j := i + 1
	if j >= len(template) || !isNameStart(template[j]) {
		return "", 0, false
	}
	for j < len(template) && isNameChar(template[j]) {
		j++
	}
	if j >= len(template) || template[j] != '}' {
		return "", 0, false
	}
	return template[i+1 : j], j + 1, true
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || c == '.' || (c >= '0' && c <= '9')
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

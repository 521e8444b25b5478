package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"tailor/internal/prompt"
)

// resolvePrompt renders spec against the run context. stages maps every stage
// name in the pipeline to whether it has completed.
func resolvePrompt(spec StageSpec, runContext map[string]any, stages map[string]bool) (string, error) {
	bindings := prompt.NewBindings()
	for _, name := range prompt.Placeholders(spec.Template) {
		path := spec.pathFor(name)
		if root := rootSegment(path); root != "" {
			if done, isStage := stages[root]; isStage && !done {
				return "", &StageDependencyError{Stage: spec.Name, Requires: root}
			}
		}
		if value, ok := lookupPath(runContext, path); ok {
			bindings.Set(name, FormatValue(value))
		}
	}
	bindings.Require(spec.Required...)
	return prompt.Render(spec.Template, bindings)
}

// stageDependencies lists the stages spec reads from, in first-reference order.
func stageDependencies(spec StageSpec, stageNames map[string]int) []string {
	var deps []string
	seen := map[string]struct{}{}
	for _, name := range prompt.Placeholders(spec.Template) {
		root := rootSegment(spec.pathFor(name))
		if _, ok := stageNames[root]; !ok {
			continue
		}
		if _, dup := seen[root]; dup {
			continue
		}
		seen[root] = struct{}{}
		deps = append(deps, root)
	}
	return deps
}

func rootSegment(path string) string {
	root, _, _ := strings.Cut(strings.TrimSpace(path), ".")
	return root
}

func lookupPath(values map[string]any, path string) (any, bool) {
	segments := strings.Split(strings.TrimSpace(path), ".")
	var current any = values
	for _, segment := range segments {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

// FormatValue renders a context value for prompt substitution. Scalar lists
// are joined with ", "; structured values are rendered as indented JSON.
func FormatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			switch item.(type) {
			case string, float64, int, bool:
				parts = append(parts, FormatValue(item))
			default:
				return formatJSON(v)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return formatJSON(v)
	}
}

func formatJSON(value any) string {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(encoded)
}

// Preview renders spec against values without enforcing required bindings.
// Placeholders that do not resolve, including references to other stages,
// stay verbatim.
func Preview(spec StageSpec, values map[string]any) string {
	bindings := prompt.NewBindings()
	for _, name := range prompt.Placeholders(spec.Template) {
		if value, ok := lookupPath(values, spec.pathFor(name)); ok {
			bindings.Set(name, FormatValue(value))
		}
	}
	rendered, err := prompt.Render(spec.Template, bindings)
	if err != nil {
		return spec.Template
	}
	return rendered
}

package catalog

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"tailor/internal/parse"
	"tailor/internal/pipeline"
	"tailor/internal/prompt"
	"tailor/internal/services"
)

// maxCardinality bounds list lengths taken from request inputs.
const maxCardinality = 50

// Input declares one caller-supplied value.
type Input struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Default     string `yaml:"default,omitempty" json:"default,omitempty"`
}

// Stage is the YAML form of a pipeline stage.
type Stage struct {
	Name         string            `yaml:"name" json:"name"`
	SystemPrompt string            `yaml:"system_prompt,omitempty" json:"systemPrompt,omitempty"`
	Template     string            `yaml:"template" json:"template"`
	Bindings     map[string]string `yaml:"bindings,omitempty" json:"bindings,omitempty"`
	// Optional lists placeholders that may stay unresolved. Every other
	// placeholder in the template is required.
	Optional []string    `yaml:"optional,omitempty" json:"optional,omitempty"`
	Output   parse.Shape `yaml:"output" json:"output"`
	// CardinalityFrom names an input whose integer value replaces
	// Output.Cardinality for list stages.
	CardinalityFrom string   `yaml:"cardinality_from,omitempty" json:"cardinalityFrom,omitempty"`
	Providers       []string `yaml:"providers,omitempty" json:"providers,omitempty"`
	Temperature     *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens       int      `yaml:"max_tokens,omitempty" json:"maxTokens,omitempty"`
}

// Placeholders lists the stage template's placeholders.
func (s Stage) Placeholders() []string {
	return prompt.Placeholders(s.Template)
}

// Required lists the placeholders that must resolve before the stage runs.
func (s Stage) Required() []string {
	var required []string
	for _, name := range s.Placeholders() {
		if !slices.Contains(s.Optional, name) {
			required = append(required, name)
		}
	}
	return required
}

// Pipeline is a named, ordered list of stages.
type Pipeline struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs      []Input `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Stages      []Stage `yaml:"stages" json:"stages"`
	Builtin     bool    `yaml:"-" json:"builtin"`
}

// Input returns the named input declaration.
func (p *Pipeline) Input(name string) (Input, bool) {
	for _, input := range p.Inputs {
		if input.Name == name {
			return input, true
		}
	}
	return Input{}, false
}

// Stage returns the named stage definition.
func (p *Pipeline) Stage(name string) (Stage, bool) {
	for _, stage := range p.Stages {
		if stage.Name == name {
			return stage, true
		}
	}
	return Stage{}, false
}

// Validate checks the definition without any inputs.
func (p *Pipeline) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return services.Wrap(services.ErrValidation, "", "catalog", "pipeline has no name", nil)
	}
	inputs := make(map[string]struct{}, len(p.Inputs))
	for _, input := range p.Inputs {
		name := strings.TrimSpace(input.Name)
		if name == "" {
			return services.Wrap(services.ErrValidation, p.Name, "catalog", "input has no name", nil)
		}
		if _, dup := inputs[name]; dup {
			return services.Wrap(services.ErrValidation, p.Name, "catalog", fmt.Sprintf("duplicate input %q", name), nil)
		}
		inputs[name] = struct{}{}
	}
	stageNames := make(map[string]struct{}, len(p.Stages))
	for _, stage := range p.Stages {
		if _, clash := inputs[stage.Name]; clash {
			return services.Wrap(services.ErrValidation, p.Name, "catalog", fmt.Sprintf("stage %q shadows an input", stage.Name), nil)
		}
		stageNames[stage.Name] = struct{}{}
	}
	for _, stage := range p.Stages {
		for _, name := range stage.Placeholders() {
			path := name
			if bound, ok := stage.Bindings[name]; ok && bound != "" {
				path = bound
			}
			root, _, _ := strings.Cut(path, ".")
			_, isInput := inputs[root]
			_, isStage := stageNames[root]
			if !isInput && !isStage && !slices.Contains(stage.Optional, name) {
				return services.Wrap(services.ErrValidation, p.Name, "catalog",
					fmt.Sprintf("stage %q placeholder {%s} resolves to unknown %q", stage.Name, name, root), nil)
			}
		}
		if stage.CardinalityFrom != "" {
			if stage.Output.Kind != parse.KindList {
				return services.Wrap(services.ErrValidation, p.Name, "catalog",
					fmt.Sprintf("stage %q sets cardinality_from on a %s output", stage.Name, stage.Output.Kind), nil)
			}
			if _, ok := inputs[stage.CardinalityFrom]; !ok {
				return services.Wrap(services.ErrValidation, p.Name, "catalog",
					fmt.Sprintf("stage %q cardinality_from names unknown input %q", stage.Name, stage.CardinalityFrom), nil)
			}
		}
	}
	if err := pipeline.ValidateStages(p.Specs()); err != nil {
		return fmt.Errorf("pipeline %s: %w", p.Name, err)
	}
	return nil
}

// Build resolves inputs against the definition and returns a request for the
// orchestrator. Declared defaults fill absent inputs; undeclared inputs pass
// through to the context unchanged.
func (p *Pipeline) Build(requestID string, inputs map[string]any, providerOrder []string) (*pipeline.Request, error) {
	runContext := make(map[string]any, len(inputs)+len(p.Inputs))
	for key, value := range inputs {
		runContext[key] = value
	}
	var missing []string
	for _, input := range p.Inputs {
		if present(runContext[input.Name]) {
			continue
		}
		if input.Default != "" {
			runContext[input.Name] = input.Default
			continue
		}
		delete(runContext, input.Name)
		if input.Required {
			missing = append(missing, input.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &prompt.MissingBindingError{Names: missing}
	}

	specs := make([]pipeline.StageSpec, 0, len(p.Stages))
	for _, stage := range p.Stages {
		cardinality := stage.Output.Cardinality
		if stage.CardinalityFrom != "" {
			if raw, ok := runContext[stage.CardinalityFrom]; ok {
				n, err := intValue(raw)
				if err != nil || n < 1 || n > maxCardinality {
					return nil, services.Wrap(services.ErrValidation, stage.Name, "build",
						fmt.Sprintf("input %s must be an integer between 1 and %d", stage.CardinalityFrom, maxCardinality), err)
				}
				cardinality = n
				runContext[stage.CardinalityFrom] = strconv.Itoa(n)
			}
		}
		specs = append(specs, stage.spec(cardinality))
	}
	return &pipeline.Request{
		ID:            requestID,
		Pipeline:      p.Name,
		Stages:        specs,
		Context:       runContext,
		ProviderOrder: providerOrder,
	}, nil
}

// Specs converts the stages using their declared list cardinality.
func (p *Pipeline) Specs() []pipeline.StageSpec {
	specs := make([]pipeline.StageSpec, 0, len(p.Stages))
	for _, stage := range p.Stages {
		specs = append(specs, stage.spec(stage.Output.Cardinality))
	}
	return specs
}

// InputsUsed lists the declared inputs the stage template reads, in
// placeholder order.
func (p *Pipeline) InputsUsed(stage Stage) []string {
	var used []string
	for _, name := range stage.Placeholders() {
		path := name
		if bound, ok := stage.Bindings[name]; ok && bound != "" {
			path = bound
		}
		root, _, _ := strings.Cut(path, ".")
		if _, ok := p.Input(root); ok && !slices.Contains(used, root) {
			used = append(used, root)
		}
	}
	return used
}

func (s Stage) spec(cardinality int) pipeline.StageSpec {
	output := s.Output
	if output.Kind == "" {
		output.Kind = parse.KindObject
	}
	if output.Kind == parse.KindList {
		output.Cardinality = cardinality
	}
	return pipeline.StageSpec{
		Name:         s.Name,
		Template:     s.Template,
		SystemPrompt: strings.TrimSpace(s.SystemPrompt),
		Bindings:     s.Bindings,
		Required:     s.Required(),
		Output:       output,
		Providers:    s.Providers,
		Temperature:  s.Temperature,
		MaxTokens:    s.MaxTokens,
	}
}

func present(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	default:
		return true
	}
}

func intValue(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		return int(v), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
}

// RenderStage previews the prompt one stage would receive for inputs, without
// calling a provider. Placeholders that refer to earlier stage output stay
// verbatim.
func (p *Pipeline) RenderStage(stageName string, inputs map[string]any) (string, error) {
	req, err := p.Build("", inputs, nil)
	if err != nil {
		return "", err
	}
	for _, spec := range req.Stages {
		if spec.Name == stageName {
			return pipeline.Preview(spec, req.Context), nil
		}
	}
	return "", services.Wrap(services.ErrNotFound, stageName, "render", fmt.Sprintf("pipeline %s has no such stage", p.Name), nil)
}

package pipeline

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"

	"tailor/internal/parse"
	"tailor/internal/services"
)

// ValidateStages checks stage names, output shapes, and that every stage only
// reads from stages declared before it.
func ValidateStages(stages []StageSpec) error {
	_, err := DependencyGraph(stages)
	return err
}

// DependencyGraph builds the stage dependency DAG (edges point from a stage to
// the stages that read its output).
func DependencyGraph(stages []StageSpec) (graph.Graph[string, string], error) {
	if len(stages) == 0 {
		return nil, services.Wrap(services.ErrValidation, "", "validate", "pipeline has no stages", nil)
	}
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	index := make(map[string]int, len(stages))
	for i, stage := range stages {
		name := strings.TrimSpace(stage.Name)
		if name == "" {
			return nil, services.Wrap(services.ErrValidation, "", "validate", fmt.Sprintf("stage %d has no name", i), nil)
		}
		if strings.Contains(name, ".") {
			return nil, services.Wrap(services.ErrValidation, name, "validate", "stage names must not contain '.'", nil)
		}
		if _, dup := index[name]; dup {
			return nil, services.Wrap(services.ErrValidation, name, "validate", "duplicate stage name", nil)
		}
		if strings.TrimSpace(stage.Template) == "" {
			return nil, services.Wrap(services.ErrValidation, name, "validate", "empty prompt template", nil)
		}
		shape := stage.Output
		if shape.Kind == "" {
			shape.Kind = parse.KindObject
		}
		if err := shape.Validate(); err != nil {
			return nil, services.Wrap(services.ErrValidation, name, "validate", "output shape", err)
		}
		index[name] = i
		if err := g.AddVertex(name); err != nil {
			return nil, fmt.Errorf("add stage %s: %w", name, err)
		}
	}

	for i, stage := range stages {
		for _, dep := range stageDependencies(stage, index) {
			if index[dep] >= i {
				reason := "is declared later"
				if dep == stage.Name {
					reason = "is the stage itself"
				}
				return nil, &StageDependencyError{Stage: stage.Name, Requires: dep, Reason: reason}
			}
			if err := g.AddEdge(dep, stage.Name); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, &StageDependencyError{Stage: stage.Name, Requires: dep, Reason: err.Error()}
			}
		}
	}
	return g, nil
}

// Dependencies returns, per stage, the stages it reads from.
func Dependencies(stages []StageSpec) (map[string][]string, error) {
	g, err := DependencyGraph(stages)
	if err != nil {
		return nil, err
	}
	predecessors, err := g.PredecessorMap()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(stages))
	for _, stage := range stages {
		deps := make([]string, 0, len(predecessors[stage.Name]))
		for _, candidate := range stages {
			if _, ok := predecessors[stage.Name][candidate.Name]; ok {
				deps = append(deps, candidate.Name)
			}
		}
		out[stage.Name] = deps
	}
	return out, nil
}

// WriteDOT renders the dependency graph in Graphviz DOT format.
func WriteDOT(w io.Writer, stages []StageSpec) error {
	g, err := DependencyGraph(stages)
	if err != nil {
		return err
	}
	return draw.DOT(g, w)
}

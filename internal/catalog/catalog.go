package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"tailor/internal/config"
	"tailor/internal/services"
)

//go:embed builtin.yaml
var builtinYAML []byte

type document struct {
	Pipelines []*Pipeline `yaml:"pipelines"`
}

// Catalog is an immutable set of validated pipelines.
type Catalog struct {
	pipelines map[string]*Pipeline
	order     []string
}

// Builtin returns the embedded pipelines.
func Builtin() (*Catalog, error) {
	pipelines, err := Parse(builtinYAML)
	if err != nil {
		return nil, fmt.Errorf("catalog: builtin: %w", err)
	}
	for _, p := range pipelines {
		p.Builtin = true
	}
	return newCatalog(pipelines), nil
}

// Load returns the built-in pipelines merged with the definitions in path.
// An empty or missing path yields the built-ins alone.
func Load(path string) (*Catalog, error) {
	base, err := Builtin()
	if err != nil {
		return nil, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return base, nil
		}
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	merged := make([]*Pipeline, 0, len(base.order)+len(extra))
	for _, name := range base.order {
		merged = append(merged, base.pipelines[name])
	}
	for _, p := range extra {
		if idx := slices.IndexFunc(merged, func(existing *Pipeline) bool { return existing.Name == p.Name }); idx >= 0 {
			merged[idx] = p
			continue
		}
		merged = append(merged, p)
	}
	return newCatalog(merged), nil
}

// LoadFromConfig loads the catalog using paths.pipelines_file.
func LoadFromConfig(cfg *config.Config) (*Catalog, error) {
	if cfg == nil {
		return Builtin()
	}
	return Load(cfg.Paths.PipelinesFile)
}

// Parse decodes and validates a YAML pipelines document. Unknown fields are
// rejected.
func Parse(data []byte) ([]*Pipeline, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, services.Wrap(services.ErrValidation, "", "catalog", "pipelines document is empty", nil)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var doc document
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, services.Wrap(services.ErrValidation, "", "catalog", "decode pipelines", err)
	}
	seen := make(map[string]struct{}, len(doc.Pipelines))
	for _, p := range doc.Pipelines {
		if p == nil {
			continue
		}
		p.Name = strings.TrimSpace(p.Name)
		if _, dup := seen[p.Name]; dup {
			return nil, services.Wrap(services.ErrValidation, p.Name, "catalog", "duplicate pipeline", nil)
		}
		seen[p.Name] = struct{}{}
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return slices.DeleteFunc(doc.Pipelines, func(p *Pipeline) bool { return p == nil }), nil
}

func newCatalog(pipelines []*Pipeline) *Catalog {
	c := &Catalog{pipelines: make(map[string]*Pipeline, len(pipelines))}
	for _, p := range pipelines {
		c.pipelines[p.Name] = p
		c.order = append(c.order, p.Name)
	}
	return c
}

// Get returns the named pipeline.
func (c *Catalog) Get(name string) (*Pipeline, error) {
	p, ok := c.pipelines[strings.TrimSpace(name)]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, name, "catalog", "unknown pipeline", nil)
	}
	return p, nil
}

// List returns pipelines in definition order.
func (c *Catalog) List() []*Pipeline {
	out := make([]*Pipeline, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.pipelines[name])
	}
	return out
}

// Names returns pipeline names in definition order.
func (c *Catalog) Names() []string {
	return slices.Clone(c.order)
}

// Package registry loads the static source catalog.
package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/user/price-aggregator/internal/entity"
	"github.com/user/price-aggregator/internal/repository"
)

//go:embed sources.yaml
var defaultCatalog []byte

type catalogFile struct {
	Sources []entity.Source `yaml:"sources"`
}

// Registry is an immutable, ordered source catalog. It is safe for concurrent
// reads because nothing mutates it after construction.
type Registry struct {
	ordered []entity.Source
	byName  map[string]entity.Source
}

var _ repository.SourceRegistry = (*Registry)(nil)

// Default loads the catalog compiled into the binary.
func Default() (*Registry, error) {
	return Load(defaultCatalog)
}

// LoadFile loads a catalog from a YAML file on disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read %s", path)
	}
	return Load(data)
}

// Load parses and validates a YAML catalog.
func Load(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "registry: parse catalog")
	}
	return New(file.Sources...)
}

// New builds a registry from already-decoded descriptors.
func New(sources ...entity.Source) (*Registry, error) {
	r := &Registry{
		ordered: make([]entity.Source, 0, len(sources)),
		byName:  make(map[string]entity.Source, len(sources)),
	}
	var errs []error
	for i, src := range sources {
		src.Name = normalize(src.Name)
		if err := validate(src); err != nil {
			errs = append(errs, fmt.Errorf("source #%d: %w", i, err))
			continue
		}
		if _, dup := r.byName[src.Name]; dup {
			errs = append(errs, fmt.Errorf("source #%d: duplicate name %q", i, src.Name))
			continue
		}
		r.byName[src.Name] = src
		r.ordered = append(r.ordered, src)
	}
	if len(errs) > 0 {
		return nil, eris.Wrap(errors.Join(errs...), "registry: invalid catalog")
	}
	return r, nil
}

func validate(src entity.Source) error {
	if src.Name == "" {
		return errors.New("name is required")
	}
	if !strings.Contains(src.URLTemplate, entity.TermPlaceholder) {
		return fmt.Errorf("%s: url_template must contain %s", src.Name, entity.TermPlaceholder)
	}
	switch src.Strategy {
	case entity.StrategyAPI:
	case entity.StrategyBrowser:
		if src.ExtractionRule == "" {
			return fmt.Errorf("%s: browser sources need an extraction_rule", src.Name)
		}
	default:
		return fmt.Errorf("%s: strategy is required", src.Name)
	}
	return nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) Resolve(name string) (entity.Source, error) {
	src, ok := r.byName[normalize(name)]
	if !ok {
		return entity.Source{}, fmt.Errorf("%q: %w", name, repository.ErrUnknownSource)
	}
	return src, nil
}

// List returns a copy of the catalog in file order.
func (r *Registry) List() []entity.Source {
	out := make([]entity.Source, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ByStrategy returns the catalog entries using strategy, in file order.
func (r *Registry) ByStrategy(strategy entity.Strategy) []entity.Source {
	var out []entity.Source
	for _, src := range r.ordered {
		if src.Strategy == strategy {
			out = append(out, src)
		}
	}
	return out
}

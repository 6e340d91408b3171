// Package static serves recipes from a local YAML or JSON dataset.
package static

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"recipe_importer/internal/domain"
	"recipe_importer/internal/ratelimit"
)

const SourceName = "static"

type Dataset struct {
	Recipes []Entry `yaml:"recipes"`
}

type Entry struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	ImageURL     string   `yaml:"image_url"`
	PrepMinutes  int      `yaml:"prep_minutes"`
	CookMinutes  int      `yaml:"cook_minutes"`
	Servings     int      `yaml:"servings"`
	Ingredients  []string `yaml:"ingredients"`
	Instructions []string `yaml:"instructions"`
	Tags         []string `yaml:"tags"`
}

type Source struct {
	name    string
	entries []Entry
	byID    map[string]*Entry
	gate    *ratelimit.Gate
	logger  *slog.Logger
}

// Load reads a dataset file. JSON files parse as YAML as well.
func Load(path string, gate *ratelimit.Gate, logger *slog.Logger) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return Parse(data, gate, logger)
}

func Parse(data []byte, gate *ratelimit.Gate, logger *slog.Logger) (*Source, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	s := &Source{
		name:   SourceName,
		byID:   make(map[string]*Entry, len(ds.Recipes)),
		gate:   gate,
		logger: logger.With("source", SourceName),
	}
	for i := range ds.Recipes {
		e := &ds.Recipes[i]
		if e.ID == "" {
			return nil, fmt.Errorf("parse dataset: entry %d has no id", i)
		}
		if _, dup := s.byID[e.ID]; dup {
			return nil, fmt.Errorf("parse dataset: duplicate id %q", e.ID)
		}
		s.byID[e.ID] = e
		s.entries = append(s.entries, *e)
	}

	return s, nil
}

func (s *Source) Name() string {
	return s.name
}

func (s *Source) Discover(ctx context.Context, opts domain.DiscoverOptions) ([]domain.Candidate, error) {
	if err := s.gate.Wait(ctx); err != nil {
		return nil, err
	}

	var candidates []domain.Candidate
	for _, e := range s.entries {
		if opts.Tag != "" && !hasTag(e.Tags, opts.Tag) {
			continue
		}
		candidates = append(candidates, domain.Candidate{ExternalID: e.ID, Name: e.Name})
		if opts.MaxItems > 0 && len(candidates) >= opts.MaxItems {
			break
		}
	}

	s.logger.Debug("discovered dataset entries", "count", len(candidates))
	return candidates, nil
}

func (s *Source) FetchRecipe(ctx context.Context, externalID string) (*domain.Recipe, error) {
	if err := s.gate.Wait(ctx); err != nil {
		return nil, err
	}

	e, ok := s.byID[externalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.toRecipe(), nil
}

func (e *Entry) toRecipe() *domain.Recipe {
	r := &domain.Recipe{
		Slug:         domain.Slugify(e.Name),
		Name:         strings.TrimSpace(e.Name),
		SourceName:   SourceName,
		ExternalID:   e.ID,
		PrepMinutes:  optional(e.PrepMinutes),
		CookMinutes:  optional(e.CookMinutes),
		Servings:     optional(e.Servings),
		Ingredients:  clean(e.Ingredients),
		Instructions: clean(e.Instructions),
	}
	if d := strings.TrimSpace(e.Description); d != "" {
		r.Description = &d
	}
	if e.ImageURL != "" {
		u := e.ImageURL
		r.ImageURL = &u
	}
	for _, t := range e.Tags {
		r.Tags = append(r.Tags, domain.Tag{Name: t})
	}
	return r
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}

func clean(in []string) domain.StringList {
	out := domain.StringList{}
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func optional(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

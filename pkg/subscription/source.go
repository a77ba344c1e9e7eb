package subscription

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PlansListSource loads plan definitions from configuration.
type PlansListSource interface {
	Load(ctx context.Context) ([]Plan, error)
}

type inMemSource struct {
	plans []Plan
}

// NewInMemSource returns a source serving a deep copy of the given plans.
// Panics if no plans are provided.
func NewInMemSource(plans ...Plan) PlansListSource {
	if len(plans) == 0 {
		panic("subscription: at least one plan is required")
	}
	cp := make([]Plan, 0, len(plans))
	for _, p := range plans {
		cp = append(cp, p.clone())
	}
	return &inMemSource{plans: cp}
}

func (s *inMemSource) Load(context.Context) ([]Plan, error) {
	out := make([]Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p.clone())
	}
	return out, nil
}

type yamlSource struct {
	path string
}

// NewYAMLSource returns a source reading plans from a YAML file on every Load.
//
// The file holds a top-level "plans" list:
//
//	plans:
//	  - key: therapist_starter
//	    price_id: price_123
//	    role: therapist
//	    limits: {patients: 5}
//	    features: [timeline]
func NewYAMLSource(path string) PlansListSource {
	return &yamlSource{path: path}
}

type yamlPlans struct {
	Plans []Plan `yaml:"plans"`
}

func (s *yamlSource) Load(ctx context.Context) ([]Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	var doc yamlPlans
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if len(doc.Plans) == 0 {
		return nil, fmt.Errorf("%w: %s defines no plans", ErrFailedToLoadPlans, s.path)
	}
	return doc.Plans, nil
}

// LoadCatalog loads plans from src and indexes them.
func LoadCatalog(ctx context.Context, src PlansListSource) (*Catalog, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewCatalog(plans...)
}

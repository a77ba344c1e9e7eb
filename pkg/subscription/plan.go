package subscription

import (
	"cmp"
	"maps"
	"slices"
)

// Plan describes a subscription plan and its resource/feature constraints.
// Key is the stable product identifier; PriceID is the billing provider's price,
// which is what provider subscription updates report as the plan.
type Plan struct {
	Key         string             `yaml:"key" json:"key"`
	PriceID     string             `yaml:"price_id" json:"price_id"`
	ProductID   string             `yaml:"product_id" json:"product_id"`
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description" json:"description,omitempty"`
	Role        Role               `yaml:"role" json:"role"`
	Price       Money              `yaml:"price" json:"price"`
	TrialDays   int                `yaml:"trial_days" json:"trial_days"`
	Limits      map[Resource]int64 `yaml:"limits" json:"limits,omitempty"` // missing entry or -1 is unlimited
	Features    []Feature          `yaml:"features" json:"features"`
}

// Limit returns the configured limit for a resource.
// ok is false when the plan does not restrict the resource.
func (p Plan) Limit(r Resource) (int64, bool) {
	limit, ok := p.Limits[r]
	if !ok || limit == Unlimited {
		return 0, false
	}
	return limit, true
}

// HasFeature reports whether the plan enables the feature.
func (p Plan) HasFeature(f Feature) bool {
	return slices.Contains(p.Features, f)
}

func (p Plan) clone() Plan {
	p.Limits = maps.Clone(p.Limits)
	p.Features = slices.Clone(p.Features)
	return p
}

func (p Plan) validate() error {
	if p.Key == "" {
		return ErrInvalidPlanConfiguration
	}
	for _, limit := range p.Limits {
		if limit < Unlimited {
			return ErrInvalidPlanConfiguration
		}
	}
	return nil
}

// DefaultPlans returns the production plan catalog.
func DefaultPlans() []Plan {
	return []Plan{
		{
			Key:         "patient_essential",
			PriceID:     "price_1SsY9bEIcgPWQIT2BYxOcZ4A",
			ProductID:   "prod_TqEcjYXgsY6aMo",
			Name:        "Premium",
			Description: "Acompanhamento emocional completo",
			Role:        RolePatient,
			Price:       Money{Amount: 1700, Currency: "BRL"},
			TrialDays:   14,
			Features:    []Feature{FeatureCharts, FeatureTimeline, FeatureQuestionnaires},
		},
		{
			Key:         "therapist_starter",
			PriceID:     "price_1SsYALEIcgPWQIT22HAp8ud9",
			ProductID:   "prod_TqEdyM1rE4Zahh",
			Name:        "Starter",
			Description: "Para quem está começando",
			Role:        RoleTherapist,
			Price:       Money{Amount: 2990, Currency: "BRL"},
			TrialDays:   7,
			Limits:      map[Resource]int64{ResourcePatients: 5},
			Features:    []Feature{FeatureTimeline},
		},
		{
			Key:         "therapist_growth",
			PriceID:     "price_1SsYAwEIcgPWQIT2bszeHFo5",
			ProductID:   "prod_TqEeypZsxCiVus",
			Name:        "Growth",
			Description: "Para práticas em crescimento",
			Role:        RoleTherapist,
			Price:       Money{Amount: 5990, Currency: "BRL"},
			TrialDays:   7,
			Limits:      map[Resource]int64{ResourcePatients: 20},
			Features:    []Feature{FeatureCharts, FeatureTimeline, FeatureQuestionnaires},
		},
		{
			Key:         "therapist_pro",
			PriceID:     "price_1SxG4JEIcgPWQIT2Xx0T9hSY",
			ProductID:   "prod_Tv6Gy3vKKO7DWi",
			Name:        "Pro",
			Description: "Para profissionais estabelecidos",
			Role:        RoleTherapist,
			Price:       Money{Amount: 7990, Currency: "BRL"},
			TrialDays:   7,
			Limits:      map[Resource]int64{ResourcePatients: 35},
			Features:    []Feature{FeatureExport, FeatureCharts, FeatureTimeline, FeatureQuestionnaires},
		},
		{
			Key:         "therapist_scale",
			PriceID:     "price_1SxG5oEIcgPWQIT2sAg6mSFL",
			ProductID:   "prod_Tv6ILDjxe1NOAo",
			Name:        "Scale",
			Description: "Para clínicas e grandes práticas",
			Role:        RoleTherapist,
			Price:       Money{Amount: 12990, Currency: "BRL"},
			TrialDays:   7,
			Limits:      map[Resource]int64{ResourcePatients: 80},
			Features:    []Feature{FeatureExport, FeatureCharts, FeatureTimeline, FeatureQuestionnaires},
		},
	}
}

// Catalog indexes plans by key and by provider price id.
type Catalog struct {
	byKey   map[string]Plan
	byPrice map[string]string
}

// NewCatalog builds a catalog from plans, rejecting duplicate keys or price ids.
func NewCatalog(plans ...Plan) (*Catalog, error) {
	c := &Catalog{
		byKey:   make(map[string]Plan, len(plans)),
		byPrice: make(map[string]string, len(plans)),
	}
	for _, p := range plans {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, exists := c.byKey[p.Key]; exists {
			return nil, ErrDuplicatePlan
		}
		if p.PriceID != "" {
			if _, exists := c.byPrice[p.PriceID]; exists {
				return nil, ErrDuplicatePlan
			}
			c.byPrice[p.PriceID] = p.Key
		}
		c.byKey[p.Key] = p.clone()
	}
	return c, nil
}

// Lookup resolves a stored plan identifier, trying plan keys before price ids.
func (c *Catalog) Lookup(id string) (Plan, bool) {
	if c == nil || id == "" {
		return Plan{}, false
	}
	if p, ok := c.byKey[id]; ok {
		return p.clone(), true
	}
	if key, ok := c.byPrice[id]; ok {
		return c.byKey[key].clone(), true
	}
	return Plan{}, false
}

// Plans returns all plans sorted by key.
func (c *Catalog) Plans() []Plan {
	keys := slices.Sorted(maps.Keys(c.byKey))
	out := make([]Plan, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.byKey[k].clone())
	}
	return out
}

// ByRole returns the plans sold to a role, sorted by price.
func (c *Catalog) ByRole(role Role) []Plan {
	var out []Plan
	for _, p := range c.Plans() {
		if p.Role == role {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b Plan) int {
		return cmp.Compare(a.Price.Amount, b.Price.Amount)
	})
	return out
}

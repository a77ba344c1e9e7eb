package subscription_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/psikit/pkg/subscription"
)

func TestNewCatalog(t *testing.T) {
	t.Parallel()

	t.Run("default plans", func(t *testing.T) {
		t.Parallel()
		catalog, err := subscription.NewCatalog(subscription.DefaultPlans()...)
		require.NoError(t, err)
		assert.Len(t, catalog.Plans(), 5)
	})

	t.Run("duplicate key", func(t *testing.T) {
		t.Parallel()
		_, err := subscription.NewCatalog(
			subscription.Plan{Key: "a"},
			subscription.Plan{Key: "a"},
		)
		assert.ErrorIs(t, err, subscription.ErrDuplicatePlan)
	})

	t.Run("duplicate price id", func(t *testing.T) {
		t.Parallel()
		_, err := subscription.NewCatalog(
			subscription.Plan{Key: "a", PriceID: "price_1"},
			subscription.Plan{Key: "b", PriceID: "price_1"},
		)
		assert.ErrorIs(t, err, subscription.ErrDuplicatePlan)
	})

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()
		_, err := subscription.NewCatalog(subscription.Plan{Name: "nameless"})
		assert.ErrorIs(t, err, subscription.ErrInvalidPlanConfiguration)
	})

	t.Run("negative limit", func(t *testing.T) {
		t.Parallel()
		_, err := subscription.NewCatalog(subscription.Plan{
			Key:    "a",
			Limits: map[subscription.Resource]int64{subscription.ResourcePatients: -5},
		})
		assert.ErrorIs(t, err, subscription.ErrInvalidPlanConfiguration)
	})
}

func TestCatalog_Lookup(t *testing.T) {
	t.Parallel()

	catalog, err := subscription.NewCatalog(subscription.DefaultPlans()...)
	require.NoError(t, err)

	byKey, ok := catalog.Lookup("therapist_pro")
	require.True(t, ok)
	assert.Equal(t, "Pro", byKey.Name)

	byPrice, ok := catalog.Lookup("price_1SxG4JEIcgPWQIT2Xx0T9hSY")
	require.True(t, ok)
	assert.Equal(t, "therapist_pro", byPrice.Key)

	_, ok = catalog.Lookup("default")
	assert.False(t, ok)
	_, ok = catalog.Lookup("")
	assert.False(t, ok)

	byKey.Limits[subscription.ResourcePatients] = 1000
	again, _ := catalog.Lookup("therapist_pro")
	limit, _ := again.Limit(subscription.ResourcePatients)
	assert.Equal(t, int64(35), limit, "lookup must return a copy")
}

func TestCatalog_ByRole(t *testing.T) {
	t.Parallel()

	catalog, err := subscription.NewCatalog(subscription.DefaultPlans()...)
	require.NoError(t, err)

	therapist := catalog.ByRole(subscription.RoleTherapist)
	require.Len(t, therapist, 4)
	assert.Equal(t, "therapist_starter", therapist[0].Key)
	assert.Equal(t, "therapist_scale", therapist[3].Key)

	assert.Len(t, catalog.ByRole(subscription.RolePatient), 1)
}

func TestPlan_Limit(t *testing.T) {
	t.Parallel()

	p := subscription.Plan{Limits: map[subscription.Resource]int64{subscription.ResourcePatients: subscription.Unlimited}}
	_, ok := p.Limit(subscription.ResourcePatients)
	assert.False(t, ok)

	_, ok = subscription.Plan{}.Limit(subscription.ResourcePatients)
	assert.False(t, ok)
}

func TestNewInMemSource(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { subscription.NewInMemSource() })

	plan := subscription.Plan{Key: "a", Features: []subscription.Feature{subscription.FeatureExport}}
	src := subscription.NewInMemSource(plan)
	plan.Features[0] = subscription.FeatureCharts

	plans, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, subscription.FeatureExport, plans[0].Features[0])
}

func TestNewYAMLSource(t *testing.T) {
	t.Parallel()

	t.Run("valid file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "plans.yaml")
		content := `plans:
  - key: therapist_starter
    price_id: price_starter
    name: Starter
    role: therapist
    price: {amount: 2990, currency: BRL}
    limits: {patients: 5}
    features: [timeline]
  - key: patient_essential
    price_id: price_patient
    role: patient
    features: [charts, timeline, questionnaires]
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		catalog, err := subscription.LoadCatalog(context.Background(), subscription.NewYAMLSource(path))
		require.NoError(t, err)

		starter, ok := catalog.Lookup("price_starter")
		require.True(t, ok)
		limit, limited := starter.Limit(subscription.ResourcePatients)
		assert.True(t, limited)
		assert.Equal(t, int64(5), limit)
		assert.Equal(t, int64(2990), starter.Price.Amount)
		assert.True(t, starter.HasFeature(subscription.FeatureTimeline))

		patient, ok := catalog.Lookup("patient_essential")
		require.True(t, ok)
		_, limited = patient.Limit(subscription.ResourcePatients)
		assert.False(t, limited)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := subscription.NewYAMLSource(filepath.Join(t.TempDir(), "nope.yaml")).Load(context.Background())
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})

	t.Run("empty list", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "plans.yaml")
		require.NoError(t, os.WriteFile(path, []byte("plans: []\n"), 0o600))
		_, err := subscription.NewYAMLSource(path).Load(context.Background())
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})
}

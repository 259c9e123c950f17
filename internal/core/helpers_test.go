package core

import (
	"context"
	"testing"

	"batchcore/pkg/domain"
)

const (
	levelCatch    = "CATCH_BATCH"
	levelSorting  = "SORTING_BATCH"
	levelSampling = "SAMPLING_BATCH"

	paramSex      domain.ParameterID = 80
	paramLength   domain.ParameterID = 81
	paramWeight   domain.ParameterID = 90
	paramEstimate domain.ParameterID = 91
)

func methodPtr(m domain.MethodID) *domain.MethodID { return &m }

func floatPtr(f float64) *float64 { return &f }

func testDefinitions() []domain.ParameterDefinition {
	return []domain.ParameterDefinition{
		{ID: paramSex, Label: "SEX", Type: domain.TypeQualitative, QualitativeValues: []domain.QualitativeValue{{ID: 1, Label: "M"}, {ID: 2, Label: "F"}, {ID: 3, Label: "I"}}},
		{ID: paramLength, Label: "LENGTH_TOTAL", Type: domain.TypeDouble},
		{ID: paramWeight, Label: "WEIGHT_OBSERVED", LabelTag: "BATCH_WEIGHT", Type: domain.TypeDouble, MethodID: methodPtr(domain.MethodMeasuredByObserver)},
		{ID: paramEstimate, Label: "WEIGHT_ESTIMATED", LabelTag: "BATCH_WEIGHT", Type: domain.TypeDouble, MethodID: methodPtr(domain.MethodEstimatedByObserver)},
	}
}

func testSchema(t *testing.T) *domain.Schema {
	t.Helper()
	s, err := domain.NewSchema(testDefinitions()...)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func sexDimension(labels ...string) []domain.CategoryValue {
	ids := map[string]int{"M": 1, "F": 2, "I": 3}
	out := make([]domain.CategoryValue, 0, len(labels))
	for _, l := range labels {
		out = append(out, domain.CategoryValue{ID: ids[l], Label: l, ParameterID: paramSex})
	}
	return out
}

// fakeCatalog serves the same definitions for every level.
type fakeCatalog struct {
	defs       []domain.ParameterDefinition
	categories []domain.CategoryValue
	calls      int
	err        error
}

func (f *fakeCatalog) ParametersFor(context.Context, string, string) ([]domain.ParameterDefinition, error) {
	f.calls++
	return f.defs, f.err
}

func (f *fakeCatalog) Categories(context.Context, string) ([]domain.CategoryValue, error) {
	return f.categories, f.err
}

func newCatalog(labels ...string) *fakeCatalog {
	return &fakeCatalog{defs: testDefinitions(), categories: sexDimension(labels...)}
}

func mustSet(t *testing.T, n *domain.Node, id domain.ParameterID, v domain.Value) {
	t.Helper()
	if err := n.Measurements.Set(id, v); err != nil {
		t.Fatalf("set %d on %s: %v", id, n.Label, err)
	}
}

func labels(nodes []*domain.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Label)
	}
	return out
}

package schema

import (
	"context"
	"errors"
	"strings"
	"testing"

	"batchcore/internal/blob"
	"batchcore/pkg/domain"
)

const sampleCatalog = `
version: 1
programs:
  SUMARiS:
    categories:
      - {id: 1, label: M, parameter_id: 80}
      - {id: 2, label: F, parameter_id: 80}
    levels:
      CATCH_BATCH:
        - {id: 10, label: TOTAL_WEIGHT, type: double, method_id: 1}
      SORTING_BATCH:
        - id: 80
          label: SEX
          type: qualitative_value
          qualitative_values: [{id: 1, label: M}, {id: 2, label: F}]
        - {id: 11, label: BATCH_WEIGHT, type: double, maximum_decimals: 3}
`

func TestCatalogServesSchemasAndCategories(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	cat := NewCatalog(store, "")
	if _, err := cat.Put(ctx, []byte(sampleCatalog)); err != nil {
		t.Fatalf("put: %v", err)
	}

	fresh := NewCatalog(store, DefaultKey)
	defs, err := fresh.ParametersFor(ctx, "SORTING_BATCH", "SUMARiS")
	if err != nil {
		t.Fatalf("parameters: %v", err)
	}
	if len(defs) != 2 || defs[0].ID != 80 || defs[0].Type != domain.TypeQualitative || len(defs[0].QualitativeValues) != 2 {
		t.Fatalf("unexpected definitions %+v", defs)
	}
	if !defs[1].IsWeight() || defs[1].MaximumDecimals != 3 {
		t.Fatalf("expected weight parameter with 3 decimals, got %+v", defs[1])
	}
	root, _ := fresh.ParametersFor(ctx, "CATCH_BATCH", "SUMARiS")
	if m, ok := root[0].Method(); !ok || m != domain.MethodMeasuredByObserver {
		t.Fatalf("expected method id decoded, got %+v", root[0])
	}
	cats, err := fresh.Categories(ctx, "SUMARiS")
	if err != nil || len(cats) != 2 || cats[1].Label != "F" || cats[1].ParameterID != 80 {
		t.Fatalf("unexpected categories %+v err=%v", cats, err)
	}
	levels, _ := fresh.Levels(ctx, "SUMARiS")
	if len(levels) != 2 || levels[0] != "CATCH_BATCH" {
		t.Fatalf("unexpected levels %v", levels)
	}
	none, err := fresh.ParametersFor(ctx, "INDIVIDUAL", "SUMARiS")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty level, got %v err=%v", none, err)
	}
}

func TestCatalogUnknownProgramAndMissingDocument(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	cat := NewCatalog(store, "")
	if _, err := cat.Categories(ctx, "SUMARiS"); !blob.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := cat.Put(ctx, []byte(sampleCatalog)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := cat.ParametersFor(ctx, "SORTING_BATCH", "OTHER"); !errors.Is(err, ErrUnknownProgram) {
		t.Fatalf("expected ErrUnknownProgram, got %v", err)
	}
}

func TestCatalogCachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	cat := NewCatalog(store, "")
	if _, err := cat.Put(ctx, []byte(sampleCatalog)); err != nil {
		t.Fatalf("put: %v", err)
	}
	other := NewCatalog(store, "")
	if _, err := other.Put(ctx, []byte("version: 1\nprograms:\n  OTHER:\n    levels: {}\n")); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, err := cat.Categories(ctx, "SUMARiS"); err != nil {
		t.Fatalf("expected cached document, got %v", err)
	}
	cat.Invalidate()
	if _, err := cat.Categories(ctx, "SUMARiS"); !errors.Is(err, ErrUnknownProgram) {
		t.Fatalf("expected reloaded document, got %v", err)
	}
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	cases := map[string]string{
		"version":     "version: 2\n",
		"duplicate":   "version: 1\nprograms:\n  P:\n    levels:\n      L:\n        - {id: 1, label: A, type: double}\n        - {id: 1, label: B, type: double}\n",
		"type":        "version: 1\nprograms:\n  P:\n    levels:\n      L:\n        - {id: 1, label: A, type: blob}\n",
		"category":    "version: 1\nprograms:\n  P:\n    categories: [{id: 1, label: M, parameter_id: 9}]\n    levels:\n      L:\n        - {id: 9, label: A, type: double}\n",
		"inadmissible category": "version: 1\nprograms:\n  P:\n    categories: [{id: 42, label: X, parameter_id: 9}]\n    levels:\n      L:\n        - {id: 9, label: SEX, type: qualitative_value, qualitative_values: [{id: 1, label: M}]}\n",
		"yaml syntax": "version: [",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestPutRejectsInadmissibleCategory(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	cat := NewCatalog(store, DefaultKey)
	bad := strings.Replace(sampleCatalog, "{id: 2, label: F, parameter_id: 80}", "{id: 42, label: X, parameter_id: 80}", 1)
	_, err := cat.Put(ctx, []byte(bad))
	if err == nil || !strings.Contains(err.Error(), "not admissible") {
		t.Fatalf("expected inadmissible category error, got %v", err)
	}
	if _, err := blob.ReadAll(ctx, store, DefaultKey); !blob.IsNotFound(err) {
		t.Fatalf("rejected catalog must not be stored, got %v", err)
	}
}

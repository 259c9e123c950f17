// Package schema serves parameter definitions and pivot categories from a
// YAML catalog kept in the blob store.
//
// Catalog layout:
//
//	version: 1
//	programs:
//	  SUMARiS:
//	    categories:
//	      - {id: 1, label: M, parameter_id: 80}
//	    levels:
//	      SORTING_BATCH:
//	        - id: 80
//	          label: SEX
//	          type: qualitative_value
//	          qualitative_values: [{id: 1, label: M}, {id: 2, label: F}]
package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"batchcore/internal/blob"
	"batchcore/pkg/domain"
)

var (
	_ domain.SchemaProvider   = (*Catalog)(nil)
	_ domain.CategoryProvider = (*Catalog)(nil)
)

// DefaultKey is the blob key used when none is configured.
const DefaultKey = "schemas/catalog.yaml"

// ErrUnknownProgram is returned when the catalog has no entry for a program.
var ErrUnknownProgram = errors.New("schema: unknown program")

// Document is the decoded catalog.
type Document struct {
	Version  int                `yaml:"version"`
	Programs map[string]Program `yaml:"programs"`
}

// Program groups the levels and categories of one program.
type Program struct {
	Categories []Category              `yaml:"categories,omitempty"`
	Levels     map[string][]Definition `yaml:"levels"`
}

// Category is the YAML form of domain.CategoryValue.
type Category struct {
	ID          int    `yaml:"id"`
	Label       string `yaml:"label"`
	ParameterID int    `yaml:"parameter_id"`
}

// Definition is the YAML form of domain.ParameterDefinition.
type Definition struct {
	ID                int           `yaml:"id"`
	Label             string        `yaml:"label"`
	Type              string        `yaml:"type"`
	QualitativeValues []Qualitative `yaml:"qualitative_values,omitempty"`
	MethodID          *int          `yaml:"method_id,omitempty"`
	IsComputed        bool          `yaml:"is_computed,omitempty"`
	LabelTag          string        `yaml:"label_tag,omitempty"`
	MaximumDecimals   int           `yaml:"maximum_decimals,omitempty"`
}

// Qualitative is one admissible qualitative value.
type Qualitative struct {
	ID    int    `yaml:"id"`
	Label string `yaml:"label"`
}

func (d Definition) toDomain() domain.ParameterDefinition {
	def := domain.ParameterDefinition{
		ID:              domain.ParameterID(d.ID),
		Label:           d.Label,
		Type:            domain.ValueType(d.Type),
		IsComputed:      d.IsComputed,
		LabelTag:        d.LabelTag,
		MaximumDecimals: d.MaximumDecimals,
	}
	if d.MethodID != nil {
		m := domain.MethodID(*d.MethodID)
		def.MethodID = &m
	}
	for _, q := range d.QualitativeValues {
		def.QualitativeValues = append(def.QualitativeValues, domain.QualitativeValue{ID: q.ID, Label: q.Label})
	}
	return def
}

// Parse decodes and validates a catalog document. Every level must build a
// valid domain.Schema and every category must reference a qualitative
// parameter of the same program that admits the category id.
func Parse(b []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("schema: decode catalog: %w", err)
	}
	if doc.Version != 1 {
		return Document{}, fmt.Errorf("schema: unsupported catalog version %d", doc.Version)
	}
	for name, prog := range doc.Programs {
		qualitative := map[int][]domain.ParameterDefinition{}
		for level, defs := range prog.Levels {
			converted := make([]domain.ParameterDefinition, 0, len(defs))
			for _, d := range defs {
				def := d.toDomain()
				converted = append(converted, def)
				if def.Type == domain.TypeQualitative {
					qualitative[d.ID] = append(qualitative[d.ID], def)
				}
			}
			if _, err := domain.NewSchema(converted...); err != nil {
				return Document{}, fmt.Errorf("schema: program %s level %s: %w", name, level, err)
			}
		}
		for _, c := range prog.Categories {
			defs, ok := qualitative[c.ParameterID]
			if !ok {
				return Document{}, fmt.Errorf("schema: program %s category %q: parameter %d is not qualitative", name, c.Label, c.ParameterID)
			}
			for _, def := range defs {
				if len(def.QualitativeValues) == 0 {
					continue
				}
				if _, ok := def.Qualitative(c.ID); !ok {
					return Document{}, fmt.Errorf("schema: program %s category %q: value %d is not admissible for parameter %d", name, c.Label, c.ID, c.ParameterID)
				}
			}
		}
	}
	return doc, nil
}

// Catalog reads the document at key from a blob store and caches it until
// Invalidate or Put.
type Catalog struct {
	store blob.Store
	key   string

	mu  sync.RWMutex
	doc *Document
}

// NewCatalog returns a catalog backed by key in store. An empty key uses DefaultKey.
func NewCatalog(store blob.Store, key string) *Catalog {
	if key == "" {
		key = DefaultKey
	}
	return &Catalog{store: store, key: key}
}

// Key returns the blob key of the catalog document.
func (c *Catalog) Key() string { return c.key }

// Put validates data and replaces the stored catalog.
func (c *Catalog) Put(ctx context.Context, data []byte) (Document, error) {
	doc, err := Parse(data)
	if err != nil {
		return Document{}, err
	}
	if _, err := blob.Replace(ctx, c.store, c.key, data, blob.PutOptions{ContentType: "application/yaml"}); err != nil {
		return Document{}, err
	}
	c.mu.Lock()
	c.doc = &doc
	c.mu.Unlock()
	return doc, nil
}

// Invalidate drops the cached document.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.doc = nil
	c.mu.Unlock()
}

// Document returns the cached document, reading it from the store on first use.
func (c *Catalog) Document(ctx context.Context) (Document, error) {
	c.mu.RLock()
	doc := c.doc
	c.mu.RUnlock()
	if doc != nil {
		return *doc, nil
	}
	data, err := blob.ReadAll(ctx, c.store, c.key)
	if err != nil {
		return Document{}, fmt.Errorf("schema: read %s: %w", c.key, err)
	}
	parsed, err := Parse(data)
	if err != nil {
		return Document{}, err
	}
	c.mu.Lock()
	c.doc = &parsed
	c.mu.Unlock()
	return parsed, nil
}

func (c *Catalog) program(ctx context.Context, name string) (Program, error) {
	doc, err := c.Document(ctx)
	if err != nil {
		return Program{}, err
	}
	prog, ok := doc.Programs[name]
	if !ok {
		return Program{}, fmt.Errorf("%w: %q", ErrUnknownProgram, name)
	}
	return prog, nil
}

// ParametersFor implements domain.SchemaProvider. A level absent from the
// program yields an empty definition list.
func (c *Catalog) ParametersFor(ctx context.Context, level, program string) ([]domain.ParameterDefinition, error) {
	prog, err := c.program(ctx, program)
	if err != nil {
		return nil, err
	}
	defs := prog.Levels[level]
	out := make([]domain.ParameterDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// Categories implements domain.CategoryProvider, preserving catalog order.
func (c *Catalog) Categories(ctx context.Context, program string) ([]domain.CategoryValue, error) {
	prog, err := c.program(ctx, program)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CategoryValue, 0, len(prog.Categories))
	for _, cat := range prog.Categories {
		out = append(out, domain.CategoryValue{ID: cat.ID, Label: cat.Label, ParameterID: domain.ParameterID(cat.ParameterID)})
	}
	return out, nil
}

// Levels lists the acquisition levels of program in lexical order.
func (c *Catalog) Levels(ctx context.Context, program string) ([]string, error) {
	prog, err := c.program(ctx, program)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(prog.Levels))
	for level := range prog.Levels {
		out = append(out, level)
	}
	sort.Strings(out)
	return out, nil
}

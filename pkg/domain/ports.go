package domain

import "context"

// CategoryValue is one value of a categorical dimension driving a pivot, for
// example a sex or a species sub-group. ParameterID names the qualitative
// parameter the value is stored under in pivot children.
type CategoryValue struct {
	ID          int         `json:"id"`
	Label       string      `json:"label"`
	ParameterID ParameterID `json:"parameter_id"`
}

// Value returns the measurement value stored in a pivot child for c.
func (c CategoryValue) Value() Value { return QualitativeRef(c.ID) }

// SchemaProvider supplies the parameter definitions active for an acquisition
// level within a program.
type SchemaProvider interface {
	ParametersFor(ctx context.Context, level, program string) ([]ParameterDefinition, error)
}

// CategoryProvider supplies the ordered categorical dimension of a program.
type CategoryProvider interface {
	Categories(ctx context.Context, program string) ([]CategoryValue, error)
}

// LoadFilter narrows a persistence lookup. Empty slices impose no constraint.
type LoadFilter struct {
	IDs       []NodeID
	ParentIDs []NodeID
}

// PersistenceCollaborator stores flat node collections per acquisition level.
// Save assigns identifiers to nodes without one and returns detached copies in
// input order. Delete removes the nodes and their descendants. An empty level
// matches every level on Load and Delete.
type PersistenceCollaborator interface {
	Save(ctx context.Context, level string, nodes []*Node) ([]*Node, error)
	Load(ctx context.Context, level string, filter LoadFilter) ([]*Node, error)
	Delete(ctx context.Context, level string, ids []NodeID) error
}

package memory

import (
	"encoding/json"
	"fmt"

	"batchcore/pkg/domain"
)

// Bucket names used when a snapshot is split for row storage.
const (
	BucketNodes    = "nodes"
	BucketSequence = "sequence"
)

// Bucket is one named JSON payload of a snapshot.
type Bucket struct {
	Name    string
	Payload []byte
}

// Buckets encodes the snapshot as one payload per bucket, nodes first.
func (s Snapshot) Buckets() ([]Bucket, error) {
	nodes := s.Nodes
	if nodes == nil {
		nodes = []*domain.Node{}
	}
	np, err := json.Marshal(nodes)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", BucketNodes, err)
	}
	sp, err := json.Marshal(s.NextID)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", BucketSequence, err)
	}
	return []Bucket{{BucketNodes, np}, {BucketSequence, sp}}, nil
}

// Apply decodes payload into the field named by bucket. Unknown buckets and
// empty payloads are ignored.
func (s *Snapshot) Apply(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketNodes:
		target = &s.Nodes
	case BucketSequence:
		target = &s.NextID
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

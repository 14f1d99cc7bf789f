package store

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/oplog"
)

// SnapshotVersion is the format version written by EncodeSnapshot.
const SnapshotVersion = 1

// Snapshot is the complete exported state of one replica.
type Snapshot struct {
	Version int           `json:"version"`
	Actor   string        `json:"actor"`
	Nodes   []Node        `json:"nodes"`
	Edges   []Edge        `json:"edges"`
	Log     []oplog.Event `json:"log"`
}

// Node is one stored entity document.
type Node struct {
	Kind entity.Kind     `json:"kind"`
	Key  string          `json:"key"`
	Doc  json.RawMessage `json:"doc"`
}

// Edge is one directed relationship row.
type Edge struct {
	From entity.Ref `json:"from"`
	To   entity.Ref `json:"to"`
}

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// EncodeSnapshot serializes s as zstd-compressed canonical JSON.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	out := *s
	if out.Nodes == nil {
		out.Nodes = []Node{}
	}
	if out.Edges == nil {
		out.Edges = []Edge{}
	}
	if out.Log == nil {
		out.Log = []oplog.Event{}
	}
	raw, err := entity.MarshalCanonical(&out)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return encoder.EncodeAll(raw, nil), nil
}

// DecodeSnapshot parses data produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, &Error{Code: CodeBadSnapshot, Op: "decode snapshot", Err: err}
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &Error{Code: CodeBadSnapshot, Op: "decode snapshot", Err: err}
	}
	if s.Version != SnapshotVersion {
		return nil, &Error{Code: CodeBadSnapshot, Op: "decode snapshot",
			Err: fmt.Errorf("unsupported version %d", s.Version)}
	}
	if s.Actor == "" {
		return nil, &Error{Code: CodeBadSnapshot, Op: "decode snapshot", Err: fmt.Errorf("missing actor")}
	}
	return &s, nil
}

// Entities decodes every node in the snapshot.
func (s *Snapshot) Entities() ([]entity.Entity, error) {
	out := make([]entity.Entity, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		e, err := entity.Decode(n.Kind, n.Doc)
		if err != nil {
			return nil, &Error{Code: CodeCorrupt, Op: "snapshot entities", Err: err}
		}
		out = append(out, e)
	}
	return out, nil
}

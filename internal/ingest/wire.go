package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/relay-ops/graphkb/internal/graph"
)

// batchRequest is the POST /v1/batches payload.
type batchRequest struct {
	Tenant     string          `json:"tenant"`
	Operations []operationWire `json:"operations"`
}

type operationWire struct {
	Op     string         `json:"op"`
	Label  string         `json:"label,omitempty"`
	Slug   string         `json:"slug,omitempty"`
	Type   string         `json:"type,omitempty"`
	Source *nodeRefWire   `json:"source,omitempty"`
	Target *nodeRefWire   `json:"target,omitempty"`
	Props  map[string]any `json:"props,omitempty"`
}

type nodeRefWire struct {
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
	// Index is set when a specific batch operation failed.
	Index *int `json:"index,omitempty"`
}

// toBatch converts the wire form into the internal batch. Payloads are
// decoded with json.Number so integer properties survive the trip.
func (r *batchRequest) toBatch() (graph.Batch, error) {
	batch := graph.Batch{Operations: make([]graph.Operation, 0, len(r.Operations))}
	for i, w := range r.Operations {
		op := graph.Operation{
			Kind:  graph.OpKind(w.Op),
			Label: w.Label,
			Slug:  w.Slug,
			Type:  w.Type,
		}
		switch op.Kind {
		case graph.OpUpsertNode, graph.OpDeleteNode, graph.OpUpsertEdge, graph.OpDeleteEdge:
		default:
			return graph.Batch{}, fmt.Errorf("operation %d: unknown op %q", i, w.Op)
		}
		if w.Source != nil {
			op.Source = graph.NodeRef{Label: w.Source.Label, Slug: w.Source.Slug}
		}
		if w.Target != nil {
			op.Target = graph.NodeRef{Label: w.Target.Label, Slug: w.Target.Slug}
		}
		if len(w.Props) > 0 {
			props := make(graph.Props, len(w.Props))
			for name, raw := range w.Props {
				v, err := decodeValue(raw)
				if err != nil {
					return graph.Batch{}, fmt.Errorf("operation %d: property %q: %w", i, name, err)
				}
				props[name] = v
			}
			op.Props = props
		}
		batch.Operations = append(batch.Operations, op)
	}
	return batch, nil
}

// decodeValue maps a decoded JSON value onto the tagged property
// representation. Numbers without a fractional part become ints.
func decodeValue(raw any) (graph.Value, error) {
	switch v := raw.(type) {
	case string:
		return graph.String(v), nil
	case bool:
		return graph.Bool(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return graph.Int(n), nil
		}
		f, err := v.Float64()
		if err != nil {
			return graph.Value{}, fmt.Errorf("unparseable number %q", v.String())
		}
		return graph.Float(f), nil
	case []any:
		ss := make([]string, len(v))
		for i, el := range v {
			s, ok := el.(string)
			if !ok {
				return graph.Value{}, fmt.Errorf("list element %d is not a string", i)
			}
			ss[i] = s
		}
		return graph.List(ss...), nil
	default:
		return graph.Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

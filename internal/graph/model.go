// Package graph defines the multi-tenant property-graph data model, the
// error taxonomy shared by the mutation and query paths, and the Store
// interface for the underlying graph backend.
// Implementations: KuzuStore (production), MemStore (testing and ephemeral runs).
package graph

// --- Property values ---

// ValueKind discriminates the tagged property-value variant.
type ValueKind string

const (
	KindString     ValueKind = "string"
	KindInt        ValueKind = "int"
	KindFloat      ValueKind = "float"
	KindBool       ValueKind = "bool"
	KindStringList ValueKind = "string_list"
)

// Value is a tagged-variant property value: a scalar or an ordered list of
// strings. Merge-policy dispatch is exhaustive over Kind, so new kinds
// cannot slip past the upsert path unchecked.
type Value struct {
	Kind ValueKind `json:"kind"`
	Str  string    `json:"str,omitempty"`
	Int  int64     `json:"int,omitempty"`
	Flt  float64   `json:"flt,omitempty"`
	Bool bool      `json:"bool,omitempty"`
	List []string  `json:"list,omitempty"`
}

func String(s string) Value   { return Value{Kind: KindString, Str: s} }
func Int(n int64) Value       { return Value{Kind: KindInt, Int: n} }
func Float(f float64) Value   { return Value{Kind: KindFloat, Flt: f} }
func Bool(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func List(ss ...string) Value { return Value{Kind: KindStringList, List: ss} }

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Flt == o.Flt
	case KindBool:
		return v.Bool == o.Bool
	case KindStringList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if v.List[i] != o.List[i] {
				return false
			}
		}
		return true
	}
	return false
}

// Native returns the Go-native representation of the value, suitable for
// query parameter binding and JSON result packaging.
func (v Value) Native() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Flt
	case KindBool:
		return v.Bool
	case KindStringList:
		return v.List
	}
	return nil
}

// Props is a property map keyed by declared property name.
type Props map[string]Value

// Clone returns a deep copy of the property map. A nil map stays nil.
func (p Props) Clone() Props {
	if p == nil {
		return nil
	}
	out := make(Props, len(p))
	for k, v := range p {
		if v.Kind == KindStringList {
			list := make([]string, len(v.List))
			copy(list, v.List)
			v.List = list
		}
		out[k] = v
	}
	return out
}

// --- Records ---

// NodeRecord is a stored entity. Identity is fully determined by
// (Tenant, Label, Slug); ID is the deterministic identifier derived from
// them. Version increases by one every time a mutation actually changes the
// record and is never reused.
type NodeRecord struct {
	ID      string `json:"id"`
	Tenant  string `json:"tenant"`
	Label   string `json:"label"`
	Slug    string `json:"slug"`
	Props   Props  `json:"props,omitempty"`
	Extras  Props  `json:"extras,omitempty"` // undeclared properties kept under lenient schema mode
	Version int64  `json:"version"`
}

// EdgeRecord is a stored relationship. Endpoints are id references, never
// embedded records, so the graph arena is cycle-free and serializes flat.
type EdgeRecord struct {
	ID       string `json:"id"`
	Tenant   string `json:"tenant"`
	Type     string `json:"type"`
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
	Props    Props  `json:"props,omitempty"`
	Extras   Props  `json:"extras,omitempty"`
}

// --- Mutations ---

// OpKind identifies a mutation operation.
type OpKind string

const (
	OpUpsertNode OpKind = "upsert_node"
	OpUpsertEdge OpKind = "upsert_edge"
	OpDeleteNode OpKind = "delete_node"
	OpDeleteEdge OpKind = "delete_edge"
)

// NodeRef names a node by (label, natural key). Edge operations carry refs
// that are resolved to deterministic ids at apply time.
type NodeRef struct {
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// Operation is one mutation in a batch. Fields are used according to Kind:
// node ops use Label/Slug/Props, edge ops use Type/Source/Target/Props.
type Operation struct {
	Kind   OpKind  `json:"op"`
	Label  string  `json:"label,omitempty"`
	Slug   string  `json:"slug,omitempty"`
	Type   string  `json:"type,omitempty"`
	Source NodeRef `json:"source,omitempty"`
	Target NodeRef `json:"target,omitempty"`
	Props  Props   `json:"props,omitempty"`
}

// Batch is an ordered sequence of operations applied as one atomic unit.
// Operations apply in order, so an edge may reference a node created
// earlier in the same batch.
type Batch struct {
	Operations []Operation `json:"operations"`
}

// CommitResult summarizes a successfully applied batch.
type CommitResult struct {
	NodesCreated int `json:"nodesCreated"`
	NodesUpdated int `json:"nodesUpdated"`
	NodesDeleted int `json:"nodesDeleted"`
	EdgesCreated int `json:"edgesCreated"`
	EdgesUpdated int `json:"edgesUpdated"`
	EdgesDeleted int `json:"edgesDeleted"`
	Unchanged    int `json:"unchanged"` // no-op upserts (identical re-submission)
}

// Stats summarizes one tenant's slice of the graph.
type Stats struct {
	Tenant       string           `json:"tenant"`
	NodesByLabel map[string]int64 `json:"nodesByLabel"`
	EdgesByType  map[string]int64 `json:"edgesByType"`
}

// Snapshot is one tenant's full slice of the graph, ordered by label then
// slug (nodes) and by type then id (edges) so repeated exports of the same
// data are byte-identical.
type Snapshot struct {
	Tenant string       `json:"tenant"`
	Nodes  []NodeRecord `json:"nodes"`
	Edges  []EdgeRecord `json:"edges"`
}

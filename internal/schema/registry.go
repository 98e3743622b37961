// Package schema maintains the set of valid node labels, relationship types,
// and per-label property definitions, and validates mutations and queries
// against it.
//
// The registry is read-mostly. Definitions live in an immutable snapshot
// behind an atomic pointer; Reload swaps in a whole new snapshot, so
// concurrent readers are lock-free and never observe a half-updated
// registry.
package schema

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/relay-ops/graphkb/internal/graph"
)

// Mode selects how undeclared properties are treated on write.
type Mode string

const (
	// Strict rejects mutations carrying properties outside the declared set.
	Strict Mode = "strict"

	// Lenient accepts undeclared properties and preserves them verbatim in
	// the record's extras map, kept apart from declared properties so later
	// schema evolution does not silently drop data.
	Lenient Mode = "lenient"
)

// builtinProps are record fields addressable from queries on every label.
var builtinProps = map[string]graph.ValueKind{
	"id":      graph.KindString,
	"tenant":  graph.KindString,
	"slug":    graph.KindString,
	"version": graph.KindInt,
}

// builtinRelProps are edge fields addressable from queries on every
// relationship type.
var builtinRelProps = map[string]graph.ValueKind{
	"id":     graph.KindString,
	"tenant": graph.KindString,
}

// Registry validates mutations and queries against the current schema
// snapshot.
type Registry struct {
	mode Mode
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	labels map[string]LabelDef
	rels   map[string]RelDef
}

// NewRegistry builds a registry from the given definition set.
func NewRegistry(defs *Definitions, mode Mode) (*Registry, error) {
	if mode == "" {
		mode = Strict
	}
	snap, err := buildSnapshot(defs)
	if err != nil {
		return nil, err
	}
	r := &Registry{mode: mode}
	r.snap.Store(snap)
	return r, nil
}

// Reload swaps in a new definition set. In-flight validations finish against
// the snapshot they started with; all subsequent validations see the new one.
func (r *Registry) Reload(defs *Definitions) error {
	snap, err := buildSnapshot(defs)
	if err != nil {
		return err
	}
	r.snap.Store(snap)
	return nil
}

// Mode returns the configured strict/lenient mode.
func (r *Registry) Mode() Mode { return r.mode }

func buildSnapshot(defs *Definitions) (*snapshot, error) {
	snap := &snapshot{
		labels: make(map[string]LabelDef, len(defs.Labels)),
		rels:   make(map[string]RelDef, len(defs.Relationships)),
	}
	for name, def := range defs.Labels {
		for prop, pd := range def.Properties {
			if _, ok := kindOf(pd.Type); !ok {
				return nil, fmt.Errorf("schema: label %s property %s: unknown type %q", name, prop, pd.Type)
			}
			if _, builtin := builtinProps[prop]; builtin {
				return nil, fmt.Errorf("schema: label %s redeclares built-in property %s", name, prop)
			}
		}
		snap.labels[name] = def
	}
	for name, def := range defs.Relationships {
		if len(def.Endpoints) == 0 {
			return nil, fmt.Errorf("schema: relationship %s declares no endpoint pairs", name)
		}
		for _, ep := range def.Endpoints {
			if _, ok := snap.labels[ep.From]; !ok {
				return nil, fmt.Errorf("schema: relationship %s: unknown source label %s", name, ep.From)
			}
			if _, ok := snap.labels[ep.To]; !ok {
				return nil, fmt.Errorf("schema: relationship %s: unknown target label %s", name, ep.To)
			}
		}
		for prop, pd := range def.Properties {
			if _, ok := kindOf(pd.Type); !ok {
				return nil, fmt.Errorf("schema: relationship %s property %s: unknown type %q", name, prop, pd.Type)
			}
		}
		snap.rels[name] = def
	}
	return snap, nil
}

// --- Validation ---

// KnownLabel reports whether label is declared.
func (r *Registry) KnownLabel(label string) bool {
	_, ok := r.snap.Load().labels[label]
	return ok
}

// KnownRelationship reports whether relType is declared.
func (r *Registry) KnownRelationship(relType string) bool {
	_, ok := r.snap.Load().rels[relType]
	return ok
}

// SplitNodeProps validates incoming node properties against the label
// definition. Declared properties are type-checked; undeclared ones are
// rejected under Strict and routed to the extras map under Lenient.
func (r *Registry) SplitNodeProps(label string, props graph.Props) (declared, extras graph.Props, err error) {
	snap := r.snap.Load()
	def, ok := snap.labels[label]
	if !ok {
		return nil, nil, &graph.ViolationError{Label: label, Reason: "label not declared", Sentinel: graph.ErrUnknownLabel}
	}
	return r.split(label, def.Properties, props)
}

// SplitRelProps is SplitNodeProps for relationship properties.
func (r *Registry) SplitRelProps(relType string, props graph.Props) (declared, extras graph.Props, err error) {
	snap := r.snap.Load()
	def, ok := snap.rels[relType]
	if !ok {
		return nil, nil, &graph.ViolationError{Label: relType, Reason: "relationship type not declared", Sentinel: graph.ErrUnknownLabel}
	}
	return r.split(relType, def.Properties, props)
}

func (r *Registry) split(label string, decls map[string]PropDef, props graph.Props) (graph.Props, graph.Props, error) {
	declared := make(graph.Props, len(props))
	var extras graph.Props
	for name, val := range props {
		pd, ok := decls[name]
		if !ok {
			if r.mode == Strict {
				return nil, nil, &graph.ViolationError{Label: label, Property: name, Reason: "property not declared", Sentinel: graph.ErrSchemaViolation}
			}
			if extras == nil {
				extras = graph.Props{}
			}
			extras[name] = val
			continue
		}
		want, _ := kindOf(pd.Type)
		if val.Kind != want {
			return nil, nil, &graph.ViolationError{
				Label: label, Property: name,
				Reason:   fmt.Sprintf("expected %s, got %s", want, val.Kind),
				Sentinel: graph.ErrSchemaViolation,
			}
		}
		declared[name] = val
	}
	return declared, extras, nil
}

// CheckRequired verifies that every required property of label is present.
// Enforced when a record is first created; later partial upserts merge into
// an already-complete record.
func (r *Registry) CheckRequired(label string, props graph.Props) error {
	def, ok := r.snap.Load().labels[label]
	if !ok {
		return &graph.ViolationError{Label: label, Reason: "label not declared", Sentinel: graph.ErrUnknownLabel}
	}
	for name, pd := range def.Properties {
		if !pd.Required {
			continue
		}
		if _, present := props[name]; !present {
			return &graph.ViolationError{Label: label, Property: name, Reason: "required property missing", Sentinel: graph.ErrSchemaViolation}
		}
	}
	return nil
}

// EndpointAllowed reports whether relType may connect fromLabel to toLabel.
func (r *Registry) EndpointAllowed(relType, fromLabel, toLabel string) bool {
	def, ok := r.snap.Load().rels[relType]
	if !ok {
		return false
	}
	for _, ep := range def.Endpoints {
		if ep.From == fromLabel && ep.To == toLabel {
			return true
		}
	}
	return false
}

// QueryPropKind resolves a property referenced by a query against a label,
// including the built-in record fields. ok is false for undeclared names.
func (r *Registry) QueryPropKind(label, prop string) (graph.ValueKind, bool) {
	if k, ok := builtinProps[prop]; ok {
		return k, true
	}
	def, ok := r.snap.Load().labels[label]
	if !ok {
		return "", false
	}
	pd, ok := def.Properties[prop]
	if !ok {
		return "", false
	}
	k, _ := kindOf(pd.Type)
	return k, true
}

// QueryRelPropKind is QueryPropKind for relationship properties.
func (r *Registry) QueryRelPropKind(relType, prop string) (graph.ValueKind, bool) {
	if k, ok := builtinRelProps[prop]; ok {
		return k, true
	}
	def, ok := r.snap.Load().rels[relType]
	if !ok {
		return "", false
	}
	pd, ok := def.Properties[prop]
	if !ok {
		return "", false
	}
	k, _ := kindOf(pd.Type)
	return k, true
}

// --- DDL and introspection ---

// DDL produces the storage-level table description for the current snapshot.
// Output ordering is deterministic so generated statements are stable.
func (r *Registry) DDL() graph.DDL {
	snap := r.snap.Load()
	ddl := graph.DDL{}

	for _, label := range sortedKeys(snap.labels) {
		def := snap.labels[label]
		nt := graph.NodeTableDef{Label: label}
		for _, prop := range sortedKeys(def.Properties) {
			k, _ := kindOf(def.Properties[prop].Type)
			nt.Props = append(nt.Props, graph.PropDef{Name: prop, Kind: k})
		}
		ddl.Nodes = append(ddl.Nodes, nt)
	}
	for _, relType := range sortedKeys(snap.rels) {
		def := snap.rels[relType]
		rt := graph.RelTableDef{Type: relType}
		for _, ep := range def.Endpoints {
			rt.Pairs = append(rt.Pairs, [2]string{ep.From, ep.To})
		}
		for _, prop := range sortedKeys(def.Properties) {
			k, _ := kindOf(def.Properties[prop].Type)
			rt.Props = append(rt.Props, graph.PropDef{Name: prop, Kind: k})
		}
		ddl.Rels = append(ddl.Rels, rt)
	}
	return ddl
}

// Describe enumerates the current schema for callers that construct queries
// without prior knowledge of the graph shape.
func (r *Registry) Describe() Description {
	snap := r.snap.Load()
	desc := Description{}

	for _, label := range sortedKeys(snap.labels) {
		def := snap.labels[label]
		ld := LabelDescription{Name: label}
		for _, prop := range sortedKeys(def.Properties) {
			pd := def.Properties[prop]
			ld.Properties = append(ld.Properties, PropDescription{
				Name: prop, Type: pd.Type, Required: pd.Required,
			})
		}
		desc.Labels = append(desc.Labels, ld)
	}
	for _, relType := range sortedKeys(snap.rels) {
		def := snap.rels[relType]
		rd := RelDescription{Name: relType}
		for _, ep := range def.Endpoints {
			rd.Endpoints = append(rd.Endpoints, EndpointDescription{From: ep.From, To: ep.To})
		}
		for _, prop := range sortedKeys(def.Properties) {
			pd := def.Properties[prop]
			rd.Properties = append(rd.Properties, PropDescription{Name: prop, Type: pd.Type})
		}
		desc.Relationships = append(desc.Relationships, rd)
	}
	return desc
}

// Description is the read-only introspection listing.
type Description struct {
	Labels        []LabelDescription `json:"labels"`
	Relationships []RelDescription   `json:"relationships"`
}

type LabelDescription struct {
	Name       string            `json:"name"`
	Properties []PropDescription `json:"properties,omitempty"`
}

type RelDescription struct {
	Name       string                `json:"name"`
	Endpoints  []EndpointDescription `json:"endpoints"`
	Properties []PropDescription     `json:"properties,omitempty"`
}

type PropDescription struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

type EndpointDescription struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// kindOf maps a yaml type name to its value kind.
func kindOf(typ string) (graph.ValueKind, bool) {
	switch typ {
	case "string":
		return graph.KindString, true
	case "int":
		return graph.KindInt, true
	case "float":
		return graph.KindFloat, true
	case "bool":
		return graph.KindBool, true
	case "string_list":
		return graph.KindStringList, true
	}
	return "", false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

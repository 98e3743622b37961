// Package cypher implements the constrained read-only Cypher surface
// accepted by the query gateway: a single MATCH path, an optional WHERE
// conjunction, a RETURN clause, and optional ORDER BY / LIMIT.
//
// The package parses query text into an AST that the gateway validates and
// rewrites (tenant pinning, limit injection) and that backends either render
// back to parameterized Cypher (KuzuStore) or evaluate directly (MemStore).
// Write clauses are rejected at parse time; this surface cannot mutate.
package cypher

import "fmt"

// Direction of a relationship pattern.
type Direction string

const (
	DirOut Direction = "out" // (a)-[:T]->(b)
	DirIn  Direction = "in"  // (a)<-[:T]-(b)
)

// Op is a WHERE comparison operator.
type Op string

const (
	OpEq       Op = "="
	OpNeq      Op = "<>"
	OpLt       Op = "<"
	OpLte      Op = "<="
	OpGt       Op = ">"
	OpGte      Op = ">="
	OpContains Op = "CONTAINS"
)

// NodePattern is one node in the MATCH path. Every pattern must carry a
// label: the gateway pins tenancy per pattern, and an unlabeled node cannot
// be pinned.
type NodePattern struct {
	Alias string
	Label string
	Props map[string]any // inline {prop: literal} map; literals are string|int64|float64|bool
}

// RelPattern is one relationship in the MATCH path, always typed.
type RelPattern struct {
	Alias     string
	Type      string
	Direction Direction
	Props     map[string]any
}

// Condition is one WHERE term; terms are ANDed.
type Condition struct {
	Alias string
	Prop  string
	Op    Op
	Value any
}

// ReturnKind discriminates what a return item yields.
type ReturnKind string

const (
	ReturnProperty ReturnKind = "property" // a.slug
	ReturnNode     ReturnKind = "node"     // a
	ReturnCount    ReturnKind = "count"    // count(a)
)

// ReturnItem is one expression of the RETURN clause. The gateway enforces
// that exactly one item is present; the parser itself accepts any number so
// that shape violations can be reported distinctly from syntax errors.
type ReturnItem struct {
	Kind  ReturnKind
	Alias string
	Prop  string
}

// OrderBy sorts results by one property.
type OrderBy struct {
	Alias      string
	Prop       string
	Descending bool
}

// Query is a parsed constrained-Cypher read query.
type Query struct {
	Nodes  []NodePattern // len >= 1
	Rels   []RelPattern  // len == len(Nodes)-1
	Where  []Condition
	Return []ReturnItem
	Order  *OrderBy
	Limit  int64 // 0 means no explicit limit
}

// AliasPattern returns the node pattern bound to alias, or nil.
func (q *Query) AliasPattern(alias string) *NodePattern {
	for i := range q.Nodes {
		if q.Nodes[i].Alias == alias {
			return &q.Nodes[i]
		}
	}
	return nil
}

// RelAliasPattern returns the relationship pattern bound to alias, or nil.
func (q *Query) RelAliasPattern(alias string) *RelPattern {
	for i := range q.Rels {
		if q.Rels[i].Alias == alias {
			return &q.Rels[i]
		}
	}
	return nil
}

// SyntaxError reports a parse failure with the byte offset where it occurred.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("cypher: %s (at offset %d)", e.Msg, e.Offset)
}

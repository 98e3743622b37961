package cypher

import (
	"fmt"
	"sort"
	"strings"
)

// Render serializes the query back to Cypher text with every literal bound
// as a $pN parameter, so rewritten values (including the injected tenant)
// never appear inline in the statement.
func Render(q *Query) (string, map[string]any) {
	r := &renderer{params: map[string]any{}}
	var sb strings.Builder

	sb.WriteString("MATCH ")
	sb.WriteString(r.node(q.Nodes[0]))
	for i, rel := range q.Rels {
		if rel.Direction == DirOut {
			sb.WriteString("-" + r.rel(rel) + "->")
		} else {
			sb.WriteString("<-" + r.rel(rel) + "-")
		}
		sb.WriteString(r.node(q.Nodes[i+1]))
	}

	if len(q.Where) > 0 {
		terms := make([]string, 0, len(q.Where))
		for _, c := range q.Where {
			terms = append(terms, fmt.Sprintf("%s.%s %s $%s", c.Alias, c.Prop, c.Op, r.bind(c.Value)))
		}
		sb.WriteString(" WHERE " + strings.Join(terms, " AND "))
	}

	items := make([]string, 0, len(q.Return))
	for _, item := range q.Return {
		switch item.Kind {
		case ReturnCount:
			items = append(items, fmt.Sprintf("count(%s)", item.Alias))
		case ReturnProperty:
			items = append(items, fmt.Sprintf("%s.%s", item.Alias, item.Prop))
		default:
			items = append(items, item.Alias)
		}
	}
	sb.WriteString(" RETURN " + strings.Join(items, ", "))

	if q.Order != nil {
		sb.WriteString(fmt.Sprintf(" ORDER BY %s.%s", q.Order.Alias, q.Order.Prop))
		if q.Order.Descending {
			sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", q.Limit))
	}
	return sb.String(), r.params
}

type renderer struct {
	params map[string]any
	n      int
}

func (r *renderer) bind(v any) string {
	name := fmt.Sprintf("p%d", r.n)
	r.n++
	r.params[name] = v
	return name
}

func (r *renderer) node(n NodePattern) string {
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(n.Alias)
	if n.Label != "" {
		sb.WriteString(":" + n.Label)
	}
	sb.WriteString(r.propMap(n.Props))
	sb.WriteString(")")
	return sb.String()
}

func (r *renderer) rel(p RelPattern) string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(p.Alias)
	sb.WriteString(":" + p.Type)
	sb.WriteString(r.propMap(p.Props))
	sb.WriteString("]")
	return sb.String()
}

func (r *renderer) propMap(props map[string]any) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s: $%s", k, r.bind(props[k])))
	}
	return " {" + strings.Join(pairs, ", ") + "}"
}

package mutation

import "github.com/relay-ops/graphkb/internal/graph"

// mergeProps applies the upsert merge policy: scalar properties are
// last-write-wins, list properties append with deduplication so repeated
// extraction runs over overlapping source text cannot balloon them.
// Order of first appearance is preserved. Returns the merged map and
// whether anything actually changed; an identical re-submission is a no-op
// and must not bump the record version.
func mergeProps(existing, incoming graph.Props) (graph.Props, bool) {
	merged := existing.Clone()
	if merged == nil {
		merged = graph.Props{}
	}
	changed := false

	for name, in := range incoming {
		cur, ok := merged[name]
		if !ok {
			merged[name] = in
			changed = true
			continue
		}
		if in.Kind == graph.KindStringList && cur.Kind == graph.KindStringList {
			appended, grew := appendDedup(cur.List, in.List)
			if grew {
				merged[name] = graph.List(appended...)
				changed = true
			}
			continue
		}
		if !cur.Equal(in) {
			merged[name] = in
			changed = true
		}
	}
	return merged, changed
}

// appendDedup appends items from in that are not already present.
func appendDedup(cur, in []string) ([]string, bool) {
	seen := make(map[string]bool, len(cur))
	for _, s := range cur {
		seen[s] = true
	}
	out := cur
	grew := false
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		grew = true
	}
	return out, grew
}

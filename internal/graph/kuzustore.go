//go:build cgo

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	kuzu "github.com/kuzudb/go-kuzu"

	"github.com/relay-ops/graphkb/internal/cypher"
)

// KuzuStore implements the Store interface using KuzuDB as the graph
// backend. It requires CGO because the go-kuzu driver wraps KuzuDB's C
// library.
//
// KuzuDB is embedded and single-connection here, so storage access is
// serialized at connection granularity: a transaction holds the connection
// mutex from Begin to Commit/Rollback. Logical per-entity serialization is
// the mutation layer's concern; this mutex is only the embedding constraint.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection

	mu       sync.Mutex
	nodeDefs map[string]NodeTableDef
	relDefs  map[string]RelTableDef
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a file-based KuzuDB at the
// given directory path. KuzuDB creates the directory itself for new
// databases.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{
		db:       db,
		conn:     conn,
		nodeDefs: map[string]NodeTableDef{},
		relDefs:  map[string]RelTableDef{},
	}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// Ping verifies the connection by running a trivial statement.
func (s *KuzuStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.conn.Query("RETURN 1")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	res.Close()
	return nil
}

// ---------- Schema setup ----------

// columnType maps a value kind to its KuzuDB column type.
func columnType(k ValueKind) string {
	switch k {
	case KindInt:
		return "INT64"
	case KindFloat:
		return "DOUBLE"
	case KindBool:
		return "BOOLEAN"
	case KindStringList:
		return "STRING[]"
	default:
		return "STRING"
	}
}

// InitSchema creates one node table per label and one relationship table per
// type, all IF NOT EXISTS so reloads that only add definitions are safe.
// Node tables carry the fixed record columns plus declared properties;
// extras holds the JSON-encoded undeclared property map kept under lenient
// schema mode.
func (s *KuzuStore) InitSchema(_ context.Context, ddl DDL) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, nt := range ddl.Nodes {
		cols := []string{"id STRING", "tenant STRING", "slug STRING", "version INT64", "extras STRING"}
		for _, p := range nt.Props {
			cols = append(cols, fmt.Sprintf("%s %s", p.Name, columnType(p.Kind)))
		}
		stmt := fmt.Sprintf("CREATE NODE TABLE IF NOT EXISTS %s(%s, PRIMARY KEY(id))",
			nt.Label, strings.Join(cols, ", "))
		if err := s.execLocked(stmt, nil); err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		s.nodeDefs[nt.Label] = nt
	}
	for _, rt := range ddl.Rels {
		parts := make([]string, 0, len(rt.Pairs)+len(rt.Props)+3)
		for _, pair := range rt.Pairs {
			parts = append(parts, fmt.Sprintf("FROM %s TO %s", pair[0], pair[1]))
		}
		parts = append(parts, "id STRING", "tenant STRING", "extras STRING")
		for _, p := range rt.Props {
			parts = append(parts, fmt.Sprintf("%s %s", p.Name, columnType(p.Kind)))
		}
		stmt := fmt.Sprintf("CREATE REL TABLE IF NOT EXISTS %s(%s)", rt.Type, strings.Join(parts, ", "))
		if err := s.execLocked(stmt, nil); err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		s.relDefs[rt.Type] = rt
	}
	return nil
}

// ---------- Transactions ----------

// kuzuTx runs all statements of one batch between BEGIN TRANSACTION and
// COMMIT on the shared connection. The store mutex is held for the whole
// transaction so no other statement can interleave.
type kuzuTx struct {
	s    *KuzuStore
	done bool
}

// Begin opens a storage transaction and takes the connection mutex.
func (s *KuzuStore) Begin(_ context.Context) (Tx, error) {
	s.mu.Lock()
	if err := s.execLocked("BEGIN TRANSACTION", nil); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("kuzu: begin: %w", err)
	}
	return &kuzuTx{s: s}, nil
}

func (t *kuzuTx) Commit(_ context.Context) error {
	if t.done {
		return fmt.Errorf("kuzu: transaction already finished")
	}
	t.done = true
	defer t.s.mu.Unlock()
	if err := t.s.execLocked("COMMIT", nil); err != nil {
		return fmt.Errorf("kuzu: commit: %w", err)
	}
	return nil
}

func (t *kuzuTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.s.mu.Unlock()
	if err := t.s.execLocked("ROLLBACK", nil); err != nil {
		return fmt.Errorf("kuzu: rollback: %w", err)
	}
	return nil
}

func (t *kuzuTx) GetNode(_ context.Context, label, id string) (*NodeRecord, error) {
	def, ok := t.s.nodeDefs[label]
	if !ok {
		return nil, fmt.Errorf("kuzu: no table for label %s", label)
	}
	cols := []string{"n.tenant", "n.slug", "n.version", "n.extras"}
	for _, p := range def.Props {
		cols = append(cols, "n."+p.Name)
	}
	rows, err := t.s.queryLocked(
		fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN %s", label, strings.Join(cols, ", ")),
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	r := rows[0]
	rec := &NodeRecord{
		ID:      id,
		Label:   label,
		Tenant:  toString(r[0]),
		Slug:    toString(r[1]),
		Version: toInt64(r[2]),
		Props:   Props{},
	}
	if extras := toString(r[3]); extras != "" {
		if err := json.Unmarshal([]byte(extras), &rec.Extras); err != nil {
			return nil, fmt.Errorf("kuzu: decode extras for %s: %w", id, err)
		}
	}
	for i, p := range def.Props {
		if v, ok := fromKuzuValue(r[4+i], p.Kind); ok {
			rec.Props[p.Name] = v
		}
	}
	return rec, nil
}

func (t *kuzuTx) PutNode(ctx context.Context, rec NodeRecord) error {
	def, ok := t.s.nodeDefs[rec.Label]
	if !ok {
		return fmt.Errorf("kuzu: no table for label %s", rec.Label)
	}
	extras, err := encodeExtras(rec.Extras)
	if err != nil {
		return err
	}

	params := map[string]any{
		"id":      rec.ID,
		"tenant":  rec.Tenant,
		"slug":    rec.Slug,
		"version": rec.Version,
		"extras":  extras,
	}
	assignments := []string{"tenant: $tenant", "slug: $slug", "version: $version", "extras: $extras"}
	sets := []string{"n.tenant = $tenant", "n.slug = $slug", "n.version = $version", "n.extras = $extras"}
	for _, p := range def.Props {
		pname := "prop_" + p.Name
		params[pname] = kuzuParam(rec.Props[p.Name], p.Kind)
		assignments = append(assignments, fmt.Sprintf("%s: $%s", p.Name, pname))
		sets = append(sets, fmt.Sprintf("n.%s = $%s", p.Name, pname))
	}

	if _, err := t.GetNode(ctx, rec.Label, rec.ID); err == nil {
		return t.s.execLocked(
			fmt.Sprintf("MATCH (n:%s {id: $id}) SET %s", rec.Label, strings.Join(sets, ", ")),
			params,
		)
	}
	return t.s.execLocked(
		fmt.Sprintf("CREATE (n:%s {id: $id, %s})", rec.Label, strings.Join(assignments, ", ")),
		params,
	)
}

func (t *kuzuTx) DeleteNode(ctx context.Context, label, id string) error {
	if _, err := t.GetNode(ctx, label, id); err != nil {
		return err
	}
	// DETACH DELETE is the cascade: incident edges go with the node.
	return t.s.execLocked(
		fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n", label),
		map[string]any{"id": id},
	)
}

func (t *kuzuTx) GetEdge(_ context.Context, relType, id string) (*EdgeRecord, error) {
	def, ok := t.s.relDefs[relType]
	if !ok {
		return nil, fmt.Errorf("kuzu: no table for relationship %s", relType)
	}
	cols := []string{"a.id", "b.id", "r.tenant", "r.extras"}
	for _, p := range def.Props {
		cols = append(cols, "r."+p.Name)
	}
	rows, err := t.s.queryLocked(
		fmt.Sprintf("MATCH (a)-[r:%s {id: $id}]->(b) RETURN %s", relType, strings.Join(cols, ", ")),
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	r := rows[0]
	rec := &EdgeRecord{
		ID:       id,
		Type:     relType,
		SourceID: toString(r[0]),
		TargetID: toString(r[1]),
		Tenant:   toString(r[2]),
		Props:    Props{},
	}
	if extras := toString(r[3]); extras != "" {
		if err := json.Unmarshal([]byte(extras), &rec.Extras); err != nil {
			return nil, fmt.Errorf("kuzu: decode extras for %s: %w", id, err)
		}
	}
	for i, p := range def.Props {
		if v, ok := fromKuzuValue(r[4+i], p.Kind); ok {
			rec.Props[p.Name] = v
		}
	}
	return rec, nil
}

func (t *kuzuTx) PutEdge(ctx context.Context, rec EdgeRecord) error {
	def, ok := t.s.relDefs[rec.Type]
	if !ok {
		return fmt.Errorf("kuzu: no table for relationship %s", rec.Type)
	}
	extras, err := encodeExtras(rec.Extras)
	if err != nil {
		return err
	}

	params := map[string]any{
		"id":     rec.ID,
		"tenant": rec.Tenant,
		"extras": extras,
	}
	assignments := []string{"id: $id", "tenant: $tenant", "extras: $extras"}
	sets := []string{"r.tenant = $tenant", "r.extras = $extras"}
	for _, p := range def.Props {
		pname := "prop_" + p.Name
		params[pname] = kuzuParam(rec.Props[p.Name], p.Kind)
		assignments = append(assignments, fmt.Sprintf("%s: $%s", p.Name, pname))
		sets = append(sets, fmt.Sprintf("r.%s = $%s", p.Name, pname))
	}

	if _, err := t.GetEdge(ctx, rec.Type, rec.ID); err == nil {
		return t.s.execLocked(
			fmt.Sprintf("MATCH ()-[r:%s {id: $id}]->() SET %s", rec.Type, strings.Join(sets, ", ")),
			params,
		)
	}

	// The endpoint tables come from the label prefix of the deterministic id.
	srcLabel := labelOfID(rec.SourceID)
	dstLabel := labelOfID(rec.TargetID)
	params["src"] = rec.SourceID
	params["dst"] = rec.TargetID
	return t.s.execLocked(
		fmt.Sprintf("MATCH (a:%s {id: $src}), (b:%s {id: $dst}) CREATE (a)-[:%s {%s}]->(b)",
			srcLabel, dstLabel, rec.Type, strings.Join(assignments, ", ")),
		params,
	)
}

func (t *kuzuTx) DeleteEdge(ctx context.Context, relType, id string) error {
	if _, err := t.GetEdge(ctx, relType, id); err != nil {
		return err
	}
	return t.s.execLocked(
		fmt.Sprintf("MATCH ()-[r:%s {id: $id}]->() DELETE r", relType),
		map[string]any{"id": id},
	)
}

// ---------- Query execution ----------

// Query renders the rewritten AST to parameterized Cypher and executes it.
// Cancellation is honored by interrupting the connection when the context
// expires mid-execution.
func (s *KuzuStore) Query(ctx context.Context, q *cypher.Query) ([]any, error) {
	text, params := cypher.Render(q)

	s.mu.Lock()
	defer s.mu.Unlock()

	execDone := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-ctx.Done():
			s.conn.Interrupt()
		case <-execDone:
		}
	}()

	rows, err := s.queryLocked(text, params)
	close(execDone)
	<-watchDone

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		if len(r) > 0 {
			out = append(out, r[0])
		}
	}
	return out, nil
}

// Stats counts one tenant's rows in every known table.
func (s *KuzuStore) Stats(_ context.Context, tenant string) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &Stats{
		Tenant:       tenant,
		NodesByLabel: map[string]int64{},
		EdgesByType:  map[string]int64{},
	}
	for label := range s.nodeDefs {
		rows, err := s.queryLocked(
			fmt.Sprintf("MATCH (n:%s {tenant: $tenant}) RETURN count(n)", label),
			map[string]any{"tenant": tenant},
		)
		if err != nil {
			return nil, err
		}
		if n := countRow(rows); n > 0 {
			st.NodesByLabel[label] = n
		}
	}
	for relType := range s.relDefs {
		rows, err := s.queryLocked(
			fmt.Sprintf("MATCH ()-[r:%s {tenant: $tenant}]->() RETURN count(r)", relType),
			map[string]any{"tenant": tenant},
		)
		if err != nil {
			return nil, err
		}
		if n := countRow(rows); n > 0 {
			st.EdgesByType[relType] = n
		}
	}
	return st, nil
}

// Export dumps one tenant's rows from every known table into an ordered
// snapshot.
func (s *KuzuStore) Export(_ context.Context, tenant string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{Tenant: tenant}
	for label, def := range s.nodeDefs {
		cols := []string{"n.id", "n.slug", "n.version", "n.extras"}
		for _, p := range def.Props {
			cols = append(cols, "n."+p.Name)
		}
		rows, err := s.queryLocked(
			fmt.Sprintf("MATCH (n:%s {tenant: $tenant}) RETURN %s", label, strings.Join(cols, ", ")),
			map[string]any{"tenant": tenant},
		)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			rec := NodeRecord{
				ID:      toString(r[0]),
				Tenant:  tenant,
				Label:   label,
				Slug:    toString(r[1]),
				Version: toInt64(r[2]),
				Props:   Props{},
			}
			if extras := toString(r[3]); extras != "" {
				if err := json.Unmarshal([]byte(extras), &rec.Extras); err != nil {
					return nil, fmt.Errorf("kuzu: decode extras for %s: %w", rec.ID, err)
				}
			}
			for i, p := range def.Props {
				if v, ok := fromKuzuValue(r[4+i], p.Kind); ok {
					rec.Props[p.Name] = v
				}
			}
			snap.Nodes = append(snap.Nodes, rec)
		}
	}
	for relType, def := range s.relDefs {
		cols := []string{"r.id", "a.id", "b.id", "r.extras"}
		for _, p := range def.Props {
			cols = append(cols, "r."+p.Name)
		}
		rows, err := s.queryLocked(
			fmt.Sprintf("MATCH (a)-[r:%s {tenant: $tenant}]->(b) RETURN %s", relType, strings.Join(cols, ", ")),
			map[string]any{"tenant": tenant},
		)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			rec := EdgeRecord{
				ID:       toString(r[0]),
				Tenant:   tenant,
				Type:     relType,
				SourceID: toString(r[1]),
				TargetID: toString(r[2]),
				Props:    Props{},
			}
			if extras := toString(r[3]); extras != "" {
				if err := json.Unmarshal([]byte(extras), &rec.Extras); err != nil {
					return nil, fmt.Errorf("kuzu: decode extras for %s: %w", rec.ID, err)
				}
			}
			for i, p := range def.Props {
				if v, ok := fromKuzuValue(r[4+i], p.Kind); ok {
					rec.Props[p.Name] = v
				}
			}
			snap.Edges = append(snap.Edges, rec)
		}
	}
	sortSnapshot(snap)
	return snap, nil
}

// ---------- Internal helpers ----------

// execLocked runs a parameterized statement that produces no result rows.
// Caller must hold s.mu.
func (s *KuzuStore) execLocked(stmt string, params map[string]any) error {
	if len(params) == 0 {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: execute: %w", err)
		}
		res.Close()
		return nil
	}
	prepared, err := s.conn.Prepare(stmt)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer prepared.Close()
	res, err := s.conn.Execute(prepared, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// queryLocked runs a parameterized statement and collects all result rows.
// Caller must hold s.mu.
func (s *KuzuStore) queryLocked(stmt string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(stmt)
	} else {
		var prepared *kuzu.PreparedStatement
		prepared, err = s.conn.Prepare(stmt)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer prepared.Close()
		res, err = s.conn.Execute(prepared, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// kuzuParam converts a property value to its driver representation, using
// the zero value of the declared kind when the property is absent.
func kuzuParam(v Value, kind ValueKind) any {
	if v.Kind == "" {
		v = Value{Kind: kind}
	}
	if v.Kind == KindStringList && v.List == nil {
		return []string{}
	}
	return v.Native()
}

// fromKuzuValue converts a driver value back into the declared kind.
// Absent columns (zero values never written) still round-trip; callers
// treat zero scalars as present, which is harmless because upserts always
// write every declared column.
func fromKuzuValue(raw any, kind ValueKind) (Value, bool) {
	if raw == nil {
		return Value{}, false
	}
	switch kind {
	case KindString:
		s := toString(raw)
		if s == "" {
			return Value{}, false
		}
		return String(s), true
	case KindInt:
		return Int(toInt64(raw)), true
	case KindFloat:
		return Float(toFloat64(raw)), true
	case KindBool:
		return Bool(toBool(raw)), true
	case KindStringList:
		list := toStringList(raw)
		if len(list) == 0 {
			return Value{}, false
		}
		return List(list...), true
	}
	return Value{}, false
}

func encodeExtras(extras Props) (string, error) {
	if len(extras) == 0 {
		return "", nil
	}
	data, err := json.Marshal(extras)
	if err != nil {
		return "", fmt.Errorf("kuzu: encode extras: %w", err)
	}
	return string(data), nil
}

// labelOfID extracts the label prefix from a deterministic id.
func labelOfID(id string) string {
	if i := strings.IndexByte(id, ':'); i > 0 {
		return id[:i]
	}
	return id
}

func countRow(rows [][]any) int64 {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0
	}
	return toInt64(rows[0][0])
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, float64, bool, string, []any).

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func toBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}

func toStringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, toString(item))
		}
		return out
	}
	return nil
}

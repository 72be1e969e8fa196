package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
	"github.com/northernlights-labs/ownership-graph/internal/platform/neo4jdb"
)

// Store is the Neo4j-backed entity store adapter. All writes go through
// MERGE so repeated calls are idempotent; property merges never overwrite a
// stored non-null value with null.
type Store struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewStore(client *neo4jdb.Client, log *logger.Logger) *Store {
	return &Store{client: client, log: log.With("component", "GraphStore")}
}

func (s *Store) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
}

func (s *Store) readSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
}

// EnsureSchema creates uniqueness constraints and lookup indexes.
// Best-effort; restricted users may not be allowed to touch schema.
func (s *Store) EnsureSchema(ctx context.Context) {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT company_id_unique IF NOT EXISTS FOR (c:Company) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT fund_id_unique IF NOT EXISTS FOR (f:Fund) REQUIRE f.id IS UNIQUE`,
		`CREATE INDEX company_normalized_name_idx IF NOT EXISTS FOR (c:Company) ON (c.normalized_name)`,
		`CREATE INDEX fund_normalized_name_idx IF NOT EXISTS FOR (f:Fund) ON (f.normalized_name)`,
	}
	for _, stmt := range stmts {
		if res, err := session.Run(ctx, stmt, nil); err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

func (s *Store) UpsertEntity(ctx context.Context, e *domain.Entity) error {
	if e == nil || e.ID == "" || e.Name == "" {
		return fmt.Errorf("graph: upsert entity: %w: id and name required", domain.ErrValidation)
	}

	label := "Company"
	if e.Type == domain.TypeFund {
		label = "Fund"
	}

	props := entityProps(e)

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
MERGE (n:%s {id: $id})
SET n += $props, n.updated_at = datetime()
`, label)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": e.ID, "props": props})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graph: upsert entity %s: %w: %v", e.ID, domain.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (*domain.Entity, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n)
WHERE n.id = $id AND (n:Company OR n:Fund)
RETURN n, labels(n) AS labels
LIMIT 1
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		rec, err := singleOrNil(res.Collect(ctx))
		if err != nil || rec == nil {
			return nil, err
		}
		return entityFromRecord(rec)
	})
	if err != nil {
		return nil, fmt.Errorf("graph: get entity %s: %w: %v", id, domain.ErrUnavailable, err)
	}
	if result == nil {
		return nil, fmt.Errorf("graph: entity %s: %w", id, domain.ErrNotFound)
	}
	return result.(*domain.Entity), nil
}

func (s *Store) FindByNormalizedName(ctx context.Context, normalized string) ([]*domain.Entity, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n)
WHERE (n:Company OR n:Fund)
  AND (n.normalized_name = $norm OR $norm IN coalesce(n.aliases_norm, []))
RETURN n, labels(n) AS labels
`, map[string]any{"norm": normalized})
		if err != nil {
			return nil, err
		}
		return collectEntities(ctx, res)
	})
	if err != nil {
		return nil, fmt.Errorf("graph: find by name %q: %w: %v", normalized, domain.ErrUnavailable, err)
	}
	return result.([]*domain.Entity), nil
}

// PromoteToFund flips a Company node to Fund. Entities carry exactly one of
// the two labels; promoting an already-Fund node is a no-op.
func (s *Store) PromoteToFund(ctx context.Context, id string) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n:Company {id: $id})
REMOVE n:Company
SET n:Fund, n.updated_at = datetime()
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graph: promote %s to fund: %w: %v", id, domain.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) UpsertOwnership(ctx context.Context, edge domain.Ownership) (bool, error) {
	props := map[string]any{}
	if edge.SharePct != nil {
		props["share_percentage"] = *edge.SharePct
	}
	if edge.Amount != nil {
		props["amount"] = *edge.Amount
	}
	if edge.Provenance != "" {
		props["provenance"] = edge.Provenance
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a)
WHERE a.id = $source AND (a:Company OR a:Fund)
MATCH (b)
WHERE b.id = $target AND (b:Company OR b:Fund)
OPTIONAL MATCH (a)-[existing:OWNS]->(b)
WITH a, b, existing IS NULL AS created
MERGE (a)-[r:OWNS]->(b)
SET r += $props, r.updated_at = datetime()
RETURN created
`, map[string]any{"source": edge.SourceID, "target": edge.TargetID, "props": props})
		if err != nil {
			return nil, err
		}
		rec, err := singleOrNil(res.Collect(ctx))
		if err != nil {
			return nil, err
		}
		if rec == nil {
			// No rows: one of the endpoints does not exist.
			return nil, nil
		}
		created, _ := rec.Get("created")
		return created, nil
	})
	if err != nil {
		return false, fmt.Errorf("graph: upsert ownership %s->%s: %w: %v",
			edge.SourceID, edge.TargetID, domain.ErrUnavailable, err)
	}
	if result == nil {
		return false, fmt.Errorf("graph: ownership %s->%s: endpoint %w",
			edge.SourceID, edge.TargetID, domain.ErrNotFound)
	}
	created, _ := result.(bool)
	return created, nil
}

func (s *Store) Portfolio(ctx context.Context, ownerID string) ([]domain.Holding, error) {
	return s.holdings(ctx, ownerID, `
MATCH (o)-[r:OWNS]->(t)
WHERE o.id = $id AND (t:Company OR t:Fund)
RETURN t AS n, labels(t) AS labels, r
`)
}

func (s *Store) Owners(ctx context.Context, id string) ([]domain.Holding, error) {
	return s.holdings(ctx, id, `
MATCH (o)-[r:OWNS]->(t)
WHERE t.id = $id AND (o:Company OR o:Fund)
RETURN o AS n, labels(o) AS labels, r
`)
}

func (s *Store) holdings(ctx context.Context, id, query string) ([]domain.Holding, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		holdings := make([]domain.Holding, 0, len(records))
		for _, rec := range records {
			entity, err := entityFromRecord(rec)
			if err != nil {
				return nil, err
			}
			h := domain.Holding{Entity: entity}
			if raw, ok := rec.Get("r"); ok {
				if rel, ok := raw.(dbtype.Relationship); ok {
					h.SharePct = floatProp(rel.Props, "share_percentage")
					h.Amount = floatProp(rel.Props, "amount")
				}
			}
			holdings = append(holdings, h)
		}
		return holdings, nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: holdings of %s: %w: %v", id, domain.ErrUnavailable, err)
	}
	return result.([]domain.Holding), nil
}

// Paths expands OWNS edges in both directions up to depth hops and returns
// the raw paths. Callers deduplicate; depth is clamped to 1..5 because the
// variable-length bound is baked into the query text.
func (s *Store) Paths(ctx context.Context, rootID string, depth int) ([]domain.Path, error) {
	if depth < 1 {
		depth = 1
	}
	if depth > 5 {
		depth = 5
	}

	query := fmt.Sprintf(`
MATCH (root)
WHERE root.id = $id AND (root:Company OR root:Fund)
MATCH p = (root)-[:OWNS*1..%d]-(m)
WHERE m:Company OR m:Fund
RETURN p
LIMIT 500
`, depth)

	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": rootID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		paths := make([]domain.Path, 0, len(records))
		for _, rec := range records {
			raw, ok := rec.Get("p")
			if !ok {
				continue
			}
			p, ok := raw.(dbtype.Path)
			if !ok {
				continue
			}
			paths = append(paths, pathFromDB(p))
		}
		return paths, nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: paths from %s: %w: %v", rootID, domain.ErrUnavailable, err)
	}
	return result.([]domain.Path), nil
}

func (s *Store) EntitiesMissingEmbedding(ctx context.Context) ([]*domain.Entity, error) {
	return s.listEntities(ctx, `
MATCH (n)
WHERE (n:Company OR n:Fund) AND n.embedding IS NULL
RETURN n, labels(n) AS labels
`, nil)
}

func (s *Store) EntitiesInCluster(ctx context.Context, clusterID int64) ([]*domain.Entity, error) {
	return s.listEntities(ctx, `
MATCH (n)
WHERE (n:Company OR n:Fund) AND n.cluster_id = $cluster_id
RETURN n, labels(n) AS labels
`, map[string]any{"cluster_id": clusterID})
}

func (s *Store) listEntities(ctx context.Context, query string, params map[string]any) ([]*domain.Entity, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return collectEntities(ctx, res)
	})
	if err != nil {
		return nil, fmt.Errorf("graph: list entities: %w: %v", domain.ErrUnavailable, err)
	}
	return result.([]*domain.Entity), nil
}

func (s *Store) WriteEmbeddings(ctx context.Context, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(vectors))
	for id, vec := range vectors {
		emb := make([]float64, len(vec))
		for i, f := range vec {
			emb[i] = float64(f)
		}
		rows = append(rows, map[string]any{"id": id, "embedding": emb})
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $rows AS row
MATCH (n {id: row.id})
WHERE n:Company OR n:Fund
SET n.embedding = row.embedding
`, map[string]any{"rows": rows})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graph: write embeddings: %w: %v", domain.ErrUnavailable, err)
	}
	return nil
}

// WriteClusterIDs persists a full partition in one batch. The clustering
// pipeline calls this exactly once per successful run.
func (s *Store) WriteClusterIDs(ctx context.Context, clusters map[string]int64) error {
	if len(clusters) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(clusters))
	for id, cluster := range clusters {
		rows = append(rows, map[string]any{"id": id, "cluster_id": cluster})
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $rows AS row
MATCH (n {id: row.id})
WHERE n:Company OR n:Fund
SET n.cluster_id = row.cluster_id
`, map[string]any{"rows": rows})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graph: write cluster ids: %w: %v", domain.ErrUnavailable, err)
	}
	return nil
}

// MergeEntities relinks every OWNS edge of duplicate onto survivor and
// deletes the duplicate node. Manual reconciliation for placeholders later
// found to be the same real entity.
func (s *Store) MergeEntities(ctx context.Context, survivorID, duplicateID string) error {
	if survivorID == duplicateID {
		return fmt.Errorf("graph: merge entities: %w: survivor and duplicate are the same node", domain.ErrValidation)
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (s)
WHERE s.id = $survivor AND (s:Company OR s:Fund)
MATCH (d)
WHERE d.id = $duplicate AND (d:Company OR d:Fund)
RETURN s.id, d.id
`, map[string]any{"survivor": survivorID, "duplicate": duplicateID})
		if err != nil {
			return nil, err
		}
		rec, err := singleOrNil(res.Collect(ctx))
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("both nodes must exist: %w", domain.ErrNotFound)
		}

		// Outgoing edges of the duplicate.
		res, err = tx.Run(ctx, `
MATCH (d {id: $duplicate})-[r:OWNS]->(t)
WHERE t.id <> $survivor
MATCH (s {id: $survivor})
MERGE (s)-[nr:OWNS]->(t)
SET nr += properties(r)
`, map[string]any{"survivor": survivorID, "duplicate": duplicateID})
		if err != nil {
			return nil, err
		}
		if _, err = res.Consume(ctx); err != nil {
			return nil, err
		}

		// Incoming edges of the duplicate.
		res, err = tx.Run(ctx, `
MATCH (o)-[r:OWNS]->(d {id: $duplicate})
WHERE o.id <> $survivor
MATCH (s {id: $survivor})
MERGE (o)-[nr:OWNS]->(s)
SET nr += properties(r)
`, map[string]any{"survivor": survivorID, "duplicate": duplicateID})
		if err != nil {
			return nil, err
		}
		if _, err = res.Consume(ctx); err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx, `
MATCH (d {id: $duplicate})
WHERE d:Company OR d:Fund
DETACH DELETE d
`, map[string]any{"duplicate": duplicateID})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("graph: merge %s into %s: %w: %v", duplicateID, survivorID, domain.ErrUnavailable, err)
	}
	return nil
}

// ---- record mapping ----

func entityProps(e *domain.Entity) map[string]any {
	props := map[string]any{
		"name":            e.Name,
		"normalized_name": domain.NormalizeName(e.Name),
	}
	if e.CountryCode != "" {
		props["country_code"] = e.CountryCode
	}
	if e.Description != "" {
		props["description"] = e.Description
	}
	if e.Mission != "" {
		props["mission"] = e.Mission
	}
	if len(e.Sectors) > 0 {
		props["sectors"] = toAnySlice(e.Sectors)
	}
	if len(e.Aliases) > 0 {
		props["aliases"] = toAnySlice(e.Aliases)
		norm := make([]any, 0, len(e.Aliases))
		for _, a := range e.Aliases {
			norm = append(norm, domain.NormalizeName(a))
		}
		props["aliases_norm"] = norm
	}
	if e.Website != "" {
		props["website"] = e.Website
	}
	if e.YearFounded != "" {
		props["year_founded"] = e.YearFounded
	}
	if e.NumEmployees != nil {
		props["num_employees"] = int64(*e.NumEmployees)
	}
	if len(e.KeyPeople) > 0 {
		props["key_people"] = toAnySlice(e.KeyPeople)
	}
	// placeholder is always written: clearing it is how enrichment marks a
	// node as fully identified.
	props["placeholder"] = e.Placeholder
	if e.ClusterID != nil {
		props["cluster_id"] = *e.ClusterID
	}
	if len(e.Embedding) > 0 {
		emb := make([]any, len(e.Embedding))
		for i, f := range e.Embedding {
			emb[i] = float64(f)
		}
		props["embedding"] = emb
	}
	return props
}

// singleOrNil distinguishes an empty result from a broken one: a stream
// error propagates to the caller, zero rows yield a nil record. Collapsing
// the two would turn a transient outage into a not-found.
func singleOrNil(records []*neo4j.Record, err error) (*neo4j.Record, error) {
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func entityFromRecord(rec *neo4j.Record) (*domain.Entity, error) {
	raw, ok := rec.Get("n")
	if !ok {
		return nil, fmt.Errorf("graph: record missing node")
	}
	node, ok := raw.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("graph: record value is not a node")
	}
	labelsRaw, _ := rec.Get("labels")
	return entityFromNode(node.Props, toStringSlice(labelsRaw)), nil
}

func entityFromNode(props map[string]any, labels []string) *domain.Entity {
	e := &domain.Entity{
		ID:          strProp(props, "id"),
		Name:        strProp(props, "name"),
		CountryCode: strProp(props, "country_code"),
		Description: strProp(props, "description"),
		Mission:     strProp(props, "mission"),
		Website:     strProp(props, "website"),
		YearFounded: strProp(props, "year_founded"),
		Sectors:     strSliceProp(props, "sectors"),
		Aliases:     strSliceProp(props, "aliases"),
		KeyPeople:   strSliceProp(props, "key_people"),
	}
	e.Type = domain.TypeCompany
	for _, l := range labels {
		if l == "Fund" {
			e.Type = domain.TypeFund
		}
	}
	if v, ok := props["placeholder"].(bool); ok {
		e.Placeholder = v
	}
	if v, ok := props["num_employees"].(int64); ok {
		n := int(v)
		e.NumEmployees = &n
	}
	if v, ok := props["cluster_id"].(int64); ok {
		e.ClusterID = &v
	}
	if raw, ok := props["embedding"].([]any); ok {
		emb := make([]float32, 0, len(raw))
		for _, f := range raw {
			if fv, ok := f.(float64); ok {
				emb = append(emb, float32(fv))
			}
		}
		e.Embedding = emb
	}
	if v, ok := props["updated_at"].(time.Time); ok {
		e.UpdatedAt = v
	}
	return e
}

func pathFromDB(p dbtype.Path) domain.Path {
	byElementID := make(map[string]*domain.Entity, len(p.Nodes))
	nodes := make([]*domain.Entity, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		e := entityFromNode(n.Props, n.Labels)
		byElementID[n.ElementId] = e
		nodes = append(nodes, e)
	}
	edges := make([]domain.Ownership, 0, len(p.Relationships))
	for _, r := range p.Relationships {
		src, okS := byElementID[r.StartElementId]
		dst, okT := byElementID[r.EndElementId]
		if !okS || !okT {
			continue
		}
		edges = append(edges, domain.Ownership{
			SourceID: src.ID,
			TargetID: dst.ID,
			SharePct: floatProp(r.Props, "share_percentage"),
			Amount:   floatProp(r.Props, "amount"),
		})
	}
	return domain.Path{Nodes: nodes, Edges: edges}
}

func collectEntities(ctx context.Context, res neo4j.ResultWithContext) ([]*domain.Entity, error) {
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	entities := make([]*domain.Entity, 0, len(records))
	for _, rec := range records {
		e, err := entityFromRecord(rec)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func floatProp(props map[string]any, key string) *float64 {
	switch v := props[key].(type) {
	case float64:
		return &v
	case int64:
		f := float64(v)
		return &f
	default:
		return nil
	}
}

func strSliceProp(props map[string]any, key string) []string {
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	return toStringSlice(raw)
}

func toStringSlice(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

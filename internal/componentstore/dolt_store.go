package componentstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/snomed-ct/refinteg/internal/branchcriteria"
	"github.com/snomed-ct/refinteg/internal/types"
)

// storeTracer/storeMetrics mirror the retry-and-trace wrapping the Dolt
// storage backend applies to every SQL round trip: a span per query plus a
// retry counter for transient server-mode errors.
var storeTracer = otel.Tracer("github.com/snomed-ct/refinteg/componentstore")

var storeMetrics struct {
	retryCount metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/snomed-ct/refinteg/componentstore")
	storeMetrics.retryCount, _ = m.Int64Counter("refinteg.componentstore.retry_count",
		metric.WithDescription("Stream queries retried due to transient store errors"),
		metric.WithUnit("{retry}"),
	)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, transient := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"database is read only",
		"lost connection",
		"gone away",
		"i/o timeout",
		"unknown database",
	} {
		if strings.Contains(errStr, transient) {
			return true
		}
	}
	return false
}

// DoltStore implements GraphStore against a shared Dolt/MySQL-protocol
// connection. It never retries non-transient errors and never retries at
// all in embedded mode, where the driver already handles transient faults.
type DoltStore struct {
	db         *sql.DB
	serverMode bool
}

var _ GraphStore = (*DoltStore)(nil)

// NewDoltStore wraps db. serverMode enables retry for transient
// server-connection errors; embedded-mode connections skip it.
func NewDoltStore(db *sql.DB, serverMode bool) *DoltStore {
	return &DoltStore{db: db, serverMode: serverMode}
}

func (s *DoltStore) withRetry(ctx context.Context, op func() error) error {
	if !s.serverMode {
		return op()
	}
	attempts := 0
	bo := backoff.NewExponentialBackOff()
	err := backoff.Retry(func() error {
		attempts++
		err := op()
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if attempts > 1 {
		storeMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	return err
}

func spanSQL(q string) string {
	if len(q) > 300 {
		return q[:300] + "…"
	}
	return q
}

func (s *DoltStore) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, span := storeTracer.Start(ctx, "componentstore.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "dolt"),
			attribute.String("db.statement", spanSQL(query)),
		),
	)
	var rows *sql.Rows
	err := s.withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	return rows, err
}

// column returns the column reference for a bare column name under crit:
// the plain column for an AS-OF snapshot, or a from/to-coalescing
// expression for a dolt_diff() scan, so a deletion diff row (whose to_*
// columns are NULL) still yields the concept/relationship identity that
// mattered before removal.
func column(crit *branchcriteria.Criteria, name string) string {
	if crit.IsDiffMode() {
		return fmt.Sprintf("COALESCE(to_%s, from_%s) AS %s", name, name, name)
	}
	return name
}

func buildQuery(crit *branchcriteria.Criteria, table string, columns []string, filter branchcriteria.Predicate) (string, []any) {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = column(crit, c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), crit.FromClause(table))

	where := branchcriteria.And(
		branchcriteria.Predicate{SQL: crit.DiffTypeFilter()},
		filter,
	)
	if where.SQL != "" {
		query += " WHERE " + where.SQL
	}
	return query, where.Args
}

// StreamConcepts implements GraphStore.
func (s *DoltStore) StreamConcepts(ctx context.Context, crit *branchcriteria.Criteria, filter branchcriteria.Predicate) (ConceptCursor, error) {
	query, args := buildQuery(crit, "concept", []string{"concept_id", "active", "module_id", "effective_time", "released"}, filter)
	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, types.NewUpstreamStoreError("stream concepts", err)
	}
	return &conceptCursor{rows: rows}, nil
}

// StreamRelationships implements GraphStore.
func (s *DoltStore) StreamRelationships(ctx context.Context, crit *branchcriteria.Criteria, filter branchcriteria.Predicate) (RelationshipCursor, error) {
	query, args := buildQuery(crit, "relationship",
		[]string{"relationship_id", "source_id", "type_id", "destination_id", "concrete", "characteristic_type", "active"}, filter)
	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, types.NewUpstreamStoreError("stream relationships", err)
	}
	return &relationshipCursor{rows: rows}, nil
}

// StreamReferenceSetMembers implements GraphStore.
func (s *DoltStore) StreamReferenceSetMembers(ctx context.Context, crit *branchcriteria.Criteria, filter branchcriteria.Predicate) (ReferenceSetMemberCursor, error) {
	query, args := buildQuery(crit, "reference_set_member",
		[]string{"member_id", "referenced_component_id", "refset_id", "active", "owl_expression"}, filter)
	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, types.NewUpstreamStoreError("stream reference set members", err)
	}
	return &memberCursor{rows: rows}, nil
}

type conceptCursor struct {
	rows *sql.Rows
	cur  types.Concept
	err  error
}

func (c *conceptCursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var moduleID uint64
	c.err = c.rows.Scan(&c.cur.ConceptID, &c.cur.Active, &moduleID, &c.cur.EffectiveTime, &c.cur.Released)
	c.cur.ModuleID = types.ConceptID(moduleID)
	return c.err == nil
}

func (c *conceptCursor) Concept() types.Concept { return c.cur }
func (c *conceptCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}
func (c *conceptCursor) Close() error { return c.rows.Close() }

type relationshipCursor struct {
	rows *sql.Rows
	cur  types.Relationship
	err  error
}

func (c *relationshipCursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var characteristic string
	c.err = c.rows.Scan(&c.cur.RelationshipID, &c.cur.SourceID, &c.cur.TypeID, &c.cur.DestinationID,
		&c.cur.Concrete, &characteristic, &c.cur.Active)
	c.cur.CharacteristicType = types.CharacteristicType(characteristic)
	return c.err == nil
}

func (c *relationshipCursor) Relationship() types.Relationship { return c.cur }
func (c *relationshipCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}
func (c *relationshipCursor) Close() error { return c.rows.Close() }

type memberCursor struct {
	rows *sql.Rows
	cur  types.ReferenceSetMember
	err  error
}

func (c *memberCursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	c.err = c.rows.Scan(&c.cur.MemberID, &c.cur.ReferencedComponentID, &c.cur.RefsetID, &c.cur.Active, &c.cur.OWLExpression)
	return c.err == nil
}

func (c *memberCursor) Member() types.ReferenceSetMember { return c.cur }
func (c *memberCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}
func (c *memberCursor) Close() error { return c.rows.Close() }

// Package dolt manages the lifecycle of the Dolt database that backs the
// graph store: opening it (embedded or server mode), initializing its
// schema, and exposing the version-control operations (commit, branch,
// checkout, merge, push/pull) the branch/commit model is built on.
//
// Dolt capabilities this package relies on:
//   - Embedded access via github.com/dolthub/driver (no server required, CGO only)
//   - Native version control (commit, push, pull, branch, merge)
//   - Time-travel queries via AS OF and dolt_diff()
//   - Cell-level merge for conflict resolution
//   - Server mode for multi-reader/multi-writer scenarios (pure Go, no CGO)
//
// Connection modes:
//   - Embedded: no server required, database/sql interface via dolthub/driver (CGO)
//   - Server: connect to a running dolt sql-server for multi-writer scenarios (pure Go)
package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	// Import MySQL driver for server mode connections
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/snomed-ct/refinteg/internal/storage/doltutil"
)

// DoltStore owns a Dolt database connection and its version-control
// operations. internal/componentstore.NewDoltStore wraps UnderlyingDB() to
// satisfy the GraphStore query surface; this package's own queries are
// limited to branch metadata and branch/commit resolution (branchstore.go)
// and the description join (descriptions.go).
type DoltStore struct {
	db         *sql.DB
	dbPath     string       // Path to Dolt database directory
	closed     atomic.Bool  // Tracks whether Close() has been called
	connStr    string       // Connection string for reconnection
	mu         sync.RWMutex // Protects concurrent access
	readOnly   bool         // True if opened in read-only mode
	serverMode bool         // True if connected to dolt sql-server (vs embedded)
	accessLock *AccessLock  // Advisory flock preventing concurrent dolt LOCK contention

	// embeddedConnector is non-nil only in embedded mode. It must be closed to release
	// filesystem locks held by the embedded engine. Typed as io.Closer to avoid
	// importing the CGO-dependent dolthub/driver in this file.
	embeddedConnector io.Closer

	// Watchdog for server mode auto-recovery
	watchdogCancel context.CancelFunc
	watchdogDone   chan struct{}

	// Version control config
	committerName  string
	committerEmail string
	remote         string // Default remote for push/pull
	branch         string // Current branch
}

// Config holds Dolt database configuration
type Config struct {
	Path           string        // Path to Dolt database directory
	CommitterName  string        // Git-style committer name
	CommitterEmail string        // Git-style committer email
	Remote         string        // Default remote name (e.g., "origin")
	Database       string        // Database name within Dolt (default: "refinteg")
	ReadOnly       bool          // Open in read-only mode (skip schema init)
	OpenTimeout    time.Duration // Advisory lock timeout (0 = no advisory lock)

	// Server mode options
	ServerMode     bool   // Connect to dolt sql-server instead of embedded
	ServerHost     string // Server host (default: 127.0.0.1)
	ServerPort     int    // Server port (default: 3307)
	ServerUser     string // MySQL user (default: root)
	ServerPassword string // MySQL password (default: empty, can be set via REFINTEG_DOLT_PASSWORD)
	ServerTLS      bool   // Enable TLS for server connections

	// Watchdog options
	DisableWatchdog bool // Disable server health monitoring (default: enabled in server mode)
}

// DefaultSQLPort is the default dolt sql-server listen port.
const DefaultSQLPort = 3307

// Server mode retry configuration.
// Server mode uses go-sql-driver/mysql which doesn't have built-in retry like the
// embedded driver. We add retry for transient connection errors (stale pool connections,
// brief network issues, server restarts).
const serverRetryMaxElapsed = 30 * time.Second

func newServerRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = serverRetryMaxElapsed
	return bo
}

// isRetryableError returns true if the error is a transient connection error
// that should be retried in server mode.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "driver: bad connection") {
		return true
	}
	if strings.Contains(errStr, "invalid connection") {
		return true
	}
	if strings.Contains(errStr, "broken pipe") {
		return true
	}
	if strings.Contains(errStr, "connection reset") {
		return true
	}
	// Server restart: "connection refused" is transient — the server may
	// come back within the backoff window. Retrying here prevents a brief
	// server outage from cascading into permanent failures.
	if strings.Contains(errStr, "connection refused") {
		return true
	}
	if strings.Contains(errStr, "database is read only") {
		return true
	}
	if strings.Contains(errStr, "lost connection") {
		return true
	}
	if strings.Contains(errStr, "gone away") {
		return true
	}
	if strings.Contains(errStr, "i/o timeout") {
		return true
	}
	if strings.Contains(errStr, "unknown database") {
		return true
	}
	return false
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "lock wait timeout") || strings.Contains(errStr, "database is locked")
}

func wrapLockError(err error) error {
	if err == nil || !isLockError(err) {
		return err
	}
	return fmt.Errorf("dolt database is locked by another process: %w", err)
}

// withRetry retries op for transient server-mode errors. Embedded mode
// connections never retry here; the embedded driver already handles
// transient faults internally.
func (s *DoltStore) withRetry(ctx context.Context, op func() error) error {
	if !s.serverMode {
		return wrapLockError(op())
	}

	bo := backoff.WithContext(newServerRetryBackoff(), ctx)
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if isRetryableError(err) {
			if attempt > 1 {
				doltMetrics.retryCount.Add(ctx, 1)
			}
			return err
		}
		return backoff.Permanent(err)
	}, bo)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return wrapLockError(permanent.Unwrap())
		}
	}
	return wrapLockError(err)
}

var doltTracer = otel.Tracer("github.com/snomed-ct/refinteg/storage/dolt")

var doltMetrics struct {
	retryCount metric.Int64Counter
	lockWaitMs metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/snomed-ct/refinteg/storage/dolt")
	doltMetrics.retryCount, _ = m.Int64Counter("refinteg.dolt.retry_count",
		metric.WithDescription("Server-mode operations retried due to transient errors"),
		metric.WithUnit("{retry}"),
	)
	doltMetrics.lockWaitMs, _ = m.Float64Histogram("refinteg.dolt.lock_wait_ms",
		metric.WithDescription("Time spent waiting on the embedded-mode advisory access lock"),
		metric.WithUnit("ms"),
	)
}

func (s *DoltStore) doltSpanAttrs() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool("dolt.server_mode", s.serverMode),
	}
}

func spanSQL(q string) string {
	return truncateForError(strings.TrimSpace(q))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *DoltStore) execContext(ctx context.Context, query string, args ...any) (result sql.Result, retErr error) {
	ctx, span := doltTracer.Start(ctx, "dolt.exec", trace.WithAttributes(append(s.doltSpanAttrs(), attribute.String("db.statement", spanSQL(query)))...))
	defer func() { endSpan(span, retErr) }()
	retErr = s.withRetry(ctx, func() error {
		var err error
		result, err = s.db.ExecContext(ctx, query, args...)
		return err
	})
	return result, retErr
}

func (s *DoltStore) queryContext(ctx context.Context, query string, args ...any) (rows *sql.Rows, retErr error) {
	ctx, span := doltTracer.Start(ctx, "dolt.query", trace.WithAttributes(append(s.doltSpanAttrs(), attribute.String("db.statement", spanSQL(query)))...))
	defer func() { endSpan(span, retErr) }()
	retErr = s.withRetry(ctx, func() error {
		var err error
		rows, err = s.db.QueryContext(ctx, query, args...)
		return err
	})
	return rows, retErr
}

func (s *DoltStore) queryRowContext(ctx context.Context, scan func(*sql.Row) error, query string, args ...any) (retErr error) {
	ctx, span := doltTracer.Start(ctx, "dolt.query_row", trace.WithAttributes(append(s.doltSpanAttrs(), attribute.String("db.statement", spanSQL(query)))...))
	defer func() { endSpan(span, retErr) }()
	retErr = s.withRetry(ctx, func() error {
		return scan(s.db.QueryRowContext(ctx, query, args...))
	})
	return retErr
}

func applyConfigDefaults(cfg *Config) {
	if cfg.Database == "" {
		cfg.Database = "refinteg"
	}
	if cfg.CommitterName == "" {
		cfg.CommitterName = os.Getenv("GIT_AUTHOR_NAME")
		if cfg.CommitterName == "" {
			cfg.CommitterName = "refinteg"
		}
	}
	if cfg.CommitterEmail == "" {
		cfg.CommitterEmail = os.Getenv("GIT_AUTHOR_EMAIL")
		if cfg.CommitterEmail == "" {
			cfg.CommitterEmail = "refinteg@local"
		}
	}
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}

	if cfg.ServerMode {
		if cfg.ServerHost == "" {
			cfg.ServerHost = "127.0.0.1"
		}
		if cfg.ServerPort == 0 {
			cfg.ServerPort = DefaultSQLPort
		}
		if cfg.ServerUser == "" {
			cfg.ServerUser = "root"
		}
		if cfg.ServerPassword == "" {
			cfg.ServerPassword = os.Getenv("REFINTEG_DOLT_PASSWORD")
		}
	}
}

// New creates a new Dolt storage backend.
// In server mode, connects to a running dolt sql-server via MySQL protocol (pure Go, no CGO).
// In embedded mode, opens Dolt in-process (requires CGO).
func New(ctx context.Context, cfg *Config) (*DoltStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	applyConfigDefaults(cfg)

	if cfg.ServerMode {
		return newServerMode(ctx, cfg)
	}

	// newEmbeddedMode is defined per build tag:
	// - store_embedded.go (cgo): full embedded Dolt initialization
	// - store_nocgo.go (!cgo): returns errNoCGO
	return newEmbeddedMode(ctx, cfg)
}

// newServerMode creates a DoltStore connected to a running dolt sql-server.
// This path is pure Go and does not require CGO.
func newServerMode(ctx context.Context, cfg *Config) (*DoltStore, error) {
	// Fail-fast TCP check before MySQL protocol initialization.
	addr := net.JoinHostPort(cfg.ServerHost, fmt.Sprintf("%d", cfg.ServerPort))
	conn, dialErr := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if dialErr != nil {
		return nil, fmt.Errorf("Dolt server unreachable at %s: %w\n\nThe Dolt server may not be running. Start it with: dolt sql-server --data-dir <path>", addr, dialErr)
	}
	_ = conn.Close()

	db, connStr, err := openServerConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping Dolt database: %w", err)
	}

	store := &DoltStore{
		db:             db,
		connStr:        connStr,
		committerName:  cfg.CommitterName,
		committerEmail: cfg.CommitterEmail,
		remote:         cfg.Remote,
		branch:         "main",
		readOnly:       cfg.ReadOnly,
		serverMode:     true,
	}

	if !cfg.ReadOnly {
		if err := store.initSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	store.startWatchdog(cfg)

	return store, nil
}

// buildServerDSN constructs a MySQL DSN for connecting to a Dolt server.
// If database is empty, connects without selecting a database (for init operations).
func buildServerDSN(cfg *Config, database string) string {
	var userPart string
	if cfg.ServerPassword != "" {
		userPart = fmt.Sprintf("%s:%s", cfg.ServerUser, cfg.ServerPassword)
	} else {
		userPart = cfg.ServerUser
	}

	var dbPart string
	if database != "" {
		dbPart = "/" + database
	} else {
		dbPart = "/"
	}

	params := "parseTime=true"
	if cfg.ServerTLS {
		params += "&tls=true"
	}

	return fmt.Sprintf("%s@tcp(%s:%d)%s?%s",
		userPart, cfg.ServerHost, cfg.ServerPort, dbPart, params)
}

// openServerConnection opens a connection to a dolt sql-server via MySQL protocol
func openServerConnection(ctx context.Context, cfg *Config) (*sql.DB, string, error) {
	connStr := buildServerDSN(cfg, cfg.Database)

	db, err := sql.Open("mysql", connStr)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open Dolt server connection: %w", err)
	}

	// Server mode supports multi-writer, configure reasonable pool size
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Ensure database exists (may need to create it). First connect without
	// a database selected so CREATE DATABASE can run.
	initConnStr := buildServerDSN(cfg, "")
	initDB, err := sql.Open("mysql", initConnStr)
	if err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("failed to open init connection: %w", err)
	}
	defer func() { _ = initDB.Close() }()

	if err := validateDatabaseName(cfg.Database); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("invalid database name %q: %w", cfg.Database, err)
	}
	_, err = initDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database)) //nolint:gosec // G201: cfg.Database validated by validateDatabaseName above
	if err != nil {
		errLower := strings.ToLower(err.Error())
		if !strings.Contains(errLower, "database exists") && !strings.Contains(errLower, "1007") {
			_ = db.Close()
			if strings.Contains(errLower, "connection refused") {
				return nil, "", fmt.Errorf("failed to connect to Dolt server at %s:%d: %w", cfg.ServerHost, cfg.ServerPort, err)
			}
			return nil, "", fmt.Errorf("failed to create database: %w", err)
		}
	}

	// Wait for the Dolt server's in-memory catalog to register the new database.
	// After CREATE DATABASE, there is a race where the server has created the
	// database on disk but hasn't updated its catalog yet. Pinging db (which
	// has the database in the DSN) will fail with "Unknown database" until the
	// catalog catches up. Retry with exponential backoff.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = 10 * time.Second
	if err := backoff.Retry(func() error {
		pingErr := db.PingContext(ctx)
		if pingErr != nil && isRetryableError(pingErr) {
			return pingErr
		}
		if pingErr != nil {
			return backoff.Permanent(pingErr)
		}
		return nil
	}, backoff.WithContext(bo, ctx)); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("database %q not available after CREATE DATABASE: %w", cfg.Database, err)
	}

	return db, connStr, nil
}

// validDatabaseNameRe restricts CREATE DATABASE identifiers to a safe
// character set so they can be interpolated into backtick-quoted DDL.
var validDatabaseNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validateDatabaseName(name string) error {
	if name == "" {
		return fmt.Errorf("database name is empty")
	}
	if !validDatabaseNameRe.MatchString(name) {
		return fmt.Errorf("must match [a-zA-Z_][a-zA-Z0-9_]*")
	}
	return nil
}

// schema creates the referential-integrity core's tables: the graph
// components the checker scans (concept, relationship, reference_set_member),
// branch_metadata (the key/value store backing BranchService), and
// description (backing DescriptionService's display-field join).
const schema = `
CREATE TABLE IF NOT EXISTS concept (
	concept_id      BIGINT UNSIGNED NOT NULL PRIMARY KEY,
	active          BOOLEAN NOT NULL,
	module_id       BIGINT UNSIGNED NOT NULL,
	effective_time  VARCHAR(8) NOT NULL,
	released        BOOLEAN NOT NULL DEFAULT TRUE,
	INDEX idx_concept_active (active)
);

CREATE TABLE IF NOT EXISTS relationship (
	relationship_id     BIGINT UNSIGNED NOT NULL PRIMARY KEY,
	source_id           BIGINT UNSIGNED NOT NULL,
	type_id             BIGINT UNSIGNED NOT NULL,
	destination_id      BIGINT UNSIGNED NOT NULL,
	concrete            BOOLEAN NOT NULL DEFAULT FALSE,
	characteristic_type VARCHAR(16) NOT NULL,
	active              BOOLEAN NOT NULL,
	INDEX idx_relationship_source (source_id),
	INDEX idx_relationship_type (type_id),
	INDEX idx_relationship_destination (destination_id),
	INDEX idx_relationship_active_char (active, characteristic_type)
);

CREATE TABLE IF NOT EXISTS reference_set_member (
	member_id                 VARCHAR(36) NOT NULL PRIMARY KEY,
	referenced_component_id   BIGINT UNSIGNED NOT NULL,
	refset_id                 BIGINT UNSIGNED NOT NULL,
	active                    BOOLEAN NOT NULL,
	owl_expression            TEXT,
	INDEX idx_member_refset_active (refset_id, active),
	INDEX idx_member_referenced_component (referenced_component_id)
);

CREATE TABLE IF NOT EXISTS branch_metadata (
	branch_path   VARCHAR(512) NOT NULL,
	namespace     VARCHAR(64)  NOT NULL,
	` + "`key`" + `           VARCHAR(128) NOT NULL,
	value         TEXT NOT NULL,
	PRIMARY KEY (branch_path, namespace, ` + "`key`" + `)
);

CREATE TABLE IF NOT EXISTS description (
	description_id  VARCHAR(36) NOT NULL PRIMARY KEY,
	concept_id      BIGINT UNSIGNED NOT NULL,
	active          BOOLEAN NOT NULL,
	type_id         BIGINT UNSIGNED NOT NULL,
	term            TEXT NOT NULL,
	INDEX idx_description_concept_active (concept_id, active)
);
`

// initSchemaOnDB creates all tables if they don't exist. DDL is idempotent,
// so this runs unconditionally on every open rather than gating on a stored
// schema-version row.
func initSchemaOnDB(ctx context.Context, db *sql.DB) error {
	for _, stmt := range splitStatements(schema) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || isOnlyComments(stmt) {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w\nStatement: %s", err, truncateForError(stmt))
		}
	}
	return nil
}

func (s *DoltStore) initSchema(ctx context.Context) error {
	return initSchemaOnDB(ctx, s.db)
}

// splitStatements splits a SQL script into individual statements
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := byte(0)

	for i := 0; i < len(script); i++ {
		c := script[i]

		if inString {
			current.WriteByte(c)
			if c == stringChar && (i == 0 || script[i-1] != '\\') {
				inString = false
			}
			continue
		}

		switch c {
		case '\'', '"':
			inString = true
			stringChar = c
			current.WriteByte(c)
		case ';':
			statements = append(statements, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}

func truncateForError(s string) string {
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}

// isOnlyComments returns true if the statement contains only SQL comments
func isOnlyComments(stmt string) bool {
	lines := strings.Split(stmt, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return false
	}
	return true
}

// Close closes the database connection
func (s *DoltStore) Close() error {
	s.closed.Store(true)
	// Stop watchdog before taking the lock (watchdog may hold RLock)
	s.stopWatchdog()
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.db != nil {
		if cerr := doltutil.CloseWithTimeout("db", s.db.Close); cerr != nil {
			if !errors.Is(cerr, context.Canceled) {
				err = errors.Join(err, cerr)
			}
		}
	}
	// For embedded mode, ensure the underlying engine is closed to release filesystem locks.
	if s.embeddedConnector != nil {
		cerr := doltutil.CloseWithTimeout("embeddedConnector", s.embeddedConnector.Close)
		if cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = errors.Join(err, cerr)
		}
		s.embeddedConnector = nil
	}
	s.db = nil
	if s.accessLock != nil {
		s.accessLock.Release()
		s.accessLock = nil
	}
	return err
}

// Path returns the database directory path
func (s *DoltStore) Path() string {
	return s.dbPath
}

// UnderlyingDB returns the underlying *sql.DB connection. componentstore's
// Dolt-backed GraphStore/SemanticIndexStore wrap this.
func (s *DoltStore) UnderlyingDB() *sql.DB {
	return s.db
}

// =============================================================================
// Version Control Operations
// =============================================================================

func (s *DoltStore) commitAuthorString() string {
	return fmt.Sprintf("%s <%s>", s.committerName, s.committerEmail)
}

// Commit creates a Dolt commit with the given message.
func (s *DoltStore) Commit(ctx context.Context, message string) (retErr error) {
	ctx, span := doltTracer.Start(ctx, "dolt.commit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(s.doltSpanAttrs()...),
	)
	defer func() { endSpan(span, retErr) }()
	// NOTE: in SQL procedure mode, Dolt defaults author to the authenticated
	// SQL user. Always pass an explicit author for deterministic history.
	if _, err := s.db.ExecContext(ctx, "CALL DOLT_COMMIT('-Am', ?, '--author', ?)", message, s.commitAuthorString()); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Push pushes commits to the remote.
func (s *DoltStore) Push(ctx context.Context) (retErr error) {
	ctx, span := doltTracer.Start(ctx, "dolt.push",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.doltSpanAttrs(),
			attribute.String("dolt.remote", s.remote),
			attribute.String("dolt.branch", s.branch),
		)...),
	)
	defer func() { endSpan(span, retErr) }()
	_, err := s.db.ExecContext(ctx, "CALL DOLT_PUSH(?, ?)", s.remote, s.branch)
	if err != nil {
		return fmt.Errorf("failed to push to %s/%s: %w", s.remote, s.branch, err)
	}
	return nil
}

// ForcePush force-pushes commits to the remote, overwriting remote changes.
func (s *DoltStore) ForcePush(ctx context.Context) (retErr error) {
	ctx, span := doltTracer.Start(ctx, "dolt.force_push",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.doltSpanAttrs(),
			attribute.String("dolt.remote", s.remote),
			attribute.String("dolt.branch", s.branch),
		)...),
	)
	defer func() { endSpan(span, retErr) }()
	_, err := s.db.ExecContext(ctx, "CALL DOLT_PUSH('--force', ?, ?)", s.remote, s.branch)
	if err != nil {
		return fmt.Errorf("failed to force push to %s/%s: %w", s.remote, s.branch, err)
	}
	return nil
}

// Pull pulls changes from the remote.
func (s *DoltStore) Pull(ctx context.Context) (retErr error) {
	ctx, span := doltTracer.Start(ctx, "dolt.pull",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.doltSpanAttrs(),
			attribute.String("dolt.remote", s.remote),
			attribute.String("dolt.branch", s.branch),
		)...),
	)
	defer func() { endSpan(span, retErr) }()
	_, err := s.db.ExecContext(ctx, "CALL DOLT_PULL(?, ?)", s.remote, s.branch)
	if err != nil {
		return fmt.Errorf("failed to pull from %s/%s: %w", s.remote, s.branch, err)
	}
	return nil
}

// Branch creates a new branch.
func (s *DoltStore) Branch(ctx context.Context, name string) (retErr error) {
	ctx, span := doltTracer.Start(ctx, "dolt.branch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.doltSpanAttrs(), attribute.String("dolt.branch", name))...),
	)
	defer func() { endSpan(span, retErr) }()
	if _, err := s.db.ExecContext(ctx, "CALL DOLT_BRANCH(?)", name); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", name, err)
	}
	return nil
}

// Checkout switches to the specified branch.
func (s *DoltStore) Checkout(ctx context.Context, branch string) (retErr error) {
	ctx, span := doltTracer.Start(ctx, "dolt.checkout",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.doltSpanAttrs(), attribute.String("dolt.branch", branch))...),
	)
	defer func() { endSpan(span, retErr) }()
	if _, err := s.db.ExecContext(ctx, "CALL DOLT_CHECKOUT(?)", branch); err != nil {
		return fmt.Errorf("failed to checkout branch %s: %w", branch, err)
	}
	s.branch = branch
	return nil
}

// Merge merges the specified branch into the current branch. Returns any
// merge conflicts if present.
func (s *DoltStore) Merge(ctx context.Context, branch string) ([]Conflict, error) {
	ctx, span := doltTracer.Start(ctx, "dolt.merge",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.doltSpanAttrs(), attribute.String("dolt.merge_branch", branch))...),
	)
	// DOLT_MERGE may create a merge commit; pass explicit author for determinism.
	_, err := s.db.ExecContext(ctx, "CALL DOLT_MERGE('--author', ?, ?)", s.commitAuthorString(), branch)
	if err != nil {
		conflicts, conflictErr := s.GetConflicts(ctx)
		if conflictErr == nil && len(conflicts) > 0 {
			span.SetAttributes(attribute.Int("dolt.conflicts", len(conflicts)))
			span.End()
			return conflicts, nil
		}
		endSpan(span, fmt.Errorf("failed to merge branch %s: %w", branch, err))
		return nil, fmt.Errorf("failed to merge branch %s: %w", branch, err)
	}
	span.End()
	return nil, nil
}

// MergeBase returns the merge-base commit hash between the current branch
// and otherBranch — the §3 "last common ancestor" used to bound the
// unpromoted-changes diff window.
func (s *DoltStore) MergeBase(ctx context.Context, otherBranch string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT DOLT_MERGE_BASE(?, ?)", s.branch, otherBranch).Scan(&hash)
	if err != nil {
		return "", fmt.Errorf("failed to get merge base of %s and %s: %w", s.branch, otherBranch, err)
	}
	return hash, nil
}

// CurrentBranch returns the current branch name.
func (s *DoltStore) CurrentBranch(ctx context.Context) (string, error) {
	var branch string
	err := s.db.QueryRowContext(ctx, "SELECT active_branch()").Scan(&branch)
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return branch, nil
}

// HeadCommit returns the commit hash of the current branch's HEAD.
func (s *DoltStore) HeadCommit(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT DOLT_HASHOF('HEAD')").Scan(&hash)
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD commit: %w", err)
	}
	return hash, nil
}

// DeleteBranch deletes a branch.
func (s *DoltStore) DeleteBranch(ctx context.Context, branch string) error {
	_, err := s.db.ExecContext(ctx, "CALL DOLT_BRANCH('-D', ?)", branch)
	if err != nil {
		return fmt.Errorf("failed to delete branch %s: %w", branch, err)
	}
	return nil
}

// Log returns recent commit history.
func (s *DoltStore) Log(ctx context.Context, limit int) ([]CommitInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT commit_hash, committer, email, date, message
		FROM dolt_log
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get log: %w", err)
	}
	defer rows.Close()

	var commits []CommitInfo
	for rows.Next() {
		var c CommitInfo
		if err := rows.Scan(&c.Hash, &c.Author, &c.Email, &c.Date, &c.Message); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

// CommitInfo represents a Dolt commit
type CommitInfo struct {
	Hash    string
	Author  string
	Email   string
	Date    time.Time
	Message string
}

// Conflict represents a merge conflict in a single table.
type Conflict struct {
	Table string
}

// HasRemote checks if a Dolt remote with the given name exists.
func (s *DoltStore) HasRemote(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&count)
	}, "SELECT COUNT(*) FROM dolt_remotes WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("failed to check remote %s: %w", name, err)
	}
	return count > 0, nil
}

// AddRemote adds a Dolt remote.
func (s *DoltStore) AddRemote(ctx context.Context, name, url string) error {
	_, err := s.db.ExecContext(ctx, "CALL DOLT_REMOTE('add', ?, ?)", name, url)
	if err != nil {
		return fmt.Errorf("failed to add remote %s: %w", name, err)
	}
	return nil
}

// Status returns the current Dolt status (staged/unstaged changes).
func (s *DoltStore) Status(ctx context.Context) (*DoltStatus, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT table_name, staged, status FROM dolt_status")
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	defer rows.Close()

	status := &DoltStatus{
		Staged:   make([]StatusEntry, 0),
		Unstaged: make([]StatusEntry, 0),
	}

	for rows.Next() {
		var tableName string
		var staged bool
		var statusStr string
		if err := rows.Scan(&tableName, &staged, &statusStr); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		entry := StatusEntry{Table: tableName, Status: statusStr}
		if staged {
			status.Staged = append(status.Staged, entry)
		} else {
			status.Unstaged = append(status.Unstaged, entry)
		}
	}
	return status, rows.Err()
}

// DoltStatus represents the current repository status
type DoltStatus struct {
	Staged   []StatusEntry
	Unstaged []StatusEntry
}

// StatusEntry represents a changed table
type StatusEntry struct {
	Table  string
	Status string // "new", "modified", "deleted"
}

// GetConflicts returns any merge conflicts in the current state, one entry
// per conflicted table.
func (s *DoltStore) GetConflicts(ctx context.Context) ([]Conflict, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT `table` FROM dolt_conflicts")
	if err != nil {
		return nil, fmt.Errorf("failed to get conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []Conflict
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		conflicts = append(conflicts, Conflict{Table: table})
	}
	return conflicts, rows.Err()
}

// Package factory assembles the Dolt-backed storage surface
// internal/integrity.Checker depends on: the GraphStore, the Bleve-backed
// semantic index, the BranchCriteria provider, and the BranchService, all
// sharing one Dolt connection. It is this core's storage backend selector —
// cmd/refintegctl calls New once at startup instead of wiring each
// collaborator by hand.
package factory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/snomed-ct/refinteg/internal/branchcriteria"
	"github.com/snomed-ct/refinteg/internal/componentstore"
	"github.com/snomed-ct/refinteg/internal/storage/dolt"
)

// Options configures how the Dolt backend is opened. It mirrors dolt.Config
// plus the semantic-index path, since Dolt is this core's only storage
// backend — unlike the issue tracker this package was adapted from, there is
// no second backend to register.
type Options struct {
	Path           string
	Database       string
	CommitterName  string
	CommitterEmail string
	Remote         string
	ReadOnly       bool
	OpenTimeout    time.Duration

	// SemanticIndexPath is the Bleve index directory backing QueryConcept
	// prefiltering (§4.4 step 3a). Required even in server mode: the index
	// is a local, asynchronously-maintained projection, never part of the
	// Dolt database itself.
	SemanticIndexPath string

	// Server mode options (federation): connect to a running dolt
	// sql-server instead of opening the database in-process.
	ServerMode     bool
	ServerHost     string
	ServerPort     int
	ServerUser     string
	ServerPassword string
	ServerTLS      bool
}

func (o Options) doltConfig(serverMode bool) *dolt.Config {
	return &dolt.Config{
		Path:           o.Path,
		CommitterName:  o.CommitterName,
		CommitterEmail: o.CommitterEmail,
		Remote:         o.Remote,
		Database:       o.Database,
		ReadOnly:       o.ReadOnly,
		OpenTimeout:    o.OpenTimeout,
		ServerMode:     serverMode,
		ServerHost:     o.ServerHost,
		ServerPort:     o.ServerPort,
		ServerUser:     o.ServerUser,
		ServerPassword: o.ServerPassword,
		ServerTLS:      o.ServerTLS,
	}
}

// Backend bundles the open Dolt connection with the collaborators built on
// top of it. Dolt itself satisfies integrity.BranchService, so Branches is
// just the same connection wearing a narrower interface.
type Backend struct {
	Dolt         *dolt.DoltStore
	Semantic     *componentstore.SemanticIndex
	Store        componentstore.Store
	Criteria     *branchcriteria.Provider
	Branches     *dolt.DoltStore
	Descriptions *dolt.DoltStore
}

// New opens the backend described by opts. In server mode, a connection
// failure falls back to embedded mode rather than failing the whole
// invocation, so a sql-server outage degrades to local checking instead of
// refusing to run at all.
func New(ctx context.Context, opts Options) (*Backend, error) {
	serverMode := opts.ServerMode
	store, err := dolt.New(ctx, opts.doltConfig(opts.ServerMode))
	if err != nil {
		if !opts.ServerMode || !isServerConnectionError(err) {
			return nil, fmt.Errorf("open dolt backend: %w", err)
		}
		fmt.Fprintf(os.Stderr, "warning: dolt server at %s:%d unreachable, falling back to embedded mode\n", opts.ServerHost, opts.ServerPort)
		store, err = dolt.New(ctx, opts.doltConfig(false))
		if err != nil {
			return nil, fmt.Errorf("open dolt backend (embedded fallback): %w", err)
		}
		serverMode = false
	}

	semantic, err := componentstore.OpenSemanticIndex(opts.SemanticIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open semantic index: %w", err)
	}

	db := store.UnderlyingDB()
	return &Backend{
		Dolt:     store,
		Semantic: semantic,
		Store: &componentstore.CompositeStore{
			Graph:    componentstore.NewDoltStore(db, serverMode),
			Semantic: semantic,
		},
		Criteria:     branchcriteria.NewProvider(db),
		Branches:     store,
		Descriptions: store,
	}, nil
}

// Close releases the Dolt connection and the semantic index handle.
func (b *Backend) Close() error {
	semErr := b.Semantic.Close()
	doltErr := b.Dolt.Close()
	if doltErr != nil {
		return doltErr
	}
	return semErr
}

// isServerConnectionError reports whether err indicates the Dolt server is
// unreachable (connection refused, timeout, DNS failure, etc.) rather than a
// genuine application error worth surfacing immediately.
func isServerConnectionError(err error) bool {
	if err == nil {
		return false
	}
	errLower := strings.ToLower(err.Error())
	return strings.Contains(errLower, "connection refused") ||
		strings.Contains(errLower, "unreachable") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "i/o timeout") ||
		strings.Contains(errLower, "network is unreachable")
}

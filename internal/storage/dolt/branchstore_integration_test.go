package dolt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcdolt "github.com/testcontainers/testcontainers-go/modules/dolt"

	"github.com/snomed-ct/refinteg/internal/types"
)

// TestFindBranchOrThrow_And_UpdateMetadata_AgainstRealDolt exercises the
// BranchService implementation against a real dolt sql-server, the way the
// teacher's internal/storage/dolt integration tests drive a live engine
// rather than stubbing database/sql. Skipped in short mode since it pulls
// and starts a container.
func TestFindBranchOrThrow_And_UpdateMetadata_AgainstRealDolt(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping dolt container integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcdolt.Run(ctx, "dolthub/dolt-sql-server:latest")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	store, err := New(ctx, &Config{
		Path:       t.TempDir(),
		Database:   "refinteg",
		ServerMode: true,
		ServerHost: host,
		ServerPort: port.Int(),
		ServerUser: "root",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Commit(ctx, "initial schema"))
	require.NoError(t, store.Branch(ctx, "MAIN/task1"))

	branch, err := store.FindBranchOrThrow(ctx, "MAIN/task1")
	require.NoError(t, err)
	require.Equal(t, "MAIN/task1", branch.Path)
	require.Empty(t, branch.Metadata["internal"]["integrityIssue"])

	branch.SetIntegrityIssueFlag(true)
	require.NoError(t, store.UpdateMetadata(ctx, branch.Path, branch.Metadata))

	reloaded, err := store.FindBranchOrThrow(ctx, "MAIN/task1")
	require.NoError(t, err)
	require.True(t, reloaded.IntegrityIssueFlag())

	reloaded.SetIntegrityIssueFlag(false)
	require.NoError(t, store.UpdateMetadata(ctx, reloaded.Path, reloaded.Metadata))

	cleared, err := store.FindBranchOrThrow(ctx, "MAIN/task1")
	require.NoError(t, err)
	require.False(t, cleared.IntegrityIssueFlag())
}

// TestJoinActiveDescriptions_AgainstRealDolt exercises the batched
// description join (BatchIN, §4.9) against a live dolt sql-server.
func TestJoinActiveDescriptions_AgainstRealDolt(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping dolt container integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcdolt.Run(ctx, "dolthub/dolt-sql-server:latest")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	store, err := New(ctx, &Config{
		Path:       t.TempDir(),
		Database:   "refinteg",
		ServerMode: true,
		ServerHost: host,
		ServerPort: port.Int(),
		ServerUser: "root",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.UnderlyingDB().ExecContext(ctx,
		"INSERT INTO description (description_id, concept_id, active, type_id, term) VALUES (?, ?, ?, ?, ?)",
		"d1", 10, true, fsnTypeID, "Finding (finding)")
	require.NoError(t, err)
	_, err = store.UnderlyingDB().ExecContext(ctx,
		"INSERT INTO description (description_id, concept_id, active, type_id, term) VALUES (?, ?, ?, ?, ?)",
		"d2", 10, true, synonymTypeID, "Finding")
	require.NoError(t, err)
	require.NoError(t, store.Commit(ctx, "seed descriptions"))

	minis := map[string]*types.ConceptMini{
		"m1": {ConceptID: 10},
	}
	require.NoError(t, store.JoinActiveDescriptions(ctx, "main", minis))
	require.Equal(t, "Finding (finding)", minis["m1"].FSN)
	require.Equal(t, "Finding", minis["m1"].PreferredTerm)
}

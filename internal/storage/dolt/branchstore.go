package dolt

import (
	"context"
	"database/sql"
	"time"

	"github.com/snomed-ct/refinteg/internal/storage"
	"github.com/snomed-ct/refinteg/internal/types"
)

// FindBranchOrThrow resolves path into a types.Branch: its head timestamp
// (the commit date of DOLT_HASHOF(path)), its base timestamp (the commit
// date of the merge-base with its parent, or zero for a root branch), and
// its persisted metadata from branch_metadata. It satisfies
// integrity.BranchService.
func (s *DoltStore) FindBranchOrThrow(ctx context.Context, path string) (*types.Branch, error) {
	headHash, err := s.branchRefHash(ctx, path)
	if err != nil {
		return nil, types.NewUpstreamStoreError("branch "+path+" not found", err)
	}
	headTS, err := s.commitTimestamp(ctx, headHash)
	if err != nil {
		return nil, types.NewUpstreamStoreError("resolve head timestamp for "+path, err)
	}

	branch := &types.Branch{Path: path, HeadTimestamp: headTS}

	if parent := types.ParentPath(path); parent != "" {
		baseHash, err := s.mergeBaseHash(ctx, parent, path)
		if err != nil {
			return nil, types.NewUpstreamStoreError("resolve merge-base of "+path+" with parent "+parent, err)
		}
		baseTS, err := s.commitTimestamp(ctx, baseHash)
		if err != nil {
			return nil, types.NewUpstreamStoreError("resolve base timestamp for "+path, err)
		}
		branch.BaseTimestamp = baseTS
	}

	metadata, err := s.loadBranchMetadata(ctx, path)
	if err != nil {
		return nil, types.NewUpstreamStoreError("load branch metadata for "+path, err)
	}
	branch.Metadata = metadata

	return branch, nil
}

// UpdateMetadata replaces path's entire branch_metadata row set with
// metadata, so a namespace/key the caller has dropped (the commit hook's
// integrityIssue removal, §4.7) is actually deleted rather than left stale.
func (s *DoltStore) UpdateMetadata(ctx context.Context, path string, metadata map[string]map[string]string) error {
	if _, err := s.execContext(ctx, "DELETE FROM branch_metadata WHERE branch_path = ?", path); err != nil {
		return types.NewUpstreamStoreError("clear branch metadata for "+path, err)
	}
	for namespace, kv := range metadata {
		for key, value := range kv {
			if err := storage.ValidateMetadataKey(key); err != nil {
				return types.NewMisuseError(err.Error())
			}
			normalized, err := storage.NormalizeMetadataValue(value)
			if err != nil {
				return types.NewMisuseError(err.Error())
			}
			if _, err := s.execContext(ctx,
				"INSERT INTO branch_metadata (branch_path, namespace, `key`, value) VALUES (?, ?, ?, ?)",
				path, namespace, key, normalized,
			); err != nil {
				return types.NewUpstreamStoreError("persist branch metadata for "+path, err)
			}
		}
	}
	return nil
}

// branchRefHash resolves a branch name (or any Dolt ref) to its commit hash.
func (s *DoltStore) branchRefHash(ctx context.Context, ref string) (string, error) {
	var hash string
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&hash)
	}, "SELECT DOLT_HASHOF(?)", ref)
	return hash, err
}

// mergeBaseHash resolves the merge-base commit hash of two refs, independent
// of whichever branch is currently checked out.
func (s *DoltStore) mergeBaseHash(ctx context.Context, leftRef, rightRef string) (string, error) {
	var hash string
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&hash)
	}, "SELECT DOLT_MERGE_BASE(?, ?)", leftRef, rightRef)
	return hash, err
}

// commitTimestamp looks up a commit's date in dolt_log and returns it as a
// Unix millisecond timestamp, the unit types.Branch's fields are compared in
// by internal/integrity/taskdiff.go.
func (s *DoltStore) commitTimestamp(ctx context.Context, hash string) (int64, error) {
	var t time.Time
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&t)
	}, "SELECT `date` FROM dolt_log WHERE commit_hash = ? LIMIT 1", hash)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// loadBranchMetadata reads every branch_metadata row for path into the
// namespace/key/value shape types.Branch.Metadata expects.
func (s *DoltStore) loadBranchMetadata(ctx context.Context, path string) (map[string]map[string]string, error) {
	rows, err := s.queryContext(ctx, "SELECT namespace, `key`, value FROM branch_metadata WHERE branch_path = ?", path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := map[string]map[string]string{}
	for rows.Next() {
		var namespace, key, value string
		if err := rows.Scan(&namespace, &key, &value); err != nil {
			return nil, err
		}
		if metadata[namespace] == nil {
			metadata[namespace] = map[string]string{}
		}
		metadata[namespace][key] = value
	}
	return metadata, rows.Err()
}

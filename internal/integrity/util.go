package integrity

import (
	"strings"

	"github.com/snomed-ct/refinteg/internal/types"
)

// axiomBatchSize bounds how many identifiers go into a single IN (...)
// clause when re-querying by a candidate set built client-side; keeps
// generated SQL and its argument list bounded regardless of how large a
// branch's change set or semantic-index prefilter hit count grows.
const axiomBatchSize = 1000

func batch[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	var batches [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches
}

func inClause(n int) string {
	if n == 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func conceptIDArgs(ids []types.ConceptID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	return args
}

func uint64Args(ids []uint64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	return args
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func wrapStoreErr(err error, action string) error {
	if err == nil {
		return nil
	}
	return types.NewUpstreamStoreError(action, err)
}

package integrity

import (
	"context"

	"github.com/snomed-ct/refinteg/internal/branchcriteria"
	"github.com/snomed-ct/refinteg/internal/componentstore"
	"github.com/snomed-ct/refinteg/internal/idset"
	"github.com/snomed-ct/refinteg/internal/types"
)

// SemanticProbeResult is the purely diagnostic output of
// FindExtraConceptsInSemanticIndex (§4.8): semantic-index rows referencing
// concepts that are not in the current active universe, split by form.
type SemanticProbeResult struct {
	Stated   []types.ConceptID
	Inferred []types.ConceptID
}

// FindExtraConceptsInSemanticIndex implements SemanticProbe (§4.8). Unlike
// the checker algorithms it never mutates anything; it only reports where
// the semantic index's prefilter disagrees with the active universe, which
// is expected to happen transiently since the index is eventually
// consistent (§9).
func (c *Checker) FindExtraConceptsInSemanticIndex(ctx context.Context, branchPath string) (*SemanticProbeResult, error) {
	branch, err := c.Branches.FindBranchOrThrow(ctx, branchPath)
	if err != nil {
		return nil, err
	}

	crit, err := c.Criteria.Visible(ctx, branch)
	if err != nil {
		return nil, err
	}
	active, err := activeConceptSet(ctx, c.Store, crit)
	if err != nil {
		return nil, err
	}

	stated, err := c.orphanQueryConcepts(ctx, crit, active, true)
	if err != nil {
		return nil, err
	}
	inferred, err := c.orphanQueryConcepts(ctx, crit, active, false)
	if err != nil {
		return nil, err
	}

	return &SemanticProbeResult{Stated: stated, Inferred: inferred}, nil
}

func (c *Checker) orphanQueryConcepts(ctx context.Context, crit *branchcriteria.Criteria, active *idset.Set, stated bool) ([]types.ConceptID, error) {
	cursor, err := c.Store.StreamQueryConcepts(ctx, crit, componentstore.QueryConceptFilter{Stated: stated})
	if err != nil {
		return nil, wrapStoreErr(err, "stream query concepts for semantic probe")
	}
	defer cursor.Close()

	var orphans []types.ConceptID
	for cursor.Next(ctx) {
		qc := cursor.QueryConcept()
		if !active.Contains(qc.ConceptIDL) {
			orphans = append(orphans, qc.ConceptIDL)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, wrapStoreErr(err, "stream query concepts for semantic probe")
	}
	return orphans, nil
}

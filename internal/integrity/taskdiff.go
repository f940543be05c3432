package integrity

import (
	"context"
	"fmt"

	"github.com/snomed-ct/refinteg/internal/branchcriteria"
	"github.com/snomed-ct/refinteg/internal/idset"
	"github.com/snomed-ct/refinteg/internal/types"
)

// FindTaskDifferentialIntegrity is the task+extension differential check
// (§4.6): a report restricted to baseline issues still present after the
// task branch's fix attempt.
func (c *Checker) FindTaskDifferentialIntegrity(ctx context.Context, taskBranch *types.Branch, extensionMainPath string) (*types.IntegrityReport, error) {
	extensionMain, err := c.verifyTaskTopology(ctx, taskBranch, extensionMainPath)
	if err != nil {
		return nil, err
	}

	baseline, err := c.FindChangedComponentsWithBadIntegrity(ctx, extensionMain)
	if err != nil {
		return nil, err
	}
	if baseline.IsEmpty() {
		return c.FindChangedComponentsWithBadIntegrity(ctx, taskBranch)
	}

	report, err := c.reResolveOnTaskBranch(ctx, taskBranch, baseline)
	if err != nil {
		return nil, err
	}

	if report.IsEmpty() {
		if err := c.clearFlagWithLiteralFalse(ctx, taskBranch); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// verifyTaskTopology implements §4.6 step 1: the task's parent or
// grandparent must equal extensionMainPath, and both the task and any
// intermediate project branch must have been rebased past the extension's
// current head.
func (c *Checker) verifyTaskTopology(ctx context.Context, taskBranch *types.Branch, extensionMainPath string) (*types.Branch, error) {
	parent := types.ParentPath(taskBranch.Path)
	grandparent := types.GrandparentPath(taskBranch.Path)
	if parent != extensionMainPath && grandparent != extensionMainPath {
		return nil, types.NewMisuseError(fmt.Sprintf(
			"task branch %q is not a child or grandchild of extension %q", taskBranch.Path, extensionMainPath))
	}

	extensionMain, err := c.Branches.FindBranchOrThrow(ctx, extensionMainPath)
	if err != nil {
		return nil, err
	}

	if taskBranch.BaseTimestamp < extensionMain.HeadTimestamp {
		return nil, types.NewMisuseError(fmt.Sprintf(
			"task branch %q has not been rebased past extension %q head", taskBranch.Path, extensionMainPath))
	}
	if parent != extensionMainPath {
		intermediate, err := c.Branches.FindBranchOrThrow(ctx, parent)
		if err != nil {
			return nil, err
		}
		if intermediate.BaseTimestamp < extensionMain.HeadTimestamp {
			return nil, types.NewMisuseError(fmt.Sprintf(
				"intermediate project branch %q has not been rebased past extension %q head", parent, extensionMainPath))
		}
	}
	return extensionMain, nil
}

// reResolveOnTaskBranch implements §4.6 steps 2-4: re-fetches the baseline's
// flagged relationships and axioms as they currently stand on the task
// branch and re-emits only those whose dependency is still inactive there.
func (c *Checker) reResolveOnTaskBranch(ctx context.Context, taskBranch *types.Branch, baseline *types.IntegrityReport) (*types.IntegrityReport, error) {
	crit, err := c.Criteria.Visible(ctx, taskBranch)
	if err != nil {
		return nil, err
	}
	active, err := activeConceptSet(ctx, c.Store, crit)
	if err != nil {
		return nil, err
	}

	report := &types.IntegrityReport{}

	relIDs := collectRelationshipIDs(baseline)
	if len(relIDs) > 0 {
		if err := c.reResolveRelationships(ctx, crit, active, relIDs, report); err != nil {
			return nil, err
		}
	}

	if len(baseline.AxiomsWithMissingOrInactiveReferencedConcept) > 0 {
		memberIDs := make([]string, 0, len(baseline.AxiomsWithMissingOrInactiveReferencedConcept))
		for id := range baseline.AxiomsWithMissingOrInactiveReferencedConcept {
			memberIDs = append(memberIDs, id)
		}
		if err := c.reResolveAxioms(ctx, crit, active, memberIDs, report); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// collectRelationshipIDs dedupes relationship IDs across all three baseline
// maps. The source/destination ambiguity in the original third loop is
// resolved here: the type map is walked the same way as source and
// destination, not re-keyed into itself.
func collectRelationshipIDs(baseline *types.IntegrityReport) []uint64 {
	seen := map[uint64]struct{}{}
	for relID := range baseline.RelationshipsWithMissingOrInactiveSource {
		seen[relID] = struct{}{}
	}
	for relID := range baseline.RelationshipsWithMissingOrInactiveType {
		seen[relID] = struct{}{}
	}
	for relID := range baseline.RelationshipsWithMissingOrInactiveDestination {
		seen[relID] = struct{}{}
	}
	ids := make([]uint64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids
}

func (c *Checker) reResolveRelationships(ctx context.Context, crit *branchcriteria.Criteria, active *idset.Set, relIDs []uint64, report *types.IntegrityReport) error {
	for _, ids := range batch(relIDs, axiomBatchSize) {
		filter := branchcriteria.Predicate{
			SQL:  fmt.Sprintf("relationship_id IN (%s)", inClause(len(ids))),
			Args: uint64Args(ids),
		}
		cursor, err := c.Store.StreamRelationships(ctx, crit, filter)
		if err != nil {
			return wrapStoreErr(err, "re-resolve task branch relationships")
		}
		for cursor.Next(ctx) {
			rel := cursor.Relationship()
			if !active.Contains(rel.SourceID) {
				report.AddSource(rel.RelationshipID, rel.SourceID)
			}
			if !active.Contains(rel.TypeID) {
				report.AddType(rel.RelationshipID, rel.TypeID)
			}
			if !rel.Concrete && !active.Contains(rel.DestinationID) {
				report.AddDestination(rel.RelationshipID, rel.DestinationID)
			}
		}
		err = wrapStoreErr(cursor.Err(), "re-resolve task branch relationships")
		cursor.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) reResolveAxioms(ctx context.Context, crit *branchcriteria.Criteria, active *idset.Set, memberIDs []string, report *types.IntegrityReport) error {
	for _, ids := range batch(memberIDs, axiomBatchSize) {
		filter := branchcriteria.Predicate{
			SQL:  fmt.Sprintf("member_id IN (%s)", inClause(len(ids))),
			Args: stringArgs(ids),
		}
		cursor, err := c.Store.StreamReferenceSetMembers(ctx, crit, filter)
		if err != nil {
			return wrapStoreErr(err, "re-resolve task branch axioms")
		}
		for cursor.Next(ctx) {
			member := cursor.Member()
			refs, err := c.ParseAxiom(member.OWLExpression)
			if err != nil {
				cursor.Close()
				return types.NewAxiomParseError(member.MemberID, err)
			}
			offending := refs.Difference(active)
			if !offending.IsEmpty() {
				report.AddAxiom(member.MemberID, &types.ConceptMini{
					ConceptID:           member.ReferencedComponentID,
					OffendingConceptIDs: offending.Slice(),
				})
			}
		}
		err = wrapStoreErr(cursor.Err(), "re-resolve task branch axioms")
		cursor.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// clearFlagWithLiteralFalse implements §4.6 step 5: writes the literal
// string "false", distinct from the commit hook's key removal (§4.7).
func (c *Checker) clearFlagWithLiteralFalse(ctx context.Context, taskBranch *types.Branch) error {
	if taskBranch.Metadata == nil {
		taskBranch.Metadata = map[string]map[string]string{}
	}
	if taskBranch.Metadata["internal"] == nil {
		taskBranch.Metadata["internal"] = map[string]string{}
	}
	taskBranch.Metadata["internal"]["integrityIssue"] = "false"
	if err := c.Branches.UpdateMetadata(ctx, taskBranch.Path, taskBranch.Metadata); err != nil {
		return wrapStoreErr(err, "persist task branch metadata")
	}
	return nil
}

package integrity

import (
	"context"
	"fmt"

	"github.com/snomed-ct/refinteg/internal/branchcriteria"
	"github.com/snomed-ct/refinteg/internal/idset"
	"github.com/snomed-ct/refinteg/internal/types"
)

// FindChangedComponentsWithBadIntegrity is the changed-only check (§4.5). It
// refuses the root branch and unions two independently-computed passes,
// evaluated against the branch's own head.
func (c *Checker) FindChangedComponentsWithBadIntegrity(ctx context.Context, branch *types.Branch) (*types.IntegrityReport, error) {
	if branch.IsRoot() {
		return nil, types.NewMisuseError("changed-only check invoked on root branch " + branch.Path)
	}

	visible, err := c.Criteria.Visible(ctx, branch)
	if err != nil {
		return nil, err
	}
	return c.changedOnlyWithVisibleCriteria(ctx, branch, visible)
}

// FindChangedComponentsWithCriteria runs the same changed-only check (§4.5)
// against a caller-supplied visibility criteria instead of the branch's own
// head. The commit hook (§4.7) uses this to evaluate against
// visibleIncludingOpenCommit rather than re-resolving the branch head.
func (c *Checker) FindChangedComponentsWithCriteria(ctx context.Context, branch *types.Branch, visible *branchcriteria.Criteria) (*types.IntegrityReport, error) {
	if branch.IsRoot() {
		return nil, types.NewMisuseError("changed-only check invoked on root branch " + branch.Path)
	}
	return c.changedOnlyWithVisibleCriteria(ctx, branch, visible)
}

func (c *Checker) changedOnlyWithVisibleCriteria(ctx context.Context, branch *types.Branch, visible *branchcriteria.Criteria) (*types.IntegrityReport, error) {
	active, err := activeConceptSet(ctx, c.Store, visible)
	if err != nil {
		return nil, err
	}

	reportA, err := c.changedOnlyPassA(ctx, branch, visible, active)
	if err != nil {
		return nil, err
	}
	reportB, err := c.changedOnlyPassB(ctx, branch, active)
	if err != nil {
		return nil, err
	}

	reportA.Merge(reportB)
	return reportA, nil
}

// changedOnlyPassA implements §4.5(a): the branch invalidated references to
// concepts it changed or deleted. D = changed-or-deleted minus currently
// active; relationships/axioms are then searched for references into D.
func (c *Checker) changedOnlyPassA(ctx context.Context, branch *types.Branch, visible *branchcriteria.Criteria, active *idset.Set) (*types.IntegrityReport, error) {
	diffCrit, err := c.Criteria.UnpromotedChangesAndDeletions(ctx, branch)
	if err != nil {
		return nil, err
	}
	changedOrDeleted, err := c.conceptIDSet(ctx, diffCrit)
	if err != nil {
		return nil, err
	}
	d := changedOrDeleted.Difference(active)

	report := &types.IntegrityReport{}
	if d.IsEmpty() {
		return report, nil
	}

	if err := c.streamRelationshipsReferencing(ctx, visible, d, report); err != nil {
		return nil, err
	}

	isCandidate := func(qc types.QueryConcept) bool { return d.ContainsAny(qc.AttributeValues()) }
	offending := func(refs *idset.Set) *idset.Set { return refs.Intersect(d) }
	if err := c.streamAxiomsWithPrefilter(ctx, visible, true, isCandidate, offending, report); err != nil {
		return nil, err
	}
	return report, nil
}

// conceptIDSet streams the bare concept-ID column under crit, without an
// activeness filter — used for the unpromoted-changes-and-deletions scan
// where a row's own active flag is irrelevant; only its identity matters.
func (c *Checker) conceptIDSet(ctx context.Context, crit *branchcriteria.Criteria) (*idset.Set, error) {
	cursor, err := c.Store.StreamConcepts(ctx, crit, branchcriteria.Predicate{})
	if err != nil {
		return nil, wrapStoreErr(err, "stream changed concepts")
	}
	defer cursor.Close()

	ids := idset.New()
	for cursor.Next(ctx) {
		ids.Add(cursor.Concept().ConceptID)
	}
	if err := cursor.Err(); err != nil {
		return nil, wrapStoreErr(err, "stream changed concepts")
	}
	return ids, nil
}

func (c *Checker) streamRelationshipsReferencing(ctx context.Context, crit *branchcriteria.Criteria, ids *idset.Set, report *types.IntegrityReport) error {
	for _, batchIDs := range batch(ids.Slice(), axiomBatchSize) {
		inSQL := inClause(len(batchIDs))
		sql := fmt.Sprintf("active = ? AND characteristic_type <> ? AND (source_id IN (%s) OR type_id IN (%s) OR destination_id IN (%s))", inSQL, inSQL, inSQL)
		args := []any{true, string(types.CharacteristicInferred)}
		idArgs := conceptIDArgs(batchIDs)
		args = append(args, idArgs...)
		args = append(args, idArgs...)
		args = append(args, idArgs...)

		cursor, err := c.Store.StreamRelationships(ctx, crit, branchcriteria.Predicate{SQL: sql, Args: args})
		if err != nil {
			return wrapStoreErr(err, "stream relationships referencing changed concepts")
		}
		for cursor.Next(ctx) {
			rel := cursor.Relationship()
			// Defensive re-check: see streamBadRelationships for why a
			// ComponentStore cannot be trusted to apply its own filter.
			if !rel.Active || rel.CharacteristicType == types.CharacteristicInferred {
				continue
			}
			if ids.Contains(rel.SourceID) {
				report.AddSource(rel.RelationshipID, rel.SourceID)
			}
			if ids.Contains(rel.TypeID) {
				report.AddType(rel.RelationshipID, rel.TypeID)
			}
			if !rel.Concrete && ids.Contains(rel.DestinationID) {
				report.AddDestination(rel.RelationshipID, rel.DestinationID)
			}
		}
		err = wrapStoreErr(cursor.Err(), "stream relationships referencing changed concepts")
		cursor.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// changedOnlyPassB implements §4.5(b): the branch's own unpromoted
// relationship/axiom changes are checked against the visible view's
// activeness, independent of what else changed on the branch.
func (c *Checker) changedOnlyPassB(ctx context.Context, branch *types.Branch, active *idset.Set) (*types.IntegrityReport, error) {
	unpromoted, err := c.Criteria.UnpromotedChanges(ctx, branch)
	if err != nil {
		return nil, err
	}

	bySource := map[types.ConceptID][]uint64{}
	byType := map[types.ConceptID][]uint64{}
	byDestination := map[types.ConceptID][]uint64{}
	byAxiomConcept := map[types.ConceptID][]string{}
	axiomSubject := map[string]types.ConceptID{}

	relCursor, err := c.Store.StreamRelationships(ctx, unpromoted, branchcriteria.Predicate{
		SQL: "active = ? AND characteristic_type <> ?", Args: []any{true, string(types.CharacteristicInferred)},
	})
	if err != nil {
		return nil, wrapStoreErr(err, "stream unpromoted relationships")
	}
	for relCursor.Next(ctx) {
		rel := relCursor.Relationship()
		// Defensive re-check: see streamBadRelationships for why a
		// ComponentStore cannot be trusted to apply its own filter.
		if !rel.Active || rel.CharacteristicType == types.CharacteristicInferred {
			continue
		}
		bySource[rel.SourceID] = append(bySource[rel.SourceID], rel.RelationshipID)
		byType[rel.TypeID] = append(byType[rel.TypeID], rel.RelationshipID)
		if !rel.Concrete {
			byDestination[rel.DestinationID] = append(byDestination[rel.DestinationID], rel.RelationshipID)
		}
	}
	relErr := wrapStoreErr(relCursor.Err(), "stream unpromoted relationships")
	relCursor.Close()
	if relErr != nil {
		return nil, relErr
	}

	memberCursor, err := c.Store.StreamReferenceSetMembers(ctx, unpromoted, branchcriteria.Predicate{
		SQL: "active = ? AND refset_id = ?", Args: []any{true, int64(c.OWLAxiomRefsetID)},
	})
	if err != nil {
		return nil, wrapStoreErr(err, "stream unpromoted axiom members")
	}
	for memberCursor.Next(ctx) {
		member := memberCursor.Member()
		// Defensive re-check: see streamBadRelationships for why a
		// ComponentStore cannot be trusted to apply its own filter.
		if !member.Active || member.RefsetID != c.OWLAxiomRefsetID {
			continue
		}
		refs, err := c.ParseAxiom(member.OWLExpression)
		if err != nil {
			memberCursor.Close()
			return nil, types.NewAxiomParseError(member.MemberID, err)
		}
		axiomSubject[member.MemberID] = member.ReferencedComponentID
		for _, ref := range refs.Slice() {
			byAxiomConcept[ref] = append(byAxiomConcept[ref], member.MemberID)
		}
	}
	memberErr := wrapStoreErr(memberCursor.Err(), "stream unpromoted axiom members")
	memberCursor.Close()
	if memberErr != nil {
		return nil, memberErr
	}

	r := idset.New()
	for id := range bySource {
		r.Add(id)
	}
	for id := range byType {
		r.Add(id)
	}
	for id := range byDestination {
		r.Add(id)
	}
	for id := range byAxiomConcept {
		r.Add(id)
	}

	// R \ A': A' is R's active subset, already known via the shared active
	// set computed once per invocation, so R \ A' is R.Difference(active).
	inactive := r.Difference(active)

	report := &types.IntegrityReport{}
	for _, id := range inactive.Slice() {
		for _, relID := range bySource[id] {
			report.AddSource(relID, id)
		}
		for _, relID := range byType[id] {
			report.AddType(relID, id)
		}
		for _, relID := range byDestination[id] {
			report.AddDestination(relID, id)
		}
		for _, memberID := range byAxiomConcept[id] {
			mini := report.AxiomsWithMissingOrInactiveReferencedConcept[memberID]
			if mini == nil {
				mini = &types.ConceptMini{ConceptID: axiomSubject[memberID]}
			}
			mini.OffendingConceptIDs = append(mini.OffendingConceptIDs, id)
			report.AddAxiom(memberID, mini)
		}
	}
	return report, nil
}

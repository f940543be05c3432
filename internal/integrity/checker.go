package integrity

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/snomed-ct/refinteg/internal/axiom"
	"github.com/snomed-ct/refinteg/internal/branchcriteria"
	"github.com/snomed-ct/refinteg/internal/componentstore"
	"github.com/snomed-ct/refinteg/internal/idset"
	"github.com/snomed-ct/refinteg/internal/types"
)

// Checker implements IntegrityChecker (§4.4-§4.6): the full-branch check,
// the changed-only check, and the task+extension differential check, all
// built from the same ComponentStore/BranchCriteria collaborators.
type Checker struct {
	Store            componentstore.Store
	Criteria         CriteriaProvider
	Branches         BranchService
	OWLAxiomRefsetID types.ConceptID
	ParseAxiom       AxiomParserFunc
}

// NewChecker builds a Checker with the production axiom parser wired in.
func NewChecker(store componentstore.Store, criteria CriteriaProvider, branches BranchService, owlAxiomRefsetID types.ConceptID) *Checker {
	return &Checker{
		Store:            store,
		Criteria:         criteria,
		Branches:         branches,
		OWLAxiomRefsetID: owlAxiomRefsetID,
		ParseAxiom:       axiom.ExtractReferencedConcepts,
	}
}

// activeConceptSet streams the authoritative active-concept universe A
// under crit (§4.4 step 1).
func activeConceptSet(ctx context.Context, store componentstore.GraphStore, crit *branchcriteria.Criteria) (*idset.Set, error) {
	cursor, err := store.StreamConcepts(ctx, crit, branchcriteria.Predicate{SQL: "active = ?", Args: []any{true}})
	if err != nil {
		return nil, wrapStoreErr(err, "stream active concepts")
	}
	defer cursor.Close()

	active := idset.New()
	for cursor.Next(ctx) {
		concept := cursor.Concept()
		if concept.Active {
			active.Add(concept.ConceptID)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, wrapStoreErr(err, "stream active concepts")
	}
	return active, nil
}

// FindAllComponentsWithBadIntegrity is the full check (§4.4).
func (c *Checker) FindAllComponentsWithBadIntegrity(ctx context.Context, branch *types.Branch, stated bool) (*types.IntegrityReport, error) {
	crit, err := c.Criteria.Visible(ctx, branch)
	if err != nil {
		return nil, err
	}
	active, err := activeConceptSet(ctx, c.Store, crit)
	if err != nil {
		return nil, err
	}

	// Relationships and axioms live in disjoint IntegrityReport maps, so the
	// two scans can run concurrently against the store without a lock.
	report := &types.IntegrityReport{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.streamBadRelationships(gctx, crit, active, stated, report) })
	g.Go(func() error { return c.streamBadAxioms(gctx, crit, active, stated, report) })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// streamBadRelationships implements §4.4 step 2: active relationships
// (filtered by characteristic type) whose source, type, or (when not
// concrete) destination is not in A.
func (c *Checker) streamBadRelationships(ctx context.Context, crit *branchcriteria.Criteria, active *idset.Set, stated bool, report *types.IntegrityReport) error {
	var charFilter branchcriteria.Predicate
	if stated {
		charFilter = branchcriteria.Predicate{SQL: "characteristic_type <> ?", Args: []any{string(types.CharacteristicInferred)}}
	} else {
		charFilter = branchcriteria.Predicate{SQL: "characteristic_type = ?", Args: []any{string(types.CharacteristicInferred)}}
	}
	filter := branchcriteria.And(branchcriteria.Predicate{SQL: "active = ?", Args: []any{true}}, charFilter)

	cursor, err := c.Store.StreamRelationships(ctx, crit, filter)
	if err != nil {
		return wrapStoreErr(err, "stream relationships")
	}
	defer cursor.Close()

	for cursor.Next(ctx) {
		rel := cursor.Relationship()
		// Defensive re-check: a ComponentStore is not required to apply the
		// pushed-down filter itself (see componentstore.MemoryStore), so
		// activeness and characteristic type are re-verified client-side,
		// mirroring activeConceptSet's own re-check of concept.Active.
		if !rel.Active {
			continue
		}
		isInferred := rel.CharacteristicType == types.CharacteristicInferred
		if stated == isInferred {
			continue
		}
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
	return wrapStoreErr(cursor.Err(), "stream relationships")
}

// streamBadAxioms implements §4.4 step 3, the two-stage prefilter: stage
// (a) narrows to candidate subject concepts via the semantic index, stage
// (b) fetches and parses only those concepts' axioms.
func (c *Checker) streamBadAxioms(ctx context.Context, crit *branchcriteria.Criteria, active *idset.Set, stated bool, report *types.IntegrityReport) error {
	isCandidate := func(qc types.QueryConcept) bool { return active.AnyNotIn(qc.AttributeValues()) }
	offending := func(refs *idset.Set) *idset.Set { return refs.Difference(active) }
	return c.streamAxiomsWithPrefilter(ctx, crit, stated, isCandidate, offending, report)
}

// streamAxiomsWithPrefilter is shared by the full check and the
// changed-only check's pass (a): both narrow candidates via a semantic-index
// scan, then fetch, parse, and filter only those candidates' axioms.
func (c *Checker) streamAxiomsWithPrefilter(
	ctx context.Context,
	crit *branchcriteria.Criteria,
	stated bool,
	isCandidate func(types.QueryConcept) bool,
	offendingRefs func(refs *idset.Set) *idset.Set,
	report *types.IntegrityReport,
) error {
	cursor, err := c.Store.StreamQueryConcepts(ctx, crit, componentstore.QueryConceptFilter{Stated: stated})
	if err != nil {
		return wrapStoreErr(err, "stream query concepts")
	}
	candidates := idset.New()
	for cursor.Next(ctx) {
		qc := cursor.QueryConcept()
		if isCandidate(qc) {
			candidates.Add(qc.ConceptIDL)
		}
	}
	streamErr := wrapStoreErr(cursor.Err(), "stream query concepts")
	cursor.Close()
	if streamErr != nil {
		return streamErr
	}
	if candidates.IsEmpty() {
		return nil
	}

	for _, ids := range batch(candidates.Slice(), axiomBatchSize) {
		if err := c.streamAxiomBatch(ctx, crit, ids, offendingRefs, report); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) streamAxiomBatch(ctx context.Context, crit *branchcriteria.Criteria, candidateIDs []types.ConceptID, offendingRefs func(*idset.Set) *idset.Set, report *types.IntegrityReport) error {
	args := []any{true, int64(c.OWLAxiomRefsetID)}
	args = append(args, conceptIDArgs(candidateIDs)...)
	filter := branchcriteria.Predicate{
		SQL:  fmt.Sprintf("active = ? AND refset_id = ? AND referenced_component_id IN (%s)", inClause(len(candidateIDs))),
		Args: args,
	}

	cursor, err := c.Store.StreamReferenceSetMembers(ctx, crit, filter)
	if err != nil {
		return wrapStoreErr(err, "stream axiom members")
	}
	defer cursor.Close()

	for cursor.Next(ctx) {
		member := cursor.Member()
		// Defensive re-check: see streamBadRelationships for why a
		// ComponentStore cannot be trusted to apply its own filter.
		if !member.Active || member.RefsetID != c.OWLAxiomRefsetID {
			continue
		}
		refs, err := c.ParseAxiom(member.OWLExpression)
		if err != nil {
			return types.NewAxiomParseError(member.MemberID, err)
		}
		offending := offendingRefs(refs)
		if !offending.IsEmpty() {
			report.AddAxiom(member.MemberID, &types.ConceptMini{
				ConceptID:           member.ReferencedComponentID,
				OffendingConceptIDs: offending.Slice(),
			})
		}
	}
	return wrapStoreErr(cursor.Err(), "stream axiom members")
}

// Package integrity implements IntegrityChecker's three check algorithms
// (§4.4-§4.6), the CommitHook's core logic (§4.7, wired by
// internal/commithook), SemanticProbe (§4.8), and the description-join step
// (§4.9).
package integrity

import (
	"context"

	"github.com/snomed-ct/refinteg/internal/branchcriteria"
	"github.com/snomed-ct/refinteg/internal/idset"
	"github.com/snomed-ct/refinteg/internal/types"
)

// CriteriaProvider is the BranchCriteria surface (§4.1, §6) the checker
// depends on. *branchcriteria.Provider satisfies this directly.
type CriteriaProvider interface {
	Visible(ctx context.Context, branch *types.Branch) (*branchcriteria.Criteria, error)
	UnpromotedChanges(ctx context.Context, branch *types.Branch) (*branchcriteria.Criteria, error)
	UnpromotedChangesAndDeletions(ctx context.Context, branch *types.Branch) (*branchcriteria.Criteria, error)
	VisibleIncludingOpenCommit(branch *types.Branch, openCommitRef string) *branchcriteria.Criteria
}

// BranchService is the external collaborator surface of §6: branch lookup
// and the single metadata-persistence path used to clear or set
// internal.integrityIssue.
type BranchService interface {
	FindBranchOrThrow(ctx context.Context, path string) (*types.Branch, error)
	UpdateMetadata(ctx context.Context, path string, metadata map[string]map[string]string) error
}

// DescriptionService is the §4.9/§6 collaborator that fills in display
// fields on a ConceptMini by concept ID.
type DescriptionService interface {
	JoinActiveDescriptions(ctx context.Context, branchPath string, minis map[string]*types.ConceptMini) error
}

// AxiomParserFunc extracts the set of concept IDs referenced by an OWL
// expression (§4.3's AxiomConversion surface). internal/axiom.ExtractReferencedConcepts
// is the production implementation; tests substitute a stub.
type AxiomParserFunc func(owlExpression string) (*idset.Set, error)

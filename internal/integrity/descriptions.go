package integrity

import (
	"context"

	"github.com/snomed-ct/refinteg/internal/types"
)

// JoinDescriptions implements §4.9: once a report carries axiom findings,
// fill in each offending ConceptMini's display fields from the branch's
// active descriptions. A no-op on an empty report avoids a wasted round
// trip to the description service.
func JoinDescriptions(ctx context.Context, descriptions DescriptionService, branchPath string, report *types.IntegrityReport) error {
	if report == nil || len(report.AxiomsWithMissingOrInactiveReferencedConcept) == 0 {
		return nil
	}
	return descriptions.JoinActiveDescriptions(ctx, branchPath, report.AxiomsWithMissingOrInactiveReferencedConcept)
}

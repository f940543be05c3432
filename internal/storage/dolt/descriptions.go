package dolt

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/snomed-ct/refinteg/internal/types"
)

// Well-known SNOMED CT description type concept IDs (§4.9).
const (
	fsnTypeID     = 900000000000003001
	synonymTypeID = 900000000000013009
)

type descriptionRow struct {
	typeID uint64
	term   string
}

// JoinActiveDescriptions implements integrity.DescriptionService. It
// resolves branchPath to a commit hash once, then batches the distinct
// concept IDs across minis through BatchIN so a report with thousands of
// offending concepts never builds a single IN clause large enough to choke
// the query planner.
func (s *DoltStore) JoinActiveDescriptions(ctx context.Context, branchPath string, minis map[string]*types.ConceptMini) error {
	if len(minis) == 0 {
		return nil
	}

	asOfHash, err := s.branchRefHash(ctx, branchPath)
	if err != nil {
		return types.NewUpstreamStoreError("resolve "+branchPath+" for description join", err)
	}

	seen := make(map[string]bool, len(minis))
	ids := make([]string, 0, len(minis))
	for _, mini := range minis {
		id := strconv.FormatUint(uint64(mini.ConceptID), 10)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	query := fmt.Sprintf(
		"SELECT concept_id, type_id, term FROM description AS OF '%s' WHERE active = 1 AND concept_id IN (%%s)",
		asOfHash,
	)
	byConcept, err := BatchIN(ctx, s.UnderlyingDB(), ids, DefaultBatchSize, query, scanDescriptionRow)
	if err != nil {
		return types.NewUpstreamStoreError("join active descriptions for "+branchPath, err)
	}

	for _, mini := range minis {
		descs := byConcept[uint64(mini.ConceptID)]
		for _, d := range descs {
			switch d.typeID {
			case fsnTypeID:
				mini.FSN = d.term
			case synonymTypeID:
				if mini.PreferredTerm == "" {
					mini.PreferredTerm = d.term
				}
			}
		}
	}
	return nil
}

func scanDescriptionRow(rows *sql.Rows) (uint64, descriptionRow, error) {
	var conceptID, typeID uint64
	var term string
	if err := rows.Scan(&conceptID, &typeID, &term); err != nil {
		return 0, descriptionRow{}, err
	}
	return conceptID, descriptionRow{typeID: typeID, term: term}, nil
}

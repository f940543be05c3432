package integrity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snomed-ct/refinteg/internal/types"
)

type stubDescriptions struct {
	calledPath string
	calledMap  map[string]*types.ConceptMini
	called     bool
}

func (s *stubDescriptions) JoinActiveDescriptions(ctx context.Context, branchPath string, minis map[string]*types.ConceptMini) error {
	s.called = true
	s.calledPath = branchPath
	s.calledMap = minis
	for _, mini := range minis {
		mini.PreferredTerm = "stub preferred term"
	}
	return nil
}

func TestJoinDescriptions_SkipsEmptyReport(t *testing.T) {
	svc := &stubDescriptions{}
	err := JoinDescriptions(context.Background(), svc, "MAIN", &types.IntegrityReport{})
	require.NoError(t, err)
	assert.False(t, svc.called)
}

func TestJoinDescriptions_FillsPreferredTerm(t *testing.T) {
	svc := &stubDescriptions{}
	report := &types.IntegrityReport{}
	report.AddAxiom("m1", &types.ConceptMini{ConceptID: 10, OffendingConceptIDs: []types.ConceptID{999}})

	err := JoinDescriptions(context.Background(), svc, "MAIN", report)
	require.NoError(t, err)
	assert.True(t, svc.called)
	assert.Equal(t, "MAIN", svc.calledPath)
	assert.Equal(t, "stub preferred term", report.AxiomsWithMissingOrInactiveReferencedConcept["m1"].PreferredTerm)
}

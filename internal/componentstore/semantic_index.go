package componentstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/snomed-ct/refinteg/internal/branchcriteria"
	"github.com/snomed-ct/refinteg/internal/types"
)

// SemanticIndex is the Bleve-backed QueryConcept prefilter (§4.4 step 3a,
// §4.8). It is a coarse, asynchronously-maintained projection: branch
// criteria are accepted for interface symmetry with GraphStore but are not
// applied server-side here, since the index is not branch-versioned — the
// checker treats every streamed row as a *candidate* and re-verifies
// against the authoritative active-concept set client-side (idset.AnyNotIn).
type SemanticIndex struct {
	index bleve.Index
}

var _ SemanticIndexStore = (*SemanticIndex)(nil)

// NewIndexMapping builds the document mapping for QueryConcept rows: the
// attribute closure is stored as an opaque JSON blob (never indexed — it is
// retrieved, not searched), while "stated" is a searchable boolean so the
// stated/inferred split in §4.4 step 3a can be pushed server-side.
func NewIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	stated := bleve.NewTextFieldMapping()
	stated.Analyzer = "keyword"
	doc.AddFieldMappingsAt("stated", stated)

	attrs := bleve.NewTextFieldMapping()
	attrs.Index = false
	attrs.Store = true
	doc.AddFieldMappingsAt("attributesJson", attrs)

	im.DefaultMapping = doc
	return im
}

// OpenSemanticIndex opens (or creates, if absent) a Bleve index at path.
func OpenSemanticIndex(path string) (*SemanticIndex, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return &SemanticIndex{index: idx}, nil
	}
	idx, err = bleve.New(path, NewIndexMapping())
	if err != nil {
		return nil, types.NewUpstreamStoreError("open semantic index", err)
	}
	return &SemanticIndex{index: idx}, nil
}

// Close releases the underlying index handle.
func (s *SemanticIndex) Close() error {
	return s.index.Close()
}

type queryConceptDoc struct {
	Stated         string `json:"stated"`
	AttributesJSON string `json:"attributesJson"`
}

func statedFieldValue(stated bool) string {
	if stated {
		return "true"
	}
	return "false"
}

func docID(conceptID types.ConceptID, stated bool) string {
	return fmt.Sprintf("%d:%t", uint64(conceptID), stated)
}

func parseDocID(id string) (types.ConceptID, bool, error) {
	parts := strings.SplitN(id, ":", 2)
	if len(parts) != 2 {
		return 0, false, fmt.Errorf("malformed semantic index document id %q", id)
	}
	n, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed semantic index document id %q: %w", id, err)
	}
	return types.ConceptID(n), parts[1] == "true", nil
}

// IndexQueryConcept inserts or replaces the stored projection for one
// QueryConcept entry. Called by the (out-of-scope, per §1 non-goals)
// classifier pipeline that maintains this index; kept here because the
// encoding is this package's concern.
func (s *SemanticIndex) IndexQueryConcept(qc types.QueryConcept) error {
	wire := make(map[string][]uint64, len(qc.Attributes))
	for typeID, values := range qc.Attributes {
		vals := make([]uint64, len(values))
		for i, v := range values {
			vals[i] = uint64(v)
		}
		wire[strconv.FormatUint(uint64(typeID), 10)] = vals
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return types.NewUpstreamStoreError("encode semantic index document", err)
	}
	doc := queryConceptDoc{Stated: statedFieldValue(qc.Stated), AttributesJSON: string(raw)}
	if err := s.index.Index(docID(qc.ConceptIDL, qc.Stated), doc); err != nil {
		return types.NewUpstreamStoreError("index semantic index document", err)
	}
	return nil
}

// DeleteQueryConcept removes the stated or inferred projection for a
// concept, e.g. once a concept is fully deleted rather than inactivated.
func (s *SemanticIndex) DeleteQueryConcept(conceptID types.ConceptID, stated bool) error {
	if err := s.index.Delete(docID(conceptID, stated)); err != nil {
		return types.NewUpstreamStoreError("delete semantic index document", err)
	}
	return nil
}

// StreamQueryConcepts implements SemanticIndexStore.
func (s *SemanticIndex) StreamQueryConcepts(ctx context.Context, _ *branchcriteria.Criteria, filter QueryConceptFilter) (QueryConceptCursor, error) {
	term := bleve.NewTermQuery(statedFieldValue(filter.Stated))
	term.SetField("stated")
	var q query.Query = term
	return &semanticCursor{index: s.index, query: q, size: LargePage}, nil
}

type semanticCursor struct {
	index bleve.Index
	query query.Query
	from  int
	size  int
	hits  []*search.DocumentMatch
	pos   int
	done  bool
	cur   types.QueryConcept
	err   error
}

func (c *semanticCursor) Next(ctx context.Context) bool {
	for {
		if c.pos < len(c.hits) {
			hit := c.hits[c.pos]
			c.pos++
			qc, err := decodeHit(hit)
			if err != nil {
				c.err = err
				return false
			}
			c.cur = qc
			return true
		}
		if c.done {
			return false
		}
		req := bleve.NewSearchRequestOptions(c.query, c.size, c.from, false)
		req.Fields = []string{"attributesJson"}
		res, err := c.index.SearchInContext(ctx, req)
		if err != nil {
			c.err = err
			return false
		}
		c.hits = res.Hits
		c.pos = 0
		c.from += c.size
		if len(res.Hits) < c.size {
			c.done = true
		}
		if len(res.Hits) == 0 {
			return false
		}
	}
}

func decodeHit(hit *search.DocumentMatch) (types.QueryConcept, error) {
	conceptID, stated, err := parseDocID(hit.ID)
	if err != nil {
		return types.QueryConcept{}, err
	}
	qc := types.QueryConcept{ConceptIDL: conceptID, Stated: stated, Attributes: map[types.ConceptID][]types.ConceptID{}}

	raw, ok := hit.Fields["attributesJson"].(string)
	if !ok || raw == "" {
		return qc, nil
	}
	var wire map[string][]uint64
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return types.QueryConcept{}, fmt.Errorf("decode attributesJson for %q: %w", hit.ID, err)
	}
	for k, v := range wire {
		typeID, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			continue
		}
		vals := make([]types.ConceptID, len(v))
		for i, id := range v {
			vals[i] = types.ConceptID(id)
		}
		qc.Attributes[types.ConceptID(typeID)] = vals
	}
	return qc, nil
}

func (c *semanticCursor) QueryConcept() types.QueryConcept { return c.cur }
func (c *semanticCursor) Err() error                       { return c.err }
func (c *semanticCursor) Close() error                     { return nil }

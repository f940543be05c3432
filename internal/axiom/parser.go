package axiom

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/snomed-ct/refinteg/internal/idset"
	"github.com/snomed-ct/refinteg/internal/types"
)

// Node is a parsed element of an OWL functional-syntax expression: either a
// function call (SubClassOf, ObjectSomeValuesFrom, ...) with nested
// arguments, or a leaf atom (a concept reference, a datatype curie, a bare
// keyword such as owl:Thing).
type Node struct {
	Name string  // function name, empty for a leaf
	Args []*Node // nil for a leaf
	Leaf string  // the raw atom/IRI text, empty for a function call
}

func (n *Node) isLeaf() bool { return n.Args == nil && n.Name == "" }

// Parser builds a Node tree from a token stream produced by Lexer.
type Parser struct {
	lex *Lexer
	cur Token
}

// NewParser creates a Parser over expr.
func NewParser(expr string) (*Parser, error) {
	p := &Parser{lex: NewLexer(expr)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

// Parse consumes the entire expression and returns its root node.
func (p *Parser) Parse() (*Node, error) {
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur.Type != TokenEOF {
		return nil, fmt.Errorf("unexpected trailing token %v at position %d", p.cur.Type, p.cur.Pos+1)
	}
	return node, nil
}

func (p *Parser) parseExpr() (*Node, error) {
	switch p.cur.Type {
	case TokenIRI:
		leaf := &Node{Leaf: "<" + p.cur.Value + ">"}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return leaf, nil
	case TokenString:
		leaf := &Node{Leaf: p.cur.Value}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return leaf, nil
	case TokenAtom:
		name := p.cur.Value
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Type != TokenLParen {
			// A bare atom with no following '(' is a leaf (a concept
			// reference, a curie, or a keyword like owl:Thing).
			return &Node{Leaf: name}, nil
		}
		// Function call: name(arg arg ...)
		if err := p.advance(); err != nil { // consume '('
			return nil, err
		}
		var args []*Node
		for p.cur.Type != TokenRParen {
			if p.cur.Type == TokenEOF {
				return nil, fmt.Errorf("unterminated argument list for %q", name)
			}
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		if err := p.advance(); err != nil { // consume ')'
			return nil, err
		}
		return &Node{Name: name, Args: args}, nil
	default:
		return nil, fmt.Errorf("unexpected token %v at position %d", p.cur.Type, p.cur.Pos+1)
	}
}

// conceptRefCurie matches the short form used throughout SNOMED OWL refset
// expressions: a colon prefix (empty, or a declared ontology prefix such as
// "sct:") followed by a 6-18 digit SCTID, e.g. ":73211009".
var conceptRefCurie = regexp.MustCompile(`^(?:[A-Za-z][A-Za-z0-9.-]*)?:(\d{6,18})$`)

// conceptRefIRI matches the full IRI form, e.g.
// "<http://snomed.info/id/73211009>".
var conceptRefIRI = regexp.MustCompile(`^<http://snomed\.info/id/(\d{6,18})>$`)

// ParseConceptReference reports whether leaf is a SNOMED concept reference
// (curie or full IRI) and, if so, returns its concept ID. Datatype curies
// (xsd:decimal), annotation/owl-vocabulary IRIs
// (<http://www.w3.org/2002/07/owl#...>), and bare keywords never match.
func ParseConceptReference(leaf string) (types.ConceptID, bool) {
	if m := conceptRefCurie.FindStringSubmatch(leaf); m != nil {
		id, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return types.ConceptID(id), true
	}
	if m := conceptRefIRI.FindStringSubmatch(leaf); m != nil {
		id, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return types.ConceptID(id), true
	}
	return 0, false
}

// collectConceptRefs walks node, adding every concept reference found among
// its leaves (including the node itself, if it is a leaf) into acc.
func collectConceptRefs(node *Node, acc *idset.Set) {
	if node == nil {
		return
	}
	if node.isLeaf() {
		if id, ok := ParseConceptReference(node.Leaf); ok {
			acc.Add(id)
		}
		return
	}
	for _, arg := range node.Args {
		collectConceptRefs(arg, acc)
	}
}

// ExtractReferencedConcepts parses an OWL functional-syntax class expression
// and returns the deduplicated set of every SNOMED concept ID it references
// (§4.3): the header subject and every concept reference in the expression
// body, excluding datatype and annotation-vocabulary IRIs. A malformed
// expression yields a parse error to be wrapped by the caller as an
// AxiomParseError.
func ExtractReferencedConcepts(owlExpression string) (*idset.Set, error) {
	trimmed := strings.TrimSpace(owlExpression)
	if trimmed == "" {
		return nil, fmt.Errorf("empty OWL expression")
	}
	parser, err := NewParser(trimmed)
	if err != nil {
		return nil, err
	}
	root, err := parser.Parse()
	if err != nil {
		return nil, err
	}
	refs := idset.New()
	collectConceptRefs(root, refs)
	return refs, nil
}

// Package branchcriteria implements the BranchCriteria provider (§4.1): the
// four visibility-predicate constructors the checker composes with
// entity-specific filters before handing them to internal/componentstore.
// The core treats a *Criteria value as opaque; this package is the only one
// that knows it is backed by Dolt branch/commit/diff primitives.
package branchcriteria

import "fmt"

// Mode identifies which of the four predicate shapes a Criteria carries.
type Mode int

const (
	// ModeVisible is the view of every component visible on a branch at its
	// head.
	ModeVisible Mode = iota
	// ModeUnpromotedChanges restricts to components created or modified on
	// the branch itself, relative to its merge-base with its parent, and
	// excludes deletions.
	ModeUnpromotedChanges
	// ModeUnpromotedChangesAndDeletions is ModeUnpromotedChanges plus
	// deletion tombstones.
	ModeUnpromotedChangesAndDeletions
	// ModeVisibleIncludingOpenCommit overlays an in-progress commit's
	// uncommitted writes on top of the branch's otherwise-visible view.
	ModeVisibleIncludingOpenCommit
)

func (m Mode) String() string {
	switch m {
	case ModeVisible:
		return "visible"
	case ModeUnpromotedChanges:
		return "unpromotedChanges"
	case ModeUnpromotedChangesAndDeletions:
		return "unpromotedChangesAndDeletions"
	case ModeVisibleIncludingOpenCommit:
		return "visibleIncludingOpenCommit"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Criteria is the opaque value returned by Provider. internal/componentstore
// is the only other package that inspects its fields, to build a concrete
// Dolt query; internal/integrity passes it around without looking inside.
type Criteria struct {
	Mode       Mode
	BranchPath string

	// AsOfRef is a Dolt commit hash (the branch head for ModeVisible, the
	// caller-supplied open commit ref for ModeVisibleIncludingOpenCommit) to
	// query a table's historical state with "<table> AS OF '<ref>'". Set for
	// ModeVisible and ModeVisibleIncludingOpenCommit.
	AsOfRef string

	// DiffFromRef/DiffToRef bound a dolt_diff() window. Set for the two
	// unpromoted-change modes: From is the branch's merge-base with its
	// parent, To is the branch head.
	DiffFromRef string
	DiffToRef   string
}

// IsDiffMode reports whether this criteria is evaluated via dolt_diff rather
// than an AS OF snapshot.
func (c *Criteria) IsDiffMode() bool {
	return c.Mode == ModeUnpromotedChanges || c.Mode == ModeUnpromotedChangesAndDeletions
}

// IncludesDeletions reports whether deletion-diff rows should be retained.
func (c *Criteria) IncludesDeletions() bool {
	return c.Mode == ModeUnpromotedChangesAndDeletions
}

// FromClause returns the FROM-clause source expression for table under this
// criteria: a dolt_diff() table function call for the two diff modes, or an
// "AS OF" historical snapshot reference otherwise.
func (c *Criteria) FromClause(table string) string {
	if c.IsDiffMode() {
		return fmt.Sprintf("dolt_diff(%s, %s, %s)", quoteLiteral(c.DiffFromRef), quoteLiteral(c.DiffToRef), quoteLiteral(table))
	}
	return fmt.Sprintf("%s AS OF %s", quoteIdent(table), quoteLiteral(c.AsOfRef))
}

// DiffTypeFilter returns the SQL fragment restricting dolt_diff rows to the
// change kinds this criteria admits ("added, modified" or, when deletions
// are included, "added, modified, removed"). Empty for non-diff modes.
func (c *Criteria) DiffTypeFilter() string {
	if !c.IsDiffMode() {
		return ""
	}
	if c.IncludesDeletions() {
		return "diff_type IN ('added', 'modified', 'removed')"
	}
	return "diff_type IN ('added', 'modified')"
}

func quoteIdent(name string) string {
	return "`" + name + "`"
}

func quoteLiteral(value string) string {
	return "'" + value + "'"
}

// Predicate is a composable server-side filter fragment: a WHERE-clause
// expression plus its positional arguments. internal/componentstore builds
// one per entity query and combines it with whatever the Criteria contract
// requires via And/Or (§4.1: "only composition (and/or) is required").
type Predicate struct {
	SQL  string
	Args []any
}

// And combines predicates with SQL AND, parenthesizing each operand.
// Empty-SQL predicates are skipped so callers can pass an optional filter
// without branching.
func And(preds ...Predicate) Predicate {
	return combine(" AND ", preds)
}

// Or combines predicates with SQL OR, parenthesizing each operand.
func Or(preds ...Predicate) Predicate {
	return combine(" OR ", preds)
}

func combine(joiner string, preds []Predicate) Predicate {
	var sql string
	var args []any
	first := true
	for _, p := range preds {
		if p.SQL == "" {
			continue
		}
		if !first {
			sql += joiner
		}
		sql += "(" + p.SQL + ")"
		args = append(args, p.Args...)
		first = false
	}
	return Predicate{SQL: sql, Args: args}
}

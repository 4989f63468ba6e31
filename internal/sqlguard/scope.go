package sqlguard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	"github.com/pingcap/tidb/pkg/parser/opcode"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"github.com/cashplan/cashplan/internal/store"
)

const ownerColumn = "user_id"

type ScopeError struct {
	Reason string
}

func (e *ScopeError) Error() string {
	return "ownership check: " + e.Reason
}

func scopeErrorf(format string, args ...any) *ScopeError {
	return &ScopeError{Reason: fmt.Sprintf(format, args...)}
}

var deniedFunctions = map[string]struct{}{
	"pg_sleep":                   {},
	"pg_sleep_for":               {},
	"pg_sleep_until":             {},
	"pg_read_file":               {},
	"pg_read_binary_file":        {},
	"pg_ls_dir":                  {},
	"pg_stat_file":               {},
	"pg_terminate_backend":       {},
	"pg_cancel_backend":          {},
	"pg_reload_conf":             {},
	"pg_advisory_lock":           {},
	"pg_advisory_xact_lock":      {},
	"lo_import":                  {},
	"lo_export":                  {},
	"lo_get":                     {},
	"dblink":                     {},
	"dblink_exec":                {},
	"set_config":                 {},
	"current_setting":            {},
	"query_to_xml":               {},
	"query_to_xml_and_xmlschema": {},
	"table_to_xml":               {},
	"sleep":                      {},
	"benchmark":                  {},
	"load_file":                  {},
}

// ScopeChecker verifies structurally that a query only reads the caller's
// rows: every owned table reference must be pinned to the caller id by a
// top-level equality conjunct.
type ScopeChecker struct {
	owned map[string]struct{}
}

func NewScopeChecker() *ScopeChecker {
	owned := make(map[string]struct{}, len(store.OwnedTables))
	for _, table := range store.OwnedTables {
		owned[table] = struct{}{}
	}
	return &ScopeChecker{owned: owned}
}

func (c *ScopeChecker) Check(sqlText string, callerID int64) error {
	if callerID <= 0 {
		return scopeErrorf("caller id must be positive")
	}
	if hazard := portabilityHazard(sqlText); hazard != "" {
		return scopeErrorf("could not verify query: %s", hazard)
	}

	p := parser.New()
	p.SetSQLMode(mysql.ModeANSIQuotes | mysql.ModePipesAsConcat)
	stmts, _, err := p.Parse(sqlText, "", "")
	if err != nil {
		return scopeErrorf("could not verify query: %v", err)
	}
	if len(stmts) != 1 {
		return scopeErrorf("expected exactly one statement, got %d", len(stmts))
	}
	switch stmt := stmts[0].(type) {
	case *ast.SelectStmt:
	case *ast.SetOprStmt:
		if stmt.With != nil {
			return scopeErrorf("common table expressions are not supported")
		}
	default:
		return scopeErrorf("only SELECT statements are allowed")
	}

	collector := &scopeVisitor{checker: c, callerID: callerID}
	stmts[0].Accept(collector)
	if collector.err != nil {
		return collector.err
	}
	if collector.tableNames != collector.blockTables {
		return scopeErrorf("could not verify every table reference")
	}
	return nil
}

type scopeVisitor struct {
	checker     *ScopeChecker
	callerID    int64
	err         *ScopeError
	tableNames  int
	blockTables int
}

func (v *scopeVisitor) Enter(n ast.Node) (ast.Node, bool) {
	if v.err != nil {
		return n, true
	}
	switch node := n.(type) {
	case *ast.SelectStmt:
		v.err = v.checkBlock(node)
	case *ast.TableName:
		v.tableNames++
	case *ast.FuncCallExpr:
		if _, denied := deniedFunctions[node.FnName.L]; denied {
			v.err = scopeErrorf("function %s is not allowed", node.FnName.L)
		}
	}
	return n, v.err != nil
}

func (v *scopeVisitor) Leave(n ast.Node) (ast.Node, bool) {
	return n, true
}

type tableRef struct {
	alias  string
	table  string
	pinned bool
}

type blockScope struct {
	refs    []*tableRef
	sources int
}

func (v *scopeVisitor) checkBlock(stmt *ast.SelectStmt) *ScopeError {
	if stmt.With != nil {
		return scopeErrorf("common table expressions are not supported")
	}
	if stmt.SelectIntoOpt != nil {
		return scopeErrorf("SELECT INTO is not allowed")
	}
	if stmt.From == nil || stmt.From.TableRefs == nil {
		return nil
	}

	scope := &blockScope{}
	if err := v.collectSources(scope, stmt.From.TableRefs); err != nil {
		return err
	}
	v.blockTables += len(scope.refs)

	seen := make(map[string]struct{}, len(scope.refs))
	for _, ref := range scope.refs {
		if _, dup := seen[ref.alias]; dup {
			return scopeErrorf("ambiguous table reference %s", ref.alias)
		}
		seen[ref.alias] = struct{}{}
	}

	v.pinFromJoins(scope, stmt.From.TableRefs)
	allowUnqualified := scope.sources == 1 && len(scope.refs) == 1
	v.pin(scope.refs, stmt.Where, allowUnqualified)

	for _, ref := range scope.refs {
		if !ref.pinned {
			return scopeErrorf("table %s is not filtered by %s = %d", ref.alias, ownerColumn, v.callerID)
		}
	}
	return nil
}

func (v *scopeVisitor) collectSources(scope *blockScope, node ast.ResultSetNode) *ScopeError {
	switch typed := node.(type) {
	case nil:
		return nil
	case *ast.Join:
		if err := v.collectSources(scope, typed.Left); err != nil {
			return err
		}
		return v.collectSources(scope, typed.Right)
	case *ast.TableSource:
		switch source := typed.Source.(type) {
		case *ast.TableName:
			scope.sources++
			if source.Schema.L != "" {
				return scopeErrorf("schema-qualified table %s.%s is not allowed", source.Schema.L, source.Name.L)
			}
			if _, ok := v.checker.owned[source.Name.L]; !ok {
				return scopeErrorf("table %s is not allowed", source.Name.L)
			}
			alias := typed.AsName.L
			if alias == "" {
				alias = source.Name.L
			}
			scope.refs = append(scope.refs, &tableRef{alias: alias, table: source.Name.L})
			return nil
		case *ast.Join:
			return v.collectSources(scope, source)
		default:
			scope.sources++
			return nil
		}
	default:
		return scopeErrorf("unsupported FROM clause element")
	}
}

// pinFromJoins applies ON conditions. An inner join condition filters both
// sides; an outer join condition only filters the optional side.
func (v *scopeVisitor) pinFromJoins(scope *blockScope, node ast.ResultSetNode) {
	join, ok := node.(*ast.Join)
	if !ok {
		if source, isSource := node.(*ast.TableSource); isSource {
			if nested, isJoin := source.Source.(*ast.Join); isJoin {
				v.pinFromJoins(scope, nested)
			}
		}
		return
	}
	v.pinFromJoins(scope, join.Left)
	v.pinFromJoins(scope, join.Right)
	if join.On == nil || join.Right == nil {
		return
	}

	var filtered []*tableRef
	switch join.Tp {
	case ast.LeftJoin:
		filtered = refsUnder(scope, join.Right)
	case ast.RightJoin:
		filtered = refsUnder(scope, join.Left)
	default:
		filtered = append(refsUnder(scope, join.Left), refsUnder(scope, join.Right)...)
	}
	v.pin(filtered, join.On.Expr, false)
}

func refsUnder(scope *blockScope, node ast.ResultSetNode) []*tableRef {
	aliases := map[string]struct{}{}
	var walk func(ast.ResultSetNode)
	walk = func(n ast.ResultSetNode) {
		switch typed := n.(type) {
		case *ast.Join:
			walk(typed.Left)
			if typed.Right != nil {
				walk(typed.Right)
			}
		case *ast.TableSource:
			switch source := typed.Source.(type) {
			case *ast.TableName:
				alias := typed.AsName.L
				if alias == "" {
					alias = source.Name.L
				}
				aliases[alias] = struct{}{}
			case *ast.Join:
				walk(source)
			}
		}
	}
	walk(node)

	out := make([]*tableRef, 0, len(aliases))
	for _, ref := range scope.refs {
		if _, ok := aliases[ref.alias]; ok {
			out = append(out, ref)
		}
	}
	return out
}

func (v *scopeVisitor) pin(refs []*tableRef, expr ast.ExprNode, allowUnqualified bool) {
	if expr == nil || len(refs) == 0 {
		return
	}
	for _, conjunct := range conjuncts(expr) {
		qualifier, ok := ownerFilter(conjunct, v.callerID)
		if !ok {
			continue
		}
		for _, ref := range refs {
			if qualifier == ref.alias || (qualifier == "" && allowUnqualified) {
				ref.pinned = true
			}
		}
	}
}

func conjuncts(expr ast.ExprNode) []ast.ExprNode {
	switch typed := expr.(type) {
	case *ast.ParenthesesExpr:
		return conjuncts(typed.Expr)
	case *ast.BinaryOperationExpr:
		if typed.Op == opcode.LogicAnd {
			return append(conjuncts(typed.L), conjuncts(typed.R)...)
		}
	}
	return []ast.ExprNode{expr}
}

// ownerFilter reports whether expr is "[qualifier.]user_id = callerID" and
// returns the qualifier.
func ownerFilter(expr ast.ExprNode, callerID int64) (string, bool) {
	binary, ok := expr.(*ast.BinaryOperationExpr)
	if !ok || binary.Op != opcode.EQ {
		return "", false
	}
	column, value := unwrap(binary.L), unwrap(binary.R)
	if _, isColumn := column.(*ast.ColumnNameExpr); !isColumn {
		column, value = value, column
	}
	columnExpr, ok := column.(*ast.ColumnNameExpr)
	if !ok || columnExpr.Name == nil {
		return "", false
	}
	if columnExpr.Name.Name.L != ownerColumn || columnExpr.Name.Schema.L != "" {
		return "", false
	}
	literal, ok := value.(ast.ValueExpr)
	if !ok || !literalEquals(literal.GetValue(), callerID) {
		return "", false
	}
	return columnExpr.Name.Table.L, true
}

func unwrap(expr ast.ExprNode) ast.ExprNode {
	for {
		paren, ok := expr.(*ast.ParenthesesExpr)
		if !ok {
			return expr
		}
		expr = paren.Expr
	}
}

func literalEquals(value any, callerID int64) bool {
	switch typed := value.(type) {
	case int64:
		return typed == callerID
	case uint64:
		return callerID > 0 && typed == uint64(callerID)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		return err == nil && parsed == callerID
	default:
		return false
	}
}

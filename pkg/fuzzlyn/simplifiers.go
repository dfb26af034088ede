package fuzzlyn

import (
	"fmt"
	"sort"
)

type nodeClass int

const (
	classStatement nodeClass = iota
	classExpression
	classMember
)

// candidateFn lazily builds one rewrite candidate. Returning nil means the
// candidate could not be constructed for this node after all.
type candidateFn func() *Program

// simplifier is one entry of the rewrite catalog. Lower priority fires
// first; late simplifiers only run after the first full outer iteration.
type simplifier struct {
	name       string
	priority   int
	late       bool
	candidates func(r *Reducer, p *Program, n Node) []candidateFn
}

var (
	statementCatalog  []*simplifier
	expressionCatalog []*simplifier
	memberCatalog     []*simplifier
)

func catalogFor(class nodeClass) []*simplifier {
	switch class {
	case classStatement:
		return statementCatalog
	case classExpression:
		return expressionCatalog
	default:
		return memberCatalog
	}
}

// memberRef adapts member declarations (methods, statics, types) to the
// node-based traversal of the fine pass.
type memberRef struct {
	Fn        *Function
	FnIdx     int
	Static    *StaticField
	StaticIdx int
	Type      FuzzType
	TypeIdx   int
}

func (*memberRef) isNode() {}

func collectMemberNodes(p *Program) []Node {
	var out []Node
	for i, fn := range p.Functions {
		out = append(out, &memberRef{Fn: fn, FnIdx: i})
	}
	for i, f := range p.Statics {
		out = append(out, &memberRef{Static: f, StaticIdx: i})
	}
	for i, t := range p.Types {
		out = append(out, &memberRef{Type: t, TypeIdx: i})
	}
	return out
}

func one(c candidateFn) []candidateFn { return []candidateFn{c} }

// containingFunction locates the function whose body holds node n.
func containingFunction(p *Program, n Node) int {
	for i, fn := range p.Functions {
		found := false
		walkStmt(fn.Body, func(st Statement) {
			if Node(st) == n {
				found = true
			}
		}, func(e Expression) {
			if Node(e) == n {
				found = true
			}
		})
		if found {
			return i
		}
	}
	return -1
}

func init() {
	statementCatalog = []*simplifier{
		{name: "remove statement", priority: 1, candidates: simpRemoveStatement},
		{name: "keep only invocation", priority: 2, candidates: simpKeepInvocation},
		{name: "if to then branch", priority: 2, candidates: simpIfToThen},
		{name: "if to else branch", priority: 2, candidates: simpIfToElse},
		{name: "try to parts", priority: 2, candidates: simpTryFinally},
		{name: "drop initializer", priority: 3, candidates: simpDropInitializer},
		{name: "ref decl to value decl", priority: 3, candidates: simpRefDeclToValue},
		{name: "for to block", priority: 3, candidates: simpForToBlock},
		{name: "flatten block", priority: 3, candidates: simpFlattenBlock},
		{name: "flip if with empty then", priority: 4, candidates: simpFlipEmptyIf},
		{name: "combine decl and assignment", priority: 4, candidates: simpCombineDeclAssign},
		{name: "inline trivial local", priority: 5, candidates: simpInlineTrivialLocal},
		{name: "extract if condition", priority: 6, late: true, candidates: simpExtractIfCond},
		{name: "inline call", priority: 7, late: true, candidates: simpInlineCall},
		{name: "extract argument to local", priority: 7, late: true, candidates: simpExtractArg},
	}
	expressionCatalog = []*simplifier{
		{name: "binary to left operand", priority: 2, candidates: simpBinaryLeft},
		{name: "binary to right operand", priority: 2, candidates: simpBinaryRight},
		{name: "remove cast", priority: 2, candidates: simpRemoveCast},
		{name: "remove unary", priority: 3, candidates: simpRemoveUnary},
		{name: "array to first element", priority: 4, candidates: simpArrayFirstElem},
		{name: "small constant", priority: 8, late: true, candidates: simpSmallConstant},
	}
	memberCatalog = []*simplifier{
		{name: "remove method", priority: 2, candidates: simpRemoveMethod},
		{name: "remove type", priority: 3, candidates: simpRemoveType},
		{name: "remove static field", priority: 3, candidates: simpRemoveStatic},
		{name: "drop static initializer", priority: 4, candidates: simpDropStaticInit},
		{name: "remove aggregate field", priority: 5, candidates: simpRemoveField},
		{name: "remove parameter", priority: 5, candidates: simpRemoveParam},
		{name: "method to void", priority: 6, candidates: simpMethodToVoid},
		{name: "struct this initializer", priority: 6, candidates: simpStructThisInit},
		{name: "instance method to static", priority: 8, late: true, candidates: simpMoveMethodStatic},
	}
	for _, cat := range [][]*simplifier{statementCatalog, expressionCatalog, memberCatalog} {
		sort.SliceStable(cat, func(i, j int) bool { return cat[i].priority < cat[j].priority })
	}
}

// ---- statement simplifiers ----

func simpRemoveStatement(r *Reducer, p *Program, n Node) []candidateFn {
	if _, ok := n.(Statement); !ok {
		return nil
	}
	return one(func() *Program { return ReplaceNode(p, n, nil) })
}

func simpKeepInvocation(r *Reducer, p *Program, n Node) []candidateFn {
	st, ok := n.(Statement)
	if !ok {
		return nil
	}
	if _, already := st.(*CallStmt); already {
		return nil
	}
	var calls []*CallExpr
	walkStmt(st, nil, func(e Expression) {
		if c, ok := e.(*CallExpr); ok {
			calls = append(calls, c)
		}
	})
	var out []candidateFn
	for _, c := range calls {
		call := c
		out = append(out, func() *Program {
			return ReplaceNode(p, n, &CallStmt{Call: call})
		})
	}
	return out
}

func simpIfToThen(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*IfStmt)
	if !ok {
		return nil
	}
	return one(func() *Program { return ReplaceNode(p, n, s.Then) })
}

func simpIfToElse(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*IfStmt)
	if !ok || s.Else == nil {
		return nil
	}
	return one(func() *Program { return ReplaceNode(p, n, s.Else) })
}

func simpFlipEmptyIf(r *Reducer, p *Program, n Node) []candidateFn {
	// Narrow on purpose: only an empty then-branch is flipped.
	s, ok := n.(*IfStmt)
	if !ok || s.Else == nil || len(s.Then.Stmts) != 0 {
		return nil
	}
	return one(func() *Program {
		flipped := &IfStmt{
			Cond: &UnaryExpr{Op: UnNot, X: s.Cond, Ty: Primitive(KindBool)},
			Then: s.Else,
		}
		return ReplaceNode(p, n, flipped)
	})
}

func simpExtractIfCond(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*IfStmt)
	if !ok {
		return nil
	}
	if _, trivial := s.Cond.(*VarExpr); trivial {
		return nil
	}
	return one(func() *Program {
		v := &Variable{
			Type: Primitive(KindBool),
			Name: fmt.Sprintf("var%d", p.VarCounter),
		}
		repl := &BlockStmt{Stmts: []Statement{
			&VarDeclStmt{Var: v, Init: s.Cond},
			&IfStmt{Cond: &VarExpr{Var: v}, Then: s.Then, Else: s.Else},
		}}
		np := ReplaceNode(p, n, repl)
		np.VarCounter = p.VarCounter + 1
		return np
	})
}

func simpTryFinally(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*TryFinallyStmt)
	if !ok {
		return nil
	}
	concat := func(a, b *BlockStmt) *BlockStmt {
		stmts := make([]Statement, 0, len(a.Stmts)+len(b.Stmts))
		stmts = append(stmts, a.Stmts...)
		stmts = append(stmts, b.Stmts...)
		return &BlockStmt{Stmts: stmts}
	}
	return []candidateFn{
		func() *Program { return ReplaceNode(p, n, s.Try) },
		func() *Program { return ReplaceNode(p, n, s.Finally) },
		func() *Program { return ReplaceNode(p, n, concat(s.Try, s.Finally)) },
		func() *Program { return ReplaceNode(p, n, concat(s.Finally, s.Try)) },
	}
}

func simpDropInitializer(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*VarDeclStmt)
	if !ok || s.Ref || s.Init == nil {
		return nil
	}
	return one(func() *Program {
		return ReplaceNode(p, n, &VarDeclStmt{Var: s.Var})
	})
}

func simpRefDeclToValue(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*VarDeclStmt)
	if !ok || !s.Ref {
		return nil
	}
	return one(func() *Program {
		fnIdx := containingFunction(p, n)
		if fnIdx < 0 {
			return nil
		}
		nv := &Variable{
			Type:           SkipRef(s.Var.Type),
			Name:           s.Var.Name,
			RefEscapeScope: s.Var.RefEscapeScope,
		}
		fs := func(st Statement) (Statement, bool) {
			if st == Statement(s) {
				return &VarDeclStmt{Var: nv, Init: s.Init}, true
			}
			return nil, false
		}
		fe := func(e Expression) (Expression, bool) {
			if v, ok := e.(*VarExpr); ok && v.Var == s.Var {
				return &VarExpr{Var: nv}, true
			}
			return nil, false
		}
		return rewriteFunctionAt(p, fnIdx, fs, fe)
	})
}

func simpForToBlock(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*ForStmt)
	if !ok {
		return nil
	}
	return one(func() *Program {
		var stmts []Statement
		if s.Init != nil {
			stmts = append(stmts, s.Init)
		}
		stmts = append(stmts, s.Body)
		return ReplaceNode(p, n, &BlockStmt{Stmts: stmts})
	})
}

func simpFlattenBlock(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*BlockStmt)
	if !ok {
		return nil
	}
	return one(func() *Program {
		return ReplaceNode(p, n, &spliceStmts{Stmts: s.Stmts})
	})
}

func simpCombineDeclAssign(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*BlockStmt)
	if !ok {
		return nil
	}
	var out []candidateFn
	for i := 0; i+1 < len(s.Stmts); i++ {
		decl, ok := s.Stmts[i].(*VarDeclStmt)
		if !ok || decl.Ref || decl.Init != nil {
			continue
		}
		asg, ok := s.Stmts[i+1].(*AssignStmt)
		if !ok || asg.Op != AopAssign || asg.RefReassign {
			continue
		}
		lhs, ok := asg.Lhs.(*VarExpr)
		if !ok || lhs.Var != decl.Var {
			continue
		}
		idx := i
		out = append(out, func() *Program {
			stmts := make([]Statement, 0, len(s.Stmts)-1)
			stmts = append(stmts, s.Stmts[:idx]...)
			stmts = append(stmts, &VarDeclStmt{Var: decl.Var, Init: asg.Rhs})
			stmts = append(stmts, s.Stmts[idx+2:]...)
			return ReplaceNode(p, n, &BlockStmt{Stmts: stmts})
		})
	}
	return out
}

func simpInlineTrivialLocal(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*VarDeclStmt)
	if !ok || s.Init == nil {
		return nil
	}
	switch s.Init.(type) {
	case *VarExpr, *LiteralExpr:
	default:
		return nil
	}
	if s.Ref {
		if _, ok := s.Init.(*VarExpr); !ok {
			return nil
		}
	}
	return one(func() *Program {
		fnIdx := containingFunction(p, n)
		if fnIdx < 0 {
			return nil
		}
		fs := func(st Statement) (Statement, bool) {
			if st == Statement(s) {
				return nil, true
			}
			return nil, false
		}
		fe := func(e Expression) (Expression, bool) {
			if v, ok := e.(*VarExpr); ok && v.Var == s.Var {
				return s.Init, true
			}
			return nil, false
		}
		return rewriteFunctionAt(p, fnIdx, fs, fe)
	})
}

// simpInlineCall lifts a statically-called body into the call site when
// the callee has at most one return and it is terminal. Parameters become
// fresh locals and the body's own locals are alpha-renamed.
func simpInlineCall(r *Reducer, p *Program, n Node) []candidateFn {
	cs, ok := n.(*CallStmt)
	if !ok {
		return nil
	}
	callee := cs.Call.Callee
	if callee.Instance != nil || callee.Body == nil {
		return nil
	}
	returns := 0
	walkStmt(callee.Body, func(st Statement) {
		if _, ok := st.(*ReturnStmt); ok {
			returns++
		}
	}, nil)
	if returns > 1 {
		return nil
	}
	if returns == 1 {
		last := callee.Body.Stmts[len(callee.Body.Stmts)-1]
		if _, ok := last.(*ReturnStmt); !ok {
			return nil
		}
	}
	return one(func() *Program {
		counter := p.VarCounter
		fresh := func(t FuzzType) *Variable {
			v := &Variable{Type: t, Name: fmt.Sprintf("var%d", counter)}
			counter++
			return v
		}

		subst := make(map[*Variable]Expression)
		var decls []Statement
		for i, param := range callee.Params {
			v := fresh(param.Type)
			if ref, ok := cs.Call.Args[i].(*RefExpr); ok {
				decls = append(decls, &VarDeclStmt{Var: v, Init: ref.X, Ref: true})
			} else {
				decls = append(decls, &VarDeclStmt{Var: v, Init: cs.Call.Args[i]})
			}
			subst[param] = &VarExpr{Var: v}
		}

		renames := make(map[*Variable]*Variable)
		walkStmt(callee.Body, func(st Statement) {
			if d, ok := st.(*VarDeclStmt); ok {
				renames[d.Var] = fresh(d.Var.Type)
			}
		}, nil)

		fe := func(e Expression) (Expression, bool) {
			if v, ok := e.(*VarExpr); ok {
				if repl, ok := subst[v.Var]; ok {
					return repl, true
				}
				if nv, ok := renames[v.Var]; ok {
					return &VarExpr{Var: nv}, true
				}
			}
			return nil, false
		}
		fs := func(st Statement) (Statement, bool) {
			switch d := st.(type) {
			case *ReturnStmt:
				return nil, true
			case *VarDeclStmt:
				if nv, ok := renames[d.Var]; ok {
					return &VarDeclStmt{Var: nv, Init: rewriteExpr(d.Init, fe), Ref: d.Ref}, true
				}
			}
			return nil, false
		}

		body := asBlock(rewriteStmt(callee.Body, fs, fe))
		splice := &spliceStmts{Stmts: append(decls, body.Stmts...)}
		np := ReplaceNode(p, n, splice)
		np.VarCounter = counter
		return np
	})
}

func simpExtractArg(r *Reducer, p *Program, n Node) []candidateFn {
	cs, ok := n.(*CallStmt)
	if !ok {
		return nil
	}
	var out []candidateFn
	for i, arg := range cs.Call.Args {
		switch arg.(type) {
		case *RefExpr, *VarExpr, *LiteralExpr:
			continue
		}
		idx, a := i, arg
		out = append(out, func() *Program {
			v := &Variable{Type: a.Type(), Name: fmt.Sprintf("var%d", p.VarCounter)}
			nc := *cs.Call
			nc.Args = append([]Expression(nil), cs.Call.Args...)
			nc.Args[idx] = &VarExpr{Var: v}
			splice := &spliceStmts{Stmts: []Statement{
				&VarDeclStmt{Var: v, Init: a},
				&CallStmt{Call: &nc},
			}}
			np := ReplaceNode(p, n, splice)
			np.VarCounter = p.VarCounter + 1
			return np
		})
	}
	return out
}

// ---- expression simplifiers ----

func simpBinaryLeft(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*BinaryExpr)
	if !ok {
		return nil
	}
	return one(func() *Program { return ReplaceNode(p, n, s.L) })
}

func simpBinaryRight(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*BinaryExpr)
	if !ok {
		return nil
	}
	return one(func() *Program { return ReplaceNode(p, n, s.R) })
}

func simpRemoveCast(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*CastExpr)
	if !ok {
		return nil
	}
	return one(func() *Program { return ReplaceNode(p, n, s.X) })
}

func simpRemoveUnary(r *Reducer, p *Program, n Node) []candidateFn {
	switch s := n.(type) {
	case *UnaryExpr:
		return one(func() *Program { return ReplaceNode(p, n, s.X) })
	case *IncDecExpr:
		return one(func() *Program { return ReplaceNode(p, n, s.X) })
	}
	return nil
}

func simpArrayFirstElem(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*NewArrayExpr)
	if !ok || len(s.Elems) <= 1 {
		return nil
	}
	return one(func() *Program {
		return ReplaceNode(p, n, &NewArrayExpr{Arr: s.Arr, Elems: s.Elems[:1]})
	})
}

func simpSmallConstant(r *Reducer, p *Program, n Node) []candidateFn {
	s, ok := n.(*LiteralExpr)
	if !ok || !s.Ty.Integral {
		return nil
	}
	var out []candidateFn
	for _, v := range []int64{0, 1, -1} {
		if v == -1 && !s.Ty.Signed {
			continue
		}
		if s.SignedValue() == v {
			continue
		}
		val := v
		out = append(out, func() *Program {
			mask := ^uint64(0)
			if s.Ty.Bits < 64 {
				mask = (uint64(1) << s.Ty.Bits) - 1
			}
			return ReplaceNode(p, n, &LiteralExpr{Ty: s.Ty, Bits: uint64(val) & mask})
		})
	}
	return out
}

// ---- member simplifiers ----

func simpRemoveMethod(r *Reducer, p *Program, n Node) []candidateFn {
	m, ok := n.(*memberRef)
	if !ok || m.Fn == nil || m.FnIdx == 0 {
		return nil
	}
	return one(func() *Program {
		np := *p
		np.Functions = append([]*Function(nil), p.Functions[:m.FnIdx]...)
		np.Functions = append(np.Functions, p.Functions[m.FnIdx+1:]...)
		return &np
	})
}

func simpRemoveType(r *Reducer, p *Program, n Node) []candidateFn {
	m, ok := n.(*memberRef)
	if !ok || m.Type == nil {
		return nil
	}
	return one(func() *Program {
		np := *p
		np.Types = append([]FuzzType(nil), p.Types[:m.TypeIdx]...)
		np.Types = append(np.Types, p.Types[m.TypeIdx+1:]...)
		return &np
	})
}

func simpRemoveStatic(r *Reducer, p *Program, n Node) []candidateFn {
	m, ok := n.(*memberRef)
	if !ok || m.Static == nil {
		return nil
	}
	return one(func() *Program {
		np := *p
		np.Statics = append([]*StaticField(nil), p.Statics[:m.StaticIdx]...)
		np.Statics = append(np.Statics, p.Statics[m.StaticIdx+1:]...)
		np.TailChecksums = nil
		for _, cs := range p.TailChecksums {
			uses := false
			walkExpr(cs.Value, func(e Expression) {
				if v, ok := e.(*VarExpr); ok && v.Var == m.Static.Var {
					uses = true
				}
			})
			if !uses {
				np.TailChecksums = append(np.TailChecksums, cs)
			}
		}
		return &np
	})
}

func simpDropStaticInit(r *Reducer, p *Program, n Node) []candidateFn {
	m, ok := n.(*memberRef)
	if !ok || m.Static == nil || m.Static.Init == nil {
		return nil
	}
	return one(func() *Program {
		np := *p
		np.Statics = append([]*StaticField(nil), p.Statics...)
		nf := *m.Static
		nf.Init = nil
		np.Statics[m.StaticIdx] = &nf
		return &np
	})
}

// replaceAggregate swaps an aggregate for a modified copy everywhere the
// printer resolves it by pointer: the type list, instance methods, and
// object creations (optionally dropping constructor argument dropArg).
func replaceAggregate(p *Program, old, na *AggregateType, dropArg int) *Program {
	np := *p
	np.Types = append([]FuzzType(nil), p.Types...)
	for i, t := range np.Types {
		if t == FuzzType(old) {
			np.Types[i] = na
		}
	}
	np.Functions = append([]*Function(nil), p.Functions...)
	for i, fn := range np.Functions {
		if fn.Instance == old {
			nf := *fn
			nf.Instance = na
			np.Functions[i] = &nf
		}
	}
	// The rewriter references itself so creations nested inside kept
	// constructor arguments are covered too.
	var fe exprRewriter
	fe = func(e Expression) (Expression, bool) {
		no, ok := e.(*NewObjectExpr)
		if !ok || no.Agg != old {
			return nil, false
		}
		nn := &NewObjectExpr{Agg: na}
		for i, a := range no.Args {
			if i == dropArg {
				continue
			}
			nn.Args = append(nn.Args, rewriteExpr(a, fe))
		}
		return nn, true
	}
	return RewriteProgram(&np, nil, fe)
}

func simpRemoveField(r *Reducer, p *Program, n Node) []candidateFn {
	m, ok := n.(*memberRef)
	if !ok || m.Type == nil {
		return nil
	}
	agg, ok := m.Type.(*AggregateType)
	if !ok {
		return nil
	}
	var out []candidateFn
	for i := range agg.Fields {
		idx := i
		out = append(out, func() *Program {
			na := *agg
			na.Fields = append([]Field(nil), agg.Fields[:idx]...)
			na.Fields = append(na.Fields, agg.Fields[idx+1:]...)
			return replaceAggregate(p, agg, &na, idx)
		})
	}
	return out
}

func simpStructThisInit(r *Reducer, p *Program, n Node) []candidateFn {
	m, ok := n.(*memberRef)
	if !ok || m.Type == nil {
		return nil
	}
	agg, ok := m.Type.(*AggregateType)
	if !ok || agg.IsClass || agg.HasThisInitializer || len(agg.Fields) == 0 {
		return nil
	}
	return one(func() *Program {
		na := *agg
		na.HasThisInitializer = true
		return replaceAggregate(p, agg, &na, -1)
	})
}

func simpRemoveParam(r *Reducer, p *Program, n Node) []candidateFn {
	m, ok := n.(*memberRef)
	if !ok || m.Fn == nil || len(m.Fn.Params) == 0 {
		return nil
	}
	fn := m.Fn
	var out []candidateFn
	for i := range fn.Params {
		idx := i
		out = append(out, func() *Program {
			nf := *fn
			nf.Params = append([]*Variable(nil), fn.Params[:idx]...)
			nf.Params = append(nf.Params, fn.Params[idx+1:]...)
			np := *p
			np.Functions = append([]*Function(nil), p.Functions...)
			np.Functions[m.FnIdx] = &nf
			var fe exprRewriter
			fe = func(e Expression) (Expression, bool) {
				c, ok := e.(*CallExpr)
				if !ok || c.Callee != fn || len(c.Args) != len(fn.Params) {
					return nil, false
				}
				nc := *c
				nc.Callee = &nf
				nc.Args = nil
				for j, a := range c.Args {
					if j == idx {
						continue
					}
					nc.Args = append(nc.Args, rewriteExpr(a, fe))
				}
				return &nc, true
			}
			return RewriteProgram(&np, nil, fe)
		})
	}
	return out
}

func simpMethodToVoid(r *Reducer, p *Program, n Node) []candidateFn {
	m, ok := n.(*memberRef)
	if !ok || m.Fn == nil || m.Fn.ReturnType == nil {
		return nil
	}
	return one(func() *Program {
		fs := func(st Statement) (Statement, bool) {
			if _, ok := st.(*ReturnStmt); ok {
				return &ReturnStmt{}, true
			}
			return nil, false
		}
		np := rewriteFunctionAt(p, m.FnIdx, fs, nil)
		np.Functions[m.FnIdx].ReturnType = nil
		return np
	})
}

func simpMoveMethodStatic(r *Reducer, p *Program, n Node) []candidateFn {
	m, ok := n.(*memberRef)
	if !ok || m.Fn == nil || m.Fn.Instance == nil {
		return nil
	}
	fn := m.Fn
	return one(func() *Program {
		thisVar := &Variable{Type: fn.Instance, Name: "thisArg"}
		nf := *fn
		nf.Instance = nil
		nf.Params = append([]*Variable{thisVar}, fn.Params...)
		nf.Body = asBlock(substituteInStmt(fn.Body, nil, &VarExpr{Var: thisVar}))
		np := *p
		np.Functions = append([]*Function(nil), p.Functions...)
		np.Functions[m.FnIdx] = &nf
		var fe exprRewriter
		fe = func(e Expression) (Expression, bool) {
			c, ok := e.(*CallExpr)
			if !ok || c.Callee != fn || c.Recv == nil {
				return nil, false
			}
			nc := *c
			nc.Callee = &nf
			nc.Args = append([]Expression{rewriteExpr(c.Recv, fe)}, c.Args...)
			for i := 1; i < len(nc.Args); i++ {
				nc.Args[i] = rewriteExpr(nc.Args[i], fe)
			}
			nc.Recv = nil
			return &nc, true
		}
		return RewriteProgram(&np, nil, fe)
	})
}

package fuzzlyn

import (
	"fmt"
	"math"
)

// StatementKind indexes the statement weight table.
type StatementKind int

const (
	StmtAssign StatementKind = iota
	StmtBlock
	StmtCall
	StmtIf
	StmtReturn
	StmtTryFinally
	StmtLoop
)

// ExpressionKind indexes the expression weight table.
type ExpressionKind int

const (
	ExprMemberAccess ExpressionKind = iota
	ExprLiteral
	ExprUnary
	ExprBinary
	ExprCall
	ExprIncrement
	ExprDecrement
	ExprNewObject
)

const anyEscape = math.MinInt32

// Synthesizer is the type-directed program generator. One instance serves
// one seed; all randomness flows through the single Rng stream.
type Synthesizer struct {
	opts     *Options
	rng      *Rng
	universe *TypeUniverse
	statics  *StaticsPool
	lits     *LiteralGenerator
	prog     *Program

	totalStatements int
}

// GenerateProgram synthesizes a complete well-typed abstract program for
// the given options. The result is deterministic per seed.
func GenerateProgram(opts *Options) (*Program, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	rng := NewRng(opts.Seed)
	universe := NewTypeUniverse(opts, rng)
	universe.GenerateTypes()
	lits := NewLiteralGenerator(opts, rng)
	statics := NewStaticsPool(rng, universe, lits)

	prog := &Program{
		PrimaryClassName: "Program",
		Checksumming:     opts.Checksumming,
		Seed:             opts.Seed,
		Types:            universe.OrderedTypes(),
	}
	s := &Synthesizer{
		opts:     opts,
		rng:      rng,
		universe: universe,
		statics:  statics,
		lits:     lits,
		prog:     prog,
	}

	entry := s.newFunction(nil, true)
	s.generateFunctionBody(entry, opts.SingleFunctionMaxTotalCalls)

	prog.Statics = statics.Fields
	if prog.Checksumming {
		s.emitTailChecksums()
	}
	return prog, nil
}

// newFunction appends a fresh function. Appending before body generation
// keeps indices consistent with the forward-only call rule: a callee
// created from inside a body always has a strictly greater index.
func (s *Synthesizer) newFunction(requestedReturn FuzzType, isEntry bool) *Function {
	fn := &Function{
		Index:      len(s.prog.Functions),
		Name:       fmt.Sprintf("M%d", len(s.prog.Functions)),
		CallCounts: make(map[int]int64),
	}
	s.prog.Functions = append(s.prog.Functions, fn)
	if isEntry {
		return fn
	}

	if requestedReturn != nil {
		fn.ReturnType = requestedReturn
	} else if !s.rng.FlipCoin(s.opts.ReturnVoidProb) {
		fn.ReturnType = s.universe.PickType(s.opts.ReturnTypeIsRefProb)
	}

	if s.rng.FlipCoin(s.opts.InstanceMethodProb) {
		if classes := s.classAggregates(); len(classes) > 0 {
			fn.Instance = PickElement(s.rng, classes)
		}
	}

	numParams := s.opts.FuncParamCountDist.Sample(s.rng)
	for i := 0; i < numParams; i++ {
		t := s.universe.PickType(s.opts.ParamIsRefProb)
		escape := 0
		if _, isRef := t.(*RefType); isRef {
			escape = EscapeCaller
		}
		fn.Params = append(fn.Params, &Variable{
			Type:           t,
			Name:           fmt.Sprintf("arg%d", i),
			RefEscapeScope: escape,
		})
	}
	return fn
}

func (s *Synthesizer) classAggregates() []*AggregateType {
	var out []*AggregateType
	for _, a := range s.universe.Aggregates {
		if a.IsClass {
			out = append(out, a)
		}
	}
	return out
}

func (s *Synthesizer) generateFunctionBody(fn *Function, budget int64) {
	g := &funcGen{s: s, fn: fn, budget: budget}
	fn.Body = g.genBlock(fn.Params, true, -1)
}

// funcGen tracks the mutable per-function generation state: the scope
// stack, the finally-nesting counter that forbids returns, and the cap on
// the function's summed transitive call count.
type funcGen struct {
	s  *Synthesizer
	fn *Function

	scopes       []*scopeFrame
	finallyCount int
	budget       int64
}

type scopeFrame struct {
	vars []*Variable
}

func (g *funcGen) pushScope(preseed []*Variable) *scopeFrame {
	f := &scopeFrame{vars: append([]*Variable(nil), preseed...)}
	g.scopes = append(g.scopes, f)
	return f
}

func (g *funcGen) popScope() {
	g.scopes = g.scopes[:len(g.scopes)-1]
}

func (g *funcGen) registerLocal(v *Variable) {
	f := g.scopes[len(g.scopes)-1]
	f.vars = append(f.vars, v)
}

// localEscape is the escape scope of a local declared in the innermost
// frame: the negative depth of the scope stack.
func (g *funcGen) localEscape() int {
	return -len(g.scopes)
}

func (g *funcGen) nextVarName() string {
	name := fmt.Sprintf("var%d", g.s.prog.VarCounter)
	g.s.prog.VarCounter++
	return name
}

// genBlock generates a block. targetCount < 0 samples the block statement
// distribution. The loop ends on the first return produced; the entry
// function's root block additionally runs until the global statement count
// reaches the configured minimum.
func (g *funcGen) genBlock(preseed []*Variable, root bool, targetCount int) *BlockStmt {
	frame := g.pushScope(preseed)
	if targetCount < 0 {
		targetCount = g.s.opts.BlockStatementCountDist.Sample(g.s.rng)
	}

	var stmts []Statement
	returned := false
	for i := 0; !returned; i++ {
		if i >= targetCount {
			if !(root && g.fn.Index == 0 && g.s.totalStatements < g.s.opts.ProgramMinStatements) {
				break
			}
		}
		st := g.genStatement(root)
		if st == nil {
			break
		}
		stmts = append(stmts, st)
		if _, ok := st.(*ReturnStmt); ok {
			returned = true
		}
	}

	if root && g.fn.ReturnType != nil && !returned {
		stmts = append(stmts, g.genReturn())
		returned = true
	}

	if g.s.prog.Checksumming {
		sums := g.checksumFrame(frame)
		if returned && len(stmts) > 0 {
			last := stmts[len(stmts)-1]
			stmts = append(stmts[:len(stmts)-1:len(stmts)-1], sums...)
			stmts = append(stmts, last)
		} else {
			stmts = append(stmts, sums...)
		}
	}

	g.popScope()
	return &BlockStmt{Stmts: stmts}
}

func (g *funcGen) genStatement(root bool) Statement {
	depth := len(g.scopes)
	for attempt := 0; attempt < 20; attempt++ {
		kind := StatementKind(g.s.opts.StatementKindDist.Sample(g.s.rng))
		switch kind {
		case StmtAssign:
			if st := g.genAssignment(); st != nil {
				g.s.totalStatements++
				return st
			}
		case StmtBlock:
			if !g.s.opts.Recursion.Allow(g.s.rng, depth) {
				continue
			}
			g.s.totalStatements++
			return g.genBlock(nil, false, -1)
		case StmtCall:
			if st := g.genCallStatement(); st != nil {
				g.s.totalStatements++
				return st
			}
		case StmtIf:
			if !g.s.opts.Recursion.Allow(g.s.rng, depth) {
				continue
			}
			g.s.totalStatements++
			return g.genIf()
		case StmtReturn:
			if root || g.finallyCount > 0 {
				continue
			}
			g.s.totalStatements++
			return g.genReturn()
		case StmtTryFinally:
			if !g.s.opts.Recursion.Allow(g.s.rng, depth) {
				continue
			}
			g.s.totalStatements++
			return g.genTryFinally()
		case StmtLoop:
			if !g.s.opts.Recursion.Allow(g.s.rng, depth) {
				continue
			}
			g.s.totalStatements++
			return g.genLoop()
		}
	}
	return nil
}

// genAssignment implements the assignment scheme: a fresh local or static
// with some probability, otherwise mutation of an existing l-value, with
// ref-reassignment and compound-operator variants.
func (g *funcGen) genAssignment() Statement {
	if g.s.rng.FlipCoin(g.s.opts.AssignToNewVarProb) {
		t := g.s.universe.PickType(g.s.opts.LocalIsRefProb)
		if refTy, isRef := t.(*RefType); isRef {
			if lv := g.genLValue(refTy.Inner, anyEscape); lv != nil {
				v := &Variable{
					Type:           t,
					Name:           g.nextVarName(),
					RefEscapeScope: lv.RefEscapeScope,
				}
				g.registerLocal(v)
				return &VarDeclStmt{Var: v, Init: lv.Expr, Ref: true}
			}
			t = refTy.Inner
		}
		if g.s.rng.FlipCoin(g.s.opts.NewVarIsLocalProb) {
			v := &Variable{
				Type:           t,
				Name:           g.nextVarName(),
				RefEscapeScope: g.localEscape(),
			}
			init := g.genExpression(t, 0)
			g.registerLocal(v)
			return &VarDeclStmt{Var: v, Init: init}
		}
		f := g.s.statics.GenerateNewField(t)
		return &AssignStmt{
			Lhs: &VarExpr{Var: f.Var},
			Op:  AopAssign,
			Rhs: g.genExpression(t, 0),
		}
	}

	lv := g.genAssignableLValue()
	if lv == nil {
		return nil
	}
	if refTy, isRef := lv.Type.(*RefType); isRef && g.s.rng.FlipCoin(g.s.opts.RefReassignProb) {
		// Re-pointing a ref local requires the source to live at least as
		// long as the ref itself.
		if src := g.genLValue(refTy.Inner, lv.RefEscapeScope); src != nil {
			return &AssignStmt{Lhs: lv.Expr, Op: AopAssign, Rhs: src.Expr, RefReassign: true}
		}
	}

	effType := SkipRef(lv.Type)
	prim, isPrim := effType.(*PrimitiveType)
	if isPrim && g.s.rng.FlipCoin(g.s.opts.CompoundAssignmentProb) {
		if st := g.genCompoundAssignment(lv, prim); st != nil {
			return st
		}
	}
	return &AssignStmt{Lhs: lv.Expr, Op: AopAssign, Rhs: g.genExpression(effType, 0)}
}

func (g *funcGen) genCompoundAssignment(lv *LValueInfo, prim *PrimitiveType) Statement {
	var ops []AssignOp
	switch {
	case prim.Kind == KindBool:
		ops = []AssignOp{AopAnd, AopOr, AopXor}
	case prim.Integral:
		ops = []AssignOp{
			AopAdd, AopSub, AopMul, AopDiv, AopMod,
			AopAnd, AopOr, AopXor, AopLsh, AopRsh,
			AopPreInc, AopPreDec, AopPostInc, AopPostDec,
		}
	default:
		ops = []AssignOp{AopAdd, AopSub, AopMul, AopDiv, AopPreInc, AopPreDec, AopPostInc, AopPostDec}
	}
	op := PickElement(g.s.rng, ops)
	if op.IsIncDec() {
		return &AssignStmt{Lhs: lv.Expr, Op: op}
	}
	var rhs Expression
	switch {
	case op == AopLsh || op == AopRsh:
		rhs = g.genExpression(Primitive(KindInt), 0)
	case (op == AopDiv || op == AopMod) && prim.Integral:
		rhs = g.divisorGuard(g.genExpression(prim, 1), prim.Kind)
	default:
		rhs = g.genExpression(prim, 0)
	}
	return &AssignStmt{Lhs: lv.Expr, Op: op, Rhs: rhs}
}

// divisorGuard wraps a divisor as (T)((rhs) | 1) so the generated program
// can never divide by zero.
func (g *funcGen) divisorGuard(rhs Expression, kind PrimKind) Expression {
	res, ok := binaryNumericResult(kind, kind)
	if !ok {
		res = kind
	}
	one := &LiteralExpr{Ty: Primitive(kind), Bits: 1}
	ored := &BinaryExpr{Op: OpOr, L: rhs, R: one, Ty: Primitive(res)}
	return &CastExpr{Ty: Primitive(kind), X: ored}
}

func (g *funcGen) genReturn() Statement {
	rt := g.fn.ReturnType
	if rt == nil {
		return &ReturnStmt{}
	}
	if refTy, isRef := rt.(*RefType); isRef {
		// Returning by ref requires the value to outlive this frame.
		lv := g.genLValue(refTy.Inner, EscapeCaller)
		if lv == nil {
			f := g.s.statics.GenerateNewField(refTy.Inner)
			lv = &LValueInfo{
				Expr:           &VarExpr{Var: f.Var},
				Type:           f.Var.Type,
				RefEscapeScope: EscapeGlobal,
			}
		}
		return &ReturnStmt{Value: lv.Expr, Ref: true}
	}
	return &ReturnStmt{Value: g.genExpression(rt, 0)}
}

func (g *funcGen) genIf() Statement {
	var cond Expression
	for i := 0; i < 20; i++ {
		cond = g.genExpression(Primitive(KindBool), 0)
		if !isLiteralExpr(cond) {
			break
		}
	}
	st := &IfStmt{Cond: cond, Then: g.genBlock(nil, false, -1)}
	if g.s.rng.FlipCoin(g.s.opts.ElseBranchProb) {
		st.Else = g.genBlock(nil, false, -1)
	}
	return st
}

func (g *funcGen) genTryFinally() Statement {
	total := g.s.opts.BlockStatementCountDist.Sample(g.s.rng)
	tryCount := g.s.rng.NextInRange(0, total)
	try := g.genBlock(nil, false, tryCount)
	g.finallyCount++
	fin := g.genBlock(nil, false, total-tryCount)
	g.finallyCount--
	return &TryFinallyStmt{Try: try, Finally: fin}
}

func (g *funcGen) genLoop() Statement {
	v := &Variable{
		Type:           Primitive(KindInt),
		Name:           g.nextVarName(),
		RefEscapeScope: -(len(g.scopes) + 1),
		ReadOnly:       true,
	}
	init := &VarDeclStmt{Var: v, Init: &LiteralExpr{Ty: Primitive(KindInt), Bits: 0}}
	cond := &BinaryExpr{
		Op: OpLt,
		L:  &VarExpr{Var: v},
		R:  &LiteralExpr{Ty: Primitive(KindInt), Bits: 2},
		Ty: Primitive(KindBool),
	}
	post := &AssignStmt{Lhs: &VarExpr{Var: v}, Op: AopPostInc}
	body := g.genBlock([]*Variable{v}, false, -1)
	return &ForStmt{Init: init, Cond: cond, Post: post, Body: body}
}

func (g *funcGen) genCallStatement() Statement {
	call, _ := g.genCall(nil, 0, anyEscape)
	if call == nil {
		return nil
	}
	return &CallStmt{Call: call}
}

// genCall builds a call producing requested (nil accepts anything,
// including void). minRefEscape constrains by-ref arguments when the
// result is itself used as a ref l-value; the second return value is the
// conservative escape scope of the returned ref.
func (g *funcGen) genCall(requested FuzzType, depth int, minRefEscape int) (*CallExpr, int) {
	var callee *Function
	budgetLeft := g.budget - g.ownTotalCalls()

	if g.s.rng.FlipCoin(g.s.opts.GenNewFunctionProb) &&
		len(g.s.prog.Functions) < g.s.opts.MaxFunctions && budgetLeft > 1 {
		callee = g.s.newFunction(requested, false)
		g.s.generateFunctionBody(callee, budgetLeft-1)
	} else {
		var cands []*Function
		for _, f := range g.s.prog.Functions {
			if f.Index <= g.fn.Index || f.Body == nil {
				continue
			}
			if f.transitiveTotal()+1 > budgetLeft {
				continue
			}
			if !returnCompatible(f, requested) {
				continue
			}
			cands = append(cands, f)
		}
		if len(cands) > 0 {
			callee = PickElement(g.s.rng, cands)
		} else if len(g.s.prog.Functions) < g.s.opts.MaxFunctions && budgetLeft > 1 {
			callee = g.s.newFunction(requested, false)
			g.s.generateFunctionBody(callee, budgetLeft-1)
		} else {
			return nil, 0
		}
	}

	// Fold the callee's transitive counts into the caller's table before
	// generating arguments, so calls nested in them see the reduced budget.
	g.fn.CallCounts[callee.Index]++
	for idx, n := range callee.CallCounts {
		g.fn.CallCounts[idx] += n
	}

	call := &CallExpr{Callee: callee}
	if callee.Instance != nil {
		call.Recv = g.genExpression(callee.Instance, depth+1)
	} else {
		call.Qualify = g.s.rng.FlipCoin(g.s.opts.QualifyStaticCallProb)
	}

	// The min escape of any by-ref argument bounds where the returned ref
	// may legally escape (conservative aliasing).
	resultEscape := EscapeGlobal
	for _, p := range callee.Params {
		if refTy, isRef := p.Type.(*RefType); isRef {
			lv := g.genLValue(refTy.Inner, minRefEscape)
			if lv == nil {
				f := g.s.statics.GenerateNewField(refTy.Inner)
				lv = &LValueInfo{
					Expr:           &VarExpr{Var: f.Var},
					Type:           f.Var.Type,
					RefEscapeScope: EscapeGlobal,
				}
			}
			if lv.RefEscapeScope < resultEscape {
				resultEscape = lv.RefEscapeScope
			}
			call.Args = append(call.Args, &RefExpr{X: lv.Expr})
		} else {
			call.Args = append(call.Args, g.genExpression(p.Type, depth+1))
		}
	}
	return call, resultEscape
}

func (g *funcGen) ownTotalCalls() int64 {
	var total int64
	for _, n := range g.fn.CallCounts {
		total += n
	}
	return total
}

func (f *Function) transitiveTotal() int64 {
	var total int64 = 1
	for _, n := range f.CallCounts {
		total += n
	}
	return total
}

func returnCompatible(f *Function, requested FuzzType) bool {
	if requested == nil {
		return true
	}
	if f.ReturnType == nil {
		return false
	}
	return IsImplicitlyConvertible(SkipRef(f.ReturnType), requested)
}

// genExpression produces a well-typed expression of type t; a call may
// instead have a return type that is only implicitly convertible to t.
func (g *funcGen) genExpression(t FuzzType, depth int) Expression {
	t = SkipRef(t)
	for attempt := 0; attempt < 20; attempt++ {
		kind := ExpressionKind(g.s.opts.ExpressionKindDist.Sample(g.s.rng))
		switch kind {
		case ExprBinary, ExprUnary, ExprCall, ExprNewObject:
			if !g.s.opts.Recursion.Allow(g.s.rng, depth) {
				kind = ExprLiteral
			}
		}
		switch kind {
		case ExprMemberAccess:
			if e := g.genMemberAccess(t); e != nil {
				return e
			}
		case ExprLiteral:
			return g.s.lits.Literal(t)
		case ExprUnary:
			if prim, ok := t.(*PrimitiveType); ok {
				return g.genUnary(prim, depth)
			}
		case ExprBinary:
			if prim, ok := t.(*PrimitiveType); ok {
				if e := g.genBinary(prim, depth); e != nil {
					return e
				}
			}
		case ExprCall:
			if call, _ := g.genCall(t, depth, anyEscape); call != nil {
				return call
			}
		case ExprIncrement, ExprDecrement:
			if prim, ok := t.(*PrimitiveType); ok && prim.IsNumeric() {
				if lv := g.genExactLValue(prim); lv != nil {
					return &IncDecExpr{X: lv.Expr, Dec: kind == ExprDecrement}
				}
			}
		case ExprNewObject:
			switch ty := t.(type) {
			case *AggregateType:
				return g.genNewObject(ty, depth)
			case *InterfaceType:
				if len(ty.Implementers) > 0 {
					return g.genNewObject(PickElement(g.s.rng, ty.Implementers), depth)
				}
			}
		}
	}
	return g.s.lits.Literal(t)
}

func (g *funcGen) genNewObject(agg *AggregateType, depth int) Expression {
	args := make([]Expression, len(agg.Fields))
	for i, f := range agg.Fields {
		args[i] = g.genExpression(f.Type, depth+1)
	}
	return &NewObjectExpr{Agg: agg, Args: args}
}

func (g *funcGen) genUnary(t *PrimitiveType, depth int) Expression {
	entries := UnOpTable[t.Kind]
	if len(entries) > 0 {
		e := PickElement(g.s.rng, entries)
		return &UnaryExpr{Op: e.Op, X: g.genExpression(Primitive(e.Operand), depth+1), Ty: t}
	}
	e := PickElement(g.s.rng, AllUnOps)
	inner := &UnaryExpr{Op: e.Op, X: g.genExpression(Primitive(e.Operand), depth+1), Ty: Primitive(e.Result)}
	return &CastExpr{Ty: t, X: inner}
}

// genBinary picks an operator shape from the table and wraps the result
// in a cast when no operator naturally produces the requested keyword.
// literal-op-literal pairs are refused: the host compiler would constant
// fold them and may reject compile-time overflow.
func (g *funcGen) genBinary(t *PrimitiveType, depth int) Expression {
	entries := BinOpTable[t.Kind]
	needCast := len(entries) == 0
	var e BinOpEntry
	if needCast {
		e = PickElement(g.s.rng, AllBinOps)
	} else {
		e = PickElement(g.s.rng, entries)
	}

	var l, r Expression
	ok := false
	for tries := 0; tries < 10; tries++ {
		l = g.genExpression(Primitive(e.Left), depth+1)
		r = g.genExpression(Primitive(e.Right), depth+1)
		if !isLiteralExpr(l) || !isLiteralExpr(r) {
			ok = true
			break
		}
	}
	if !ok {
		return nil
	}
	if e.Op.IsDivision() {
		if Primitive(e.Right).Integral {
			r = g.divisorGuard(r, e.Right)
		} else if rp, ok := SkipRef(r.Type()).(*PrimitiveType); ok && rp.Integral {
			r = g.divisorGuard(r, rp.Kind)
		}
	}
	var expr Expression = &BinaryExpr{Op: e.Op, L: l, R: r, Ty: Primitive(e.Result)}
	if needCast || e.Result != t.Kind {
		expr = &CastExpr{Ty: t, X: expr}
	}
	return expr
}

func isLiteralExpr(e Expression) bool {
	_, ok := e.(*LiteralExpr)
	return ok
}

// ---- l-values ----

// genMemberAccess returns a random visible path of exactly type t.
func (g *funcGen) genMemberAccess(t FuzzType) Expression {
	cands := g.collectPaths(func(lv *LValueInfo) bool {
		return TypesEqual(SkipRef(lv.Type), t)
	}, anyEscape)
	if len(cands) == 0 {
		return nil
	}
	return PickElement(g.s.rng, cands).Expr
}

// genAssignableLValue picks any writable visible path.
func (g *funcGen) genAssignableLValue() *LValueInfo {
	cands := g.collectPaths(func(lv *LValueInfo) bool {
		return !lv.ReadOnly
	}, anyEscape)
	if len(cands) == 0 {
		return nil
	}
	return PickElement(g.s.rng, cands)
}

// genExactLValue picks a writable path of exactly type t.
func (g *funcGen) genExactLValue(t FuzzType) *LValueInfo {
	cands := g.collectPaths(func(lv *LValueInfo) bool {
		return !lv.ReadOnly && TypesEqual(SkipRef(lv.Type), t)
	}, anyEscape)
	if len(cands) == 0 {
		return nil
	}
	return PickElement(g.s.rng, cands)
}

// genLValue picks an l-value of value type t whose ref-escape scope is at
// least minEscape; candidates below the bound are filtered out.
func (g *funcGen) genLValue(t FuzzType, minEscape int) *LValueInfo {
	cands := g.collectPaths(func(lv *LValueInfo) bool {
		return !lv.ReadOnly && TypesEqual(SkipRef(lv.Type), t)
	}, minEscape)
	if len(cands) == 0 {
		return nil
	}
	return PickElement(g.s.rng, cands)
}

// collectPaths enumerates every l-value path reachable from visible
// variables: statics, the receiver, parameters and locals, descending
// into aggregate fields and array element 0.
func (g *funcGen) collectPaths(pred func(*LValueInfo) bool, minEscape int) []*LValueInfo {
	var out []*LValueInfo
	add := func(lv *LValueInfo) {
		if lv.RefEscapeScope >= minEscape && pred(lv) {
			out = append(out, lv)
		}
	}

	for _, f := range g.s.statics.Fields {
		g.expandPaths(&LValueInfo{
			Expr:           &VarExpr{Var: f.Var},
			Type:           f.Var.Type,
			RefEscapeScope: EscapeGlobal,
		}, 0, add)
	}
	if g.fn.Instance != nil {
		g.expandPaths(&LValueInfo{
			Expr:           &ThisExpr{Agg: g.fn.Instance},
			Type:           g.fn.Instance,
			RefEscapeScope: 0,
			ReadOnly:       true,
		}, 0, add)
	}
	// Parameters are preseeded into the root frame, so walking the scope
	// stack covers them too.
	for _, frame := range g.scopes {
		for _, v := range frame.vars {
			g.expandPaths(&LValueInfo{
				Expr:           &VarExpr{Var: v},
				Type:           v.Type,
				RefEscapeScope: v.RefEscapeScope,
				ReadOnly:       v.ReadOnly,
			}, 0, add)
		}
	}
	return out
}

// expandPaths visits base and all member paths under it. Stepping through
// a class or an array lands on the heap, so those paths escape globally
// and shed any readonly restriction of the root.
func (g *funcGen) expandPaths(base *LValueInfo, depth int, visit func(*LValueInfo)) {
	visit(base)
	if depth >= 3 {
		return
	}
	switch ty := SkipRef(base.Type).(type) {
	case *AggregateType:
		for _, f := range ty.Fields {
			escape := base.RefEscapeScope
			readOnly := base.ReadOnly
			if ty.IsClass {
				escape = EscapeGlobal
				readOnly = false
			}
			g.expandPaths(&LValueInfo{
				Expr:           &FieldExpr{Recv: base.Expr, Field: f.Name, Ty: f.Type},
				Type:           f.Type,
				RefEscapeScope: escape,
				ReadOnly:       readOnly,
			}, depth+1, visit)
		}
	case *ArrayType:
		g.expandPaths(&LValueInfo{
			Expr: &IndexExpr{
				Recv:  base.Expr,
				Index: &LiteralExpr{Ty: Primitive(KindInt), Bits: 0},
				Ty:    ty.Elem,
			},
			Type:           ty.Elem,
			RefEscapeScope: EscapeGlobal,
		}, depth+1, visit)
	}
}

// ---- checksum instrumentation ----

// checksumFrame emits one checksum statement for every primitive-typed
// leaf path reachable from the frame's variables.
func (g *funcGen) checksumFrame(frame *scopeFrame) []Statement {
	var out []Statement
	for _, v := range frame.vars {
		base := Expression(&VarExpr{Var: v})
		g.s.checksumLeaves(base, SkipRef(v.Type), 0, &out)
	}
	return out
}

func (s *Synthesizer) checksumLeaves(expr Expression, t FuzzType, depth int, out *[]Statement) {
	switch ty := SkipRef(t).(type) {
	case *PrimitiveType:
		*out = append(*out, &ChecksumStmt{SiteID: s.nextSiteID(), Value: expr})
	case *AggregateType:
		if depth >= 3 {
			return
		}
		for _, f := range ty.Fields {
			s.checksumLeaves(&FieldExpr{Recv: expr, Field: f.Name, Ty: f.Type}, f.Type, depth+1, out)
		}
	case *ArrayType:
		if depth >= 3 {
			return
		}
		elem := &IndexExpr{
			Recv:  expr,
			Index: &LiteralExpr{Ty: Primitive(KindInt), Bits: 0},
			Ty:    ty.Elem,
		}
		s.checksumLeaves(elem, ty.Elem, depth+1, out)
	}
}

func (s *Synthesizer) nextSiteID() string {
	id := fmt.Sprintf("c_%d", s.prog.SiteCounter)
	s.prog.SiteCounter++
	return id
}

// emitTailChecksums records the entry point's checksums of every static
// field; site ids continue the program-wide monotonic sequence.
func (s *Synthesizer) emitTailChecksums() {
	var out []Statement
	for _, f := range s.prog.Statics {
		s.checksumLeaves(&VarExpr{Var: f.Var}, f.Var.Type, 0, &out)
	}
	for _, st := range out {
		s.prog.TailChecksums = append(s.prog.TailChecksums, st.(*ChecksumStmt))
	}
}

package fuzzlyn

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotInteresting aborts reduction of a program that never diverged.
	ErrNotInteresting = errors.New("program has no errors; nothing to reduce")
	// ErrInitialTimeout aborts reduction of a hanging program: a hang
	// cannot be told apart from a slow candidate.
	ErrInitialTimeout = errors.New("program times out; hangs cannot be reduced")
)

// Reducer shrinks an abstract program while the interestingness predicate
// keeps holding. All rewrites are purely functional: a candidate that
// fails the predicate leaves no trace, including its variable names.
type Reducer struct {
	Original      *Program
	IsInteresting func(*Program) bool

	rng     *Rng
	current *Program

	originalKiB float64
}

func NewReducer(p *Program, pred func(*Program) bool) *Reducer {
	return &Reducer{
		Original:      p,
		IsInteresting: pred,
		rng:           NewRng(p.Seed),
		originalKiB:   sourceKiB(p),
	}
}

func sourceKiB(p *Program) float64 {
	return float64(len(Print(p, time.Unix(0, 0).UTC()))) / 1024
}

// Reduce runs the coarse pass once and then the fine fixed-point loop.
func (r *Reducer) Reduce() (*Program, error) {
	if !r.IsInteresting(r.Original) {
		return nil, ErrNotInteresting
	}
	r.current = r.Original

	r.coarseLiftVariables()
	r.coarseRemoveStatements()

	for iter := 0; ; iter++ {
		late := iter > 0
		changed := false
		if r.passNodes(classStatement, late) {
			changed = true
		}
		if r.passNodes(classExpression, late) {
			changed = true
		}
		if r.passNodes(classMember, late) {
			changed = true
		}
		if !changed {
			break
		}
	}
	return r.current, nil
}

// Current exposes the working tree, for diagnostics and tests.
func (r *Reducer) Current() *Program { return r.current }

// ---- coarse pass ----

// coarseLiftVariables rewrites, per method, every initialized non-ref
// local declaration into an assignment with a default-initialized
// declaration lifted to the top of the method. The whole-method result is
// kept only when still interesting. This frees the statement remover to
// delete def sites without breaking later uses.
func (r *Reducer) coarseLiftVariables() {
	for idx := range r.current.Functions {
		np := liftFunctionDecls(r.current, idx)
		if np != nil && r.IsInteresting(np) {
			r.current = np
		}
	}
}

func liftFunctionDecls(p *Program, fnIdx int) *Program {
	fn := p.Functions[fnIdx]
	if fn.Body == nil {
		return nil
	}
	decls := blockLevelDecls(fn.Body)
	if len(decls) == 0 {
		return nil
	}
	declSet := make(map[*VarDeclStmt]bool, len(decls))
	for _, d := range decls {
		declSet[d] = true
	}
	fs := func(st Statement) (Statement, bool) {
		if d, ok := st.(*VarDeclStmt); ok && declSet[d] {
			return &AssignStmt{Lhs: &VarExpr{Var: d.Var}, Op: AopAssign, Rhs: d.Init}, true
		}
		return nil, false
	}
	np := rewriteFunctionAt(p, fnIdx, fs, nil)
	lifted := make([]Statement, 0, len(decls)+len(np.Functions[fnIdx].Body.Stmts))
	for _, d := range decls {
		lifted = append(lifted, &VarDeclStmt{Var: d.Var, Init: ZeroLiteral(SkipRef(d.Var.Type))})
	}
	lifted = append(lifted, np.Functions[fnIdx].Body.Stmts...)
	np.Functions[fnIdx].Body = &BlockStmt{Stmts: lifted}
	return np
}

// blockLevelDecls collects initialized non-ref declarations appearing
// directly in blocks; for-loop induction declarations stay put.
func blockLevelDecls(body *BlockStmt) []*VarDeclStmt {
	var out []*VarDeclStmt
	var visit func(b *BlockStmt)
	visit = func(b *BlockStmt) {
		for _, st := range b.Stmts {
			switch s := st.(type) {
			case *VarDeclStmt:
				if !s.Ref && s.Init != nil {
					out = append(out, s)
				}
			case *BlockStmt:
				visit(s)
			case *IfStmt:
				visit(s.Then)
				if s.Else != nil {
					visit(s.Else)
				}
			case *TryFinallyStmt:
				visit(s.Try)
				visit(s.Finally)
			case *ForStmt:
				visit(s.Body)
			}
		}
	}
	visit(body)
	return out
}

// rewriteFunctionAt applies the rewriters to a single function body.
func rewriteFunctionAt(p *Program, fnIdx int, fs stmtRewriter, fe exprRewriter) *Program {
	np := *p
	np.Functions = append([]*Function(nil), p.Functions...)
	nf := *p.Functions[fnIdx]
	nf.Body = asBlock(rewriteStmt(nf.Body, fs, fe))
	np.Functions[fnIdx] = &nf
	return &np
}

// coarseRemoveStatements runs the binary-search statement remover over
// every block of every method, largest methods first.
func (r *Reducer) coarseRemoveStatements() {
	order := make([]int, len(r.current.Functions))
	for i := range order {
		order[i] = i
	}
	counts := make([]int, len(order))
	for i, fn := range r.current.Functions {
		counts[i] = descendantStatements(fn)
	}
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if counts[order[j]] > counts[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	for _, fnIdx := range order {
		r.coarseReduceFn(fnIdx)
	}
}

func (r *Reducer) coarseReduceFn(fnIdx int) {
	for processed := 0; ; processed++ {
		blocks := collectBlocks(r.current.Functions[fnIdx].Body)
		if processed >= len(blocks) {
			return
		}
		r.reduceStmtRuns(blocks[processed])
	}
}

func collectBlocks(body *BlockStmt) []*BlockStmt {
	var out []*BlockStmt
	var visit func(b *BlockStmt)
	visit = func(b *BlockStmt) {
		out = append(out, b)
		for _, st := range b.Stmts {
			switch s := st.(type) {
			case *BlockStmt:
				visit(s)
			case *IfStmt:
				visit(s.Then)
				if s.Else != nil {
					visit(s.Else)
				}
			case *TryFinallyStmt:
				visit(s.Try)
				visit(s.Finally)
			case *ForStmt:
				visit(s.Body)
			}
		}
	}
	visit(body)
	return out
}

// reduceStmtRuns deletes runs of statements from one block, binary-search
// style: runs start at the largest power of two not above the block length
// and halve down to single statements, keeping every deletion that stays
// interesting.
func (r *Reducer) reduceStmtRuns(block *BlockStmt) {
	cur := block
	size := 1
	for size*2 <= len(cur.Stmts) {
		size *= 2
	}
	for ; size >= 1; size /= 2 {
		start := 0
		for start < len(cur.Stmts) {
			end := start + size
			if end > len(cur.Stmts) {
				end = len(cur.Stmts)
			}
			stmts := make([]Statement, 0, len(cur.Stmts)-(end-start))
			stmts = append(stmts, cur.Stmts[:start]...)
			stmts = append(stmts, cur.Stmts[end:]...)
			nb := &BlockStmt{Stmts: stmts}
			np := ReplaceNode(r.current, cur, nb)
			if r.IsInteresting(np) {
				r.current = np
				cur = nb
			} else {
				start += size
			}
		}
	}
}

// ---- fine pass ----

// passNodes runs one node class through the simplifier catalog until a
// full traversal commits nothing. Traversal order is shuffled per spec;
// candidate streams of the applicable simplifiers are interleaved
// round-robin, and the first interesting candidate commits and restarts
// the traversal.
func (r *Reducer) passNodes(class nodeClass, lateAllowed bool) bool {
	changedAny := false
	for {
		nodes := r.collectClass(class)
		r.rng.Shuffle(len(nodes), func(i, j int) {
			nodes[i], nodes[j] = nodes[j], nodes[i]
		})
		committed := false
		for _, n := range nodes {
			if r.tryNode(class, lateAllowed, n) {
				committed = true
				changedAny = true
				break
			}
		}
		if !committed {
			return changedAny
		}
	}
}

func (r *Reducer) collectClass(class nodeClass) []Node {
	var out []Node
	switch class {
	case classStatement:
		for _, st := range CollectStatements(r.current) {
			out = append(out, st)
		}
	case classExpression:
		for _, e := range CollectExpressions(r.current) {
			out = append(out, e)
		}
	case classMember:
		out = collectMemberNodes(r.current)
	}
	return out
}

func (r *Reducer) tryNode(class nodeClass, lateAllowed bool, n Node) bool {
	var lists [][]candidateFn
	maxLen := 0
	for _, sim := range catalogFor(class) {
		if sim.late && !lateAllowed {
			continue
		}
		cands := sim.candidates(r, r.current, n)
		if len(cands) == 0 {
			continue
		}
		lists = append(lists, cands)
		if len(cands) > maxLen {
			maxLen = len(cands)
		}
	}
	for i := 0; i < maxLen; i++ {
		for _, l := range lists {
			if i >= len(l) {
				continue
			}
			np := l[i]()
			if np == nil {
				continue
			}
			if r.IsInteresting(np) {
				r.current = np
				return true
			}
		}
	}
	return false
}

// ---- mode detection ----

// BuildReductionPredicate classifies the original program and returns the
// matching interestingness predicate, per the reduction modes: compiler
// crash, compile error, runtime crash, or behavioral divergence. The mode
// silently upgrades to runtime-crash when a later candidate crashes.
func BuildReductionPredicate(ctx context.Context, pl *Pipeline, p *Program) (func(*Program) bool, *RunOutcome, error) {
	debug, release, failed := pl.CompilePair(p)
	if failed != nil {
		switch failed.Kind {
		case OutcomeCompilerCrash:
			side := failed.Side
			return func(cand *Program) bool {
				_, _, f := pl.CompilePair(cand)
				return f != nil && f.Kind == OutcomeCompilerCrash && f.Side == side
			}, failed, nil
		default:
			side := failed.Side
			errorID := failed.Diagnostics[0].ID
			return func(cand *Program) bool {
				_, _, f := pl.CompilePair(cand)
				return f != nil && f.Kind == OutcomeCompileError && f.Side == side &&
					len(f.Diagnostics) > 0 && f.Diagnostics[0].ID == errorID
			}, failed, nil
		}
	}

	res := pl.runPair(ctx, debug, release)
	switch res.Kind {
	case ExecTimeout:
		return nil, nil, ErrInitialTimeout
	case ExecCrash:
		outcome := &RunOutcome{Kind: OutcomeCrash, Stderr: res.Stderr}
		return func(cand *Program) bool {
			return pl.Examine(ctx, cand).Kind == OutcomeCrash
		}, outcome, nil
	}
	if !res.Pair.Differs() {
		return nil, nil, ErrNotInteresting
	}

	origDebugEx := res.Pair.DebugResult.ExceptionType
	origRelEx := res.Pair.ReleaseResult.ExceptionType
	exceptionsDiffer := origDebugEx != origRelEx
	outcome := &RunOutcome{Kind: OutcomeMismatch, Pair: res.Pair}
	crashMode := false
	pred := func(cand *Program) bool {
		out := pl.Examine(ctx, cand)
		if crashMode {
			return out.Kind == OutcomeCrash
		}
		switch out.Kind {
		case OutcomeCrash:
			crashMode = true
			return true
		case OutcomeMismatch:
			if exceptionsDiffer {
				return out.Pair.DebugResult.ExceptionType == origDebugEx &&
					out.Pair.ReleaseResult.ExceptionType == origRelEx
			}
			return out.Pair.DebugResult.Checksum != out.Pair.ReleaseResult.Checksum
		default:
			return false
		}
	}
	return pred, outcome, nil
}

// ---- finalization ----

// Finalize removes the injected runtime from the reduced program: the
// runtime static and its initialization go away, every checksum call
// becomes a plain console write, and the entry point loses its parameter.
// A header comment block records sizes, elapsed time and outcomes.
func (r *Reducer) Finalize(elapsed time.Duration, debugSummary, releaseSummary string) *Program {
	fs := func(st Statement) (Statement, bool) {
		if cs, ok := st.(*ChecksumStmt); ok {
			ncs := *cs
			ncs.ConsoleWrite = true
			return &ncs, true
		}
		return nil, false
	}
	np := RewriteProgram(r.current, fs, nil)
	for _, cs := range np.TailChecksums {
		cs.ConsoleWrite = true
	}
	np.RuntimeRemoved = true
	np.Header = []string{
		fmt.Sprintf("Reduced from %.1f KiB to %.1f KiB in %s",
			r.originalKiB, sourceKiB(np), formatHMS(elapsed)),
		"Debug: " + debugSummary,
		"Release: " + releaseSummary,
	}
	return np
}

func formatHMS(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// OutcomeSummary renders one side of a pair result for the header block.
func OutcomeSummary(res ProgramResult) string {
	if res.ExceptionType != "" {
		return fmt.Sprintf("Throws '%s'", res.ExceptionType)
	}
	return fmt.Sprintf("Checksum %s", res.Checksum)
}

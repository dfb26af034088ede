package fuzzlyn

import (
	"testing"
	"time"
)

func generateForSeed(t *testing.T, seed uint64) *Program {
	t.Helper()
	opts := Defaults()
	opts.Seed = seed
	prog, err := GenerateProgram(&opts)
	if err != nil {
		t.Fatalf("seed %d: %v", seed, err)
	}
	return prog
}

func TestGeneratorDeterminism(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, seed := range []uint64{1, 2, 3, 1019504228635510285} {
		a := Print(generateForSeed(t, seed), ts)
		b := Print(generateForSeed(t, seed), ts)
		if a != b {
			t.Fatalf("seed %d: two generations differ", seed)
		}
	}
}

func TestForwardCallGraph(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		prog := generateForSeed(t, seed)
		for _, fn := range prog.Functions {
			caller := fn
			walkStmt(fn.Body, nil, func(e Expression) {
				if c, ok := e.(*CallExpr); ok {
					if c.Callee.Index <= caller.Index {
						t.Fatalf("seed %d: %s calls %s (non-forward)",
							seed, caller.Name, c.Callee.Name)
					}
				}
			})
		}
	}
}

func TestTransitiveCallBudget(t *testing.T) {
	opts := Defaults()
	for seed := uint64(1); seed <= 20; seed++ {
		opts.Seed = seed
		prog, err := GenerateProgram(&opts)
		if err != nil {
			t.Fatal(err)
		}
		for _, fn := range prog.Functions {
			var total int64
			for _, n := range fn.CallCounts {
				total += n
			}
			if total > opts.SingleFunctionMaxTotalCalls {
				t.Fatalf("seed %d: %s exceeds call budget: %d", seed, fn.Name, total)
			}
		}
	}
}

// isGuardedDivisor recognizes the (T)((rhs) | 1) shape.
func isGuardedDivisor(e Expression) bool {
	cast, ok := e.(*CastExpr)
	if !ok {
		return false
	}
	or, ok := cast.X.(*BinaryExpr)
	if !ok || or.Op != OpOr {
		return false
	}
	lit, ok := or.R.(*LiteralExpr)
	return ok && lit.Bits == 1
}

func TestDivisionGuards(t *testing.T) {
	for seed := uint64(1); seed <= 30; seed++ {
		prog := generateForSeed(t, seed)
		walkProgram(prog, func(st Statement) {
			a, ok := st.(*AssignStmt)
			if !ok || (a.Op != AopDiv && a.Op != AopMod) {
				return
			}
			if lhsT, ok := SkipRef(a.Lhs.Type()).(*PrimitiveType); ok && lhsT.Integral {
				if !isGuardedDivisor(a.Rhs) {
					t.Fatalf("seed %d: compound division without |1 guard", seed)
				}
			}
		}, func(e Expression) {
			b, ok := e.(*BinaryExpr)
			if !ok || !b.Op.IsDivision() {
				return
			}
			rt, ok := SkipRef(b.R.Type()).(*PrimitiveType)
			if !ok || !rt.Integral {
				return
			}
			// The guard shape itself contains an OpOr, not a division.
			if !isGuardedDivisor(b.R) {
				t.Fatalf("seed %d: integral division without |1 guard on divisor", seed)
			}
		})
	}
}

// pathEscape recomputes the escape scope of an l-value path the way the
// generator assigns them: stepping through a class field or an array
// element lands on the heap.
func pathEscape(e Expression) int {
	switch x := e.(type) {
	case *VarExpr:
		return x.Var.RefEscapeScope
	case *ThisExpr:
		return 0
	case *FieldExpr:
		if agg, ok := SkipRef(x.Recv.Type()).(*AggregateType); ok && agg.IsClass {
			return EscapeGlobal
		}
		return pathEscape(x.Recv)
	case *IndexExpr:
		return EscapeGlobal
	default:
		return EscapeGlobal
	}
}

func TestRefReturnEscapeSoundness(t *testing.T) {
	for seed := uint64(1); seed <= 30; seed++ {
		prog := generateForSeed(t, seed)
		for _, fn := range prog.Functions {
			if _, isRef := fn.ReturnType.(*RefType); !isRef {
				continue
			}
			walkStmt(fn.Body, func(st Statement) {
				ret, ok := st.(*ReturnStmt)
				if !ok || !ret.Ref {
					return
				}
				if esc := pathEscape(ret.Value); esc < EscapeCaller {
					t.Fatalf("seed %d: %s returns ref with escape scope %d",
						seed, fn.Name, esc)
				}
			}, nil)
		}
	}
}

func TestChecksumCoverage(t *testing.T) {
	opts := Defaults()
	opts.Checksumming = true
	for seed := uint64(1); seed <= 10; seed++ {
		opts.Seed = seed
		prog, err := GenerateProgram(&opts)
		if err != nil {
			t.Fatal(err)
		}
		for _, fn := range prog.Functions {
			walkStmt(fn.Body, func(st Statement) {
				b, ok := st.(*BlockStmt)
				if !ok {
					return
				}
				checksummed := map[*Variable]bool{}
				for _, s := range b.Stmts {
					if cs, ok := s.(*ChecksumStmt); ok {
						if v, ok := cs.Value.(*VarExpr); ok {
							checksummed[v.Var] = true
						}
					}
				}
				for _, s := range b.Stmts {
					d, ok := s.(*VarDeclStmt)
					if !ok {
						continue
					}
					if _, prim := SkipRef(d.Var.Type).(*PrimitiveType); !prim {
						continue
					}
					if !checksummed[d.Var] {
						t.Fatalf("seed %d: %s: primitive local %s not checksummed in its block",
							seed, fn.Name, d.Var.Name)
					}
				}
			}, nil)
		}
		// The entry point checksums every primitive static leaf.
		for _, f := range prog.Statics {
			if _, prim := f.Var.Type.(*PrimitiveType); !prim {
				continue
			}
			found := false
			for _, cs := range prog.TailChecksums {
				if v, ok := cs.Value.(*VarExpr); ok && v.Var == f.Var {
					found = true
				}
			}
			if !found {
				t.Fatalf("seed %d: static %s not in tail checksums", seed, f.Var.Name)
			}
		}
	}
}

func TestChecksumSiteIDsUnique(t *testing.T) {
	prog := generateForSeed(t, 12)
	seen := map[string]bool{}
	check := func(cs *ChecksumStmt) {
		if seen[cs.SiteID] {
			t.Fatalf("duplicate checksum site id %s", cs.SiteID)
		}
		seen[cs.SiteID] = true
	}
	walkProgram(prog, func(st Statement) {
		if cs, ok := st.(*ChecksumStmt); ok {
			check(cs)
		}
	}, nil)
	for _, cs := range prog.TailChecksums {
		check(cs)
	}
}

func TestNoReturnInsideFinally(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		prog := generateForSeed(t, seed)
		for _, fn := range prog.Functions {
			walkStmt(fn.Body, func(st Statement) {
				tf, ok := st.(*TryFinallyStmt)
				if !ok {
					return
				}
				walkStmt(tf.Finally, func(inner Statement) {
					if _, ok := inner.(*ReturnStmt); ok {
						t.Fatalf("seed %d: return inside finally in %s", seed, fn.Name)
					}
				}, nil)
			}, nil)
		}
	}
}

func TestEntryFunctionShape(t *testing.T) {
	prog := generateForSeed(t, 99)
	entry := prog.Functions[0]
	if entry.ReturnType != nil {
		t.Fatal("entry function must return void")
	}
	if len(entry.Params) != 0 {
		t.Fatal("entry function must take no parameters")
	}
	if entry.Instance != nil {
		t.Fatal("entry function must be static")
	}
}

func TestProgramMinStatements(t *testing.T) {
	opts := Defaults()
	opts.Seed = 4
	opts.ProgramMinStatements = 50
	prog, err := GenerateProgram(&opts)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, fn := range prog.Functions {
		walkStmt(fn.Body, func(st Statement) {
			switch st.(type) {
			case *ChecksumStmt:
			default:
				total++
			}
		}, nil)
	}
	if total < 50 {
		t.Fatalf("generated only %d statements, want >= 50", total)
	}
}

package fuzzlyn

import "testing"

func TestBinOpTableResultsConsistent(t *testing.T) {
	for result, entries := range BinOpTable {
		for _, e := range entries {
			if e.Result != result {
				t.Fatalf("entry %v indexed under %v", e, result)
			}
		}
	}
}

func TestShiftEntriesForceIntCount(t *testing.T) {
	for _, e := range AllBinOps {
		if e.Op == OpLsh || e.Op == OpRsh {
			if e.Right != KindInt {
				t.Fatalf("shift count kind %v, want int", e.Right)
			}
			if e.Result != promoteKind(e.Left) {
				t.Fatalf("shift result %v, want promoted left %v", e.Result, promoteKind(e.Left))
			}
		}
	}
}

func TestNoMixedULongSigned(t *testing.T) {
	for _, e := range AllBinOps {
		if e.Op == OpLsh || e.Op == OpRsh {
			// Shift counts are int by definition.
			continue
		}
		lp, rp := promoteKind(e.Left), promoteKind(e.Right)
		if (lp == KindULong && (rp == KindLong || rp == KindInt)) ||
			(rp == KindULong && (lp == KindLong || lp == KindInt)) {
			t.Fatalf("invalid ulong/signed mix in table: %+v", e)
		}
	}
}

func TestRelationalOpsProduceBool(t *testing.T) {
	for _, e := range AllBinOps {
		switch e.Op {
		case OpEq, OpNeq, OpLt, OpLeq, OpGt, OpGeq, OpLAnd, OpLOr:
			if e.Result != KindBool {
				t.Fatalf("comparison entry with non-bool result: %+v", e)
			}
		}
	}
}

func TestNoNegateULong(t *testing.T) {
	for _, e := range AllUnOps {
		if e.Op == UnNeg && promoteKind(e.Operand) == KindULong {
			t.Fatalf("negation of ulong in table: %+v", e)
		}
		if e.Op == UnNeg && promoteKind(e.Operand) == KindUInt && e.Result != KindLong {
			t.Fatalf("negating uint must widen to long: %+v", e)
		}
	}
}

func TestBinaryNumericResultPromotion(t *testing.T) {
	cases := []struct {
		l, r PrimKind
		want PrimKind
		ok   bool
	}{
		{KindSByte, KindSByte, KindInt, true},
		{KindInt, KindUInt, KindLong, true},
		{KindUInt, KindUInt, KindUInt, true},
		{KindULong, KindLong, 0, false},
		{KindULong, KindUInt, KindULong, true},
		{KindFloat, KindLong, KindFloat, true},
		{KindDouble, KindFloat, KindDouble, true},
		{KindChar, KindChar, KindInt, true},
	}
	for _, tc := range cases {
		got, ok := binaryNumericResult(tc.l, tc.r)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("result(%v, %v) = (%v, %v), want (%v, %v)",
				tc.l, tc.r, got, ok, tc.want, tc.ok)
		}
	}
}

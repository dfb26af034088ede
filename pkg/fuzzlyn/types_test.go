package fuzzlyn

import "testing"

func newTestUniverse(t *testing.T, seed uint64) *TypeUniverse {
	t.Helper()
	opts := Defaults()
	opts.Seed = seed
	u := NewTypeUniverse(&opts, NewRng(seed))
	u.GenerateTypes()
	return u
}

func TestGenerateTypesForwardReferencesOnly(t *testing.T) {
	for seed := uint64(1); seed <= 50; seed++ {
		u := newTestUniverse(t, seed)
		index := map[*AggregateType]int{}
		for i, a := range u.Aggregates {
			index[a] = i
		}
		for i, a := range u.Aggregates {
			for _, f := range a.Fields {
				if fa, ok := f.Type.(*AggregateType); ok {
					if index[fa] >= i {
						t.Fatalf("seed %d: %s field references non-earlier aggregate %s",
							seed, a.TypeName, fa.TypeName)
					}
				}
				if _, isRef := f.Type.(*RefType); isRef {
					t.Fatalf("seed %d: aggregate field has ref type", seed)
				}
			}
		}
	}
}

func TestInterfaceImplementersConsistent(t *testing.T) {
	u := newTestUniverse(t, 42)
	for _, iface := range u.Interfaces {
		for _, impl := range iface.Implementers {
			found := false
			for _, i2 := range impl.Implements {
				if i2 == iface {
					found = true
				}
			}
			if !found {
				t.Fatalf("%s lists %s as implementer but reverse edge missing",
					iface.TypeName, impl.TypeName)
			}
		}
	}
}

func TestPickTypeRefWrapping(t *testing.T) {
	u := newTestUniverse(t, 5)
	sawRef := false
	for i := 0; i < 200; i++ {
		ty := u.PickType(0.5)
		if r, ok := ty.(*RefType); ok {
			sawRef = true
			if _, nested := r.Inner.(*RefType); nested {
				t.Fatal("ref nested inside ref")
			}
		}
	}
	if !sawRef {
		t.Fatal("byRefProb 0.5 never produced a ref type")
	}
	for i := 0; i < 100; i++ {
		if _, ok := u.PickType(0).(*RefType); ok {
			t.Fatal("byRefProb 0 produced a ref type")
		}
	}
}

func TestPickPrimitivePredicate(t *testing.T) {
	u := newTestUniverse(t, 9)
	for i := 0; i < 100; i++ {
		p := u.PickPrimitive(func(p *PrimitiveType) bool { return p.Integral })
		if !p.Integral {
			t.Fatalf("predicate violated: got %s", p.Name())
		}
	}
}

func TestImplicitConversions(t *testing.T) {
	cases := []struct {
		from, to PrimKind
		want     bool
	}{
		{KindSByte, KindInt, true},
		{KindInt, KindLong, true},
		{KindInt, KindUInt, false},
		{KindUInt, KindULong, true},
		{KindLong, KindInt, false},
		{KindFloat, KindDouble, true},
		{KindDouble, KindFloat, false},
		{KindChar, KindInt, true},
		{KindBool, KindInt, false},
	}
	for _, tc := range cases {
		got := IsImplicitlyConvertible(Primitive(tc.from), Primitive(tc.to))
		if got != tc.want {
			t.Errorf("%s -> %s: got %v want %v",
				Primitive(tc.from).Name(), Primitive(tc.to).Name(), got, tc.want)
		}
	}
}

func TestTypesEqualStructural(t *testing.T) {
	a := &ArrayType{Elem: Primitive(KindInt), Rank: 1}
	b := &ArrayType{Elem: Primitive(KindInt), Rank: 1}
	if !TypesEqual(a, b) {
		t.Fatal("identical array types compared unequal")
	}
	if TypesEqual(a, &ArrayType{Elem: Primitive(KindLong), Rank: 1}) {
		t.Fatal("different element types compared equal")
	}
	if !TypesEqual(&RefType{Inner: Primitive(KindInt)}, &RefType{Inner: Primitive(KindInt)}) {
		t.Fatal("identical ref types compared unequal")
	}
}

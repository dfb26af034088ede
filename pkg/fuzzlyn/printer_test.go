package fuzzlyn

import (
	"strings"
	"testing"
	"time"
)

func intLit(v int64) *LiteralExpr {
	return &LiteralExpr{Ty: Primitive(KindInt), Bits: uint64(v)}
}

// smallMismatchProgram is the S2 shape: one static sbyte and one local
// checksummed in the body.
func smallMismatchProgram() *Program {
	sbyteT := Primitive(KindSByte)
	ulongT := Primitive(KindULong)
	s1 := &StaticField{
		Var:  &Variable{Type: sbyteT, Name: "s_1", RefEscapeScope: EscapeGlobal},
		Init: &LiteralExpr{Ty: sbyteT, Bits: intLit(-10).Bits & 0xFF},
	}
	v0 := &Variable{Type: ulongT, Name: "var0", RefEscapeScope: -1}
	xor := &BinaryExpr{
		Op: OpXor,
		L:  &LiteralExpr{Ty: Primitive(KindUInt), Bits: 0},
		R:  &VarExpr{Var: s1.Var},
		Ty: Primitive(KindLong),
	}
	body := &BlockStmt{Stmts: []Statement{
		&VarDeclStmt{Var: v0, Init: &CastExpr{Ty: ulongT, X: &CastExpr{Ty: Primitive(KindByte), X: xor}}},
		&ChecksumStmt{SiteID: "c_0", Value: &VarExpr{Var: v0}},
	}}
	fn := &Function{Index: 0, Name: "M0", Body: body, CallCounts: map[int]int64{}}
	return &Program{
		PrimaryClassName: "Program",
		Checksumming:     true,
		Seed:             1234,
		Statics:          []*StaticField{s1},
		Functions:        []*Function{fn},
	}
}

func TestPrintHeaderFormat(t *testing.T) {
	prog := smallMismatchProgram()
	src := Print(prog, time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC))
	if !strings.HasPrefix(src, "// Generated by Fuzzlyn v1.6 on 2024-05-17 09:30:00\n") {
		t.Fatalf("bad header first line:\n%s", src[:80])
	}
	if !strings.Contains(src, "// Seed: 1234\n") {
		t.Fatal("seed line missing")
	}
}

func TestPrintProgramShape(t *testing.T) {
	src := Print(smallMismatchProgram(), time.Unix(0, 0).UTC())
	for _, want := range []string{
		"public class Program",
		"public static Fuzzlyn.ExecutionServer.IRuntime s_rt;",
		"public static sbyte s_1 = (sbyte)(-10);",
		"public static void Main(Fuzzlyn.ExecutionServer.IRuntime rt)",
		"s_rt = rt;",
		"M0();",
		"public static void M0()",
		"ulong var0 = (ulong)((byte)((0U ^ s_1)));",
		`s_rt.Checksum("c_0", var0);`,
	} {
		if !strings.Contains(src, want) {
			t.Fatalf("printed source missing %q:\n%s", want, src)
		}
	}
}

func TestPrintRuntimeRemoved(t *testing.T) {
	prog := smallMismatchProgram()
	prog.RuntimeRemoved = true
	// Finalization rewrites checksum statements to console writes.
	prog.Functions[0].Body.Stmts[1].(*ChecksumStmt).ConsoleWrite = true
	src := Print(prog, time.Unix(0, 0).UTC())
	if strings.Contains(src, "IRuntime") {
		t.Fatal("runtime type still printed after removal")
	}
	if !strings.Contains(src, "public static void Main()") {
		t.Fatal("entry point should lose its parameter")
	}
	if !strings.Contains(src, "System.Console.WriteLine(var0);") {
		t.Fatal("checksum call not rewritten to console write")
	}
}

func TestFormatLiteral(t *testing.T) {
	cases := []struct {
		lit  *LiteralExpr
		want string
	}{
		{&LiteralExpr{Ty: Primitive(KindBool), Bool: true}, "true"},
		{&LiteralExpr{Ty: Primitive(KindInt), Bits: intLit(-42).Bits}, "-42"},
		{&LiteralExpr{Ty: Primitive(KindUInt), Bits: 7}, "7U"},
		{&LiteralExpr{Ty: Primitive(KindLong), Bits: intLit(-1).Bits}, "-1L"},
		{&LiteralExpr{Ty: Primitive(KindULong), Bits: 18446744073709551615}, "18446744073709551615UL"},
		{&LiteralExpr{Ty: Primitive(KindSByte), Bits: intLit(-10).Bits & 0xFF}, "(sbyte)(-10)"},
		{&LiteralExpr{Ty: Primitive(KindByte), Bits: 200}, "(byte)200"},
		{&LiteralExpr{Ty: Primitive(KindShort), Bits: 5}, "(short)5"},
		{&LiteralExpr{Ty: Primitive(KindChar), Bits: 65}, "(char)65"},
		{&LiteralExpr{Ty: Primitive(KindFloat), Float: -3}, "-3F"},
		{&LiteralExpr{Ty: Primitive(KindDouble), Float: 100}, "100D"},
		{&LiteralExpr{Ty: Primitive(KindLong), Bits: 1 << 63}, "long.MinValue"},
	}
	for _, tc := range cases {
		if got := formatLiteral(tc.lit); got != tc.want {
			t.Errorf("formatLiteral(%s) = %q, want %q", tc.lit.Ty.Name(), got, tc.want)
		}
	}
}

func TestPrintInstanceMethodAndTypes(t *testing.T) {
	iface := &InterfaceType{TypeName: "I0"}
	agg := &AggregateType{
		TypeName:   "C0",
		IsClass:    true,
		Fields:     []Field{{Name: "F0", Type: Primitive(KindInt)}},
		Implements: []*InterfaceType{iface},
	}
	iface.Implementers = []*AggregateType{agg}
	m1 := &Function{
		Index:      1,
		Name:       "M1",
		ReturnType: Primitive(KindInt),
		Instance:   agg,
		Body: &BlockStmt{Stmts: []Statement{
			&ReturnStmt{Value: &FieldExpr{Recv: &ThisExpr{Agg: agg}, Field: "F0", Ty: Primitive(KindInt)}},
		}},
		CallCounts: map[int]int64{},
	}
	m0 := &Function{Index: 0, Name: "M0", Body: &BlockStmt{}, CallCounts: map[int]int64{}}
	prog := &Program{
		PrimaryClassName: "Program",
		Types:            []FuzzType{iface, agg},
		Functions:        []*Function{m0, m1},
	}
	src := Print(prog, time.Unix(0, 0).UTC())
	for _, want := range []string{
		"public interface I0",
		"public class C0 : I0",
		"public int F0;",
		"public C0(int f0)",
		"public int M1()",
		"return this.F0;",
		"public static void Main()",
	} {
		if !strings.Contains(src, want) {
			t.Fatalf("printed source missing %q:\n%s", want, src)
		}
	}
	if strings.Contains(src, "public static int M1") {
		t.Fatal("instance method printed as static")
	}
}

func TestPrintStructThisInitializer(t *testing.T) {
	agg := &AggregateType{
		TypeName:           "S0",
		Fields:             []Field{{Name: "F0", Type: Primitive(KindInt)}},
		HasThisInitializer: true,
	}
	prog := &Program{
		PrimaryClassName: "Program",
		Types:            []FuzzType{agg},
		Functions:        []*Function{{Index: 0, Name: "M0", Body: &BlockStmt{}, CallCounts: map[int]int64{}}},
	}
	src := Print(prog, time.Unix(0, 0).UTC())
	if !strings.Contains(src, "public S0(int f0) : this()") {
		t.Fatalf("struct constructor missing this-initializer:\n%s", src)
	}
}

func TestPrintChecksumQualifiedOutsidePrimary(t *testing.T) {
	agg := &AggregateType{TypeName: "C0", IsClass: true}
	m1 := &Function{
		Index:    1,
		Name:     "M1",
		Instance: agg,
		Body: &BlockStmt{Stmts: []Statement{
			&ChecksumStmt{SiteID: "c_5", Value: intLit(3)},
		}},
		CallCounts: map[int]int64{},
	}
	prog := &Program{
		PrimaryClassName: "Program",
		Checksumming:     true,
		Types:            []FuzzType{agg},
		Functions: []*Function{
			{Index: 0, Name: "M0", Body: &BlockStmt{}, CallCounts: map[int]int64{}},
			m1,
		},
	}
	src := Print(prog, time.Unix(0, 0).UTC())
	if !strings.Contains(src, `Program.s_rt.Checksum("c_5", 3);`) {
		t.Fatalf("checksum outside primary class not qualified:\n%s", src)
	}
}

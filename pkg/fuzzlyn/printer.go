package fuzzlyn

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	toolName         = "Fuzzlyn"
	toolVersionMajor = 1
	toolVersionMinor = 6

	runtimeInterface = "Fuzzlyn.ExecutionServer.IRuntime"
)

// Print serializes the abstract program to concrete source text. The
// timestamp is injected by the caller so that the text produced for one
// seed never varies between runs.
func Print(p *Program, now time.Time) string {
	pr := &printer{prog: p}
	pr.header(now)
	for _, t := range p.Types {
		pr.printType(t)
		pr.nl()
	}
	pr.printPrimaryClass()
	return pr.b.String()
}

type printer struct {
	prog      *Program
	b         strings.Builder
	depth     int
	inPrimary bool
}

func (pr *printer) line(s string) {
	for i := 0; i < pr.depth; i++ {
		pr.b.WriteString("    ")
	}
	pr.b.WriteString(s)
	pr.b.WriteByte('\n')
}

func (pr *printer) nl() { pr.b.WriteByte('\n') }

func (pr *printer) open()  { pr.line("{"); pr.depth++ }
func (pr *printer) close() { pr.depth--; pr.line("}") }

func (pr *printer) header(now time.Time) {
	pr.line(fmt.Sprintf("// Generated by %s v%d.%d on %s",
		toolName, toolVersionMajor, toolVersionMinor, now.Format("2006-01-02 15:04:05")))
	pr.line(fmt.Sprintf("// Seed: %d", pr.prog.Seed))
	for _, h := range pr.prog.Header {
		pr.line("// " + h)
	}
}

func (pr *printer) printType(t FuzzType) {
	switch ty := t.(type) {
	case *InterfaceType:
		pr.line("public interface " + ty.TypeName)
		pr.open()
		pr.close()
	case *AggregateType:
		decl := "public struct "
		if ty.IsClass {
			decl = "public class "
		}
		decl += ty.TypeName
		if len(ty.Implements) > 0 {
			names := make([]string, len(ty.Implements))
			for i, iface := range ty.Implements {
				names[i] = iface.TypeName
			}
			decl += " : " + strings.Join(names, ", ")
		}
		pr.line(decl)
		pr.open()
		for _, f := range ty.Fields {
			pr.line(fmt.Sprintf("public %s %s;", f.Type.Name(), f.Name))
		}
		if len(ty.Fields) > 0 {
			pr.printConstructor(ty)
		}
		for _, fn := range pr.prog.Functions {
			if fn.Instance == ty {
				pr.nl()
				pr.printFunction(fn)
			}
		}
		pr.close()
	}
}

func (pr *printer) printConstructor(ty *AggregateType) {
	params := make([]string, len(ty.Fields))
	for i, f := range ty.Fields {
		params[i] = fmt.Sprintf("%s f%d", f.Type.Name(), i)
	}
	sig := fmt.Sprintf("public %s(%s)", ty.TypeName, strings.Join(params, ", "))
	if ty.HasThisInitializer {
		sig += " : this()"
	}
	pr.line(sig)
	pr.open()
	for i, f := range ty.Fields {
		pr.line(fmt.Sprintf("%s = f%d;", f.Name, i))
	}
	pr.close()
}

func (pr *printer) printPrimaryClass() {
	p := pr.prog
	pr.inPrimary = true
	pr.line("public class " + p.PrimaryClassName)
	pr.open()
	if p.Checksumming && !p.RuntimeRemoved {
		pr.line(fmt.Sprintf("public static %s s_rt;", runtimeInterface))
	}
	for _, f := range p.Statics {
		if f.Init == nil {
			pr.line(fmt.Sprintf("public static %s %s;", f.Var.Type.Name(), f.Var.Name))
			continue
		}
		pr.line(fmt.Sprintf("public static %s %s = %s;", f.Var.Type.Name(), f.Var.Name, pr.expr(f.Init)))
	}
	pr.printEntryPoint()
	for _, fn := range p.Functions {
		if fn.Instance == nil {
			pr.nl()
			pr.printFunction(fn)
		}
	}
	pr.close()
	pr.inPrimary = false
}

func (pr *printer) printEntryPoint() {
	p := pr.prog
	if p.Checksumming && !p.RuntimeRemoved {
		pr.line(fmt.Sprintf("public static void Main(%s rt)", runtimeInterface))
		pr.open()
		pr.line("s_rt = rt;")
	} else {
		pr.line("public static void Main()")
		pr.open()
	}
	if len(p.Functions) > 0 {
		pr.line(p.Functions[0].Name + "();")
	}
	for _, cs := range p.TailChecksums {
		pr.printStmt(cs)
	}
	pr.close()
}

func (pr *printer) printFunction(fn *Function) {
	ret := "void"
	if fn.ReturnType != nil {
		ret = fn.ReturnType.Name()
	}
	params := make([]string, len(fn.Params))
	for i, v := range fn.Params {
		params[i] = fmt.Sprintf("%s %s", v.Type.Name(), v.Name)
	}
	mod := "public "
	if fn.Instance == nil {
		mod = "public static "
	}
	pr.line(fmt.Sprintf("%s%s %s(%s)", mod, ret, fn.Name, strings.Join(params, ", ")))
	pr.printBlock(fn.Body)
}

func (pr *printer) printBlock(b *BlockStmt) {
	pr.open()
	for _, st := range b.Stmts {
		pr.printStmt(st)
	}
	pr.close()
}

func (pr *printer) printStmt(st Statement) {
	switch s := st.(type) {
	case *BlockStmt:
		pr.printBlock(s)
	case *VarDeclStmt:
		switch {
		case s.Ref:
			pr.line(fmt.Sprintf("ref %s %s = ref %s;", SkipRef(s.Var.Type).Name(), s.Var.Name, pr.expr(s.Init)))
		case s.Init != nil:
			pr.line(fmt.Sprintf("%s %s = %s;", s.Var.Type.Name(), s.Var.Name, pr.expr(s.Init)))
		default:
			pr.line(fmt.Sprintf("%s %s;", s.Var.Type.Name(), s.Var.Name))
		}
	case *AssignStmt:
		pr.line(pr.assign(s) + ";")
	case *CallStmt:
		pr.line(pr.expr(s.Call) + ";")
	case *IfStmt:
		pr.line("if (" + pr.expr(s.Cond) + ")")
		pr.printBlock(s.Then)
		if s.Else != nil {
			pr.line("else")
			pr.printBlock(s.Else)
		}
	case *ReturnStmt:
		switch {
		case s.Value == nil:
			pr.line("return;")
		case s.Ref:
			pr.line("return ref " + pr.expr(s.Value) + ";")
		default:
			pr.line("return " + pr.expr(s.Value) + ";")
		}
	case *TryFinallyStmt:
		pr.line("try")
		pr.printBlock(s.Try)
		pr.line("finally")
		pr.printBlock(s.Finally)
	case *ForStmt:
		init := ""
		if s.Init != nil {
			init = fmt.Sprintf("%s %s = %s", s.Init.Var.Type.Name(), s.Init.Var.Name, pr.expr(s.Init.Init))
		}
		cond := ""
		if s.Cond != nil {
			cond = pr.expr(s.Cond)
		}
		post := ""
		if s.Post != nil {
			post = pr.assign(s.Post)
		}
		pr.line(fmt.Sprintf("for (%s; %s; %s)", init, cond, post))
		pr.printBlock(s.Body)
	case *ChecksumStmt:
		if s.ConsoleWrite {
			pr.line(fmt.Sprintf("System.Console.WriteLine(%s);", pr.expr(s.Value)))
			return
		}
		recv := "s_rt"
		if !pr.inPrimary {
			recv = pr.prog.PrimaryClassName + ".s_rt"
		}
		pr.line(fmt.Sprintf("%s.Checksum(%q, %s);", recv, s.SiteID, pr.expr(s.Value)))
	}
}

func (pr *printer) assign(s *AssignStmt) string {
	lhs := pr.expr(s.Lhs)
	switch s.Op {
	case AopPreInc:
		return "++" + lhs
	case AopPreDec:
		return "--" + lhs
	case AopPostInc:
		return lhs + "++"
	case AopPostDec:
		return lhs + "--"
	}
	if s.RefReassign {
		return lhs + " = ref " + pr.expr(s.Rhs)
	}
	return lhs + " " + assignToken(s.Op) + " " + pr.expr(s.Rhs)
}

func assignToken(op AssignOp) string {
	switch op {
	case AopAdd:
		return "+="
	case AopSub:
		return "-="
	case AopMul:
		return "*="
	case AopDiv:
		return "/="
	case AopMod:
		return "%="
	case AopAnd:
		return "&="
	case AopOr:
		return "|="
	case AopXor:
		return "^="
	case AopLsh:
		return "<<="
	case AopRsh:
		return ">>="
	default:
		return "="
	}
}

func (pr *printer) expr(e Expression) string {
	switch x := e.(type) {
	case *LiteralExpr:
		return formatLiteral(x)
	case *VarExpr:
		return x.Var.Name
	case *ThisExpr:
		return "this"
	case *FieldExpr:
		return pr.expr(x.Recv) + "." + x.Field
	case *IndexExpr:
		return pr.expr(x.Recv) + "[" + pr.expr(x.Index) + "]"
	case *UnaryExpr:
		return x.Op.Token() + "(" + pr.expr(x.X) + ")"
	case *BinaryExpr:
		return "(" + pr.expr(x.L) + " " + x.Op.Token() + " " + pr.expr(x.R) + ")"
	case *CastExpr:
		return "(" + x.Ty.Name() + ")(" + pr.expr(x.X) + ")"
	case *CallExpr:
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			args[i] = pr.expr(a)
		}
		callee := x.Callee.Name + "(" + strings.Join(args, ", ") + ")"
		switch {
		case x.Recv != nil:
			return pr.expr(x.Recv) + "." + callee
		case x.Qualify || !pr.inPrimary:
			return pr.prog.PrimaryClassName + "." + callee
		default:
			return callee
		}
	case *RefExpr:
		return "ref " + pr.expr(x.X)
	case *NewObjectExpr:
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			args[i] = pr.expr(a)
		}
		return "new " + x.Agg.TypeName + "(" + strings.Join(args, ", ") + ")"
	case *NewArrayExpr:
		elems := make([]string, len(x.Elems))
		for i, el := range x.Elems {
			elems[i] = pr.expr(el)
		}
		return "new " + x.Arr.Elem.Name() + "[] { " + strings.Join(elems, ", ") + " }"
	case *IncDecExpr:
		op := "++"
		if x.Dec {
			op = "--"
		}
		return "(" + pr.expr(x.X) + op + ")"
	default:
		return ""
	}
}

// formatLiteral prints a constant so its static type matches the node's
// type: small integral kinds and char need an explicit cast, wider kinds
// carry the usual suffixes.
func formatLiteral(l *LiteralExpr) string {
	t := l.Ty
	switch t.Kind {
	case KindBool:
		if l.Bool {
			return "true"
		}
		return "false"
	case KindInt:
		return fmt.Sprintf("%d", int32(l.Bits))
	case KindUInt:
		return fmt.Sprintf("%dU", uint32(l.Bits))
	case KindLong:
		v := int64(l.Bits)
		if v == math.MinInt64 {
			// -9223372036854775808 does not parse as a long literal.
			return "long.MinValue"
		}
		return fmt.Sprintf("%dL", v)
	case KindULong:
		return fmt.Sprintf("%dUL", l.Bits)
	case KindFloat:
		return fmt.Sprintf("%gF", l.Float)
	case KindDouble:
		return fmt.Sprintf("%gD", l.Float)
	case KindChar:
		return fmt.Sprintf("(char)%d", uint16(l.Bits))
	default:
		v := l.SignedValue()
		if !t.Signed {
			return fmt.Sprintf("(%s)%d", t.Name(), l.Bits&((1<<uint(t.Bits))-1))
		}
		if v < 0 {
			return fmt.Sprintf("(%s)(%d)", t.Name(), v)
		}
		return fmt.Sprintf("(%s)%d", t.Name(), v)
	}
}

package fuzzlyn

// LiteralGenerator produces a random literal expression for any type.
type LiteralGenerator struct {
	opts *Options
	rng  *Rng
}

func NewLiteralGenerator(opts *Options, rng *Rng) *LiteralGenerator {
	return &LiteralGenerator{opts: opts, rng: rng}
}

// Literal builds a random literal of type t. Aggregates are constructed
// field-wise; arrays come out at fixed length 1 with a zero element, so a
// literal can never smuggle a zero divisor past the synthesizer's guards.
func (g *LiteralGenerator) Literal(t FuzzType) Expression {
	switch ty := t.(type) {
	case *PrimitiveType:
		return g.primitiveLiteral(ty)
	case *ArrayType:
		return &NewArrayExpr{Arr: ty, Elems: []Expression{ZeroLiteral(ty.Elem)}}
	case *AggregateType:
		args := make([]Expression, len(ty.Fields))
		for i, f := range ty.Fields {
			args[i] = g.Literal(f.Type)
		}
		return &NewObjectExpr{Agg: ty, Args: args}
	case *InterfaceType:
		return g.Literal(ty.Implementers[0])
	default:
		return g.Literal(SkipRef(t))
	}
}

func (g *LiteralGenerator) primitiveLiteral(t *PrimitiveType) Expression {
	if t.Kind == KindBool {
		return &LiteralExpr{Ty: t, Bool: g.rng.FlipCoin(0.5)}
	}
	if !t.Integral {
		// Keep floats to small integral magnitudes; they print exactly and
		// survive debug/release rounding identically.
		return &LiteralExpr{Ty: t, Float: float64(g.rng.NextInRange(-100, 100))}
	}
	if g.rng.FlipCoin(g.opts.LiteralSpecialProb) {
		specials := []uint64{0, 1, t.MaxValue()}
		if t.Signed {
			specials = append(specials, ^uint64(0), uint64(t.MinValue()))
		}
		return &LiteralExpr{Ty: t, Bits: PickElement(g.rng, specials)}
	}
	mask := ^uint64(0)
	if t.Bits < 64 {
		mask = (uint64(1) << t.Bits) - 1
	}
	return &LiteralExpr{Ty: t, Bits: g.rng.NextUint64() & mask}
}

// ZeroLiteral is the default value of t, used for reducer-lifted
// declarations and aggregate construction.
func ZeroLiteral(t FuzzType) Expression {
	switch ty := t.(type) {
	case *PrimitiveType:
		return &LiteralExpr{Ty: ty}
	case *ArrayType:
		return &NewArrayExpr{Arr: ty, Elems: []Expression{ZeroLiteral(ty.Elem)}}
	case *AggregateType:
		args := make([]Expression, len(ty.Fields))
		for i, f := range ty.Fields {
			args[i] = ZeroLiteral(f.Type)
		}
		return &NewObjectExpr{Agg: ty, Args: args}
	case *InterfaceType:
		return ZeroLiteral(ty.Implementers[0])
	default:
		return ZeroLiteral(SkipRef(t))
	}
}

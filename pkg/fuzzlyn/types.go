package fuzzlyn

import (
	"fmt"
	"math"
	"strings"
)

// PrimKind enumerates the primitive source-language types the generator uses.
type PrimKind int

const (
	KindBool PrimKind = iota
	KindSByte
	KindByte
	KindShort
	KindUShort
	KindInt
	KindUInt
	KindLong
	KindULong
	KindChar
	KindFloat
	KindDouble

	numPrimKinds
)

// FuzzType is the tagged type variant carried on every typed node.
type FuzzType interface {
	Name() string
	isType()
}

type PrimitiveType struct {
	Kind     PrimKind
	Signed   bool
	Bits     int
	Integral bool
	keyword  string
}

func (t *PrimitiveType) Name() string { return t.keyword }
func (t *PrimitiveType) isType()      {}

// IsNumeric reports whether arithmetic operators apply to the type.
func (t *PrimitiveType) IsNumeric() bool { return t.Kind != KindBool }

// MinValue and MaxValue give the representable range of an integral kind as
// raw two's-complement bit patterns.
func (t *PrimitiveType) MinValue() int64 {
	if !t.Signed {
		return 0
	}
	return -(int64(1) << (t.Bits - 1))
}

func (t *PrimitiveType) MaxValue() uint64 {
	if t.Signed {
		return (uint64(1) << (t.Bits - 1)) - 1
	}
	if t.Bits == 64 {
		return math.MaxUint64
	}
	return (uint64(1) << t.Bits) - 1
}

type ArrayType struct {
	Elem FuzzType
	Rank int
}

func (t *ArrayType) Name() string {
	return t.Elem.Name() + "[" + strings.Repeat(",", t.Rank-1) + "]"
}
func (t *ArrayType) isType() {}

type Field struct {
	Name string
	Type FuzzType
}

type AggregateType struct {
	TypeName   string
	IsClass    bool
	Fields     []Field
	Implements []*InterfaceType

	// HasThisInitializer marks a struct constructor carrying ": this()";
	// the reducer toggles it to unlock member pruning.
	HasThisInitializer bool
}

func (t *AggregateType) Name() string { return t.TypeName }
func (t *AggregateType) isType()      {}

type InterfaceType struct {
	TypeName     string
	Implementers []*AggregateType
}

func (t *InterfaceType) Name() string { return t.TypeName }
func (t *InterfaceType) isType()      {}

// RefType marks a by-reference type. Inner is never itself a RefType.
type RefType struct {
	Inner FuzzType
}

func (t *RefType) Name() string { return "ref " + t.Inner.Name() }
func (t *RefType) isType()      {}

// SkipRef lifts a possibly-by-ref type to its value type.
func SkipRef(t FuzzType) FuzzType {
	if r, ok := t.(*RefType); ok {
		return r.Inner
	}
	return t
}

// TypesEqual compares types structurally. Aggregates and interfaces are
// interned by the universe so pointer equality suffices for them.
func TypesEqual(a, b FuzzType) bool {
	switch at := a.(type) {
	case *PrimitiveType:
		bt, ok := b.(*PrimitiveType)
		return ok && at.Kind == bt.Kind
	case *ArrayType:
		bt, ok := b.(*ArrayType)
		return ok && at.Rank == bt.Rank && TypesEqual(at.Elem, bt.Elem)
	case *RefType:
		bt, ok := b.(*RefType)
		return ok && TypesEqual(at.Inner, bt.Inner)
	default:
		return a == b
	}
}

var primitiveTable = [numPrimKinds]PrimitiveType{
	KindBool:   {Kind: KindBool, Signed: false, Bits: 8, Integral: false, keyword: "bool"},
	KindSByte:  {Kind: KindSByte, Signed: true, Bits: 8, Integral: true, keyword: "sbyte"},
	KindByte:   {Kind: KindByte, Signed: false, Bits: 8, Integral: true, keyword: "byte"},
	KindShort:  {Kind: KindShort, Signed: true, Bits: 16, Integral: true, keyword: "short"},
	KindUShort: {Kind: KindUShort, Signed: false, Bits: 16, Integral: true, keyword: "ushort"},
	KindInt:    {Kind: KindInt, Signed: true, Bits: 32, Integral: true, keyword: "int"},
	KindUInt:   {Kind: KindUInt, Signed: false, Bits: 32, Integral: true, keyword: "uint"},
	KindLong:   {Kind: KindLong, Signed: true, Bits: 64, Integral: true, keyword: "long"},
	KindULong:  {Kind: KindULong, Signed: false, Bits: 64, Integral: true, keyword: "ulong"},
	KindChar:   {Kind: KindChar, Signed: false, Bits: 16, Integral: true, keyword: "char"},
	KindFloat:  {Kind: KindFloat, Signed: true, Bits: 32, Integral: false, keyword: "float"},
	KindDouble: {Kind: KindDouble, Signed: true, Bits: 64, Integral: false, keyword: "double"},
}

// Primitive returns the interned descriptor for a kind.
func Primitive(kind PrimKind) *PrimitiveType {
	return &primitiveTable[kind]
}

// TypeUniverse holds the finite closed set of types one generated program
// draws from. Aggregate field types only reference earlier entries, which
// keeps the aggregate graph acyclic by construction.
type TypeUniverse struct {
	opts *Options
	rng  *Rng

	Aggregates []*AggregateType
	Interfaces []*InterfaceType
}

func NewTypeUniverse(opts *Options, rng *Rng) *TypeUniverse {
	return &TypeUniverse{opts: opts, rng: rng}
}

// GenerateTypes populates the universe. Interfaces are created first so
// aggregates can be assigned to implement them.
func (u *TypeUniverse) GenerateTypes() {
	numIfaces := u.opts.InterfaceTypeCountDist.Sample(u.rng)
	for i := 0; i < numIfaces; i++ {
		u.Interfaces = append(u.Interfaces, &InterfaceType{TypeName: fmt.Sprintf("I%d", i)})
	}

	numAggs := u.opts.AggregateTypeCountDist.Sample(u.rng)
	for i := 0; i < numAggs; i++ {
		isClass := u.rng.FlipCoin(u.opts.MakeClassProb)
		prefix := "S"
		if isClass {
			prefix = "C"
		}
		agg := &AggregateType{
			TypeName: fmt.Sprintf("%s%d", prefix, i),
			IsClass:  isClass,
		}
		numFields := u.opts.AggregateFieldCountDist.Sample(u.rng)
		for f := 0; f < numFields; f++ {
			agg.Fields = append(agg.Fields, Field{
				Name: fmt.Sprintf("F%d", f),
				Type: u.pickFieldType(),
			})
		}
		for _, iface := range u.Interfaces {
			if u.rng.FlipCoin(u.opts.ImplementInterfaceProb) {
				agg.Implements = append(agg.Implements, iface)
				iface.Implementers = append(iface.Implementers, agg)
			}
		}
		u.Aggregates = append(u.Aggregates, agg)
	}
}

// pickFieldType chooses among primitives, small arrays and previously
// generated aggregates. Forward references only, never Ref.
func (u *TypeUniverse) pickFieldType() FuzzType {
	if len(u.Aggregates) > 0 && u.rng.FlipCoin(u.opts.AggregateFieldIsAggProb) {
		return PickElement(u.rng, u.Aggregates)
	}
	prim := u.PickPrimitive(nil)
	if u.rng.FlipCoin(u.opts.FieldIsArrayProb) {
		return &ArrayType{Elem: prim, Rank: 1}
	}
	return prim
}

// PickType returns a random type usable for a variable; with probability
// byRefProb the result is wrapped in Ref.
func (u *TypeUniverse) PickType(byRefProb float64) FuzzType {
	var t FuzzType
	switch {
	case len(u.Aggregates) > 0 && u.rng.FlipCoin(u.opts.PickAggregateTypeProb):
		t = PickElement(u.rng, u.Aggregates)
	case u.implementedInterfaces() != nil && u.rng.FlipCoin(u.opts.PickInterfaceTypeProb):
		t = PickElement(u.rng, u.implementedInterfaces())
	case u.rng.FlipCoin(u.opts.PickArrayTypeProb):
		t = &ArrayType{Elem: u.PickPrimitive(nil), Rank: 1}
	default:
		t = u.PickPrimitive(nil)
	}
	if byRefProb > 0 && u.rng.FlipCoin(byRefProb) {
		t = &RefType{Inner: t}
	}
	return t
}

func (u *TypeUniverse) implementedInterfaces() []*InterfaceType {
	var out []*InterfaceType
	for _, i := range u.Interfaces {
		if len(i.Implementers) > 0 {
			out = append(out, i)
		}
	}
	return out
}

// PickPrimitive returns a random primitive satisfying pred (nil = any).
func (u *TypeUniverse) PickPrimitive(pred func(*PrimitiveType) bool) *PrimitiveType {
	cands := make([]*PrimitiveType, 0, numPrimKinds)
	for k := PrimKind(0); k < numPrimKinds; k++ {
		p := Primitive(k)
		if pred == nil || pred(p) {
			cands = append(cands, p)
		}
	}
	if len(cands) == 0 {
		return Primitive(KindInt)
	}
	return PickElement(u.rng, cands)
}

// Implementers lists the aggregates implementing an interface.
func (u *TypeUniverse) Implementers(iface *InterfaceType) []*AggregateType {
	return iface.Implementers
}

// OrderedTypes returns all declared types, interfaces before the aggregates
// that reference them, in declaration order.
func (u *TypeUniverse) OrderedTypes() []FuzzType {
	out := make([]FuzzType, 0, len(u.Interfaces)+len(u.Aggregates))
	for _, i := range u.Interfaces {
		out = append(out, i)
	}
	for _, a := range u.Aggregates {
		out = append(out, a)
	}
	return out
}

// IsImplicitlyConvertible reports whether a value of type from may appear
// where type to is expected: identity, numeric widening, or
// aggregate-implements-interface (class or struct).
func IsImplicitlyConvertible(from, to FuzzType) bool {
	if TypesEqual(from, to) {
		return true
	}
	if fp, ok := from.(*PrimitiveType); ok {
		if tp, ok := to.(*PrimitiveType); ok {
			return primitiveWidens(fp.Kind, tp.Kind)
		}
		return false
	}
	if agg, ok := from.(*AggregateType); ok {
		if iface, ok := to.(*InterfaceType); ok {
			for _, i := range agg.Implements {
				if i == iface {
					return true
				}
			}
		}
	}
	return false
}

// primitiveWidens follows the implicit numeric conversions of the source
// language (no narrowing, no bool involvement, no float -> integral).
func primitiveWidens(from, to PrimKind) bool {
	widening := map[PrimKind][]PrimKind{
		KindSByte:  {KindShort, KindInt, KindLong, KindFloat, KindDouble},
		KindByte:   {KindShort, KindUShort, KindInt, KindUInt, KindLong, KindULong, KindFloat, KindDouble},
		KindShort:  {KindInt, KindLong, KindFloat, KindDouble},
		KindUShort: {KindInt, KindUInt, KindLong, KindULong, KindFloat, KindDouble},
		KindInt:    {KindLong, KindFloat, KindDouble},
		KindUInt:   {KindLong, KindULong, KindFloat, KindDouble},
		KindLong:   {KindFloat, KindDouble},
		KindULong:  {KindFloat, KindDouble},
		KindChar:   {KindUShort, KindInt, KindUInt, KindLong, KindULong, KindFloat, KindDouble},
		KindFloat:  {KindDouble},
	}
	for _, k := range widening[from] {
		if k == to {
			return true
		}
	}
	return false
}

package fuzzlyn

import "fmt"

// StaticsPool generates process-global variables on demand. Every static
// carries a seeded literal initializer and the global escape scope.
type StaticsPool struct {
	rng      *Rng
	universe *TypeUniverse
	lits     *LiteralGenerator

	Fields  []*StaticField
	counter int
}

func NewStaticsPool(rng *Rng, universe *TypeUniverse, lits *LiteralGenerator) *StaticsPool {
	return &StaticsPool{rng: rng, universe: universe, lits: lits}
}

// PickStatic returns a random existing static of type t, creating a
// new one when none matches. t == nil means any type.
func (p *StaticsPool) PickStatic(t FuzzType) *StaticField {
	var matches []*StaticField
	for _, f := range p.Fields {
		if t == nil || TypesEqual(f.Var.Type, t) {
			matches = append(matches, f)
		}
	}
	if len(matches) > 0 {
		return PickElement(p.rng, matches)
	}
	return p.GenerateNewField(t)
}

// GenerateNewField appends a fresh static of type t (or a random picked
// type when nil) named s_<counter>.
func (p *StaticsPool) GenerateNewField(t FuzzType) *StaticField {
	if t == nil {
		t = p.universe.PickType(0)
	}
	p.counter++
	f := &StaticField{
		Var: &Variable{
			Type:           t,
			Name:           fmt.Sprintf("s_%d", p.counter),
			RefEscapeScope: EscapeGlobal,
		},
		Init: p.lits.Literal(t),
	}
	p.Fields = append(p.Fields, f)
	return f
}

package fuzzlyn

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options is the canonical API-level configuration contract for generation
// and reduction. Probabilities are in [0, 1]; count fields are inclusive of
// their distributions' bounds.
type Options struct {
	Seed uint64 `yaml:"seed"`

	// Output toggles
	Checksumming bool `yaml:"checksumming"`

	// Type universe sizing
	AggregateTypeCountDist  UniformDist `yaml:"aggregate-type-count"`
	InterfaceTypeCountDist  UniformDist `yaml:"interface-type-count"`
	AggregateFieldCountDist UniformDist `yaml:"aggregate-field-count"`
	MakeClassProb           float64     `yaml:"make-class-prob"`
	ImplementInterfaceProb  float64     `yaml:"implement-interface-prob"`
	AggregateFieldIsAggProb float64     `yaml:"aggregate-field-is-agg-prob"`
	FieldIsArrayProb        float64     `yaml:"field-is-array-prob"`

	// Type picking
	PickAggregateTypeProb float64 `yaml:"pick-aggregate-type-prob"`
	PickInterfaceTypeProb float64 `yaml:"pick-interface-type-prob"`
	PickArrayTypeProb     float64 `yaml:"pick-array-type-prob"`

	// Function shape
	MaxFunctions                int           `yaml:"max-functions"`
	SingleFunctionMaxTotalCalls int64         `yaml:"single-function-max-total-calls"`
	FuncParamCountDist          UniformDist   `yaml:"func-param-count"`
	ReturnTypeIsRefProb         float64       `yaml:"return-type-is-ref-prob"`
	ParamIsRefProb              float64       `yaml:"param-is-ref-prob"`
	ReturnVoidProb              float64       `yaml:"return-void-prob"`
	InstanceMethodProb          float64       `yaml:"instance-method-prob"`
	ProgramMinStatements        int           `yaml:"program-min-statements"`
	BlockStatementCountDist     GeometricDist `yaml:"block-statement-count"`

	// Statement generation
	StatementKindDist      TableDist `yaml:"statement-kinds"`
	ElseBranchProb         float64   `yaml:"else-branch-prob"`
	AssignToNewVarProb     float64   `yaml:"assign-to-new-var-prob"`
	NewVarIsLocalProb      float64   `yaml:"new-var-is-local-prob"`
	LocalIsRefProb         float64   `yaml:"local-is-ref-prob"`
	CompoundAssignmentProb float64   `yaml:"compound-assignment-prob"`
	RefReassignProb        float64   `yaml:"ref-reassign-prob"`

	// Expression generation
	ExpressionKindDist    TableDist          `yaml:"expression-kinds"`
	GenNewFunctionProb    float64            `yaml:"gen-new-function-prob"`
	QualifyStaticCallProb float64            `yaml:"qualify-static-call-prob"`
	LiteralSpecialProb    float64            `yaml:"literal-special-prob"`
	Recursion             RecursionRejection `yaml:"recursion"`
}

func Defaults() Options {
	return Options{
		Seed:         0,
		Checksumming: true,

		AggregateTypeCountDist:  UniformDist{Lo: 1, Hi: 5},
		InterfaceTypeCountDist:  UniformDist{Lo: 0, Hi: 3},
		AggregateFieldCountDist: UniformDist{Lo: 1, Hi: 4},
		MakeClassProb:           0.5,
		ImplementInterfaceProb:  0.3,
		AggregateFieldIsAggProb: 0.1,
		FieldIsArrayProb:        0.05,

		PickAggregateTypeProb: 0.15,
		PickInterfaceTypeProb: 0.05,
		PickArrayTypeProb:     0.05,

		MaxFunctions:                30,
		SingleFunctionMaxTotalCalls: 10000,
		FuncParamCountDist:          UniformDist{Lo: 0, Hi: 4},
		ReturnTypeIsRefProb:         0.1,
		ParamIsRefProb:              0.25,
		ReturnVoidProb:              0.1,
		InstanceMethodProb:          0.2,
		ProgramMinStatements:        100,
		BlockStatementCountDist:     GeometricDist{P: 0.2, Max: 20},

		StatementKindDist: TableDist{Options: []WeightedOption{
			{Value: int(StmtAssign), Weight: 0.57},
			{Value: int(StmtBlock), Weight: 0.02},
			{Value: int(StmtCall), Weight: 0.1},
			{Value: int(StmtIf), Weight: 0.17},
			{Value: int(StmtReturn), Weight: 0.02},
			{Value: int(StmtTryFinally), Weight: 0.02},
			{Value: int(StmtLoop), Weight: 0.1},
		}},
		ElseBranchProb:         0.3,
		AssignToNewVarProb:     0.4,
		NewVarIsLocalProb:      0.8,
		LocalIsRefProb:         0.1,
		CompoundAssignmentProb: 0.3,
		RefReassignProb:        0.25,

		ExpressionKindDist: TableDist{Options: []WeightedOption{
			{Value: int(ExprMemberAccess), Weight: 0.38},
			{Value: int(ExprLiteral), Weight: 0.26},
			{Value: int(ExprUnary), Weight: 0.04},
			{Value: int(ExprBinary), Weight: 0.17},
			{Value: int(ExprCall), Weight: 0.1},
			{Value: int(ExprIncrement), Weight: 0.02},
			{Value: int(ExprDecrement), Weight: 0.02},
			{Value: int(ExprNewObject), Weight: 0.01},
		}},
		GenNewFunctionProb:    0.07,
		QualifyStaticCallProb: 0.2,
		LiteralSpecialProb:    0.5,
		Recursion:             RecursionRejection{Cap: 7, Rate: 0.4},
	}
}

func (o Options) Validate() error {
	probs := map[string]float64{
		"make-class-prob":             o.MakeClassProb,
		"implement-interface-prob":    o.ImplementInterfaceProb,
		"aggregate-field-is-agg-prob": o.AggregateFieldIsAggProb,
		"field-is-array-prob":         o.FieldIsArrayProb,
		"pick-aggregate-type-prob":    o.PickAggregateTypeProb,
		"pick-interface-type-prob":    o.PickInterfaceTypeProb,
		"pick-array-type-prob":        o.PickArrayTypeProb,
		"return-type-is-ref-prob":     o.ReturnTypeIsRefProb,
		"param-is-ref-prob":           o.ParamIsRefProb,
		"return-void-prob":            o.ReturnVoidProb,
		"instance-method-prob":        o.InstanceMethodProb,
		"else-branch-prob":            o.ElseBranchProb,
		"assign-to-new-var-prob":      o.AssignToNewVarProb,
		"new-var-is-local-prob":       o.NewVarIsLocalProb,
		"local-is-ref-prob":           o.LocalIsRefProb,
		"compound-assignment-prob":    o.CompoundAssignmentProb,
		"ref-reassign-prob":           o.RefReassignProb,
		"gen-new-function-prob":       o.GenNewFunctionProb,
		"qualify-static-call-prob":    o.QualifyStaticCallProb,
		"literal-special-prob":        o.LiteralSpecialProb,
		"recursion rate":              o.Recursion.Rate,
	}
	for name, p := range probs {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be within [0,1]", name)
		}
	}
	if o.MaxFunctions < 1 {
		return fmt.Errorf("max-functions must be at least 1")
	}
	if o.SingleFunctionMaxTotalCalls < 1 {
		return fmt.Errorf("single-function-max-total-calls must be at least 1")
	}
	if o.ProgramMinStatements < 1 {
		return fmt.Errorf("program-min-statements must be at least 1")
	}
	if o.AggregateTypeCountDist.Lo < 0 || o.AggregateTypeCountDist.Hi < o.AggregateTypeCountDist.Lo {
		return fmt.Errorf("aggregate-type-count bounds are inverted")
	}
	if o.AggregateFieldCountDist.Lo < 1 {
		return fmt.Errorf("aggregate-field-count must be at least 1")
	}
	if o.BlockStatementCountDist.P <= 0 || o.BlockStatementCountDist.P >= 1 {
		return fmt.Errorf("block-statement-count p must be within (0,1)")
	}
	if len(o.StatementKindDist.Options) == 0 || len(o.ExpressionKindDist.Options) == 0 {
		return fmt.Errorf("statement and expression kind tables must be non-empty")
	}
	if o.Recursion.Cap < 1 {
		return fmt.Errorf("recursion cap must be at least 1")
	}
	return nil
}

// LoadOptionsFile overlays a YAML probability configuration on top of the
// receiver and validates the result.
func (o Options) LoadOptionsFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return o, fmt.Errorf("read probability configuration: %w", err)
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("parse probability configuration %s: %w", path, err)
	}
	if err := o.Validate(); err != nil {
		return o, fmt.Errorf("invalid probability configuration %s: %w", path, err)
	}
	return o, nil
}

// DumpYAML writes the options as a YAML document, the same shape
// LoadOptionsFile accepts.
func (o Options) DumpYAML(path string) error {
	data, err := yaml.Marshal(o)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

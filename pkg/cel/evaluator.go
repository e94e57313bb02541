package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// Evaluator compiles and runs CSV detector expressions. Expressions see:
//
//	headers  list(string)      normalized header names of the upload
//	filename string            lower-cased file name
//	row      map(string, string) first data row keyed by header
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("headers", cel.ListType(cel.StringType)),
		cel.Variable("filename", cel.StringType),
		cel.Variable("row", cel.MapType(cel.StringType, cel.StringType)),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

// Program is a compiled boolean detector expression.
type Program struct {
	expression string
	program    cel.Program
}

func (p *Program) String() string {
	return p.expression
}

func (e *Evaluator) CompileDetector(expression string) (*Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("detector expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Program{expression: expression, program: program}, nil
}

func (p *Program) Eval(ctx context.Context, headers []string, filename string, row map[string]string) (bool, error) {
	if row == nil {
		row = map[string]string{}
	}
	if headers == nil {
		headers = []string{}
	}

	vars := map[string]interface{}{
		"headers":  headers,
		"filename": filename,
		"row":      row,
	}

	result, _, err := p.program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

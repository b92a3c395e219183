// Package astjson decodes the CLI's program input format into an
// ast.Program. The concrete surface-syntax parser for VoxLogicA's own
// notation is an external collaborator out of this repository's scope
// (spec.md §1: "assumed to produce the AST"); this package is the boundary
// cmd/voxlogica actually has — a direct JSON encoding of the grammar spec.md
// §6 already fixes field-for-field, tagged by a "kind" discriminator per
// node.
package astjson

import (
	"encoding/json"
	"fmt"

	"github.com/voxlogica-go/voxlogica/internal/ast"
)

// Decode parses data (a JSON document with top-level "declarations" and
// "goals" arrays) into an ast.Program.
func Decode(data []byte) (*ast.Program, error) {
	var raw struct {
		Declarations []json.RawMessage `json:"declarations"`
		Goals        []json.RawMessage `json:"goals"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("voxlogica: decoding program: %w", err)
	}

	program := &ast.Program{}
	for _, d := range raw.Declarations {
		decl, err := decodeDeclaration(d)
		if err != nil {
			return nil, err
		}
		program.Declarations = append(program.Declarations, decl)
	}
	for _, g := range raw.Goals {
		goal, err := decodeGoal(g)
		if err != nil {
			return nil, err
		}
		program.Goals = append(program.Goals, goal)
	}
	return program, nil
}

type kindTag struct {
	Kind string `json:"kind"`
}

func decodeDeclaration(data json.RawMessage) (ast.Declaration, error) {
	var tag kindTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("voxlogica: decoding declaration: %w", err)
	}

	switch tag.Kind {
	case "let":
		var v struct {
			Name   string          `json:"name"`
			Params []string        `json:"params"`
			RHS    json.RawMessage `json:"rhs"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("voxlogica: decoding let declaration: %w", err)
		}
		rhs, err := decodeExpr(v.RHS)
		if err != nil {
			return nil, err
		}
		return ast.Let{Name: v.Name, Params: v.Params, RHS: rhs}, nil

	case "import":
		var v struct {
			Namespace string `json:"namespace"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("voxlogica: decoding import declaration: %w", err)
		}
		return ast.Import{Namespace: v.Namespace}, nil

	default:
		return nil, fmt.Errorf("voxlogica: unknown declaration kind %q", tag.Kind)
	}
}

func decodeGoal(data json.RawMessage) (ast.Goal, error) {
	var tag kindTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("voxlogica: decoding goal: %w", err)
	}

	switch tag.Kind {
	case "print":
		var v struct {
			Label string          `json:"label"`
			Expr  json.RawMessage `json:"expr"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("voxlogica: decoding print goal: %w", err)
		}
		expr, err := decodeExpr(v.Expr)
		if err != nil {
			return nil, err
		}
		return ast.Print{Label: v.Label, Expr: expr}, nil

	case "save":
		var v struct {
			Path string          `json:"path"`
			Expr json.RawMessage `json:"expr"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("voxlogica: decoding save goal: %w", err)
		}
		expr, err := decodeExpr(v.Expr)
		if err != nil {
			return nil, err
		}
		return ast.Save{Path: v.Path, Expr: expr}, nil

	default:
		return nil, fmt.Errorf("voxlogica: unknown goal kind %q", tag.Kind)
	}
}

func decodeExpr(data json.RawMessage) (ast.Expr, error) {
	var tag kindTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("voxlogica: decoding expr: %w", err)
	}

	switch tag.Kind {
	case "number":
		var v struct {
			Value float64 `json:"value"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("voxlogica: decoding number: %w", err)
		}
		return ast.Number{Value: v.Value}, nil

	case "string":
		var v struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("voxlogica: decoding string: %w", err)
		}
		return ast.String{Value: v.Value}, nil

	case "boolean":
		var v struct {
			Value bool `json:"value"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("voxlogica: decoding boolean: %w", err)
		}
		return ast.Boolean{Value: v.Value}, nil

	case "identifier":
		var v struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("voxlogica: decoding identifier: %w", err)
		}
		return ast.Identifier{Name: v.Name}, nil

	case "qualified":
		var v struct {
			Namespace string `json:"namespace"`
			Name      string `json:"name"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("voxlogica: decoding qualified identifier: %w", err)
		}
		return ast.Qualified{Namespace: v.Namespace, Name: v.Name}, nil

	case "app":
		var v struct {
			Callee json.RawMessage   `json:"callee"`
			Args   []json.RawMessage `json:"args"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("voxlogica: decoding application: %w", err)
		}
		callee, err := decodeExpr(v.Callee)
		if err != nil {
			return nil, err
		}
		args := make([]ast.Expr, len(v.Args))
		for i, a := range v.Args {
			arg, err := decodeExpr(a)
			if err != nil {
				return nil, err
			}
			args[i] = arg
		}
		return ast.App{Callee: callee, Args: args}, nil

	case "let":
		var v struct {
			Name string          `json:"name"`
			RHS  json.RawMessage `json:"rhs"`
			Body json.RawMessage `json:"body"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("voxlogica: decoding let expression: %w", err)
		}
		rhs, err := decodeExpr(v.RHS)
		if err != nil {
			return nil, err
		}
		body, err := decodeExpr(v.Body)
		if err != nil {
			return nil, err
		}
		return ast.LetExpr{Name: v.Name, RHS: rhs, Body: body}, nil

	case "for":
		var v struct {
			Var  string          `json:"var"`
			Iter json.RawMessage `json:"iter"`
			Body json.RawMessage `json:"body"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("voxlogica: decoding for-comprehension: %w", err)
		}
		iter, err := decodeExpr(v.Iter)
		if err != nil {
			return nil, err
		}
		body, err := decodeExpr(v.Body)
		if err != nil {
			return nil, err
		}
		return ast.For{Var: v.Var, Iter: iter, Body: body}, nil

	default:
		return nil, fmt.Errorf("voxlogica: unknown expr kind %q", tag.Kind)
	}
}

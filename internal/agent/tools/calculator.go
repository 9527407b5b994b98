package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	errx "github.com/web3buddy/server/internal/core/error"
)

type CalculatorInput struct {
	Expression string `json:"expression"`
}

type CalculatorOutput struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
}

func newCalculatorDefinition() *Definition {
	params := []Param{
		{
			Name:     "expression",
			Type:     "string",
			Desc:     "Arithmetic expression to evaluate, e.g. (2+3)*4 or 10^2/5. Supports + - * / % ^ and parentheses.",
			Required: true,
		},
	}
	impl := utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolCalculator,
			Desc:        "Evaluate an arithmetic expression and return the numeric result. Use this for any calculation instead of doing arithmetic yourself.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"expression": {
					Type:     "string",
					Desc:     params[0].Desc,
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *CalculatorInput) (*CalculatorOutput, error) {
			result, err := Evaluate(in.Expression)
			if err != nil {
				return nil, err
			}
			return &CalculatorOutput{Expression: in.Expression, Result: result}, nil
		},
	)
	return newDefinition(ToolCalculator,
		"Evaluate an arithmetic expression and return the numeric result.",
		params, impl)
}

// Evaluate computes an infix arithmetic expression. It is pure and
// synchronous; the only failure mode is a malformed expression, reported as
// errx.ErrEvaluation.
func Evaluate(expression string) (float64, error) {
	p := &exprParser{input: expression}
	v, err := p.parseExpr()
	if err != nil {
		return 0, errx.Wrap(errx.ErrEvaluation, err)
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return 0, errx.Wrap(errx.ErrEvaluation, fmt.Errorf("unexpected %q at offset %d", p.input[p.pos:], p.pos))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errx.Wrap(errx.ErrEvaluation, fmt.Errorf("result is not a finite number"))
	}
	return v, nil
}

// exprParser is a small recursive-descent parser:
//
//	expr   := term (('+'|'-') term)*
//	term   := factor (('*'|'/'|'%') factor)*
//	factor := unary ('^' factor)?          (right associative)
//	unary  := '-' unary | primary
//	primary:= number | '(' expr ')'
type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() (byte, bool) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *exprParser) parseExpr() (float64, error) {
	v, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		c, ok := p.peek()
		if !ok || (c != '+' && c != '-') {
			return v, nil
		}
		p.pos++
		rhs, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if c == '+' {
			v += rhs
		} else {
			v -= rhs
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	v, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		c, ok := p.peek()
		if !ok || (c != '*' && c != '/' && c != '%') {
			return v, nil
		}
		p.pos++
		rhs, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		switch c {
		case '*':
			v *= rhs
		case '/':
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v /= rhs
		case '%':
			if rhs == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			v = math.Mod(v, rhs)
		}
	}
}

func (p *exprParser) parseFactor() (float64, error) {
	v, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	if c, ok := p.peek(); ok && c == '^' {
		p.pos++
		exp, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return math.Pow(v, exp), nil
	}
	return v, nil
}

func (p *exprParser) parseUnary() (float64, error) {
	if c, ok := p.peek(); ok && c == '-' {
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (float64, error) {
	c, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	if c == '(' {
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if c, ok := p.peek(); !ok || c != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.input) && (isDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if p.pos == start {
		return 0, fmt.Errorf("expected number at offset %d", start)
	}
	lit := strings.TrimSpace(p.input[start:p.pos])
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", lit)
	}
	return v, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

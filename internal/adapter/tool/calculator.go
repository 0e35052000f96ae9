package tool

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"jomra/internal/domain"
)

var exprCharset = regexp.MustCompile(`^[0-9+\-*/().]+$`)

// Calculator evaluates arithmetic over + - * / with parentheses and unary
// signs, honouring the usual precedence.
type Calculator struct{}

func NewCalculator() *Calculator { return &Calculator{} }

func (*Calculator) Name() string        { return "calculator" }
func (*Calculator) Description() string { return "Perform mathematical calculations" }
func (*Calculator) Parameters() []domain.ToolParameter {
	return []domain.ToolParameter{{Name: "expression", Description: "Math expression", Required: true}}
}

func (c *Calculator) Execute(_ context.Context, params map[string]any) (*domain.ToolResult, error) {
	expr := stringParam(params, "expression")
	if strings.TrimSpace(expr) == "" {
		return nil, failf(c.Name(), "Expression cannot be empty")
	}
	expr = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, expr)
	if !exprCharset.MatchString(expr) {
		return nil, failf(c.Name(), "Invalid characters in expression")
	}

	v, err := Evaluate(expr)
	if err != nil {
		return nil, failf(c.Name(), "Calculation failed: "+err.Error())
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, failf(c.Name(), "Calculation failed: Calculation resulted in an invalid number")
	}

	return &domain.ToolResult{
		Success: true,
		Text:    "Result: " + strconv.FormatFloat(v, 'f', -1, 64),
		Data:    map[string]any{"result": v, "expression": expr},
	}, nil
}

// Evaluate parses and evaluates an arithmetic expression.
func Evaluate(expr string) (float64, error) {
	p := &parser{src: expr}
	v, err := p.expression()
	if err != nil {
		return 0, err
	}
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("unexpected %q at %d", p.src[p.pos], p.pos)
	}
	return v, nil
}

// parser is a recursive-descent evaluator:
//
//	expression = term { ("+" | "-") term }
//	term       = factor { ("*" | "/") factor }
//	factor     = ("+" | "-") factor | "(" expression ")" | number
type parser struct {
	src string
	pos int
}

func (p *parser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *parser) eat(c byte) bool {
	for p.peek() == ' ' {
		p.pos++
	}
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expression() (float64, error) {
	x, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		switch {
		case p.eat('+'):
			y, err := p.term()
			if err != nil {
				return 0, err
			}
			x += y
		case p.eat('-'):
			y, err := p.term()
			if err != nil {
				return 0, err
			}
			x -= y
		default:
			return x, nil
		}
	}
}

func (p *parser) term() (float64, error) {
	x, err := p.factor()
	if err != nil {
		return 0, err
	}
	for {
		switch {
		case p.eat('*'):
			y, err := p.factor()
			if err != nil {
				return 0, err
			}
			x *= y
		case p.eat('/'):
			y, err := p.factor()
			if err != nil {
				return 0, err
			}
			x /= y
		default:
			return x, nil
		}
	}
}

func (p *parser) factor() (float64, error) {
	if p.eat('+') {
		return p.factor()
	}
	if p.eat('-') {
		v, err := p.factor()
		return -v, err
	}
	if p.eat('(') {
		v, err := p.expression()
		if err != nil {
			return 0, err
		}
		if !p.eat(')') {
			return 0, fmt.Errorf("missing closing parenthesis at %d", p.pos)
		}
		return v, nil
	}

	start := p.pos
	for c := p.peek(); (c >= '0' && c <= '9') || c == '.'; c = p.peek() {
		p.pos++
	}
	if start == p.pos {
		if p.pos >= len(p.src) {
			return 0, fmt.Errorf("unexpected end of expression")
		}
		return 0, fmt.Errorf("unexpected %q at %d", p.src[p.pos], p.pos)
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", p.src[start:p.pos])
	}
	return v, nil
}

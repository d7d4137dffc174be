package exprlang

import (
	"fmt"
	"strconv"
)

// reducers is the whitelist of statistical helpers exposed to expressions,
// matching spec.md §9's "{std, var, mean, min, max, fabs}" (abs here; the
// source's fabs is the same single-argument reducer under a Pythonism).
var reducers = map[string]bool{
	"mean": true, "std": true, "var": true,
	"min": true, "max": true, "abs": true,
}

// precedence of binary operators, Pratt-style: higher binds tighter.
var precedence = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3,
	"<": 4, "<=": 4, ">": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

type parser struct {
	lex *lexer
	cur token
}

// Parse compiles src into an evaluable expression tree.
func Parse(src string) (Node, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	node, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, fmt.Errorf("exprlang: unexpected trailing token %q", p.cur.text)
	}
	return node, nil
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func opText(t token) (string, bool) {
	switch t.kind {
	case tokOp:
		return t.text, true
	case tokAnd:
		return "&&", true
	case tokOr:
		return "||", true
	}
	return "", false
}

// parseExpr implements precedence climbing: parse a unary/primary, then
// fold in binary operators whose precedence is >= minPrec.
func (p *parser) parseExpr(minPrec int) (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		op, ok := opText(p.cur)
		if !ok {
			break
		}
		prec, known := precedence[op]
		if !known || prec < minPrec {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.cur.kind == tokNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: "!", operand: operand}, nil
	}
	if p.cur.kind == tokOp && p.cur.text == "-" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: "-", operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	switch p.cur.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(p.cur.text, 64)
		if err != nil {
			return nil, fmt.Errorf("exprlang: invalid number %q: %w", p.cur.text, err)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return numberNode{value: v}, nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		node, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, fmt.Errorf("exprlang: expected closing paren")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return node, nil

	case tokIdent:
		return p.parseIdentOrCall()

	default:
		return nil, fmt.Errorf("exprlang: unexpected token %q", p.cur.text)
	}
}

func (p *parser) parseIdentOrCall() (Node, error) {
	name := p.cur.text
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.cur.kind == tokLParen {
		if !reducers[name] {
			return nil, fmt.Errorf("exprlang: %q is not a whitelisted function", name)
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return callNode{fn: name, args: args}, nil
	}

	if p.cur.kind != tokDot {
		return nil, fmt.Errorf("exprlang: expected \".\" after entity name %q", name)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.cur.kind != tokIdent {
		return nil, fmt.Errorf("exprlang: expected attribute or buffer name after %q.", name)
	}
	attr := p.cur.text
	if err := p.advance(); err != nil {
		return nil, err
	}

	if attr == "buffer" {
		if p.cur.kind != tokLParen {
			return nil, fmt.Errorf("exprlang: expected \"(\" after buffer")
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		if len(args) != 2 {
			return nil, fmt.Errorf("exprlang: buffer() takes exactly 2 arguments")
		}
		attrArg, ok := args[0].(attrNode)
		if !ok || attrArg.entity != "" {
			return nil, fmt.Errorf("exprlang: buffer() first argument must be an attribute name")
		}
		sizeArg, ok := args[1].(numberNode)
		if !ok {
			return nil, fmt.Errorf("exprlang: buffer() second argument must be a numeric size")
		}
		return bufferNode{entity: name, attr: attrArg.attr, n: int(sizeArg.value)}, nil
	}

	return attrNode{entity: name, attr: attr}, nil
}

// parseArgs parses a parenthesized, comma-separated argument list. Bare
// identifiers used as buffer() argument names (e.g. "range" in
// entity.buffer(range, 10)) are represented as attrNode with an empty
// entity field.
func (p *parser) parseArgs() ([]Node, error) {
	if err := p.advance(); err != nil { // consume "("
		return nil, err
	}
	var args []Node
	if p.cur.kind == tokRParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return args, nil
	}
	for {
		if p.cur.kind == tokIdent {
			name := p.cur.text
			saved, savedPos := p.cur, p.lex.pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.cur.kind != tokDot {
				args = append(args, attrNode{entity: "", attr: name})
			} else {
				// Rewind to the entity name and parse the argument as a full expression.
				p.cur, p.lex.pos = saved, savedPos
				arg, err := p.parseExpr(0)
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
			}
		} else {
			arg, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}

		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.cur.kind != tokRParen {
		return nil, fmt.Errorf("exprlang: expected closing paren in argument list")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return args, nil
}

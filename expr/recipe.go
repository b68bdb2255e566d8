package expr

import (
	"strconv"
	"strings"

	"tlog.app/go/errors"
)

// Parse decodes a recipe string into an Expression. Grammar:
//
//	recipe     := assignment (';' assignment)*
//	assignment := var '=' expr
//	expr       := var | call
//	call       := ident '(' arg (',' arg)* ')'
//	arg        := expr
//	var        := '%'n | '#'n | '@'n | '$'n | '_'n
func Parse(recipe string) (*Expression, error) {
	e := New()

	for _, stmt := range splitTop(recipe, ';') {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		eq := strings.IndexByte(stmt, '=')
		if eq < 0 {
			return nil, errors.New("recipe %q: assignment missing '=' in %q", recipe, stmt)
		}

		lhs, rest := stmt[:eq], stmt[eq+1:]

		lv, err := parseVarToken(lhs)
		if err != nil {
			return nil, errors.Wrap(err, "recipe %q: lhs", recipe)
		}

		result := e.Var(lv.t, lv.id)

		p := &parser{e: e, s: rest}

		v, err := p.expr(result)
		if err != nil {
			return nil, errors.Wrap(err, "recipe %q: rhs of %s", recipe, lhs)
		}

		if v != result {
			// rhs was a bare variable reference: make the assignment explicit.
			e.Emit(Nop, result, v)
		}

		if !p.atEnd() {
			return nil, errors.New("recipe %q: trailing input %q", recipe, p.s[p.pos:])
		}
	}

	e.computeLiveRanges()

	return e, nil
}

type parser struct {
	e   *Expression
	s   string
	pos int
}

func (p *parser) atEnd() bool { return p.pos >= len(p.s) }

func (p *parser) peek() byte {
	if p.atEnd() {
		return 0
	}
	return p.s[p.pos]
}

// expr parses a <var> or <call>. If it parses a call and resultHint is
// non-nil, the call's result is bound directly to resultHint instead of
// a fresh temporary.
func (p *parser) expr(resultHint *Var) (*Var, error) {
	if isSigil(p.peek()) {
		tok, err := p.varToken()
		if err != nil {
			return nil, err
		}

		return p.e.Var(tok.t, tok.id), nil
	}

	name, err := p.ident()
	if err != nil {
		return nil, err
	}

	op, ok := ParseOpType(name)
	if !ok {
		return nil, errors.New("unknown op %q at pos %d", name, p.pos)
	}

	if p.peek() != '(' {
		return nil, errors.New("expected '(' after %s at pos %d", name, p.pos)
	}
	p.pos++

	var args []*Var

	for {
		a, err := p.expr(nil)
		if err != nil {
			return nil, err
		}

		args = append(args, a)

		if p.peek() == ',' {
			p.pos++
			continue
		}

		break
	}

	if p.peek() != ')' {
		return nil, errors.New("expected ')' at pos %d", p.pos)
	}
	p.pos++

	result := resultHint
	if result == nil {
		result = p.e.NewTemp()
	}

	p.e.Emit(op, result, args...)

	return result, nil
}

func (p *parser) ident() (string, error) {
	st := p.pos

	for !p.atEnd() && isIdentByte(p.s[p.pos]) {
		p.pos++
	}

	if p.pos == st {
		return "", errors.New("expected identifier at pos %d", p.pos)
	}

	return p.s[st:p.pos], nil
}

func (p *parser) varToken() (varTok, error) {
	st := p.pos
	p.pos++ // sigil

	ds := p.pos
	for !p.atEnd() && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}

	if p.pos == ds {
		return varTok{}, errors.New("expected digits after %q at pos %d", p.s[st:st+1], st)
	}

	return parseVarToken(p.s[st:p.pos])
}

type varTok struct {
	t  VarType
	id int
}

func parseVarToken(s string) (varTok, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return varTok{}, errors.New("empty variable token")
	}

	t, ok := sigilType(s[0])
	if !ok {
		return varTok{}, errors.New("unknown sigil %q", s[0])
	}

	id, err := strconv.Atoi(s[1:])
	if err != nil {
		return varTok{}, errors.Wrap(err, "variable id in %q", s)
	}

	return varTok{t: t, id: id}, nil
}

func isSigil(c byte) bool {
	_, ok := sigilType(c)
	return ok
}

func sigilType(c byte) (VarType, bool) {
	switch c {
	case '%':
		return Input, true
	case '#':
		return Const, true
	case '@':
		return Output, true
	case '$':
		return Temp, true
	case '_':
		return Number, true
	default:
		return 0, false
	}
}

func isIdentByte(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

// splitTop splits s on sep, ignoring occurrences inside parentheses.
func splitTop(s string, sep byte) []string {
	var out []string

	depth := 0
	st := 0

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[st:i])
				st = i + 1
			}
		}
	}

	out = append(out, s[st:])

	return out
}

// Recipe serializes the expression back into recipe form. Temporaries
// used by exactly one consumer are inlined as nested calls; every
// other statement (outputs, multiply-consumed or dead temporaries) gets
// its own "var=expr" clause, in definition order.
func (e *Expression) Recipe() string {
	var b strings.Builder

	first := true

	for _, op := range e.Ops {
		r := op.Result

		if r.Type == Temp && r.Inlined() {
			continue
		}

		if !first {
			b.WriteByte(';')
		}
		first = false

		b.WriteString(r.String())
		b.WriteByte('=')
		b.WriteString(emitOp(op))
	}

	return b.String()
}

func emitOp(op *Op) string {
	if op.Type == Nop {
		return emitArg(op.Args[0])
	}

	var b strings.Builder

	b.WriteString(op.Type.String())
	b.WriteByte('(')

	for i, a := range op.Args {
		if i > 0 {
			b.WriteByte(',')
		}

		b.WriteString(emitArg(a))
	}

	b.WriteByte(')')

	return b.String()
}

func emitArg(v *Var) string {
	if v.Type == Temp && v.Inlined() && v.Producer != nil {
		return emitOp(v.Producer)
	}

	return v.String()
}

package cypher

import (
	"fmt"
	"strconv"
	"strings"
)

// forbiddenClauses are Cypher keywords that either mutate the graph or break
// the single-pattern read surface. Their presence anywhere in the query is a
// parse error; the gateway never lets them reach storage.
var forbiddenClauses = map[string]bool{
	"CREATE": true, "MERGE": true, "DELETE": true, "DETACH": true,
	"SET": true, "REMOVE": true, "DROP": true, "CALL": true,
	"LOAD": true, "UNION": true, "WITH": true, "UNWIND": true,
	"FOREACH": true,
}

// Parse parses query text into a Query AST. It accepts exactly the
// constrained surface documented on the package: one MATCH path, optional
// WHERE conjunction, RETURN items, optional ORDER BY and LIMIT.
func Parse(src string) (*Query, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}

	for _, t := range toks {
		if t.kind == tokIdent && forbiddenClauses[strings.ToUpper(t.text)] {
			return nil, &SyntaxError{Offset: t.offset, Msg: fmt.Sprintf("clause %s is not allowed on the read surface", strings.ToUpper(t.text))}
		}
	}

	q := &Query{}
	if err := p.expectKeyword("MATCH"); err != nil {
		return nil, err
	}
	if err := p.parsePath(q); err != nil {
		return nil, err
	}
	if p.atKeyword("WHERE") {
		p.advance()
		if err := p.parseWhere(q); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("RETURN"); err != nil {
		return nil, err
	}
	if err := p.parseReturn(q); err != nil {
		return nil, err
	}
	if p.atKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		if err := p.parseOrderBy(q); err != nil {
			return nil, err
		}
	}
	if p.atKeyword("LIMIT") {
		p.advance()
		n, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			return nil, p.errHere("LIMIT must be positive")
		}
		q.Limit = n
	}
	if p.peek().kind != tokEOF {
		return nil, p.errHere("unexpected trailing input")
	}
	return q, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }
func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.toks[p.pos].kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) atKeyword(kw string) bool {
	t := p.peek()
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func (p *parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return p.errHere(fmt.Sprintf("expected %s", kw))
	}
	p.advance()
	return nil
}

func (p *parser) expectPunct(s string) error {
	t := p.peek()
	if t.kind != tokPunct || t.text != s {
		return p.errHere(fmt.Sprintf("expected %q", s))
	}
	p.advance()
	return nil
}

func (p *parser) atPunct(s string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) expectIdent() (string, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return "", p.errHere("expected identifier")
	}
	p.advance()
	return t.text, nil
}

func (p *parser) expectInt() (int64, error) {
	t := p.peek()
	if t.kind != tokNumber {
		return 0, p.errHere("expected number")
	}
	n, err := strconv.ParseInt(t.text, 10, 64)
	if err != nil {
		return 0, p.errHere("expected integer")
	}
	p.advance()
	return n, nil
}

func (p *parser) errHere(msg string) error {
	return &SyntaxError{Offset: p.peek().offset, Msg: msg}
}

// parsePath parses node (rel node)* .
func (p *parser) parsePath(q *Query) error {
	node, err := p.parseNode()
	if err != nil {
		return err
	}
	q.Nodes = append(q.Nodes, node)

	for {
		var dir Direction
		switch {
		case p.atPunct("-"):
			dir = DirOut
		case p.atPunct("<-"):
			dir = DirIn
		default:
			return nil
		}
		p.advance()

		rel, err := p.parseRel(dir)
		if err != nil {
			return err
		}
		// Closing arrow: -> for outbound, - for inbound.
		if dir == DirOut {
			if err := p.expectPunct("->"); err != nil {
				return err
			}
		} else {
			if err := p.expectPunct("-"); err != nil {
				return err
			}
		}
		next, err := p.parseNode()
		if err != nil {
			return err
		}
		q.Rels = append(q.Rels, rel)
		q.Nodes = append(q.Nodes, next)
	}
}

// parseNode parses '(' [alias] [':' label] [props] ')'.
func (p *parser) parseNode() (NodePattern, error) {
	var n NodePattern
	if err := p.expectPunct("("); err != nil {
		return n, err
	}
	if p.peek().kind == tokIdent {
		n.Alias = p.advance().text
	}
	if p.atPunct(":") {
		p.advance()
		label, err := p.expectIdent()
		if err != nil {
			return n, err
		}
		n.Label = label
	}
	if p.atPunct("{") {
		props, err := p.parsePropMap()
		if err != nil {
			return n, err
		}
		n.Props = props
	}
	if err := p.expectPunct(")"); err != nil {
		return n, err
	}
	return n, nil
}

// parseRel parses '[' [alias] ':' type [props] ']'.
func (p *parser) parseRel(dir Direction) (RelPattern, error) {
	r := RelPattern{Direction: dir}
	if err := p.expectPunct("["); err != nil {
		return r, err
	}
	if p.peek().kind == tokIdent {
		r.Alias = p.advance().text
	}
	if err := p.expectPunct(":"); err != nil {
		return r, p.errHere("relationship patterns must be typed")
	}
	typ, err := p.expectIdent()
	if err != nil {
		return r, err
	}
	r.Type = typ
	if p.atPunct("{") {
		props, err := p.parsePropMap()
		if err != nil {
			return r, err
		}
		r.Props = props
	}
	if err := p.expectPunct("]"); err != nil {
		return r, err
	}
	return r, nil
}

// parsePropMap parses '{' ident ':' literal (',' ident ':' literal)* '}'.
func (p *parser) parsePropMap() (map[string]any, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	props := map[string]any{}
	if p.atPunct("}") {
		p.advance()
		return props, nil
	}
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		props[name] = val
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return props, nil
}

// parseLiteral parses a string, number, or boolean literal. Numbers accept a
// leading unary minus.
func (p *parser) parseLiteral() (any, error) {
	t := p.peek()
	switch t.kind {
	case tokPunct:
		if t.text != "-" {
			break
		}
		p.advance()
		if p.peek().kind != tokNumber {
			return nil, p.errHere("expected number after -")
		}
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		switch n := val.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, p.errHere("expected number after -")
	case tokString:
		p.advance()
		return t.text, nil
	case tokNumber:
		p.advance()
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, p.errHere("malformed number")
			}
			return f, nil
		}
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, p.errHere("malformed number")
		}
		return n, nil
	case tokIdent:
		switch strings.ToUpper(t.text) {
		case "TRUE":
			p.advance()
			return true, nil
		case "FALSE":
			p.advance()
			return false, nil
		}
	}
	return nil, p.errHere("expected literal value")
}

// parseWhere parses cond (AND cond)*.
func (p *parser) parseWhere(q *Query) error {
	for {
		cond, err := p.parseCondition()
		if err != nil {
			return err
		}
		q.Where = append(q.Where, cond)
		if p.atKeyword("AND") {
			p.advance()
			continue
		}
		return nil
	}
}

// parseCondition parses alias '.' prop OP literal.
func (p *parser) parseCondition() (Condition, error) {
	var c Condition
	alias, err := p.expectIdent()
	if err != nil {
		return c, err
	}
	c.Alias = alias
	if err := p.expectPunct("."); err != nil {
		return c, err
	}
	prop, err := p.expectIdent()
	if err != nil {
		return c, err
	}
	c.Prop = prop

	t := p.peek()
	switch {
	case t.kind == tokPunct:
		switch t.text {
		case "=", "<>", "<", "<=", ">", ">=":
			c.Op = Op(t.text)
			p.advance()
		default:
			return c, p.errHere("expected comparison operator")
		}
	case t.kind == tokIdent && strings.EqualFold(t.text, "CONTAINS"):
		c.Op = OpContains
		p.advance()
	default:
		return c, p.errHere("expected comparison operator")
	}

	val, err := p.parseLiteral()
	if err != nil {
		return c, err
	}
	c.Value = val
	return c, nil
}

// parseReturn parses item (',' item)*.
func (p *parser) parseReturn(q *Query) error {
	for {
		item, err := p.parseReturnItem()
		if err != nil {
			return err
		}
		q.Return = append(q.Return, item)
		if p.atPunct(",") {
			p.advance()
			continue
		}
		return nil
	}
}

// parseReturnItem parses count(alias) | alias.prop | alias.
func (p *parser) parseReturnItem() (ReturnItem, error) {
	var item ReturnItem
	name, err := p.expectIdent()
	if err != nil {
		return item, err
	}
	if strings.EqualFold(name, "count") && p.atPunct("(") {
		p.advance()
		alias, err := p.expectIdent()
		if err != nil {
			return item, err
		}
		if err := p.expectPunct(")"); err != nil {
			return item, err
		}
		return ReturnItem{Kind: ReturnCount, Alias: alias}, nil
	}
	if p.atPunct(".") {
		p.advance()
		prop, err := p.expectIdent()
		if err != nil {
			return item, err
		}
		return ReturnItem{Kind: ReturnProperty, Alias: name, Prop: prop}, nil
	}
	return ReturnItem{Kind: ReturnNode, Alias: name}, nil
}

// parseOrderBy parses alias '.' prop [ASC|DESC].
func (p *parser) parseOrderBy(q *Query) error {
	alias, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectPunct("."); err != nil {
		return err
	}
	prop, err := p.expectIdent()
	if err != nil {
		return err
	}
	ob := &OrderBy{Alias: alias, Prop: prop}
	if p.atKeyword("DESC") {
		p.advance()
		ob.Descending = true
	} else if p.atKeyword("ASC") {
		p.advance()
	}
	q.Order = ob
	return nil
}

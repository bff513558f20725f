package compiler

import "fmt"

// Parser is a hand-written recursive descent parser over the Lexer's
// token stream (grounded on parser.rs). Unlike the original, which left
// parse_expression as a stub, this implements full precedence-climbing
// expression parsing — the front end's contract (spec §6.2's grammar)
// requires working expressions end to end.
type Parser struct {
	lexer   *Lexer
	program Program
}

func NewParser(lexer *Lexer) *Parser {
	return &Parser{lexer: lexer}
}

func (p *Parser) next() (Token, error) { return p.lexer.NextToken() }

// Parse consumes the whole token stream and returns the resulting
// Program. Grounded on parser.rs's Parser::parse, which stops (rather
// than failing the whole file) at the first unparsable element; that
// behavior is preserved here via the returned error.
func (p *Parser) Parse() (Program, error) {
	for {
		tok, err := p.next()
		if err != nil {
			return p.program, err
		}
		if tok.Kind == TokEOF {
			return p.program, nil
		}
		el, err := p.parseElement(tok)
		if err != nil {
			return p.program, err
		}
		p.program.Elements = append(p.program.Elements, el)
	}
}

func (p *Parser) parseElement(tok Token) (Element, error) {
	if tok.Kind != TokKeyword {
		return Element{}, fmt.Errorf("file: unexpected token, expected keyword, found %s", tok)
	}
	switch tok.Keyword {
	case KwInclude:
		name, err := p.next()
		if err != nil {
			return Element{}, err
		}
		if name.Kind != TokIdentifier {
			return Element{}, fmt.Errorf("include: unexpected token, expected identifier, got %s", name)
		}
		semi, err := p.next()
		if err != nil {
			return Element{}, err
		}
		if semi.Kind != TokSemicolon {
			return Element{}, fmt.Errorf("include: unexpected token, expected ';', got %s", semi)
		}
		return Element{Statement: &TopLevelStatement{Include: &IncludeStatement{What: name.Ident}}}, nil

	case KwUse:
		use, err := p.parseUse()
		if err != nil {
			return Element{}, err
		}
		return Element{Statement: &TopLevelStatement{Use: &UseStatement{What: use}}}, nil

	case KwLet, KwConst:
		decl, err := p.parseDeclaration()
		if err != nil {
			return Element{}, err
		}
		return Element{Statement: &TopLevelStatement{Declaration: &decl}}, nil

	case KwFn:
		fn, err := p.parseFn()
		if err != nil {
			return Element{}, err
		}
		return Element{Function: &fn}, nil

	default:
		return Element{}, fmt.Errorf("file: unexpected keyword, expected 'include' | 'use' | 'const' | 'let' | 'fn'")
	}
}

func (p *Parser) parseUse() ([]string, error) {
	var res []string
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	if tok.Kind != TokIdentifier {
		return nil, fmt.Errorf("use: unexpected token, expected identifier, found %s", tok)
	}
	res = append(res, tok.Ident)
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokSemicolon {
			break
		}
		if tok.Kind != TokComma {
			return nil, fmt.Errorf("use: unexpected token, expected ';' or ',', found %s", tok)
		}
		name, err := p.next()
		if err != nil {
			return nil, err
		}
		if name.Kind != TokIdentifier {
			return nil, fmt.Errorf("use: unexpected token, expected identifier, found %s", name)
		}
		res = append(res, name.Ident)
	}
	return res, nil
}

func (p *Parser) parseDeclaration() (Declaration, error) {
	tok, err := p.next()
	if err != nil {
		return Declaration{}, err
	}
	if tok.Kind != TokIdentifier {
		return Declaration{}, fmt.Errorf("let/const: unexpected token, expected identifier, found %s", tok)
	}
	name := tok.Ident

	var ty Type
	hasTy := false
	tok, err = p.next()
	if err != nil {
		return Declaration{}, err
	}
	if tok.Kind == TokColon {
		tok, err = p.next()
		if err != nil {
			return Declaration{}, err
		}
		if tok.Kind != TokKeyword {
			return Declaration{}, fmt.Errorf("let/const: unexpected token, expected type, found %s", tok)
		}
		t, ok := TypeFromKeyword(tok.Keyword)
		if !ok {
			return Declaration{}, fmt.Errorf("let/const: unexpected keyword, expected a type")
		}
		ty, hasTy = t, true
		tok, err = p.next()
		if err != nil {
			return Declaration{}, err
		}
	}

	switch {
	case tok.Kind == TokOperator && tok.Operator == OpAssign:
		valTok, err := p.next()
		if err != nil {
			return Declaration{}, err
		}
		value, err := p.parseExpression(valTok, precLowest)
		if err != nil {
			return Declaration{}, err
		}
		semi, err := p.next()
		if err != nil {
			return Declaration{}, err
		}
		if semi.Kind != TokSemicolon {
			return Declaration{}, fmt.Errorf("let/const: unexpected token, expected ';', found %s", semi)
		}
		if !hasTy {
			inferred, ok := value.InferType()
			if !ok {
				return Declaration{}, fmt.Errorf("let/const: cannot infer type for %q, please add a type annotation", name)
			}
			ty, hasTy = inferred, true
		}
		return Declaration{Name: name, Ty: ty, HasTy: hasTy, Value: &value}, nil

	case tok.Kind == TokSemicolon:
		if !hasTy {
			return Declaration{}, fmt.Errorf("let/const: variable without initial value must have a type annotation")
		}
		return Declaration{Name: name, Ty: ty, HasTy: hasTy}, nil

	default:
		return Declaration{}, fmt.Errorf("let/const: unexpected token, expected '=' or ';', found %s", tok)
	}
}

func (p *Parser) parseFn() (Function, error) {
	tok, err := p.next()
	if err != nil {
		return Function{}, err
	}
	if tok.Kind != TokIdentifier {
		return Function{}, fmt.Errorf("fn: unexpected token, expected identifier, found %s", tok)
	}
	name := tok.Ident

	tok, err = p.next()
	if err != nil {
		return Function{}, err
	}
	if tok.Kind != TokLParen {
		return Function{}, fmt.Errorf("fn: unexpected token, expected '(', found %s", tok)
	}

	var params []Parameter
	tok, err = p.next()
	if err != nil {
		return Function{}, err
	}
	for tok.Kind != TokRParen {
		if tok.Kind == TokComma {
			tok, err = p.next()
			if err != nil {
				return Function{}, err
			}
		}
		if tok.Kind != TokIdentifier {
			return Function{}, fmt.Errorf("fn: unexpected token, expected identifier, found %s", tok)
		}
		pname := tok.Ident
		tok, err = p.next()
		if err != nil {
			return Function{}, err
		}
		if tok.Kind != TokColon {
			return Function{}, fmt.Errorf("fn: unexpected token, expected ':', found %s", tok)
		}
		tok, err = p.next()
		if err != nil {
			return Function{}, err
		}
		if tok.Kind != TokKeyword {
			return Function{}, fmt.Errorf("fn: unexpected token, expected type, found %s", tok)
		}
		ty, ok := TypeFromKeyword(tok.Keyword)
		if !ok {
			return Function{}, fmt.Errorf("fn: unexpected keyword, expected a type")
		}
		params = append(params, Parameter{Name: pname, Ty: ty})
		tok, err = p.next()
		if err != nil {
			return Function{}, err
		}
	}

	tok, err = p.next()
	if err != nil {
		return Function{}, err
	}
	var retTy Type
	hasRet := false
	if tok.Kind == TokArrow {
		tok, err = p.next()
		if err != nil {
			return Function{}, err
		}
		if tok.Kind == TokKeyword {
			t, ok := TypeFromKeyword(tok.Keyword)
			if !ok {
				return Function{}, fmt.Errorf("fn: unexpected keyword, expected a type")
			}
			retTy, hasRet = t, true
		} else if tok.Kind == TokLParen {
			close, err := p.next()
			if err != nil {
				return Function{}, err
			}
			if close.Kind != TokRParen {
				return Function{}, fmt.Errorf("fn: tuples are not supported, expected ')', found %s", close)
			}
		} else {
			return Function{}, fmt.Errorf("fn: unexpected token, expected type, found %s", tok)
		}
		tok, err = p.next()
		if err != nil {
			return Function{}, err
		}
	}

	if tok.Kind != TokLCurly {
		return Function{}, fmt.Errorf("fn: unexpected token, expected '{', found %s", tok)
	}

	var body []Statement
	tok, err = p.next()
	if err != nil {
		return Function{}, err
	}
	for tok.Kind != TokRCurly {
		stmt, err := p.parseStatement(tok)
		if err != nil {
			return Function{}, err
		}
		body = append(body, stmt)
		tok, err = p.next()
		if err != nil {
			return Function{}, err
		}
	}

	return Function{
		Name:       name,
		Parameters: params,
		ReturnType: retTy,
		HasReturn:  hasRet,
		Body:       Block{Statements: body},
	}, nil
}

func (p *Parser) parseStatement(tok Token) (Statement, error) {
	switch {
	case tok.Kind == TokKeyword:
		switch tok.Keyword {
		case KwLet:
			decl, err := p.parseDeclaration()
			if err != nil {
				return Statement{}, err
			}
			return Statement{Declaration: &decl}, nil

		case KwIf:
			condTok, err := p.next()
			if err != nil {
				return Statement{}, err
			}
			cond, err := p.parseExpression(condTok, precLowest)
			if err != nil {
				return Statement{}, err
			}
			bodyTok, err := p.next()
			if err != nil {
				return Statement{}, err
			}
			body, err := p.parseStatement(bodyTok)
			if err != nil {
				return Statement{}, err
			}
			next, err := p.next()
			if err != nil {
				return Statement{}, err
			}
			if next.Kind == TokKeyword && next.Keyword == KwElse {
				elseTok, err := p.next()
				if err != nil {
					return Statement{}, err
				}
				elseBody, err := p.parseStatement(elseTok)
				if err != nil {
					return Statement{}, err
				}
				return Statement{If: &IfStatement{Condition: cond, Then: &body, Else: &elseBody}}, nil
			}
			p.lexer.Revert(next)
			return Statement{If: &IfStatement{Condition: cond, Then: &body}}, nil

		case KwWhile:
			condTok, err := p.next()
			if err != nil {
				return Statement{}, err
			}
			cond, err := p.parseExpression(condTok, precLowest)
			if err != nil {
				return Statement{}, err
			}
			bodyTok, err := p.next()
			if err != nil {
				return Statement{}, err
			}
			body, err := p.parseStatement(bodyTok)
			if err != nil {
				return Statement{}, err
			}
			return Statement{While: &WhileStatement{Condition: cond, Body: &body}}, nil

		case KwFor:
			nameTok, err := p.next()
			if err != nil {
				return Statement{}, err
			}
			if nameTok.Kind != TokIdentifier {
				return Statement{}, fmt.Errorf("for: unexpected token, expected identifier, found %s", nameTok)
			}
			sep, err := p.next()
			if err != nil {
				return Statement{}, err
			}
			if !(sep.Kind == TokColon || (sep.Kind == TokKeyword && sep.Keyword == KwIn)) {
				return Statement{}, fmt.Errorf("for: unexpected token, expected ':' or 'in', found %s", sep)
			}
			fromTok, err := p.next()
			if err != nil {
				return Statement{}, err
			}
			from, err := p.parseExpression(fromTok, precLowest)
			if err != nil {
				return Statement{}, err
			}
			rangeTok, err := p.next()
			if err != nil {
				return Statement{}, err
			}
			if !(rangeTok.Kind == TokOperator && rangeTok.Operator == OpRange) {
				return Statement{}, fmt.Errorf("for: unexpected token, expected '..', found %s", rangeTok)
			}
			toTok, err := p.next()
			if err != nil {
				return Statement{}, err
			}
			to, err := p.parseExpression(toTok, precLowest)
			if err != nil {
				return Statement{}, err
			}
			bodyTok, err := p.next()
			if err != nil {
				return Statement{}, err
			}
			body, err := p.parseStatement(bodyTok)
			if err != nil {
				return Statement{}, err
			}
			return Statement{For: &ForStatement{Variable: nameTok.Ident, From: from, To: to, Body: &body}}, nil

		case KwBreak:
			if err := p.expectSemi(); err != nil {
				return Statement{}, err
			}
			return Statement{Break: true}, nil

		case KwContinue:
			if err := p.expectSemi(); err != nil {
				return Statement{}, err
			}
			return Statement{Continue: true}, nil

		case KwReturn:
			tok, err := p.next()
			if err != nil {
				return Statement{}, err
			}
			if tok.Kind == TokSemicolon {
				return Statement{Return: &ReturnStatement{}}, nil
			}
			value, err := p.parseExpression(tok, precLowest)
			if err != nil {
				return Statement{}, err
			}
			if err := p.expectSemi(); err != nil {
				return Statement{}, err
			}
			return Statement{Return: &ReturnStatement{Value: &value}}, nil

		default:
			return Statement{}, fmt.Errorf("statement: unexpected keyword %s", tok)
		}

	case tok.Kind == TokLCurly:
		var body []Statement
		inner, err := p.next()
		if err != nil {
			return Statement{}, err
		}
		for inner.Kind != TokRCurly {
			stmt, err := p.parseStatement(inner)
			if err != nil {
				return Statement{}, err
			}
			body = append(body, stmt)
			inner, err = p.next()
			if err != nil {
				return Statement{}, err
			}
		}
		return Statement{Block: &Block{Statements: body}}, nil

	case tok.Kind == TokIdentifier:
		name := tok.Ident
		next, err := p.next()
		if err != nil {
			return Statement{}, err
		}
		if next.Kind == TokOperatorAssign {
			valTok, err := p.next()
			if err != nil {
				return Statement{}, err
			}
			extra, err := p.parseExpression(valTok, precLowest)
			if err != nil {
				return Statement{}, err
			}
			if err := p.expectSemi(); err != nil {
				return Statement{}, err
			}
			ident := Expression{Identifier: &name}
			return Statement{Assignment: &Assignment{
				Name: name,
				Value: Expression{Binary: &BinaryExpression{
					Left: &ident, Operator: next.Operator, Right: &extra,
				}},
			}}, nil
		}
		if next.Kind == TokOperator && next.Operator == OpAssign {
			valTok, err := p.next()
			if err != nil {
				return Statement{}, err
			}
			value, err := p.parseExpression(valTok, precLowest)
			if err != nil {
				return Statement{}, err
			}
			if err := p.expectSemi(); err != nil {
				return Statement{}, err
			}
			return Statement{Assignment: &Assignment{Name: name, Value: value}}, nil
		}
		p.lexer.Revert(next)
		expr, err := p.parseExpression(tok, precLowest)
		if err != nil {
			return Statement{}, err
		}
		if err := p.expectSemi(); err != nil {
			return Statement{}, err
		}
		return Statement{Expression: &expr}, nil

	default:
		expr, err := p.parseExpression(tok, precLowest)
		if err != nil {
			return Statement{}, err
		}
		if err := p.expectSemi(); err != nil {
			return Statement{}, err
		}
		return Statement{Expression: &expr}, nil
	}
}

func (p *Parser) expectSemi() error {
	tok, err := p.next()
	if err != nil {
		return err
	}
	if tok.Kind != TokSemicolon {
		return fmt.Errorf("unexpected token, expected ';', found %s", tok)
	}
	return nil
}

// Operator precedence, lowest to highest; binary expression parsing is
// precedence-climbing over this table (parser.rs left parse_expression
// unimplemented — this fills that gap per SPEC_FULL.md §7).
const (
	precLowest = iota
	precOr
	precAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precRelational
	precShift
	precAdditive
	precMultiplicative
)

func binaryPrec(op Operator) (int, bool) {
	switch op {
	case OpOr:
		return precOr, true
	case OpAnd:
		return precAnd, true
	case OpBitwiseOr:
		return precBitOr, true
	case OpXor:
		return precBitXor, true
	case OpBitwiseAnd:
		return precBitAnd, true
	case OpEqual, OpNotEqual:
		return precEquality, true
	case OpLessThan, OpGreaterThan, OpLessOrEqual, OpGreaterOrEqual:
		return precRelational, true
	case OpLeftShift, OpLogicalRightShift, OpArithmeticRightShift:
		return precShift, true
	case OpPlus, OpMinus:
		return precAdditive, true
	case OpMultiply, OpDivide, OpModulo:
		return precMultiplicative, true
	default:
		return 0, false
	}
}

func (p *Parser) parseExpression(tok Token, minPrec int) (Expression, error) {
	left, err := p.parsePrimary(tok)
	if err != nil {
		return Expression{}, err
	}
	for {
		opTok, err := p.next()
		if err != nil {
			return Expression{}, err
		}
		if opTok.Kind != TokOperator {
			p.lexer.Revert(opTok)
			return left, nil
		}
		prec, ok := binaryPrec(opTok.Operator)
		if !ok || prec < minPrec {
			p.lexer.Revert(opTok)
			return left, nil
		}
		rhsTok, err := p.next()
		if err != nil {
			return Expression{}, err
		}
		right, err := p.parseExpression(rhsTok, prec+1)
		if err != nil {
			return Expression{}, err
		}
		l, r := left, right
		left = Expression{Binary: &BinaryExpression{Left: &l, Operator: opTok.Operator, Right: &r}}
	}
}

func (p *Parser) parsePrimary(tok Token) (Expression, error) {
	switch {
	case tok.Kind == TokOperator && (tok.Operator == OpNot || tok.Operator == OpMinus):
		operandTok, err := p.next()
		if err != nil {
			return Expression{}, err
		}
		operand, err := p.parsePrimary(operandTok)
		if err != nil {
			return Expression{}, err
		}
		return Expression{Unary: &UnaryExpression{Operator: tok.Operator, Expr: &operand}}, nil

	case tok.Kind == TokLParen:
		innerTok, err := p.next()
		if err != nil {
			return Expression{}, err
		}
		inner, err := p.parseExpression(innerTok, precLowest)
		if err != nil {
			return Expression{}, err
		}
		closeTok, err := p.next()
		if err != nil {
			return Expression{}, err
		}
		if closeTok.Kind != TokRParen {
			return Expression{}, fmt.Errorf("expression: unexpected token, expected ')', found %s", closeTok)
		}
		return inner, nil

	case tok.Kind == TokLiteral:
		lit := tok.Literal
		return Expression{Lit: &lit}, nil

	case tok.Kind == TokKeyword && tok.Keyword == KwArgs:
		open, err := p.next()
		if err != nil {
			return Expression{}, err
		}
		if open.Kind != TokLSquare {
			return Expression{}, fmt.Errorf("args: unexpected token, expected '[', found %s", open)
		}
		idxTok, err := p.next()
		if err != nil {
			return Expression{}, err
		}
		idx, err := p.parseExpression(idxTok, precLowest)
		if err != nil {
			return Expression{}, err
		}
		close, err := p.next()
		if err != nil {
			return Expression{}, err
		}
		if close.Kind != TokRSquare {
			return Expression{}, fmt.Errorf("args: unexpected token, expected ']', found %s", close)
		}
		return Expression{Argument: &ArgumentExpression{Index: idx}}, nil

	case tok.Kind == TokIdentifier:
		name := tok.Ident
		next, err := p.next()
		if err != nil {
			return Expression{}, err
		}
		if next.Kind != TokLParen {
			p.lexer.Revert(next)
			return Expression{Identifier: &name}, nil
		}
		var args []Expression
		argTok, err := p.next()
		if err != nil {
			return Expression{}, err
		}
		for argTok.Kind != TokRParen {
			if argTok.Kind == TokComma {
				argTok, err = p.next()
				if err != nil {
					return Expression{}, err
				}
			}
			arg, err := p.parseExpression(argTok, precLowest)
			if err != nil {
				return Expression{}, err
			}
			args = append(args, arg)
			argTok, err = p.next()
			if err != nil {
				return Expression{}, err
			}
		}
		return Expression{Call: &CallExpression{Function: name, Arguments: args}}, nil

	default:
		return Expression{}, fmt.Errorf("expression: unexpected token %s", tok)
	}
}

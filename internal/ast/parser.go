package ast

import (
	"strconv"

	"pixc/internal/cerr"
	"pixc/internal/lexer"
)

// Parser is a recursive-descent parser over the grammar in §4.1:
// IfThenElse -> Condition -> Sum -> Product -> Factor -> Term.
type Parser struct {
	tokens  []lexer.Token
	current int
	source  string
}

// Parse lexes and parses source into a single expression tree.
func Parse(source string) (Expr, error) {
	sc := lexer.NewScanner(source)
	tokens, err := sc.ScanTokens()
	if err != nil {
		return nil, err
	}
	p := &Parser{tokens: tokens, source: source}
	expr, err := p.parseIfThenElse()
	if err != nil {
		return nil, err
	}
	if !p.isAtEnd() {
		return nil, p.errorf("unexpected trailing input after expression")
	}
	return expr, nil
}

func (p *Parser) parseIfThenElse() (Expr, error) {
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if p.check(lexer.TokenQuestion) {
		p.advance()
		then, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenColon, "expected ':' in ternary"); err != nil {
			return nil, err
		}
		els, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		return &Ternary{Cond: cond, Then: then, Else: els}, nil
	}
	return cond, nil
}

var comparisonOps = map[lexer.TokenType]string{
	lexer.TokenLT:  "<",
	lexer.TokenLE:  "<=",
	lexer.TokenGT:  ">",
	lexer.TokenGE:  ">=",
	lexer.TokenEQ:  "==",
	lexer.TokenNEQ: "!=",
}

func (p *Parser) parseCondition() (Expr, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if op, ok := comparisonOps[p.peek().Type]; ok {
		p.advance()
		right, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: op, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseSum() (Expr, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for p.check(lexer.TokenPlus) || p.check(lexer.TokenMinus) {
		op := p.advance()
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: string(op.Type), Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseProduct() (Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.check(lexer.TokenStar) || p.check(lexer.TokenSlash) || p.check(lexer.TokenPercent) {
		op := p.advance()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: string(op.Type), Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseFactor() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if p.check(lexer.TokenCaret) {
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: "^", Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseTerm() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenMinus:
		p.advance()
		operand, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &Unary{Operand: operand}, nil
	case lexer.TokenLParen:
		p.advance()
		inner, err := p.parseIfThenElse()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRParen, "expected ')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case lexer.TokenNumber:
		p.advance()
		v, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, p.errorfAt(tok.Column, "malformed number literal %q", tok.Lexeme)
		}
		return &NumberLit{Value: v}, nil
	case lexer.TokenLBracket:
		return p.parseSample()
	case lexer.TokenIdent:
		return p.parseIdentTerm()
	default:
		return nil, p.errorf("unexpected token %q", tok.Lexeme)
	}
}

func (p *Parser) parseSample() (Expr, error) {
	p.advance() // '['
	var args []Expr
	arg, err := p.parseIfThenElse()
	if err != nil {
		return nil, err
	}
	args = append(args, arg)
	for p.check(lexer.TokenComma) && len(args) < 3 {
		p.advance()
		arg, err := p.parseIfThenElse()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if _, err := p.expect(lexer.TokenRBracket, "expected ']'"); err != nil {
		return nil, err
	}
	return &Sample{Args: args}, nil
}

func (p *Parser) parseIdentTerm() (Expr, error) {
	tok := p.advance()
	name := tok.Lexeme

	if varNames[name] {
		return &Var{Name: name}, nil
	}
	if uniformNames[name] {
		return &Uniform{Name: name}, nil
	}
	if constNames[name] {
		return &NamedConst{Name: name}, nil
	}

	if !p.check(lexer.TokenLParen) {
		if funct0Names[name] {
			return nil, p.errorfAt(tok.Column, "statistic %q requires '()' or a channel argument", name)
		}
		return nil, p.errorfAt(tok.Column, "unknown identifier %q", name)
	}
	p.advance() // '('

	if p.check(lexer.TokenRParen) {
		p.advance()
		if !funct0Names[name] {
			return nil, p.errorfAt(tok.Column, "%q does not take zero arguments", name)
		}
		return &Call{Name: name}, nil
	}

	first, err := p.parseIfThenElse()
	if err != nil {
		return nil, err
	}
	if p.check(lexer.TokenComma) {
		p.advance()
		second, err := p.parseIfThenElse()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRParen, "expected ')'"); err != nil {
			return nil, err
		}
		if !funct2Names[name] {
			return nil, p.errorfAt(tok.Column, "%q does not take two arguments", name)
		}
		return &Call{Name: name, Args: []Expr{first, second}}, nil
	}
	if _, err := p.expect(lexer.TokenRParen, "expected ')'"); err != nil {
		return nil, err
	}
	if !funct1Names[name] {
		return nil, p.errorfAt(tok.Column, "%q does not take one argument", name)
	}
	return &Call{Name: name, Args: []Expr{first}}, nil
}

func (p *Parser) peek() lexer.Token { return p.tokens[p.current] }

func (p *Parser) isAtEnd() bool { return p.peek().Type == lexer.TokenEOF }

func (p *Parser) check(t lexer.TokenType) bool { return p.peek().Type == t }

func (p *Parser) advance() lexer.Token {
	tok := p.tokens[p.current]
	if !p.isAtEnd() {
		p.current++
	}
	return tok
}

func (p *Parser) expect(t lexer.TokenType, msg string) (lexer.Token, error) {
	if p.check(t) {
		return p.advance(), nil
	}
	return lexer.Token{}, p.errorf("%s, got %q", msg, p.peek().Lexeme)
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return p.errorfAt(p.peek().Column, format, args...)
}

func (p *Parser) errorfAt(column int, format string, args ...interface{}) error {
	return cerr.At(cerr.ParseError, p.source, column, format, args...)
}

// internal/rules/logic.go
package rules

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/solatis/healthsignals/internal/types"
)

/*
 * SIGNAL_LOGIC parsing and combination.
 *
 * A rule's combining logic is a boolean expression over three placeholders.
 * It is parsed once at compile time into a small AST and evaluated per
 * metrics snapshot. Nothing is executed dynamically.
 *
 * Token set (closed):
 *   - SIG1, SIG2, SIG3        placeholders (exact case)
 *   - true, false             literals (exact case)
 *   - AND, OR                 connectives, case-insensitive, and only when
 *                             surrounded by whitespace on both sides
 *   - &&, ||                  connectives
 *   - NOT (case-insensitive word), !   negation
 *   - ( )                     grouping
 *
 * Precedence: negation > AND > OR, left-associative.
 *
 * Anything else (numbers, other identifiers, trailing operators, unbalanced
 * parentheses) is a parse error. Callers treat a parse error as a rule that
 * never matches.
 *
 * Indeterminate signals count as false once they reach the combiner. Their
 * tri-state value is preserved in the result record separately.
 */

// maxLogicDepth bounds parenthesis and negation nesting.
const maxLogicDepth = 64

type logicOp int

const (
	logicSlot logicOp = iota
	logicLiteral
	logicNot
	logicAnd
	logicOr
)

// LogicExpr is a parsed SIGNAL_LOGIC expression.
type LogicExpr struct {
	op      logicOp
	slot    int // 1..3 for logicSlot
	literal bool
	left    *LogicExpr
	right   *LogicExpr
}

// Eval evaluates the expression for the given slot values (index 0 is SIG1).
func (e *LogicExpr) Eval(slots [types.MaxSignals]bool) bool {
	switch e.op {
	case logicSlot:
		return slots[e.slot-1]
	case logicLiteral:
		return e.literal
	case logicNot:
		return !e.left.Eval(slots)
	case logicAnd:
		return e.left.Eval(slots) && e.right.Eval(slots)
	case logicOr:
		return e.left.Eval(slots) || e.right.Eval(slots)
	default:
		return false
	}
}

// String renders the expression fully parenthesized with && / || / !.
func (e *LogicExpr) String() string {
	switch e.op {
	case logicSlot:
		return fmt.Sprintf("SIG%d", e.slot)
	case logicLiteral:
		return fmt.Sprintf("%t", e.literal)
	case logicNot:
		return "!" + e.left.String()
	case logicAnd:
		return "(" + e.left.String() + " && " + e.right.String() + ")"
	case logicOr:
		return "(" + e.left.String() + " || " + e.right.String() + ")"
	default:
		return "?"
	}
}

// Slots reports which placeholders the expression references.
func (e *LogicExpr) Slots() [types.MaxSignals]bool {
	var used [types.MaxSignals]bool
	e.collectSlots(&used)
	return used
}

func (e *LogicExpr) collectSlots(used *[types.MaxSignals]bool) {
	if e == nil {
		return
	}
	if e.op == logicSlot {
		used[e.slot-1] = true
	}
	e.left.collectSlots(used)
	e.right.collectSlots(used)
}

// ParseLogic parses a SIGNAL_LOGIC cell.
// Returns ErrEmptyLogic for empty or whitespace-only input and ErrInvalidLogic
// (wrapped with position detail) for anything outside the token set or grammar.
func ParseLogic(logic string) (*LogicExpr, error) {
	if strings.TrimFunc(logic, isLogicSpace) == "" {
		return nil, types.ErrEmptyLogic
	}

	tokens, err := tokenizeLogic(logic)
	if err != nil {
		return nil, err
	}

	p := &logicParser{tokens: tokens}
	expr, err := p.parseOr(0)
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", types.ErrInvalidLogic, p.tokens[p.pos].text, p.tokens[p.pos].offset)
	}
	return expr, nil
}

// Combine evaluates expr over three signal results. Indeterminate counts as
// false. A nil expression (empty or invalid logic) never matches.
func Combine(expr *LogicExpr, s1, s2, s3 types.SignalResult) bool {
	if expr == nil {
		return false
	}
	return expr.Eval([types.MaxSignals]bool{s1.Bool(), s2.Bool(), s3.Bool()})
}

// EvaluateLogic parses and evaluates logic in one step. Parse errors yield false.
func EvaluateLogic(logic string, signals types.Signals) bool {
	expr, err := ParseLogic(logic)
	if err != nil {
		return false
	}
	return Combine(expr, signals.Sig1, signals.Sig2, signals.Sig3)
}

type tokenKind int

const (
	tokSlot tokenKind = iota
	tokLiteral
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type logicToken struct {
	kind    tokenKind
	text    string
	offset  int
	slot    int
	literal bool
}

func tokenizeLogic(s string) ([]logicToken, error) {
	var tokens []logicToken

	for i := 0; i < len(s); {
		c := s[i]
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case isLogicSpace(r):
			i += size
		case c == '(':
			tokens = append(tokens, logicToken{kind: tokLParen, text: "(", offset: i})
			i++
		case c == ')':
			tokens = append(tokens, logicToken{kind: tokRParen, text: ")", offset: i})
			i++
		case c == '!':
			tokens = append(tokens, logicToken{kind: tokNot, text: "!", offset: i})
			i++
		case strings.HasPrefix(s[i:], "&&"):
			tokens = append(tokens, logicToken{kind: tokAnd, text: "&&", offset: i})
			i += 2
		case strings.HasPrefix(s[i:], "||"):
			tokens = append(tokens, logicToken{kind: tokOr, text: "||", offset: i})
			i += 2
		case isWordByte(c):
			start := i
			for i < len(s) && isWordByte(s[i]) {
				i++
			}
			tok, err := classifyWord(s, start, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at offset %d", types.ErrInvalidLogic, r, i)
		}
	}

	return tokens, nil
}

func classifyWord(s string, start, end int) (logicToken, error) {
	word := s[start:end]
	tok := logicToken{text: word, offset: start}

	switch word {
	case "SIG1", "SIG2", "SIG3":
		tok.kind = tokSlot
		tok.slot = int(word[3] - '0')
		return tok, nil
	case "true", "false":
		tok.kind = tokLiteral
		tok.literal = word == "true"
		return tok, nil
	}

	before, _ := utf8.DecodeLastRuneInString(s[:start])
	after, _ := utf8.DecodeRuneInString(s[end:])
	spaced := start > 0 && isLogicSpace(before) && end < len(s) && isLogicSpace(after)
	switch strings.ToUpper(word) {
	case "AND":
		if spaced {
			tok.kind = tokAnd
			return tok, nil
		}
	case "OR":
		if spaced {
			tok.kind = tokOr
			return tok, nil
		}
	case "NOT":
		tok.kind = tokNot
		return tok, nil
	}

	return logicToken{}, fmt.Errorf("%w: unexpected word %q at offset %d", types.ErrInvalidLogic, word, start)
}

// isLogicSpace matches Unicode whitespace, including the non-breaking spaces
// and byte order marks spreadsheet exports leave in cells.
func isLogicSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\ufeff'
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

type logicParser struct {
	tokens []logicToken
	pos    int
}

func (p *logicParser) peek() (logicToken, bool) {
	if p.pos >= len(p.tokens) {
		return logicToken{}, false
	}
	return p.tokens[p.pos], true
}

func (p *logicParser) parseOr(depth int) (*LogicExpr, error) {
	left, err := p.parseAnd(depth)
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOr {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd(depth)
		if err != nil {
			return nil, err
		}
		left = &LogicExpr{op: logicOr, left: left, right: right}
	}
}

func (p *logicParser) parseAnd(depth int) (*LogicExpr, error) {
	left, err := p.parseUnary(depth)
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokAnd {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary(depth)
		if err != nil {
			return nil, err
		}
		left = &LogicExpr{op: logicAnd, left: left, right: right}
	}
}

func (p *logicParser) parseUnary(depth int) (*LogicExpr, error) {
	if depth > maxLogicDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", types.ErrInvalidLogic, maxLogicDepth)
	}

	tok, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("%w: unexpected end of expression", types.ErrInvalidLogic)
	}

	switch tok.kind {
	case tokNot:
		p.pos++
		operand, err := p.parseUnary(depth + 1)
		if err != nil {
			return nil, err
		}
		return &LogicExpr{op: logicNot, left: operand}, nil
	case tokSlot:
		p.pos++
		return &LogicExpr{op: logicSlot, slot: tok.slot}, nil
	case tokLiteral:
		p.pos++
		return &LogicExpr{op: logicLiteral, literal: tok.literal}, nil
	case tokLParen:
		p.pos++
		inner, err := p.parseOr(depth + 1)
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return nil, fmt.Errorf("%w: missing ')' for '(' at offset %d", types.ErrInvalidLogic, tok.offset)
		}
		p.pos++
		return inner, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", types.ErrInvalidLogic, tok.text, tok.offset)
	}
}

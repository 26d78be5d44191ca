// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"unicode"
	"unicode/utf8"
)

// Parser scans query text for named parameters of the form ":name". A Parser
// is not safe for concurrent use, but it can be reused for several inputs.
type Parser struct {
	input string
	pos   int
	// nextPos is start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches the
	// end of input.
	char rune
	// prevPartEnd is the value of pos when we last finished parsing a
	// parameter.
	prevPartEnd int
	// parts are the output of the parser. Parts are added as they are parsed.
	parts []queryPart
}

// NewParser returns a reference to a new parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse splits the input into verbatim chunks and named parameters. Parsing
// never fails: anything that is not a well formed parameter is passed through
// as literal text. Parameters inside quoted strings, quoted identifiers and
// comments are not recognised, and neither is the "::" cast operator.
func (p *Parser) Parse(input string) *ParsedQuery {
	p.init(input)

	for p.pos < len(p.input) {
		if p.skipQuoted() {
			continue
		}
		if p.skipComment() {
			continue
		}
		if p.char == ':' {
			start := p.pos
			if name, ok := p.parseParam(); ok {
				p.add(start, &paramPart{name: name})
			}
			continue
		}
		p.advanceChar()
	}

	// Add any remaining unparsed string input to the parser.
	p.add(p.pos, nil)
	return &ParsedQuery{parts: p.parts}
}

// init resets the state of the parser and sets the input string.
func (p *Parser) init(input string) {
	p.input = input
	p.pos = 0
	p.nextPos = 0
	p.char = 0
	p.prevPartEnd = 0
	p.parts = []queryPart{}
	p.advanceChar()
}

// advanceChar moves the parser to the next character in the input.
func (p *Parser) advanceChar() bool {
	if p.nextPos >= len(p.input) {
		p.char = 0
		p.pos = p.nextPos
		return false
	}
	var size int
	p.char, size = utf8.DecodeRuneInString(p.input[p.nextPos:])
	p.pos = p.nextPos
	p.nextPos += size
	return true
}

// add pushes the parsed part to the list of parts along with the bypass chunk
// that stretches from the end of the previous part to start.
func (p *Parser) add(start int, part queryPart) {
	if p.prevPartEnd != start {
		p.parts = append(p.parts, &bypassPart{chunk: p.input[p.prevPartEnd:start]})
	}
	if part != nil {
		p.parts = append(p.parts, part)
	}
	p.prevPartEnd = p.pos
}

// peekChar returns true if the current char equals the one passed as parameter.
func (p *Parser) peekChar(c rune) bool {
	return p.pos < len(p.input) && p.char == c
}

// skipChar jumps over the current char if it matches the char passed as a
// parameter. Returns true in that case, false otherwise.
func (p *Parser) skipChar(c rune) bool {
	if p.peekChar(c) {
		p.advanceChar()
		return true
	}
	return false
}

// skipQuoted jumps over single quoted string literals and over double quoted
// or backtick quoted identifiers. Doubled up quotes are escaped. An
// unterminated quote runs to the end of the input.
func (p *Parser) skipQuoted() bool {
	c := p.char
	if c != '\'' && c != '"' && c != '`' {
		return false
	}
	p.advanceChar()
	for p.pos < len(p.input) {
		if p.skipChar(c) {
			// A doubled quote is an escaped quote, keep going.
			if p.skipChar(c) {
				continue
			}
			return true
		}
		p.advanceChar()
	}
	return true
}

// skipComment jumps over "--" line comments and "/* */" block comments. The
// newline ending a line comment is not consumed. An unterminated block comment
// runs to the end of the input.
func (p *Parser) skipComment() bool {
	if p.char != '-' && p.char != '/' {
		return false
	}
	if p.nextPos >= len(p.input) {
		return false
	}
	next, _ := utf8.DecodeRuneInString(p.input[p.nextPos:])
	switch {
	case p.char == '-' && next == '-':
		for p.pos < len(p.input) && p.char != '\n' {
			p.advanceChar()
		}
		return true
	case p.char == '/' && next == '*':
		p.advanceChar()
		p.advanceChar()
		for p.pos < len(p.input) {
			if p.skipChar('*') {
				if p.skipChar('/') {
					return true
				}
				continue
			}
			p.advanceChar()
		}
		return true
	}
	return false
}

// parseParam parses a parameter starting at the colon under the parser. It
// returns false, having consumed only the colons, when there is no parameter
// here: for a "::" cast or a colon that is not followed by a name.
func (p *Parser) parseParam() (string, bool) {
	p.skipChar(':')
	if p.skipChar(':') {
		return "", false
	}
	mark := p.pos
	if !p.skipName() {
		return "", false
	}
	return p.input[mark:p.pos], true
}

// skipName advances the parser until it is on the first non name char and
// returns true. If the p.pos does not start on a name char it returns false.
func (p *Parser) skipName() bool {
	if p.pos >= len(p.input) || !isInitialNameChar(p.char) {
		return false
	}
	p.advanceChar()
	for p.pos < len(p.input) && isNameChar(p.char) {
		p.advanceChar()
	}
	return true
}

// isNameChar returns true if the given char can be part of a name. It returns
// false otherwise.
func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

// isInitialNameChar returns true if the given char can appear at the start of a
// name. It returns false otherwise.
func isInitialNameChar(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}

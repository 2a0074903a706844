package pdf

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
)

// Load はバイト列からDocumentを読み込みます。
// クロスリファレンス表には頼らず、本文を先頭から走査して
// `N G obj ... endobj` をすべて回収します。追記更新されたファイルでは
// 後に現れた同一IDのオブジェクトが先のものを上書きします。
func Load(data []byte) (*Document, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, fmt.Errorf("not a PDF: missing %%PDF- header")
	}

	doc := NewDocument()
	lex := &lexer{data: data}

	for {
		lex.skipWhitespace()
		if lex.eof() {
			break
		}
		switch {
		case lex.keyword("trailer"):
			lex.skipWhitespace()
			trailer, err := lex.parseObject()
			if err != nil {
				return nil, fmt.Errorf("invalid trailer at offset %d: %w", lex.pos, err)
			}
			dict, ok := trailer.(Dict)
			if !ok {
				return nil, fmt.Errorf("trailer is not a dictionary at offset %d", lex.pos)
			}
			// 追記更新では最後のトレイラーが最新
			for key, value := range dict {
				doc.Trailer[key] = value
			}
		case lex.keyword("xref"):
			if err := lex.skipXrefSection(); err != nil {
				return nil, err
			}
		case lex.keyword("startxref"):
			lex.skipWhitespace()
			if _, err := lex.parseUint(); err != nil {
				return nil, fmt.Errorf("invalid startxref at offset %d: %w", lex.pos, err)
			}
		default:
			id, obj, err := lex.parseIndirectObject()
			if err != nil {
				return nil, fmt.Errorf("invalid object at offset %d: %w", lex.pos, err)
			}
			doc.Objects[id] = obj
			if id.Number > doc.MaxID {
				doc.MaxID = id.Number
			}
		}
	}
	return doc, nil
}

// LoadFile はファイルからDocumentを読み込みます。
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

type lexer struct {
	data []byte
	pos  int
}

func (l *lexer) eof() bool {
	return l.pos >= len(l.data)
}

func isWhitespace(c byte) bool {
	switch c {
	case 0x00, 0x09, 0x0a, 0x0c, 0x0d, 0x20:
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// skipWhitespace は空白とコメント（%%EOFやバイナリマーカー行を含む）を読み飛ばします。
func (l *lexer) skipWhitespace() {
	for !l.eof() {
		c := l.data[l.pos]
		if isWhitespace(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for !l.eof() && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

// keyword は現在位置が指定キーワードで始まる場合に消費してtrueを返します。
func (l *lexer) keyword(kw string) bool {
	end := l.pos + len(kw)
	if end > len(l.data) {
		return false
	}
	if string(l.data[l.pos:end]) != kw {
		return false
	}
	if end < len(l.data) {
		next := l.data[end]
		if !isWhitespace(next) && !isDelimiter(next) {
			return false
		}
	}
	l.pos = end
	return true
}

func (l *lexer) parseIndirectObject() (ObjectID, Object, error) {
	number, err := l.parseUint()
	if err != nil {
		return ObjectID{}, nil, err
	}
	l.skipWhitespace()
	generation, err := l.parseUint()
	if err != nil {
		return ObjectID{}, nil, err
	}
	l.skipWhitespace()
	if !l.keyword("obj") {
		return ObjectID{}, nil, fmt.Errorf("expected 'obj' keyword")
	}
	l.skipWhitespace()
	obj, err := l.parseObject()
	if err != nil {
		return ObjectID{}, nil, err
	}
	l.skipWhitespace()
	l.keyword("endobj")
	id := ObjectID{Number: uint32(number), Generation: uint16(generation)}
	return id, obj, nil
}

func (l *lexer) parseObject() (Object, error) {
	l.skipWhitespace()
	if l.eof() {
		return nil, fmt.Errorf("unexpected end of input")
	}
	c := l.data[l.pos]
	switch {
	case c == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			return l.parseDictOrStream()
		}
		return l.parseHexString()
	case c == '[':
		return l.parseArray()
	case c == '(':
		return l.parseLiteralString()
	case c == '/':
		return l.parseName()
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return l.parseNumberOrReference()
	case l.keyword("true"):
		return Boolean(true), nil
	case l.keyword("false"):
		return Boolean(false), nil
	case l.keyword("null"):
		return Null{}, nil
	default:
		return nil, fmt.Errorf("unexpected byte %q", c)
	}
}

func (l *lexer) parseDictOrStream() (Object, error) {
	l.pos += 2 // <<
	dict := make(Dict)
	for {
		l.skipWhitespace()
		if l.eof() {
			return nil, fmt.Errorf("unterminated dictionary")
		}
		if l.data[l.pos] == '>' {
			if l.pos+1 >= len(l.data) || l.data[l.pos+1] != '>' {
				return nil, fmt.Errorf("malformed dictionary end")
			}
			l.pos += 2
			break
		}
		if l.data[l.pos] != '/' {
			return nil, fmt.Errorf("expected name key in dictionary, got %q", l.data[l.pos])
		}
		key, err := l.parseName()
		if err != nil {
			return nil, err
		}
		value, err := l.parseObject()
		if err != nil {
			return nil, err
		}
		dict[key.(Name)] = value
	}

	l.skipWhitespace()
	if !l.keyword("stream") {
		return dict, nil
	}
	// "stream" の直後は CRLF または LF
	if !l.eof() && l.data[l.pos] == '\r' {
		l.pos++
	}
	if !l.eof() && l.data[l.pos] == '\n' {
		l.pos++
	}
	data, err := l.readStreamData(dict)
	if err != nil {
		return nil, err
	}
	return &Stream{Dict: dict, Data: data}, nil
}

func (l *lexer) readStreamData(dict Dict) ([]byte, error) {
	if length, ok := dict.IntegerValue("Length"); ok {
		end := l.pos + int(length)
		if end <= len(l.data) {
			data := l.data[l.pos:end]
			rest := l.data[end:]
			trimmed := 0
			for trimmed < len(rest) && isWhitespace(rest[trimmed]) {
				trimmed++
			}
			if bytes.HasPrefix(rest[trimmed:], []byte("endstream")) {
				l.pos = end + trimmed + len("endstream")
				return append([]byte(nil), data...), nil
			}
		}
		// /Length が本文と食い違う場合は endstream を探して復元する
	}
	idx := bytes.Index(l.data[l.pos:], []byte("endstream"))
	if idx < 0 {
		return nil, fmt.Errorf("unterminated stream")
	}
	data := l.data[l.pos : l.pos+idx]
	for len(data) > 0 && (data[len(data)-1] == '\n' || data[len(data)-1] == '\r') {
		data = data[:len(data)-1]
	}
	l.pos += idx + len("endstream")
	return append([]byte(nil), data...), nil
}

func (l *lexer) parseArray() (Object, error) {
	l.pos++ // [
	var arr Array
	for {
		l.skipWhitespace()
		if l.eof() {
			return nil, fmt.Errorf("unterminated array")
		}
		if l.data[l.pos] == ']' {
			l.pos++
			return arr, nil
		}
		item, err := l.parseObject()
		if err != nil {
			return nil, err
		}
		arr = append(arr, item)
	}
}

func (l *lexer) parseName() (Object, error) {
	l.pos++ // /
	var name []byte
	for !l.eof() {
		c := l.data[l.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && l.pos+2 < len(l.data) {
			decoded, err := strconv.ParseUint(string(l.data[l.pos+1:l.pos+3]), 16, 8)
			if err == nil {
				name = append(name, byte(decoded))
				l.pos += 3
				continue
			}
		}
		name = append(name, c)
		l.pos++
	}
	return Name(name), nil
}

func (l *lexer) parseLiteralString() (Object, error) {
	l.pos++ // (
	var value []byte
	depth := 1
	for !l.eof() {
		c := l.data[l.pos]
		switch c {
		case '\\':
			l.pos++
			if l.eof() {
				return nil, fmt.Errorf("unterminated string escape")
			}
			switch e := l.data[l.pos]; e {
			case 'n':
				value = append(value, '\n')
			case 'r':
				value = append(value, '\r')
			case 't':
				value = append(value, '\t')
			case 'b':
				value = append(value, '\b')
			case 'f':
				value = append(value, '\f')
			default:
				value = append(value, e)
			}
			l.pos++
		case '(':
			depth++
			value = append(value, c)
			l.pos++
		case ')':
			depth--
			if depth == 0 {
				l.pos++
				return String(value), nil
			}
			value = append(value, c)
			l.pos++
		default:
			value = append(value, c)
			l.pos++
		}
	}
	return nil, fmt.Errorf("unterminated string")
}

func (l *lexer) parseHexString() (Object, error) {
	l.pos++ // <
	var digits []byte
	for !l.eof() {
		c := l.data[l.pos]
		if c == '>' {
			l.pos++
			if len(digits)%2 == 1 {
				digits = append(digits, '0')
			}
			value := make([]byte, len(digits)/2)
			for i := range value {
				b, err := strconv.ParseUint(string(digits[2*i:2*i+2]), 16, 8)
				if err != nil {
					return nil, fmt.Errorf("invalid hex string: %w", err)
				}
				value[i] = byte(b)
			}
			return String(value), nil
		}
		if !isWhitespace(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	return nil, fmt.Errorf("unterminated hex string")
}

// parseNumberOrReference は数値を読み、`N G R` の形であれば間接参照として返します。
func (l *lexer) parseNumberOrReference() (Object, error) {
	first, isInteger, err := l.parseNumber()
	if err != nil {
		return nil, err
	}
	if !isInteger {
		return first, nil
	}

	save := l.pos
	l.skipWhitespace()
	if l.eof() || l.data[l.pos] < '0' || l.data[l.pos] > '9' {
		l.pos = save
		return first, nil
	}
	generation, err := l.parseUint()
	if err != nil {
		l.pos = save
		return first, nil
	}
	l.skipWhitespace()
	if !l.keyword("R") {
		l.pos = save
		return first, nil
	}
	number := int64(first.(Integer))
	return Reference(ObjectID{Number: uint32(number), Generation: uint16(generation)}), nil
}

func (l *lexer) parseNumber() (Object, bool, error) {
	start := l.pos
	if !l.eof() && (l.data[l.pos] == '+' || l.data[l.pos] == '-') {
		l.pos++
	}
	isInteger := true
	for !l.eof() {
		c := l.data[l.pos]
		if c >= '0' && c <= '9' {
			l.pos++
			continue
		}
		if c == '.' && isInteger {
			isInteger = false
			l.pos++
			continue
		}
		break
	}
	token := string(l.data[start:l.pos])
	if token == "" || token == "+" || token == "-" {
		return nil, false, fmt.Errorf("invalid number")
	}
	if isInteger {
		value, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, false, err
		}
		return Integer(value), true, nil
	}
	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return nil, false, err
	}
	return Real(value), false, nil
}

func (l *lexer) parseUint() (uint64, error) {
	start := l.pos
	for !l.eof() && l.data[l.pos] >= '0' && l.data[l.pos] <= '9' {
		l.pos++
	}
	if l.pos == start {
		return 0, fmt.Errorf("expected unsigned integer")
	}
	return strconv.ParseUint(string(l.data[start:l.pos]), 10, 64)
}

// skipXrefSection はクロスリファレンス表を読み飛ばします。
// 本文走査でオブジェクトを回収するため、表の内容自体は使いません。
func (l *lexer) skipXrefSection() error {
	for {
		l.skipWhitespace()
		if l.eof() {
			return nil
		}
		c := l.data[l.pos]
		if c < '0' || c > '9' {
			return nil // trailer など次のキーワードへ
		}
		if _, err := l.parseUint(); err != nil {
			return err
		}
		l.skipWhitespace()
		count, err := l.parseUint()
		if err != nil {
			return fmt.Errorf("invalid xref subsection header: %w", err)
		}
		for i := uint64(0); i < count; i++ {
			l.skipWhitespace()
			if _, err := l.parseUint(); err != nil {
				return fmt.Errorf("invalid xref entry: %w", err)
			}
			l.skipWhitespace()
			if _, err := l.parseUint(); err != nil {
				return fmt.Errorf("invalid xref entry: %w", err)
			}
			l.skipWhitespace()
			if !l.keyword("n") && !l.keyword("f") {
				return fmt.Errorf("invalid xref entry marker")
			}
		}
	}
}

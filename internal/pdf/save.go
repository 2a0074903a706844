package pdf

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Save はDocumentをクロスリファレンス表付きのPDFとして書き出します。
func (d *Document) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	offset := 0

	write := func(s string) error {
		n, err := bw.WriteString(s)
		offset += n
		return err
	}

	if err := write("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n"); err != nil {
		return err
	}

	ids := d.sortedIDs()
	offsets := make(map[uint32]int, len(ids))
	for _, id := range ids {
		offsets[id.Number] = offset
		if err := write(fmt.Sprintf("%d %d obj\n", id.Number, id.Generation)); err != nil {
			return err
		}
		var buf bytes.Buffer
		encodeObject(&buf, d.Objects[id])
		if err := write(buf.String()); err != nil {
			return err
		}
		if err := write("\nendobj\n"); err != nil {
			return err
		}
	}

	var maxNumber uint32
	if len(ids) > 0 {
		maxNumber = ids[len(ids)-1].Number
	}
	size := maxNumber + 1

	xrefOffset := offset
	if err := write(fmt.Sprintf("xref\n0 %d\n", size)); err != nil {
		return err
	}
	if err := write("0000000000 65535 f \n"); err != nil {
		return err
	}
	for number := uint32(1); number <= maxNumber; number++ {
		if objOffset, ok := offsets[number]; ok {
			if err := write(fmt.Sprintf("%010d 00000 n \n", objOffset)); err != nil {
				return err
			}
		} else {
			if err := write("0000000000 65535 f \n"); err != nil {
				return err
			}
		}
	}

	trailer := make(Dict, len(d.Trailer)+1)
	for key, value := range d.Trailer {
		trailer[key] = value
	}
	trailer["Size"] = Integer(size)

	var buf bytes.Buffer
	encodeObject(&buf, trailer)
	if err := write("trailer\n" + buf.String() + "\n"); err != nil {
		return err
	}
	if err := write(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOffset)); err != nil {
		return err
	}
	return bw.Flush()
}

// SaveFile はDocumentをファイルに書き出します。
func (d *Document) SaveFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := d.Save(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func encodeObject(buf *bytes.Buffer, obj Object) {
	switch v := obj.(type) {
	case nil, Null:
		buf.WriteString("null")
	case Boolean:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Integer:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case Real:
		buf.WriteString(formatReal(float64(v)))
	case Name:
		encodeName(buf, v)
	case String:
		encodeString(buf, v)
	case Reference:
		fmt.Fprintf(buf, "%d %d R", v.Number, v.Generation)
	case Array:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			encodeObject(buf, item)
		}
		buf.WriteByte(']')
	case Dict:
		encodeDict(buf, v)
	case *Stream:
		dict := make(Dict, len(v.Dict)+1)
		for key, value := range v.Dict {
			dict[key] = value
		}
		dict["Length"] = Integer(len(v.Data))
		encodeDict(buf, dict)
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	}
}

func encodeDict(buf *bytes.Buffer, dict Dict) {
	keys := make([]string, 0, len(dict))
	for key := range dict {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)

	buf.WriteString("<<")
	for _, key := range keys {
		buf.WriteByte(' ')
		encodeName(buf, Name(key))
		buf.WriteByte(' ')
		encodeObject(buf, dict[Name(key)])
	}
	buf.WriteString(" >>")
}

func encodeName(buf *bytes.Buffer, name Name) {
	buf.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= 0x20 || c >= 0x7f || c == '#' || isDelimiter(c) {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

func encodeString(buf *bytes.Buffer, value String) {
	buf.WriteByte('(')
	for _, c := range value {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}

// formatReal はPDFが許容する小数表記（指数なし）で実数を整形します。
func formatReal(f float64) string {
	s := strconv.FormatFloat(f, 'f', 4, 64)
	s = trimTrailingZeros(s)
	return s
}

func trimTrailingZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}

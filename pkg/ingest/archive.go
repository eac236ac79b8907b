package ingest

import (
	"archive/zip"
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// HeaderColumn is the keyword test for one fixed column position. The header
// cell must contain any one of Keywords (case-insensitive).
type HeaderColumn struct {
	Position int
	Field    string
	Keywords []string
}

// ExpectedHeader lists the header checks in column order. Only the keywords
// are validated, never the literal header text.
var ExpectedHeader = []HeaderColumn{
	{Position: fieldTime, Field: "time", Keywords: []string{"时间", "time", "date"}},
	{Position: fieldCode, Field: "code", Keywords: []string{"代码", "code", "symbol"}},
	{Position: fieldName, Field: "name", Keywords: []string{"名称", "name"}},
	{Position: fieldOpen, Field: "open", Keywords: []string{"开盘", "open"}},
	{Position: fieldClose, Field: "close", Keywords: []string{"收盘", "close"}},
	{Position: fieldHigh, Field: "high", Keywords: []string{"最高", "high"}},
	{Position: fieldLow, Field: "low", Keywords: []string{"最低", "low"}},
	{Position: fieldVolume, Field: "volume", Keywords: []string{"成交量", "volume", "vol"}},
	{Position: fieldAmount, Field: "amount", Keywords: []string{"成交额", "amount", "turnover"}},
	{Position: fieldChangePct, Field: "change", Keywords: []string{"涨幅", "涨跌幅", "change", "pct"}},
	{Position: fieldAmplitude, Field: "amplitude", Keywords: []string{"振幅", "amplitude"}},
}

// HeaderError names the first column whose header failed the keyword test.
type HeaderError struct {
	Position int
	Field    string
	Got      string
	Keywords []string
	Missing  bool
}

func (e *HeaderError) Error() string {
	if e.Missing {
		return fmt.Sprintf("header has too few columns for %s", e.Field)
	}
	return fmt.Sprintf("header column %d (%s) is %q, want one of %q", e.Position, e.Field, e.Got, e.Keywords)
}

// CheckHeader validates header cells against ExpectedHeader.
func CheckHeader(header []string) error {
	for _, col := range ExpectedHeader {
		if col.Position >= len(header) {
			return &HeaderError{Position: col.Position, Field: col.Field, Keywords: col.Keywords, Missing: true}
		}
		cell := strings.ToLower(strings.TrimSpace(header[col.Position]))
		if !containsAny(cell, col.Keywords) {
			return &HeaderError{Position: col.Position, Field: col.Field, Got: header[col.Position], Keywords: col.Keywords}
		}
	}
	return nil
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// csvMembers returns the CSV entries of an archive in name order, skipping
// directories and macOS resource forks.
func csvMembers(zr *zip.Reader) []*zip.File {
	var out []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.HasPrefix(f.Name, "__MACOSX/") || strings.HasPrefix(path.Base(f.Name), "._") {
			continue
		}
		if !strings.EqualFold(path.Ext(f.Name), ".csv") {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

const utf8BOM = "\ufeff"

// newCSVReader wraps a member stream. Exports from Chinese vendors are often
// GB18030; anything that does not look like UTF-8 in its first block is
// decoded as GB18030.
func newCSVReader(r io.Reader) *csv.Reader {
	br := bufio.NewReaderSize(r, 64*1024)
	peek, _ := br.Peek(4096)

	var src io.Reader = br
	if !looksUTF8(peek) {
		src = transform.NewReader(br, simplifiedchinese.GB18030.NewDecoder())
	}

	cr := csv.NewReader(src)
	// The validator owns the field-count rule.
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return cr
}

// looksUTF8 tolerates a multibyte rune cut off by the peek window.
func looksUTF8(b []byte) bool {
	b = bytes.TrimPrefix(b, []byte(utf8BOM))
	if utf8.Valid(b) {
		return true
	}
	for cut := 1; cut < utf8.UTFMax && cut <= len(b); cut++ {
		if utf8.RuneStart(b[len(b)-cut]) {
			return utf8.Valid(b[:len(b)-cut])
		}
	}
	return false
}

func stripBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	return header
}

package indexer

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// fixtureExtensions are the formats written by minimalFile. PDF is covered by
// the extract tests; no minimal PDF with extractable text is generated here.
var fixtureExtensions = []string{".txt", ".md", ".docx", ".xlsx", ".pptx", ".odt", ".odp", ".ods"}

// minimalFile returns the bytes of a file of type ext holding the given lines.
func minimalFile(t *testing.T, ext string, lines ...string) []byte {
	t.Helper()
	switch ext {
	case ".docx":
		return zipFile(t, "word/document.xml", `<w:document xmlns:w="w"><w:body>`+
			wrapLines(lines, `<w:p><w:r><w:t>`, `</w:t></w:r></w:p>`)+`</w:body></w:document>`)
	case ".pptx":
		return zipFile(t, "ppt/slides/slide1.xml", `<p:sld xmlns:p="p" xmlns:a="a"><p:cSld><p:spTree><p:sp><p:txBody>`+
			wrapLines(lines, `<a:p><a:r><a:t>`, `</a:t></a:r></a:p>`)+`</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`)
	case ".odt", ".odp":
		return zipFile(t, "content.xml", `<office:document-content xmlns:office="o" xmlns:text="t"><office:body>`+
			wrapLines(lines, `<text:p>`, `</text:p>`)+`</office:body></office:document-content>`)
	case ".ods":
		return zipFile(t, "content.xml", `<office:document-content xmlns:office="o" xmlns:table="tb" xmlns:text="t"><office:body><table:table>`+
			wrapLines(lines, `<table:table-row><table:table-cell><text:p>`, `</text:p></table:table-cell></table:table-row>`)+
			`</table:table></office:body></office:document-content>`)
	case ".xlsx":
		f := excelize.NewFile()
		defer f.Close()
		for i, l := range lines {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, l))
		}
		var buf bytes.Buffer
		_, err := f.WriteTo(&buf)
		require.NoError(t, err)
		return buf.Bytes()
	default:
		return []byte(strings.Join(lines, "\n"))
	}
}

func wrapLines(lines []string, open, close string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(open)
		_ = xml.EscapeText(&b, []byte(l))
		b.WriteString(close)
	}
	return b.String()
}

func zipFile(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create(name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kensaku/internal/apperr"
	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// zipOf builds an archive holding the given parts in order.
func zipOf(t *testing.T, parts ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for i := 0; i+1 < len(parts); i += 2 {
		fw, err := w.Create(parts[i])
		require.NoError(t, err)
		_, err = fw.Write([]byte(parts[i+1]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestExtractBytes_Plain(t *testing.T) {
	tests := []struct {
		name    string
		content string
		ext     string
		want    string
	}{
		{"text", "Hello world\nLine 2", ".txt", "Hello world\nLine 2"},
		{"utf8", "caf\xc3\xa9", ".md", "café"},
		{"invalid utf8", "hello\x80world", ".txt", "hello\uFFFDworld"},
		{"bom", "\xef\xbb\xbfBarack Obama", ".txt", "Barack Obama"},
		{"unknown extension", "raw content", ".xyz", "raw content"},
		{"no extension", "raw", "", "raw"},
	}
	e := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ExtractBytes([]byte(tt.content), tt.ext)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

const wordDoc = `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
	`<w:p w:rsidR="00A1"><w:r><w:t>Barack </w:t></w:r><w:r><w:t>Oba</w:t></w:r><w:r><w:t>ma speech</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t xml:space="preserve">Second</w:t><w:tab/><w:t>line</w:t></w:r></w:p>` +
	`</w:body></w:document>`

func TestExtractBytes_Docx(t *testing.T) {
	e := NewExtractor()

	got, err := e.ExtractBytes(zipOf(t, "word/document.xml", wordDoc), ".docx")
	require.NoError(t, err)
	assert.Equal(t, "Barack Obama speech\nSecond line", got, "runs join within a paragraph")

	contentTypes := `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override ContentType="` + docxMainType + `" PartName="/word/document2.xml"/>
</Types>`
	got, err = e.ExtractBytes(zipOf(t, "[Content_Types].xml", contentTypes, "word/document2.xml", wordDoc), ".DOCX")
	require.NoError(t, err)
	assert.Equal(t, "Barack Obama speech\nSecond line", got, "main part named by content types")

	_, err = e.ExtractBytes(zipOf(t, "other.xml", "<x/>"), ".docx")
	assert.Error(t, err)
}

func slideXML(text string) string {
	return `<p:sld xmlns:p="p" xmlns:a="a"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` +
		text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
}

func TestExtractBytes_Pptx(t *testing.T) {
	e := NewExtractor()
	content := zipOf(t,
		"ppt/slides/slide10.xml", slideXML("Tenth"),
		"ppt/slides/slide2.xml", slideXML("Second"),
		"ppt/slides/_rels/slide2.xml.rels", "<Relationships/>",
		"ppt/slideLayouts/slideLayout1.xml", slideXML("Layout"),
	)
	got, err := e.ExtractBytes(content, ".pptx")
	require.NoError(t, err)
	assert.Equal(t, "Second\nTenth", got)

	got, err = e.ExtractBytes(zipOf(t, "docProps/core.xml", "<x/>"), ".pptx")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = e.ExtractBytes([]byte("not a zip"), ".pptx")
	assert.Error(t, err)
}

func TestExtractBytes_OpenDocument(t *testing.T) {
	e := NewExtractor()
	tests := []struct {
		name string
		ext  string
		xml  string
		want string
	}{
		{
			name: "presentation",
			ext:  ".odp",
			xml:  `<office:document><office:body><draw:page><text:h>Slide title</text:h><text:p>Body <text:span>text</text:span></text:p></draw:page></office:body></office:document>`,
			want: "Slide title\nBody text",
		},
		{
			name: "spreadsheet",
			ext:  ".ods",
			xml:  `<office:document><table:table><table:table-row><table:table-cell><text:p>Cell A</text:p></table:table-cell><table:table-cell><text:p>Cell<text:s/>B</text:p></table:table-cell></table:table-row></table:table></office:document>`,
			want: "Cell A\nCell B",
		},
		{
			name: "text",
			ext:  ".odt",
			xml:  `<office:document><office:text><text:p>Hillary Clinton speech</text:p></office:text></office:document>`,
			want: "Hillary Clinton speech",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ExtractBytes(zipOf(t, "content.xml", tt.xml), tt.ext)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := e.ExtractBytes(zipOf(t, "other.xml", "<x/>"), ".odp")
	assert.Error(t, err, "content.xml missing")
}

func TestExtractBytes_Excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Title"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Value 1"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "Value 2"))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".xlsx")
	require.NoError(t, err)
	assert.Equal(t, "Sheet1\nTitle\nValue 1\tValue 2", got)
}

func TestExtractBytes_InvalidPDF(t *testing.T) {
	_, err := NewExtractor().ExtractBytes([]byte("%PDF-broken"), ".pdf")
	assert.Error(t, err)
}

func TestExtract_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewExtractor().Extract(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrIO)

	big := writeFile(t, dir, "big.txt", bytes.Repeat([]byte("a "), 100))
	_, err = NewExtractor(WithMaxFileSize(10)).Extract(big)
	assert.ErrorIs(t, err, apperr.ErrIO)

	bad := writeFile(t, dir, "bad.pptx", []byte("not a zip"))
	_, err = NewExtractor().Extract(bad)
	assert.ErrorIs(t, err, apperr.ErrIO)
	assert.Contains(t, err.Error(), "bad.pptx")
}

func TestDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", []byte("\n  Barack Obama speech  \r\nBarack Obama spoke about policy\n"))

	doc, err := NewExtractor().Document(path)
	require.NoError(t, err)
	require.Len(t, doc.Fields, 3)

	assert.Equal(t, index.Field{Name: models.FieldPath, Value: path, Type: index.TypeStored}, doc.Fields[0])
	assert.Equal(t, index.Field{Name: models.FieldFirstLine, Value: "Barack Obama speech", Type: index.TypeIndexedStored}, doc.Fields[1])
	assert.Equal(t, models.FieldContent, doc.Fields[2].Name)
	assert.Equal(t, index.TypeIndexed, doc.Fields[2].Type)
	assert.Contains(t, doc.Fields[2].Value, "spoke about policy")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "", FirstLine(""))
	assert.Equal(t, "", FirstLine(" \n\t\n"))
	assert.Equal(t, "one", FirstLine("one"))
	assert.Equal(t, "two words", FirstLine("\r\n two words \r\nthree"))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(".PDF"))
	assert.True(t, Supported(".ods"))
	assert.False(t, Supported(".txt"))
}

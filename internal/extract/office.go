package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"
)

const (
	contentTypesPart = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	docxDefaultPart  = "word/document.xml"
	odfContentPart   = "content.xml"
)

// Elements whose character data is text, by local name. Paragraph-level
// elements end a line.
var (
	ooxmlRuns  = map[string]bool{"t": true}
	ooxmlLines = map[string]bool{"p": true}
	odfRuns    = map[string]bool{"p": true, "h": true, "span": true}
	odfLines   = map[string]bool{"p": true, "h": true}
)

func openZip(content []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not a zip archive: %w", err)
	}
	return zr, nil
}

func readPart(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("part %s: %w", name, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// docxText reads the main document part named in [Content_Types].xml, or
// word/document.xml when the package does not name one.
func docxText(content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", err
	}
	part := docxDefaultPart
	if ct, err := readPart(zr, contentTypesPart); err == nil {
		if name := mainPart(ct, docxMainType); name != "" {
			part = name
		}
	}
	data, err := readPart(zr, part)
	if err != nil {
		return "", err
	}
	return xmlText(data, ooxmlRuns, ooxmlLines)
}

// mainPart returns the part name of the override with the given content type.
func mainPart(contentTypes []byte, typ string) string {
	var types struct {
		Overrides []struct {
			PartName    string `xml:"PartName,attr"`
			ContentType string `xml:"ContentType,attr"`
		} `xml:"Override"`
	}
	if err := xml.Unmarshal(contentTypes, &types); err != nil {
		return ""
	}
	for _, o := range types.Overrides {
		if o.ContentType == typ {
			return strings.TrimPrefix(o.PartName, "/")
		}
	}
	return ""
}

// pptxText reads the slides in slide number order.
func pptxText(content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", err
	}
	type slide struct {
		n    int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		dir, file := path.Split(f.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(file, "slide") || path.Ext(file) != ".xml" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(file, "slide"), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{n, f.Name})
	}
	slices.SortFunc(slides, func(a, b slide) int { return a.n - b.n })

	texts := make([]string, 0, len(slides))
	for _, s := range slides {
		data, err := readPart(zr, s.name)
		if err != nil {
			return "", err
		}
		text, err := xmlText(data, ooxmlRuns, ooxmlLines)
		if err != nil {
			return "", fmt.Errorf("%s: %w", s.name, err)
		}
		if text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// odfText reads content.xml of an OpenDocument text, presentation or
// spreadsheet.
func odfText(content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", err
	}
	data, err := readPart(zr, odfContentPart)
	if err != nil {
		return "", err
	}
	return xmlText(data, odfRuns, odfLines)
}

// xmlText collects the character data found inside run elements. Each line
// element that produced text becomes one output line; runs within a line
// are concatenated since words may be split across them.
func xmlText(data []byte, runs, lines map[string]bool) (string, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	var (
		out   []string
		line  strings.Builder
		depth int
	)
	endLine := func() {
		if s := strings.Join(strings.Fields(line.String()), " "); s != "" {
			out = append(out, s)
		}
		line.Reset()
	}
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if runs[t.Name.Local] {
				depth++
			}
			if t.Name.Local == "tab" || t.Name.Local == "s" || t.Name.Local == "br" {
				line.WriteByte(' ')
			}
		case xml.EndElement:
			if runs[t.Name.Local] && depth > 0 {
				depth--
			}
			if lines[t.Name.Local] {
				endLine()
			}
		case xml.CharData:
			if depth > 0 {
				line.Write(t)
			}
		}
	}
	endLine()
	return strings.Join(out, "\n"), nil
}

package http

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync/atomic"
)

// Progress reports upload progress over the file parts of a multipart body.
type Progress struct {
	Sent  int64
	Total int64
}

// Percent is Sent/Total in [0,100], or 0 when the total is unknown.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Sent) * 100 / float64(p.Total)
}

// FilePart is one file field. Open is called once per attempt so a replayed request re-reads it.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

type formField struct{ name, value string }

// Multipart is an ordered multipart/form-data body. Fields may repeat.
type Multipart struct {
	fields   []formField
	files    []FilePart
	progress func(Progress)
}

func NewMultipart() *Multipart { return &Multipart{} }

// Add appends a text field.
func (m *Multipart) Add(name, value string) *Multipart {
	m.fields = append(m.fields, formField{name, value})
	return m
}

// AddFile appends a file field.
func (m *Multipart) AddFile(f FilePart) *Multipart {
	m.files = append(m.files, f)
	return m
}

// OnProgress registers fn, called as file bytes are written to the connection.
func (m *Multipart) OnProgress(fn func(Progress)) *Multipart {
	m.progress = fn
	return m
}

// Fields returns the values of a text field in order.
func (m *Multipart) Fields(name string) []string {
	var out []string
	for _, f := range m.fields {
		if f.name == name {
			out = append(out, f.value)
		}
	}
	return out
}

// Files returns the file parts.
func (m *Multipart) Files() []FilePart { return m.files }

// open opens every file up front, so unreadable files fail before any byte is sent, and then
// streams the encoded form through a pipe.
func (m *Multipart) open() (io.ReadCloser, string, error) {
	readers := make([]io.ReadCloser, 0, len(m.files))
	closeAll := func() {
		for _, r := range readers {
			r.Close()
		}
	}
	var total int64
	for _, f := range m.files {
		if f.Open == nil {
			closeAll()
			return nil, "", fmt.Errorf("file part %q has no opener", f.Field)
		}
		rc, err := f.Open()
		if err != nil {
			closeAll()
			return nil, "", fmt.Errorf("open %s: %w", f.FileName, err)
		}
		readers = append(readers, rc)
		total += f.Size
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer closeAll()
		var sent atomic.Int64
		err := m.write(mw, readers, func(n int) {
			if m.progress != nil {
				m.progress(Progress{Sent: sent.Add(int64(n)), Total: total})
			}
		})
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType(), nil
}

func (m *Multipart) write(mw *multipart.Writer, readers []io.ReadCloser, onWrite func(int)) error {
	for _, f := range m.fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return err
		}
	}
	for i, f := range m.files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(f.Field), escapeQuotes(f.FileName)))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(&countingWriter{w: part, onWrite: onWrite}, readers[i]); err != nil {
			return err
		}
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

type countingWriter struct {
	w       io.Writer
	onWrite func(int)
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.onWrite(n)
	}
	return n, err
}

package rtstruct

import (
	"bytes"
	"io"
	"strings"

	"github.com/suyashkumar/dicom"
)

// countingWriter tracks how many bytes passed through to w.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// WriteTo serializes the document as a Part 10 file.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	err := dicom.Write(cw, d.Dataset, dicom.SkipVRVerification())
	return cw.n, err
}

// Bytes returns the serialized document.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Filename expands pattern for a case. "{case}" is replaced by the case ID
// and "{uid}" by the document's SOP instance UID.
func (d *Document) Filename(pattern, caseID string) string {
	if pattern == "" {
		pattern = "RS.{case}-CNN.dcm"
	}
	r := strings.NewReplacer("{case}", caseID, "{uid}", d.SOPInstanceUID)
	return r.Replace(pattern)
}

package rtstruct

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// elementList accumulates elements and remembers the first construction
// error so callers can build a whole item before checking.
type elementList struct {
	elems []*dicom.Element
	err   error
}

func (l *elementList) add(t tag.Tag, data any) {
	if l.err != nil {
		return
	}
	e, err := dicom.NewElement(t, data)
	if err != nil {
		l.err = fmt.Errorf("element %s: %w", t, err)
		return
	}
	l.elems = append(l.elems, e)
}

func (l *elementList) str(t tag.Tag, v string) { l.add(t, []string{v}) }

func (l *elementList) seq(t tag.Tag, items [][]*dicom.Element) { l.add(t, items) }

// sorted returns the elements in ascending tag order, as the file format
// requires at every nesting level.
func (l *elementList) sorted() ([]*dicom.Element, error) {
	if l.err != nil {
		return nil, l.err
	}
	sortElements(l.elems)
	return l.elems, nil
}

func sortElements(elems []*dicom.Element) {
	sort.SliceStable(elems, func(i, j int) bool {
		a, b := elems[i].Tag, elems[j].Tag
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Element < b.Element
	})
}

// formatIS renders an integer string value.
func formatIS(n int) string { return strconv.Itoa(n) }

// formatDS renders a decimal string value within the 16 character limit.
func formatDS(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	for prec := 10; len(s) > 16 && prec > 0; prec-- {
		s = strconv.FormatFloat(v, 'g', prec, 64)
	}
	return s
}

// findIn returns the element with tag t, or nil.
func findIn(elems []*dicom.Element, t tag.Tag) *dicom.Element {
	for _, e := range elems {
		if e.Tag == t {
			return e
		}
	}
	return nil
}

// itemsOf returns the items of a sequence element.
func itemsOf(e *dicom.Element) [][]*dicom.Element {
	if e == nil || e.Value == nil {
		return nil
	}
	raw, ok := e.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil
	}
	out := make([][]*dicom.Element, 0, len(raw))
	for _, item := range raw {
		elems, _ := item.GetValue().([]*dicom.Element)
		out = append(out, elems)
	}
	return out
}

// stringsOf returns the string values of an element.
func stringsOf(e *dicom.Element) []string {
	if e == nil || e.Value == nil {
		return nil
	}
	switch v := e.Value.GetValue().(type) {
	case []string:
		return v
	case []int:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.Itoa(n)
		}
		return out
	}
	return nil
}

func firstString(e *dicom.Element) string {
	if s := stringsOf(e); len(s) > 0 {
		return s[0]
	}
	return ""
}

package models

import (
	"math"
	"sort"
)

// CTSlice represents a single CT image read from a DICOM file with the
// metadata needed for geometry normalization and structure-set assembly.
type CTSlice struct {
	// Pixels holds the stored (pre-rescale) values in row-major order
	Pixels []int

	// Rows and Columns are the dimensions of the stored pixel grid
	Rows    int
	Columns int

	// RescaleSlope and RescaleIntercept map stored values to Hounsfield units
	RescaleSlope     float64
	RescaleIntercept float64

	// PixelSpacing is the physical size of a pixel in mm (row, column)
	PixelSpacing [2]float64

	// SliceLocation is the physical position of the slice along the axial axis in mm
	SliceLocation float64

	Modality       string
	SOPClassUID    string
	SOPInstanceUID string

	// Study carries the patient and study identifiers of the file
	Study StudyRecord

	// File is the path the slice was read from
	File string
}

// IsCT reports whether the slice carries CT modality.
func (s *CTSlice) IsCT() bool {
	return s.Modality == "CT"
}

// HU returns the slice in Hounsfield units.
func (s *CTSlice) HU() []float64 {
	slope := s.RescaleSlope
	if slope == 0 {
		slope = 1
	}
	out := make([]float64, len(s.Pixels))
	for i, v := range s.Pixels {
		out[i] = float64(v)*slope + s.RescaleIntercept
	}
	return out
}

// StudyRecord holds the patient and study metadata copied into a structure set.
type StudyRecord struct {
	PatientID              string
	PatientName            string
	PatientSex             string
	PatientBirthDate       string
	PatientIdentityRemoved string
	DeidentificationMethod string

	StudyDate              string
	StudyTime              string
	StudyID                string
	StudyDescription       string
	AccessionNumber        string
	ReferringPhysicianName string

	StudyInstanceUID    string
	SeriesInstanceUID   string
	FrameOfReferenceUID string
	SeriesNumber        string
	InstanceNumber      int
	Manufacturer        string
}

// ImageRef identifies a CT image by SOP class and instance.
type ImageRef struct {
	ClassUID    string
	InstanceUID string
}

// HeightKey is a slice position expressed in whole height-precision steps,
// so that rounded heights can be used as exact map keys.
type HeightKey int64

// KeyFor converts a physical height in mm to its key under the given precision.
func KeyFor(height, precision float64) HeightKey {
	return HeightKey(math.Round(height / precision))
}

// Height converts a key back to mm.
func (k HeightKey) Height(precision float64) float64 {
	return float64(k) * precision
}

// UIDMap maps rounded slice heights to the CT image found at that height.
type UIDMap struct {
	Precision float64
	refs      map[HeightKey]ImageRef
}

// NewUIDMap creates an empty map with the given rounding precision in mm.
func NewUIDMap(precision float64) *UIDMap {
	return &UIDMap{Precision: precision, refs: make(map[HeightKey]ImageRef)}
}

// Set stores a reference, replacing any earlier entry at the same height.
func (m *UIDMap) Set(height float64, ref ImageRef) {
	m.refs[KeyFor(height, m.Precision)] = ref
}

// Lookup returns the reference for the slice at height after rounding.
func (m *UIDMap) Lookup(height float64) (ImageRef, bool) {
	ref, ok := m.refs[KeyFor(height, m.Precision)]
	return ref, ok
}

// Len returns the number of distinct heights.
func (m *UIDMap) Len() int { return len(m.refs) }

// Heights returns the mapped heights in ascending order.
func (m *UIDMap) Heights() []float64 {
	keys := make([]HeightKey, 0, len(m.refs))
	for k := range m.refs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = k.Height(m.Precision)
	}
	return out
}

// Refs returns the references ordered by ascending height.
func (m *UIDMap) Refs() []ImageRef {
	heights := m.Heights()
	out := make([]ImageRef, len(heights))
	for i, h := range heights {
		out[i] = m.refs[KeyFor(h, m.Precision)]
	}
	return out
}

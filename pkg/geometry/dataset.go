package geometry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"hnautoseg/internal/models"
)

// stringValue returns the first string value of t, or "" when absent.
func stringValue(ds *dicom.Dataset, t tag.Tag) string {
	vals := stringValues(ds, t)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// stringValues returns all values of t rendered as strings.
func stringValues(ds *dicom.Dataset, t tag.Tag) []string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return nil
	}
	switch v := elem.Value.GetValue().(type) {
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = strings.TrimSpace(strings.TrimRight(s, "\x00"))
		}
		return out
	case []int:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.Itoa(n)
		}
		return out
	}
	return nil
}

// floatValues parses DS-style values of t.
func floatValues(ds *dicom.Dataset, t tag.Tag) ([]float64, error) {
	raw := stringValues(ds, t)
	out := make([]float64, 0, len(raw))
	for _, s := range raw {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tagName(t), err)
		}
		out = append(out, f)
	}
	return out, nil
}

// floatValue returns the first numeric value of t or def when absent.
func floatValue(ds *dicom.Dataset, t tag.Tag, def float64) (float64, error) {
	vals, err := floatValues(ds, t)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return def, nil
	}
	return vals[0], nil
}

// intValue returns the first integer value of t or def when absent.
func intValue(ds *dicom.Dataset, t tag.Tag, def int) int {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return def
	}
	switch v := elem.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0]
		}
	case []string:
		if len(v) > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(v[0])); err == nil {
				return n
			}
		}
	}
	return def
}

func tagName(t tag.Tag) string {
	if info, err := tag.Find(t); err == nil {
		return info.Name
	}
	return t.String()
}

// StudyFromDataset copies the patient and study identifiers of an image.
func StudyFromDataset(ds *dicom.Dataset) models.StudyRecord {
	return models.StudyRecord{
		PatientID:              stringValue(ds, tag.PatientID),
		PatientName:            stringValue(ds, tag.PatientName),
		PatientSex:             stringValue(ds, tag.PatientSex),
		PatientBirthDate:       stringValue(ds, tag.PatientBirthDate),
		PatientIdentityRemoved: stringValue(ds, tag.PatientIdentityRemoved),
		DeidentificationMethod: stringValue(ds, tag.DeidentificationMethod),
		StudyDate:              stringValue(ds, tag.StudyDate),
		StudyTime:              stringValue(ds, tag.StudyTime),
		StudyID:                stringValue(ds, tag.StudyID),
		StudyDescription:       stringValue(ds, tag.StudyDescription),
		AccessionNumber:        stringValue(ds, tag.AccessionNumber),
		ReferringPhysicianName: stringValue(ds, tag.ReferringPhysicianName),
		StudyInstanceUID:       stringValue(ds, tag.StudyInstanceUID),
		SeriesInstanceUID:      stringValue(ds, tag.SeriesInstanceUID),
		FrameOfReferenceUID:    stringValue(ds, tag.FrameOfReferenceUID),
		SeriesNumber:           stringValue(ds, tag.SeriesNumber),
		InstanceNumber:         intValue(ds, tag.InstanceNumber, 0),
		Manufacturer:           stringValue(ds, tag.Manufacturer),
	}
}

// SliceFromDataset extracts a CT slice from a parsed image. Pixel data is only
// decoded for CT images; other modalities come back with metadata only.
func SliceFromDataset(ds *dicom.Dataset, file string) (*models.CTSlice, error) {
	s := &models.CTSlice{
		Modality:       stringValue(ds, tag.Modality),
		SOPClassUID:    stringValue(ds, tag.SOPClassUID),
		SOPInstanceUID: stringValue(ds, tag.SOPInstanceUID),
		Study:          StudyFromDataset(ds),
		File:           file,
	}
	if !s.IsCT() {
		return s, nil
	}

	s.Rows = intValue(ds, tag.Rows, 0)
	s.Columns = intValue(ds, tag.Columns, 0)

	var err error
	if s.RescaleSlope, err = floatValue(ds, tag.RescaleSlope, 1); err != nil {
		return nil, err
	}
	if s.RescaleIntercept, err = floatValue(ds, tag.RescaleIntercept, 0); err != nil {
		return nil, err
	}

	spacing, err := floatValues(ds, tag.PixelSpacing)
	if err != nil {
		return nil, err
	}
	switch len(spacing) {
	case 0:
		s.PixelSpacing = [2]float64{1, 1}
	case 1:
		s.PixelSpacing = [2]float64{spacing[0], spacing[0]}
	default:
		s.PixelSpacing = [2]float64{spacing[0], spacing[1]}
	}

	loc, err := floatValues(ds, tag.SliceLocation)
	if err != nil {
		return nil, err
	}
	if len(loc) > 0 {
		s.SliceLocation = loc[0]
	} else {
		pos, err := floatValues(ds, tag.ImagePositionPatient)
		if err != nil || len(pos) < 3 {
			return nil, fmt.Errorf("%w: no slice location", ErrInvalidGeometry)
		}
		s.SliceLocation = pos[2]
	}

	if s.Pixels, err = pixelValues(ds, s.Rows, s.Columns); err != nil {
		return nil, err
	}
	return s, nil
}

// pixelValues decodes the first native frame as stored integers.
func pixelValues(ds *dicom.Dataset, rows, cols int) ([]int, error) {
	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("pixel data: %w", err)
	}
	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrUnsupportedPixelData)
	}
	fr := info.Frames[0]
	if fr.Encapsulated || fr.NativeData == nil {
		return nil, fmt.Errorf("%w: encapsulated transfer syntax", ErrUnsupportedPixelData)
	}
	nf := fr.NativeData
	if nf.SamplesPerPixel() != 1 {
		return nil, fmt.Errorf("%w: %d samples per pixel", ErrUnsupportedPixelData, nf.SamplesPerPixel())
	}
	if nf.Rows() != rows || nf.Cols() != cols {
		return nil, fmt.Errorf("%w: frame is %dx%d, header says %dx%d",
			ErrInvalidGeometry, nf.Rows(), nf.Cols(), rows, cols)
	}

	signed := intValue(ds, tag.PixelRepresentation, 0) == 1
	bits := intValue(ds, tag.BitsAllocated, nf.BitsPerSample())
	out := make([]int, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			px, err := nf.GetPixel(x, y)
			if err != nil {
				return nil, err
			}
			v := px[0]
			if signed && bits > 0 && bits < 64 && v >= 1<<(bits-1) {
				v -= 1 << bits
			}
			out[y*cols+x] = v
		}
	}
	return out, nil
}

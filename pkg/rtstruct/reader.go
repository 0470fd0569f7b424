package rtstruct

import (
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"hnautoseg/internal/models"
	"hnautoseg/pkg/contour"
)

// ROIContours is one region read back from a structure set.
type ROIContours struct {
	Number      int
	Name        string
	Observation string
	Type        string
	Color       [3]int
	Contours    []models.Contour
}

// StructureSet is the subset of a structure set document needed to compare
// regions against each other.
type StructureSet struct {
	SOPInstanceUID      string
	PatientID           string
	FrameOfReferenceUID string
	Label               string
	ROIs                []ROIContours
}

// ROI returns the region whose name or observation label matches name,
// ignoring case.
func (s *StructureSet) ROI(name string) (*ROIContours, bool) {
	for i := range s.ROIs {
		r := &s.ROIs[i]
		if strings.EqualFold(r.Name, name) || strings.EqualFold(r.Observation, name) {
			return r, true
		}
	}
	return nil, false
}

// ReadFile parses the structure set stored at path.
func ReadFile(path string) (*StructureSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return ReadStructureSet(f, info.Size())
}

// ReadStructureSet parses size bytes of a structure set from r.
func ReadStructureSet(r io.Reader, size int64) (*StructureSet, error) {
	ds, err := dicom.Parse(r, size, nil)
	if err != nil {
		return nil, fmt.Errorf("parse structure set: %w", err)
	}
	return FromDataset(ds)
}

// FromDataset extracts the regions of a parsed structure set.
func FromDataset(ds dicom.Dataset) (*StructureSet, error) {
	elems := ds.Elements
	if m := firstString(findIn(elems, tag.Modality)); m != "RTSTRUCT" {
		return nil, fmt.Errorf("%w: modality %q", ErrNotStructureSet, m)
	}

	s := &StructureSet{
		SOPInstanceUID: firstString(findIn(elems, tag.SOPInstanceUID)),
		PatientID:      firstString(findIn(elems, tag.PatientID)),
		Label:          firstString(findIn(elems, tag.StructureSetLabel)),
	}
	if frames := itemsOf(findIn(elems, tag.ReferencedFrameOfReferenceSequence)); len(frames) > 0 {
		s.FrameOfReferenceUID = firstString(findIn(frames[0], tag.FrameOfReferenceUID))
	}

	byNumber := make(map[int]*ROIContours)
	for _, item := range itemsOf(findIn(elems, tag.StructureSetROISequence)) {
		n, err := atoi(findIn(item, tag.ROINumber))
		if err != nil {
			return nil, fmt.Errorf("ROI number: %w", err)
		}
		s.ROIs = append(s.ROIs, ROIContours{Number: n, Name: firstString(findIn(item, tag.ROIName))})
	}
	for i := range s.ROIs {
		byNumber[s.ROIs[i].Number] = &s.ROIs[i]
	}

	for _, item := range itemsOf(findIn(elems, tag.RTROIObservationsSequence)) {
		n, err := atoi(findIn(item, tag.ReferencedROINumber))
		if err != nil {
			continue
		}
		if roi, ok := byNumber[n]; ok {
			roi.Observation = firstString(findIn(item, tag.ROIObservationLabel))
			roi.Type = firstString(findIn(item, tag.RTROIInterpretedType))
		}
	}

	for _, item := range itemsOf(findIn(elems, tag.ROIContourSequence)) {
		n, err := atoi(findIn(item, tag.ReferencedROINumber))
		if err != nil {
			return nil, fmt.Errorf("referenced ROI number: %w", err)
		}
		roi, ok := byNumber[n]
		if !ok {
			continue
		}
		for i, c := range stringsOf(findIn(item, tag.ROIDisplayColor)) {
			if i >= 3 {
				break
			}
			v, err := strconv.Atoi(strings.TrimSpace(c))
			if err != nil {
				return nil, fmt.Errorf("ROI %d display color: %w", n, err)
			}
			roi.Color[i] = v
		}
		for _, ci := range itemsOf(findIn(item, tag.ContourSequence)) {
			pts, err := parseDS(stringsOf(findIn(ci, tag.ContourData)))
			if err != nil {
				return nil, fmt.Errorf("ROI %d contour data: %w", n, err)
			}
			if len(pts)%3 != 0 || len(pts) == 0 {
				continue
			}
			roi.Contours = append(roi.Contours, models.Contour{Points: pts})
		}
	}
	return s, nil
}

func atoi(e *dicom.Element) (int, error) {
	return strconv.Atoi(strings.TrimSpace(firstString(e)))
}

func parseDS(values []string) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// Rasterize fills every contour of roi into a binary volume on the
// normalized grid. heights gives the z position of each volume slice;
// contours at heights not listed are ignored.
func Rasterize(roi *ROIContours, heights []float64, imageSize int, pixelSize, precision float64) *models.Volume {
	vol := models.NewVolume(imageSize, imageSize, len(heights))
	index := make(map[models.HeightKey]int, len(heights))
	for z, h := range heights {
		index[models.KeyFor(h, precision)] = z
	}

	ext := contour.NewExtractor(nil, imageSize, pixelSize)
	buf := make([]uint8, vol.SliceLen())
	for _, c := range roi.Contours {
		z, ok := index[models.KeyFor(c.Z(), precision)]
		if !ok {
			continue
		}
		poly := make(contour.Polygon, 0, c.NumPoints())
		for i := 0; i+2 < len(c.Points); i += 3 {
			col, row := ext.ToPixel(c.Points[i], c.Points[i+1])
			poly = append(poly, pointAt(col, row))
		}
		for i := range buf {
			buf[i] = 0
		}
		contour.FillPolygon(buf, imageSize, imageSize, poly)
		slice := vol.Slice(z)
		for i, v := range buf {
			if v != 0 {
				slice[i] = 1
			}
		}
	}
	return vol
}

func pointAt(x, y float64) image.Point {
	return image.Pt(int(math.Round(x)), int(math.Round(y)))
}

// Heights returns the sorted distinct contour heights across rois.
func Heights(rois []ROIContours, precision float64) []float64 {
	seen := make(map[models.HeightKey]bool)
	for _, r := range rois {
		for _, c := range r.Contours {
			seen[models.KeyFor(c.Z(), precision)] = true
		}
	}
	out := make([]float64, 0, len(seen))
	for k := range seen {
		out = append(out, k.Height(precision))
	}
	sort.Float64s(out)
	return out
}

// Package dicomtest writes small synthetic CT images for tests.
package dicomtest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// CTStorage is the CT Image Storage SOP class.
const CTStorage = "1.2.840.10008.5.1.4.1.1.2"

// CT describes one synthetic image.
type CT struct {
	PatientID     string
	Modality      string
	Size          int
	PixelSpacing  float64
	SliceLocation float64
	Intercept     float64
	InstanceUID   string

	// Pixel returns the stored value at (x, y); nil fills with zero
	Pixel func(x, y int) uint16
}

// withDefaults fills unset fields.
func (c CT) withDefaults() CT {
	if c.PatientID == "" {
		c.PatientID = "HN-001"
	}
	if c.Modality == "" {
		c.Modality = "CT"
	}
	if c.Size == 0 {
		c.Size = 8
	}
	if c.PixelSpacing == 0 {
		c.PixelSpacing = 1
	}
	if c.InstanceUID == "" {
		c.InstanceUID = fmt.Sprintf("1.2.826.0.1.3680043.8.498.%d", int(c.SliceLocation*100)+100000)
	}
	return c
}

func mustNewElement(t tag.Tag, data any) *dicom.Element {
	e, err := dicom.NewElement(t, data)
	if err != nil {
		panic(fmt.Sprintf("dicomtest: element %v: %v", t, err))
	}
	return e
}

func ds(v float64) string { return fmt.Sprintf("%g", v) }

// Dataset builds the in-memory image.
func (c CT) Dataset() dicom.Dataset {
	c = c.withDefaults()
	nf := frame.NewNativeFrame[uint16](16, c.Size, c.Size, c.Size*c.Size, 1)
	if c.Pixel != nil {
		for y := 0; y < c.Size; y++ {
			for x := 0; x < c.Size; x++ {
				nf.RawData[y*c.Size+x] = c.Pixel(x, y)
			}
		}
	}

	elements := []*dicom.Element{
		mustNewElement(tag.MediaStorageSOPClassUID, []string{CTStorage}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{c.InstanceUID}),
		mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
		mustNewElement(tag.SOPClassUID, []string{CTStorage}),
		mustNewElement(tag.SOPInstanceUID, []string{c.InstanceUID}),
		mustNewElement(tag.StudyDate, []string{"20240102"}),
		mustNewElement(tag.StudyTime, []string{"101500"}),
		mustNewElement(tag.AccessionNumber, []string{"ACC42"}),
		mustNewElement(tag.Modality, []string{c.Modality}),
		mustNewElement(tag.ReferringPhysicianName, []string{"Doe^Jane"}),
		mustNewElement(tag.PatientName, []string{"Test^Patient"}),
		mustNewElement(tag.PatientID, []string{c.PatientID}),
		mustNewElement(tag.PatientBirthDate, []string{"19600101"}),
		mustNewElement(tag.PatientSex, []string{"O"}),
		mustNewElement(tag.StudyInstanceUID, []string{"1.2.826.0.1.3680043.8.498.1"}),
		mustNewElement(tag.SeriesInstanceUID, []string{"1.2.826.0.1.3680043.8.498.2"}),
		mustNewElement(tag.StudyID, []string{"S1"}),
		mustNewElement(tag.SeriesNumber, []string{"3"}),
		mustNewElement(tag.InstanceNumber, []string{"1"}),
		mustNewElement(tag.FrameOfReferenceUID, []string{"1.2.826.0.1.3680043.8.498.3"}),
		mustNewElement(tag.SliceLocation, []string{ds(c.SliceLocation)}),
		mustNewElement(tag.SamplesPerPixel, []int{1}),
		mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
		mustNewElement(tag.Rows, []int{c.Size}),
		mustNewElement(tag.Columns, []int{c.Size}),
		mustNewElement(tag.PixelSpacing, []string{ds(c.PixelSpacing), ds(c.PixelSpacing)}),
		mustNewElement(tag.BitsAllocated, []int{16}),
		mustNewElement(tag.BitsStored, []int{16}),
		mustNewElement(tag.HighBit, []int{15}),
		mustNewElement(tag.PixelRepresentation, []int{0}),
		mustNewElement(tag.RescaleIntercept, []string{ds(c.Intercept)}),
		mustNewElement(tag.RescaleSlope, []string{"1"}),
		mustNewElement(tag.PixelData, dicom.PixelDataInfo{
			Frames: []*frame.Frame{{Encapsulated: false, NativeData: nf}},
		}),
	}
	return dicom.Dataset{Elements: elements}
}

// Write stores the image at dir/name.
func (c CT) Write(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := dicom.Write(f, c.Dataset()); err != nil {
		return "", err
	}
	return path, nil
}

// Series writes n images spaced by spacing mm starting at z0, named
// ct_000.dcm, ct_001.dcm, ...
func Series(dir string, n int, z0, spacing float64, base CT) ([]string, error) {
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		c := base
		c.SliceLocation = z0 + float64(i)*spacing
		c.InstanceUID = ""
		p, err := c.Write(dir, fmt.Sprintf("ct_%03d.dcm", i))
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

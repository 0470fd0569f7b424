// Package rtstruct assembles RT Structure Set documents from organ
// probability volumes and reads existing structure sets back into masks.
package rtstruct

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"

	"hnautoseg/internal/models"
	"hnautoseg/pkg/contour"
	"hnautoseg/pkg/organ"
	"hnautoseg/pkg/postprocess"
)

const (
	// RTStructureSetStorage is the SOP class of structure set documents.
	RTStructureSetStorage = "1.2.840.10008.5.1.4.1.1.481.3"

	// DetachedStudyManagement is the SOP class referenced for the study.
	DetachedStudyManagement = "1.2.840.10008.3.1.2.3.1"

	// ImplicitVRLittleEndian is the transfer syntax documents are written with.
	ImplicitVRLittleEndian = "1.2.840.10008.1.2"

	implementationClassUID    = "1.2.246.352.70.2.1.160.3"
	implementationVersionName = "HNAUTOSEG 1.0"
)

// Options configures document assembly.
type Options struct {
	UIDRoot         string
	Label           string
	Manufacturer    string
	ModelName       string
	SoftwareVersion string

	// NumWorkers bounds how many organs are processed concurrently
	NumWorkers int
}

// DefaultOptions returns the standard header values.
func DefaultOptions() Options {
	return Options{
		UIDRoot:         DefaultUIDRoot,
		Label:           "DLC RTstruct",
		Manufacturer:    "NA",
		ModelName:       "NA",
		SoftwareVersion: "4.2.7.0",
		NumWorkers:      runtime.NumCPU(),
	}
}

// ROI summarizes one region written to a document.
type ROI struct {
	Number   int
	Organ    string
	Label    string
	Contours int
}

// Document is a fully assembled structure set.
type Document struct {
	Dataset        dicom.Dataset
	SOPInstanceUID string
	ROIs           []ROI
}

// Builder turns organ predictions into structure set documents.
type Builder struct {
	opts      Options
	organs    *organ.Table
	post      postprocess.Options
	extractor *contour.Extractor
	logger    *zap.Logger

	// Now stamps creation dates; replaced in tests
	Now func() time.Time
}

// NewBuilder creates a builder. A nil table uses the built-in organ
// parameters and a nil logger disables logging.
func NewBuilder(opts Options, organs *organ.Table, post postprocess.Options, extractor *contour.Extractor, logger *zap.Logger) *Builder {
	if organs == nil {
		organs = organ.DefaultTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.NumWorkers < 1 {
		opts.NumWorkers = 1
	}
	if opts.UIDRoot == "" {
		opts.UIDRoot = DefaultUIDRoot
	}
	return &Builder{
		opts:      opts,
		organs:    organs,
		post:      post,
		extractor: extractor,
		logger:    logger,
		Now:       time.Now,
	}
}

// roiResult is the per-organ output of postprocessing and extraction.
type roiResult struct {
	info     organ.Info
	contours []models.Contour
}

// Build assembles a structure set for study. ROI numbers follow the order
// of preds, starting at zero. Every organ name is validated before any work
// starts; an unknown name fails the whole build.
func (b *Builder) Build(ctx context.Context, study *models.StudyRecord, uids *models.UIDMap, preds []models.ROIPrediction) (*Document, error) {
	infos := make([]organ.Info, len(preds))
	for i, p := range preds {
		info, err := b.organs.Lookup(p.Organ)
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}

	results, err := b.processROIs(ctx, preds, infos)
	if err != nil {
		return nil, err
	}
	return b.assemble(study, uids, results)
}

// processROIs postprocesses and contours every organ with a bounded pool of
// workers. Results are stored by index so ordering matches preds.
func (b *Builder) processROIs(ctx context.Context, preds []models.ROIPrediction, infos []organ.Info) ([]roiResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]roiResult, len(preds))
	jobs := make(chan int)
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	workers := b.opts.NumWorkers
	if workers > len(preds) {
		workers = len(preds)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				start := time.Now()
				mask := postprocess.ForOrgan(infos[i], b.post).Run(preds[i].Volume)
				contours, err := b.extractor.Extract(mask, preds[i].Heights, infos[i].Bilateral)
				if err != nil {
					once.Do(func() {
						firstErr = fmt.Errorf("%s: %w", infos[i].Name, err)
						cancel()
					})
					continue
				}
				results[i] = roiResult{info: infos[i], contours: contours}
				b.logger.Debug("organ contoured",
					zap.String("organ", infos[i].Name),
					zap.Int("contours", len(contours)),
					zap.Duration("elapsed", time.Since(start)))
			}
		}()
	}

	for i := range preds {
		select {
		case jobs <- i:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (b *Builder) assemble(study *models.StudyRecord, uids *models.UIDMap, results []roiResult) (*Document, error) {
	now := b.Now()
	date, clock := now.Format("20060102"), now.Format("150405")
	instanceUID := NewUID(b.opts.UIDRoot)

	roiItems := make([][]*dicom.Element, 0, len(results))
	contourItems := make([][]*dicom.Element, 0, len(results))
	observationItems := make([][]*dicom.Element, 0, len(results))
	rois := make([]ROI, 0, len(results))

	for i, r := range results {
		roi, err := b.structureSetROI(i, r.info, study.FrameOfReferenceUID)
		if err != nil {
			return nil, err
		}
		cont, n, err := b.roiContour(i, r, uids)
		if err != nil {
			return nil, err
		}
		obs, err := b.observation(i, r.info)
		if err != nil {
			return nil, err
		}
		roiItems = append(roiItems, roi)
		contourItems = append(contourItems, cont)
		observationItems = append(observationItems, obs)
		rois = append(rois, ROI{Number: i, Organ: r.info.Name, Label: r.info.Label, Contours: n})
	}

	refFrame, err := b.referencedFrame(study, uids)
	if err != nil {
		return nil, err
	}
	coding, err := codingScheme()
	if err != nil {
		return nil, err
	}

	var l elementList
	l.add(tag.FileMetaInformationVersion, []byte{0x00, 0x01})
	l.str(tag.MediaStorageSOPClassUID, RTStructureSetStorage)
	l.str(tag.MediaStorageSOPInstanceUID, instanceUID)
	l.str(tag.TransferSyntaxUID, ImplicitVRLittleEndian)
	l.str(tag.ImplementationClassUID, implementationClassUID)
	l.str(tag.ImplementationVersionName, implementationVersionName)

	l.str(tag.SpecificCharacterSet, "ISO_IR 192")
	l.str(tag.InstanceCreationDate, date)
	l.str(tag.InstanceCreationTime, clock)
	l.str(tag.SOPClassUID, RTStructureSetStorage)
	l.str(tag.SOPInstanceUID, instanceUID)
	l.str(tag.StudyDate, study.StudyDate)
	l.str(tag.StudyTime, study.StudyTime)
	l.str(tag.AccessionNumber, study.AccessionNumber)
	l.str(tag.Modality, "RTSTRUCT")
	l.str(tag.Manufacturer, b.opts.Manufacturer)
	l.str(tag.ReferringPhysicianName, study.ReferringPhysicianName)
	l.seq(tag.CodingSchemeIdentificationSequence, coding)
	l.str(tag.OperatorsName, "")
	l.str(tag.ManufacturerModelName, b.opts.ModelName)
	l.str(tag.PatientName, study.PatientName)
	l.str(tag.PatientID, study.PatientID)
	l.str(tag.PatientBirthDate, study.PatientBirthDate)
	l.str(tag.PatientSex, study.PatientSex)
	l.str(tag.PatientIdentityRemoved, study.PatientIdentityRemoved)
	l.str(tag.DeidentificationMethod, study.DeidentificationMethod)
	l.str(tag.SoftwareVersions, b.opts.SoftwareVersion)
	l.str(tag.StudyInstanceUID, study.StudyInstanceUID)
	l.str(tag.SeriesInstanceUID, study.SeriesInstanceUID)
	l.str(tag.StudyID, study.StudyID)
	l.str(tag.SeriesNumber, study.SeriesNumber)
	l.str(tag.InstanceNumber, formatIS(study.InstanceNumber+1))
	l.str(tag.StructureSetLabel, b.opts.Label)
	l.str(tag.StructureSetDate, date)
	l.str(tag.StructureSetTime, clock)
	l.seq(tag.ReferencedFrameOfReferenceSequence, [][]*dicom.Element{refFrame})
	l.seq(tag.StructureSetROISequence, roiItems)
	l.seq(tag.ROIContourSequence, contourItems)
	l.seq(tag.RTROIObservationsSequence, observationItems)
	l.str(tag.ApprovalStatus, "UNAPPROVED")

	elems, err := l.sorted()
	if err != nil {
		return nil, err
	}
	b.logger.Info("structure set assembled",
		zap.String("sop_instance_uid", instanceUID),
		zap.Int("rois", len(rois)))
	return &Document{
		Dataset:        dicom.Dataset{Elements: elems},
		SOPInstanceUID: instanceUID,
		ROIs:           rois,
	}, nil
}

func codingScheme() ([][]*dicom.Element, error) {
	var l elementList
	l.str(tag.CodingSchemeDesignator, "FMA")
	l.str(tag.CodingSchemeUID, "2.16.840.1.113883.6.119")
	item, err := l.sorted()
	if err != nil {
		return nil, err
	}
	return [][]*dicom.Element{item}, nil
}

// referencedFrame lists every CT image of the series, ordered by height.
func (b *Builder) referencedFrame(study *models.StudyRecord, uids *models.UIDMap) ([]*dicom.Element, error) {
	refs := uids.Refs()
	images := make([][]*dicom.Element, 0, len(refs))
	for _, ref := range refs {
		var l elementList
		l.str(tag.ReferencedSOPClassUID, ref.ClassUID)
		l.str(tag.ReferencedSOPInstanceUID, ref.InstanceUID)
		item, err := l.sorted()
		if err != nil {
			return nil, err
		}
		images = append(images, item)
	}

	var series elementList
	series.str(tag.SeriesInstanceUID, study.SeriesInstanceUID)
	series.seq(tag.ContourImageSequence, images)
	seriesItem, err := series.sorted()
	if err != nil {
		return nil, err
	}

	var st elementList
	st.str(tag.ReferencedSOPClassUID, DetachedStudyManagement)
	st.str(tag.ReferencedSOPInstanceUID, study.StudyInstanceUID)
	st.seq(tag.RTReferencedSeriesSequence, [][]*dicom.Element{seriesItem})
	studyItem, err := st.sorted()
	if err != nil {
		return nil, err
	}

	var fr elementList
	fr.str(tag.FrameOfReferenceUID, study.FrameOfReferenceUID)
	fr.seq(tag.RTReferencedStudySequence, [][]*dicom.Element{studyItem})
	return fr.sorted()
}

func (b *Builder) structureSetROI(number int, info organ.Info, frameUID string) ([]*dicom.Element, error) {
	var l elementList
	l.str(tag.ROINumber, formatIS(number))
	l.str(tag.ReferencedFrameOfReferenceUID, frameUID)
	l.str(tag.ROIName, info.Label)
	l.str(tag.ROIGenerationAlgorithm, "AUTOMATIC")
	return l.sorted()
}

// roiContour builds the ROI Contour item. Contours whose height has no CT
// image are dropped with a warning.
func (b *Builder) roiContour(number int, r roiResult, uids *models.UIDMap) ([]*dicom.Element, int, error) {
	items := make([][]*dicom.Element, 0, len(r.contours))
	for _, c := range r.contours {
		ref, ok := uids.Lookup(c.Z())
		if !ok {
			b.logger.Warn("no CT image at contour height",
				zap.String("organ", r.info.Name),
				zap.Float64("z", c.Z()))
			continue
		}

		var img elementList
		img.str(tag.ReferencedSOPClassUID, ref.ClassUID)
		img.str(tag.ReferencedSOPInstanceUID, ref.InstanceUID)
		imgItem, err := img.sorted()
		if err != nil {
			return nil, 0, err
		}

		data := make([]string, len(c.Points))
		for i, v := range c.Points {
			data[i] = formatDS(v)
		}
		var l elementList
		l.seq(tag.ContourImageSequence, [][]*dicom.Element{imgItem})
		l.str(tag.ContourGeometricType, "CLOSED_PLANAR")
		l.str(tag.NumberOfContourPoints, formatIS(c.NumPoints()))
		l.add(tag.ContourData, data)
		item, err := l.sorted()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}

	color := make([]string, 3)
	for i, c := range r.info.Color {
		color[i] = formatIS(c)
	}
	var l elementList
	l.add(tag.ROIDisplayColor, color)
	l.seq(tag.ContourSequence, items)
	l.str(tag.ReferencedROINumber, formatIS(number))
	elems, err := l.sorted()
	return elems, len(items), err
}

func (b *Builder) observation(number int, info organ.Info) ([]*dicom.Element, error) {
	var l elementList
	l.str(tag.ObservationNumber, formatIS(number))
	l.str(tag.ReferencedROINumber, formatIS(number))
	l.str(tag.ROIObservationLabel, info.Name)
	l.str(tag.RTROIInterpretedType, organ.InterpretedType(info.Name))
	l.str(tag.ROIInterpreter, "")
	return l.sorted()
}

package rtstruct

import (
	"hnautoseg/internal/models"
	"hnautoseg/pkg/geometry"
)

// GatherStudy derives the case's patient/study record and the height to
// image UID map from a scanned series. The first CT image defines the
// record; every other image must carry the same patient ID. The case is
// rejected when more than tolerance of the scanned files were unreadable or
// of another modality.
func GatherStudy(series *geometry.Series, tolerance, precision float64) (*models.StudyRecord, *models.UIDMap, error) {
	failed := series.Invalid + series.NonCT
	if series.Total > 0 && float64(failed) > float64(series.Total)*tolerance {
		return nil, nil, &InvalidFilesError{Invalid: failed, Total: series.Total}
	}
	if len(series.Slices) == 0 {
		return nil, nil, geometry.ErrNoSlices
	}

	record := series.Slices[0].Study
	uids := models.NewUIDMap(precision)
	for _, s := range series.Slices {
		if s.Study.PatientID != record.PatientID {
			return nil, nil, &PatientMismatchError{
				Expected: record.PatientID,
				Found:    s.Study.PatientID,
				File:     s.File,
			}
		}
		uids.Set(s.SliceLocation, models.ImageRef{ClassUID: s.SOPClassUID, InstanceUID: s.SOPInstanceUID})
	}
	return &record, uids, nil
}

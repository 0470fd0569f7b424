package rtstruct

import (
	"errors"
	"fmt"
)

var (
	// ErrPatientMismatch is returned when images in one case belong to
	// different patients.
	ErrPatientMismatch = errors.New("patient mismatch")

	// ErrTooManyInvalidFiles is returned when the fraction of unreadable
	// images exceeds the configured tolerance.
	ErrTooManyInvalidFiles = errors.New("too many invalid files")

	// ErrNotStructureSet is returned when reading a file of another modality.
	ErrNotStructureSet = errors.New("not an RTSTRUCT")
)

// PatientMismatchError reports the first image whose patient ID differs.
type PatientMismatchError struct {
	Expected string
	Found    string
	File     string
}

func (e *PatientMismatchError) Error() string {
	return fmt.Sprintf("%v: %s has patient %q, expected %q", ErrPatientMismatch, e.File, e.Found, e.Expected)
}

func (e *PatientMismatchError) Unwrap() error { return ErrPatientMismatch }

// InvalidFilesError reports how many inputs failed validation.
type InvalidFilesError struct {
	Invalid int
	Total   int
}

func (e *InvalidFilesError) Error() string {
	return fmt.Sprintf("%v: %d of %d files", ErrTooManyInvalidFiles, e.Invalid, e.Total)
}

func (e *InvalidFilesError) Unwrap() error { return ErrTooManyInvalidFiles }

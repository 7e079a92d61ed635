// Package answersheet routes scanned answer sheets by handwriting identity
// and manages the directory tree the routed sheets live in: matched copies
// filed per concept and per student, a mismatch quarantine, the evaluator
// upload staging area and per-evaluator claim folders.
package answersheet

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gopiashokan/Educational-Management-System/core"
)

var (
	ErrMalformedFilename = errors.New("filename must be of the form studentID_concept_question.ext")
	ErrSheetNotFound     = errors.New("answer sheet not found")
)

// Sheet is one uploaded answer sheet image.
type Sheet struct {
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
}

// SheetMeta is the identity encoded in a sheet filename. QuestionTag keeps
// the third chunk with its extension stripped, e.g. "Q3".
type SheetMeta struct {
	StudentID   string `json:"student_id"`
	Concept     string `json:"concept"`
	QuestionTag string `json:"question_tag"`
}

// ParseFilename splits a sheet filename into its identity parts. The first
// underscore-separated chunk is the claimed student, the second the concept
// and everything after the second underscore the question tag.
func ParseFilename(name string) (SheetMeta, error) {
	base := filepath.Base(name)
	parts := strings.SplitN(base, "_", 3)
	if len(parts) != 3 {
		return SheetMeta{}, errors.Wrap(ErrMalformedFilename, base)
	}
	meta := SheetMeta{
		StudentID:   parts[0],
		Concept:     parts[1],
		QuestionTag: strings.TrimSuffix(parts[2], filepath.Ext(parts[2])),
	}
	if meta.StudentID == "" || meta.Concept == "" || meta.QuestionTag == "" {
		return SheetMeta{}, errors.Wrap(ErrMalformedFilename, base)
	}
	return meta, nil
}

type RoutingStatus string

const (
	StatusMatched    RoutingStatus = "matched"
	StatusMismatched RoutingStatus = "mismatched"
	StatusRejected   RoutingStatus = "rejected"
)

// RoutingOutcome records what happened to one sheet of a batch.
type RoutingOutcome struct {
	Filename        string        `json:"filename"`
	Meta            SheetMeta     `json:"meta"`
	PredictedWriter string        `json:"predicted_writer,omitempty"`
	Status          RoutingStatus `json:"status"`
	Destinations    []string      `json:"destinations,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// MismatchRecord identifies one quarantined sheet.
type MismatchRecord struct {
	StudentID string `json:"student_id"`
	Concept   string `json:"concept"`
	Question  string `json:"question"`
}

// MismatchReport lists every sheet currently in quarantine, in filename
// order. It is rebuilt from the quarantine folder on every request, so it
// always reflects the directory contents rather than a cached view.
type MismatchReport []MismatchRecord

// CSV renders the report for mailing to the supervising teacher.
func (r MismatchReport) CSV() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"student_id", "concept", "question"})
	for _, rec := range r {
		_ = w.Write([]string{rec.StudentID, rec.Concept, rec.Question})
	}
	w.Flush()
	return buf.Bytes()
}

// NewUpload is an answer sheet handed in by an evaluator, before it is named
// and staged for routing.
type NewUpload struct {
	StudentID string `json:"student_id" validate:"required"`
	Concept   string `json:"concept" validate:"required"`
	Question  int    `json:"question" validate:"min=1"`
	Filename  string `json:"filename" validate:"required"`
	Data      []byte `json:"-" validate:"required"`
}

func (nu *NewUpload) Validate() error {
	nu.StudentID = core.CleanString(nu.StudentID)
	nu.Concept = core.CleanString(nu.Concept, true /* lower */)
	return core.Validate.Struct(nu)
}

// StagedName builds the canonical filename the routing pipeline expects.
func (nu *NewUpload) StagedName() string {
	return nu.StudentID + "_" + nu.Concept + "_Q" + strconv.Itoa(nu.Question) + filepath.Ext(nu.Filename)
}

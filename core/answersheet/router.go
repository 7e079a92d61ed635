package answersheet

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/gopiashokan/Educational-Management-System/core"
	"github.com/gopiashokan/Educational-Management-System/core/handwriting"
)

// Result tree folders, relative to the configured result dir.
const (
	conceptsDir   = "matched/concepts"
	studentsDir   = "matched/students"
	mismatchedDir = "mismatched"
	incomingDir   = "incoming"
	evaluationDir = "evaluation"
)

// WriterClassifier identifies the writer of a raw answer sheet image.
// *handwriting.Service is the production implementation.
type WriterClassifier interface {
	Predict(ctx context.Context, data []byte) (handwriting.Prediction, error)
}

type Service struct {
	conf    *core.Config
	clf     WriterClassifier
	mailSvc core.EmailService
	logger  core.Logger
}

func NewService(conf *core.Config, clf WriterClassifier, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{conf: conf, clf: clf, mailSvc: mailSvc, logger: logger}
}

func (svc *Service) resultPath(parts ...string) string {
	return filepath.Join(append([]string{svc.conf.Handwriting.ResultDir}, parts...)...)
}

// Route verifies each sheet's writer against the identity claimed in its
// filename and files it accordingly: matched sheets are duplicated under the
// concept and student folders, mismatched ones are quarantined. Malformed
// names and undecodable images reject the single sheet, never the batch; a
// missing trained model aborts the whole batch. actorID is recorded in the
// audit log only.
func (svc *Service) Route(ctx context.Context, batch []Sheet, actorID string) ([]RoutingOutcome, MismatchReport, error) {
	outcomes := make([]RoutingOutcome, 0, len(batch))
	for _, sheet := range batch {
		out, err := svc.routeOne(ctx, sheet)
		if err != nil {
			return nil, nil, err
		}
		outcomes = append(outcomes, out)
	}

	report, err := svc.MismatchReport(ctx)
	if err != nil {
		return nil, nil, err
	}

	var matched, mismatched, rejected int
	for _, out := range outcomes {
		switch out.Status {
		case StatusMatched:
			matched++
		case StatusMismatched:
			mismatched++
		default:
			rejected++
		}
	}
	svc.logger.Info("routed answer sheet batch", "actor", actorID,
		"matched", matched, "mismatched", mismatched, "rejected", rejected)

	if mismatched > 0 {
		svc.mailMismatchReport(report)
	}
	return outcomes, report, nil
}

func (svc *Service) routeOne(ctx context.Context, sheet Sheet) (RoutingOutcome, error) {
	out := RoutingOutcome{Filename: sheet.Filename}

	meta, err := ParseFilename(sheet.Filename)
	if err != nil {
		out.Status = StatusRejected
		out.Error = err.Error()
		return out, nil
	}
	out.Meta = meta

	pred, err := svc.clf.Predict(ctx, sheet.Data)
	if err != nil {
		if errors.Cause(err) == handwriting.ErrDecode {
			out.Status = StatusRejected
			out.Error = err.Error()
			return out, nil
		}
		return out, err
	}
	out.PredictedWriter = pred.Writer

	if pred.Writer == meta.StudentID {
		out.Status = StatusMatched
		out.Destinations, err = svc.deposit(sheet, filepath.Join(conceptsDir, meta.Concept), filepath.Join(studentsDir, meta.StudentID))
	} else {
		out.Status = StatusMismatched
		out.Destinations, err = svc.deposit(sheet, mismatchedDir)
	}
	return out, err
}

// deposit writes the sheet into each destination folder, overwriting any
// previous copy so re-routing the same batch is idempotent.
func (svc *Service) deposit(sheet Sheet, dirs ...string) ([]string, error) {
	dests := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if err := os.MkdirAll(svc.resultPath(dir), 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating %s", dir)
		}
		dest := filepath.Join(dir, filepath.Base(sheet.Filename))
		if err := os.WriteFile(svc.resultPath(dest), sheet.Data, 0o644); err != nil {
			return nil, errors.Wrapf(err, "writing %s", dest)
		}
		dests = append(dests, dest)
	}
	return dests, nil
}

// MismatchReport rescans the quarantine folder. Files whose names no longer
// parse are skipped.
func (svc *Service) MismatchReport(ctx context.Context) (MismatchReport, error) {
	entries, err := os.ReadDir(svc.resultPath(mismatchedDir))
	if err != nil {
		if os.IsNotExist(err) {
			return MismatchReport{}, nil
		}
		return nil, errors.Wrap(err, "reading quarantine folder")
	}

	report := MismatchReport{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		meta, err := ParseFilename(entry.Name())
		if err != nil {
			continue
		}
		report = append(report, MismatchRecord{
			StudentID: meta.StudentID,
			Concept:   meta.Concept,
			Question:  meta.QuestionTag,
		})
	}
	return report, nil
}

func (svc *Service) mailMismatchReport(report MismatchReport) {
	if svc.conf.TeacherReportsTo == "" {
		return
	}
	msg := &core.EmailMessage{
		To:      []mail.Address{{Address: svc.conf.TeacherReportsTo}},
		Subject: "Handwriting Mismatch Report",
		TextContent: fmt.Sprintf(
			"%d answer sheet(s) did not match the claimed student's handwriting.\n"+
				"The full report is attached.\n", len(report)),
	}
	if err := msg.Attach(bytes.NewReader(report.CSV()), "mismatch_report.csv", "text/csv"); err != nil {
		svc.logger.Error("attaching mismatch report", "err", err)
		return
	}
	svc.mailSvc.SendMessages(msg)
}

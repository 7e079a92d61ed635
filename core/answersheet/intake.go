package answersheet

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/gopiashokan/Educational-Management-System/core/user"
)

// StageUpload names an evaluator's upload canonically and stores it in the
// staging area, where it waits for the next routing run.
func (svc *Service) StageUpload(ctx context.Context, nu NewUpload, actorID string) (string, error) {
	if err := nu.Validate(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(svc.resultPath(incomingDir), 0o755); err != nil {
		return "", errors.Wrap(err, "creating staging folder")
	}
	name := nu.StagedName()
	if err := os.WriteFile(svc.resultPath(incomingDir, name), nu.Data, 0o644); err != nil {
		return "", errors.Wrapf(err, "staging %s", name)
	}

	svc.logger.Info("staged answer sheet", "actor", actorID, "file", name)
	return name, nil
}

// StagedSheets loads the current staging area contents as a routable batch,
// in filename order.
func (svc *Service) StagedSheets(ctx context.Context) ([]Sheet, error) {
	entries, err := os.ReadDir(svc.resultPath(incomingDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading staging folder")
	}

	batch := make([]Sheet, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(svc.resultPath(incomingDir, entry.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "reading staged %s", entry.Name())
		}
		batch = append(batch, Sheet{Filename: entry.Name(), Data: data})
	}
	return batch, nil
}

// RouteStaged routes everything in the staging area. Routed sheets leave
// staging; rejected ones stay behind for manual inspection.
func (svc *Service) RouteStaged(ctx context.Context, actorID string) ([]RoutingOutcome, MismatchReport, error) {
	batch, err := svc.StagedSheets(ctx)
	if err != nil {
		return nil, nil, err
	}

	outcomes, report, err := svc.Route(ctx, batch, actorID)
	if err != nil {
		return nil, nil, err
	}
	for _, out := range outcomes {
		if out.Status == StatusRejected {
			svc.logger.Warn("staged sheet rejected", "file", out.Filename, "err", out.Error)
			continue
		}
		if err := os.Remove(svc.resultPath(incomingDir, out.Filename)); err != nil && !os.IsNotExist(err) {
			return nil, nil, errors.Wrapf(err, "unstaging %s", out.Filename)
		}
	}
	return outcomes, report, nil
}

// PendingEvaluations lists the matched sheets of the evaluator's concept
// that the evaluator has not claimed yet, in filename order.
func (svc *Service) PendingEvaluations(ctx context.Context, er user.EvaluatorRole, evaluatorID string) ([]string, error) {
	routed, err := os.ReadDir(svc.resultPath(conceptsDir, er.Concept))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading concept folder %s", er.Concept)
	}

	claimed := map[string]bool{}
	if done, err := os.ReadDir(svc.resultPath(evaluationDir, evaluatorID, er.Concept)); err == nil {
		for _, entry := range done {
			claimed[entry.Name()] = true
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "reading claim folder")
	}

	var pending []string
	for _, entry := range routed {
		if !entry.IsDir() && !claimed[entry.Name()] {
			pending = append(pending, entry.Name())
		}
	}
	return pending, nil
}

// ClaimSheet copies a matched sheet of the evaluator's concept into the
// evaluator's claim folder. The filename must belong to that concept.
func (svc *Service) ClaimSheet(ctx context.Context, er user.EvaluatorRole, evaluatorID, filename string) error {
	meta, err := ParseFilename(filename)
	if err != nil {
		return err
	}
	if meta.Concept != er.Concept {
		return errors.Wrapf(ErrSheetNotFound, "%s is not a %s sheet", filename, er.Concept)
	}

	data, err := os.ReadFile(svc.resultPath(conceptsDir, er.Concept, filepath.Base(filename)))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrSheetNotFound
		}
		return errors.Wrapf(err, "reading %s", filename)
	}

	dir := svc.resultPath(evaluationDir, evaluatorID, er.Concept)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating claim folder")
	}
	if err = os.WriteFile(filepath.Join(dir, filepath.Base(filename)), data, 0o644); err != nil {
		return errors.Wrapf(err, "claiming %s", filename)
	}

	svc.logger.Info("claimed answer sheet", "evaluator", evaluatorID, "file", filename)
	return nil
}

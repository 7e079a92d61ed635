package echoapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/gopiashokan/Educational-Management-System/core"
	"github.com/gopiashokan/Educational-Management-System/core/answersheet"
	"github.com/gopiashokan/Educational-Management-System/core/handwriting"
	"github.com/gopiashokan/Educational-Management-System/core/user"
)

var errNoModel = echo.NewHTTPError(http.StatusNotFound, "no trained handwriting model available")

type handwritingApi struct {
	hwSvc    *handwriting.Service
	sheetSvc *answersheet.Service
}

func registerHandwritingAPI(g *echo.Group, jwt echo.MiddlewareFunc, hwSvc *handwriting.Service, sheetSvc *answersheet.Service) {
	api := handwritingApi{hwSvc: hwSvc, sheetSvc: sheetSvc}

	hg := g.Group("/handwriting", jwt)
	hg.POST("/train", api.train, teacherMiddleware())
	hg.GET("/writers", api.writers, evaluatorMiddleware())

	sg := g.Group("/answer-sheets", jwt)
	sg.POST("", api.stage, evaluatorMiddleware())
	sg.GET("/staged", api.staged, teacherMiddleware())
	sg.POST("/route", api.routeStaged, teacherMiddleware())
	sg.GET("/mismatches", api.mismatches, teacherMiddleware())
	sg.GET("/pending", api.pending, evaluatorMiddleware())
	sg.POST("/claim", api.claim, evaluatorMiddleware())
}

// Handlers

func (api *handwritingApi) train(ctx echo.Context) error {
	metrics, err := api.hwSvc.Train(ctx.Request().Context())
	if err != nil {
		switch errors.Cause(err) {
		case handwriting.ErrEmptyDataset, handwriting.ErrInsufficientData:
			return core.NewValidationError(errors.Cause(err))
		}
		return errors.Wrap(err, "training model")
	}
	return ctx.JSON(http.StatusOK, metrics)
}

func (api *handwritingApi) writers(ctx echo.Context) error {
	writers, err := api.hwSvc.Writers(ctx.Request().Context())
	if err != nil {
		if errors.Cause(err) == handwriting.ErrModelNotFound {
			return errNoModel
		}
		return errors.Wrap(err, "listing writers")
	}
	if writers == nil {
		writers = []string{}
	}
	return ctx.JSON(http.StatusOK, writers)
}

func (api *handwritingApi) stage(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	fh, err := ctx.FormFile("sheet")
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "sheet", Error: "answer sheet image is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "reading upload")
	}

	question, _ := strconv.Atoi(ctx.FormValue("question"))
	nu := answersheet.NewUpload{
		StudentID: ctx.FormValue("student_id"),
		Concept:   ctx.FormValue("concept"),
		Question:  question,
		Filename:  fh.Filename,
		Data:      data,
	}
	// evaluators may only hand in sheets for their own concept
	if !(claims.IsTeacher || claims.IsAdmin) {
		if _, ok := claims.EvaluatorRoleFor(core.CleanString(nu.Concept, true /* lower */)); !ok {
			return errHttpForbidden
		}
	}

	name, err := api.sheetSvc.StageUpload(ctx.Request().Context(), nu, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "staging upload")
	}
	return ctx.JSON(http.StatusCreated, StagedSheetResponse{Filename: name})
}

func (api *handwritingApi) staged(ctx echo.Context) error {
	batch, err := api.sheetSvc.StagedSheets(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing staged sheets")
	}
	if batch == nil {
		batch = []answersheet.Sheet{}
	}
	return ctx.JSON(http.StatusOK, batch)
}

func (api *handwritingApi) routeStaged(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	outcomes, report, err := api.sheetSvc.RouteStaged(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == handwriting.ErrModelNotFound {
			return errNoModel
		}
		return errors.Wrap(err, "routing staged sheets")
	}
	if outcomes == nil {
		outcomes = []answersheet.RoutingOutcome{}
	}
	if report == nil {
		report = answersheet.MismatchReport{}
	}
	return ctx.JSON(http.StatusOK, RoutingResponse{Outcomes: outcomes, Mismatches: report})
}

func (api *handwritingApi) mismatches(ctx echo.Context) error {
	report, err := api.sheetSvc.MismatchReport(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building mismatch report")
	}
	if report == nil {
		report = answersheet.MismatchReport{}
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *handwritingApi) pending(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	er, err := evaluatorRole(claims, ctx.QueryParam("concept"))
	if err != nil {
		return err
	}

	pending, err := api.sheetSvc.PendingEvaluations(ctx.Request().Context(), er, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "listing pending evaluations")
	}
	if pending == nil {
		pending = []string{}
	}
	return ctx.JSON(http.StatusOK, pending)
}

func (api *handwritingApi) claim(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data ClaimSheetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ClaimSheetRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	er, err := evaluatorRole(claims, data.Concept)
	if err != nil {
		return err
	}

	if err := api.sheetSvc.ClaimSheet(ctx.Request().Context(), er, claims.Subject, data.Filename); err != nil {
		switch errors.Cause(err) {
		case answersheet.ErrSheetNotFound:
			return errHttpNotFound
		case answersheet.ErrMalformedFilename:
			return core.NewValidationError(errors.Cause(err))
		}
		return errors.Wrap(err, "claiming sheet")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Answer sheet claimed for evaluation."})
}

// evaluatorRole resolves the claims into an evaluation capability on concept.
// Teachers and admins may act on any concept.
func evaluatorRole(claims Claims, concept string) (user.EvaluatorRole, error) {
	concept = core.CleanString(concept, true /* lower */)
	if concept == "" {
		return user.EvaluatorRole{}, core.NewValidationError(nil, core.FieldError{Field: "concept", Error: "concept is required"})
	}
	if claims.IsTeacher || claims.IsAdmin {
		return user.EvaluatorRole{Concept: concept}, nil
	}
	if er, ok := claims.EvaluatorRoleFor(concept); ok {
		return er, nil
	}
	return user.EvaluatorRole{}, errHttpForbidden
}

type (
	StagedSheetResponse struct {
		Filename string `json:"filename"`
	}

	RoutingResponse struct {
		Outcomes   []answersheet.RoutingOutcome `json:"outcomes"`
		Mismatches answersheet.MismatchReport   `json:"mismatches"`
	}

	ClaimSheetRequest struct {
		Concept  string `json:"concept" validate:"required"`
		Filename string `json:"filename" validate:"required"`
	}
)

func (cr *ClaimSheetRequest) Validate() error {
	cr.Concept = core.CleanString(cr.Concept, true /* lower */)
	cr.Filename = core.CleanString(cr.Filename)
	return core.Validate.Struct(cr)
}

package echoapi

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/gopiashokan/Educational-Management-System/core"
	"github.com/gopiashokan/Educational-Management-System/core/exam"
)

var errPortalClosed = echo.NewHTTPError(http.StatusForbidden, "student portal is closed")

type examApi struct {
	svc *exam.Service
}

func registerExamAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *exam.Service) {
	api := examApi{svc: svc}

	tg := g.Group("/tests", jwt)
	tg.PUT("/:id/questions", api.replaceBank, teacherMiddleware())
	tg.GET("/:id/questions", api.questions, studentMiddleware())
	tg.POST("/:id/submit", api.submitTest, studentMiddleware())
	tg.GET("/scores", api.testScores, studentMiddleware())

	eg := g.Group("/exams", jwt)
	eg.POST("/:id/marks", api.recordMark, evaluatorMiddleware())
	eg.GET("/:id/marks", api.examMarks, teacherMiddleware())
	eg.POST("/:id/publish", api.publish, teacherMiddleware())

	g.GET("/marks", api.studentMarks, jwt, studentMiddleware())

	pg := g.Group("/portal", jwt)
	pg.GET("", api.portalStatus)
	pg.POST("/open", api.openPortal, adminMiddleware())
	pg.POST("/close", api.closePortal, adminMiddleware())
}

// Handlers

func (api *examApi) replaceBank(ctx echo.Context) error {
	// echo's default binder rejects non-struct targets, decode the array directly
	var qs []exam.Question
	if err := json.NewDecoder(ctx.Request().Body).Decode(&qs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON array of questions").SetInternal(err)
	}

	if err := api.svc.ReplaceBank(ctx.Request().Context(), ctx.Param("id"), qs); err != nil {
		return errors.Wrap(err, "replacing test bank")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Test questions replaced."})
}

func (api *examApi) questions(ctx echo.Context) error {
	qs, err := api.svc.Questions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == exam.ErrTestNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "querying test questions")
	}
	return ctx.JSON(http.StatusOK, qs)
}

func (api *examApi) submitTest(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var sub exam.TestSubmission
	if err := ctx.Bind(&sub); err != nil {
		return errors.Wrap(err, "binding to TestSubmission")
	}
	sub.TestID = ctx.Param("id")

	score, err := api.svc.SubmitTest(ctx.Request().Context(), claims.Subject, sub)
	if err != nil {
		switch errors.Cause(err) {
		case exam.ErrPortalClosed:
			return errPortalClosed
		case exam.ErrTestNotFound:
			return errHttpNotFound
		}
		return errors.Wrap(err, "submitting test")
	}
	return ctx.JSON(http.StatusOK, score)
}

func (api *examApi) testScores(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	scores, err := api.svc.TestScores(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == exam.ErrPortalClosed {
			return errPortalClosed
		}
		return errors.Wrap(err, "querying test scores")
	}
	if scores == nil {
		scores = []exam.TestScore{}
	}
	return ctx.JSON(http.StatusOK, scores)
}

func (api *examApi) recordMark(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var m exam.ExamMark
	if err := ctx.Bind(&m); err != nil {
		return errors.Wrap(err, "binding to ExamMark")
	}
	m.ExamID = ctx.Param("id")
	m.EvaluatorID = claims.Subject

	// evaluators may only mark their own concept
	if _, err := evaluatorRole(claims, m.Concept); err != nil {
		return err
	}

	if err := api.svc.RecordExamMark(ctx.Request().Context(), m); err != nil {
		switch errors.Cause(err) {
		case exam.ErrMarkExists, exam.ErrAlreadyPublished:
			return core.NewValidationError(errors.Cause(err))
		}
		return errors.Wrap(err, "recording exam mark")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *examApi) examMarks(ctx echo.Context) error {
	marks, err := api.svc.ExamMarks(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying exam marks")
	}
	if marks == nil {
		marks = []exam.ExamMark{}
	}
	return ctx.JSON(http.StatusOK, marks)
}

func (api *examApi) publish(ctx echo.Context) error {
	var data PublishRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PublishRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	published, err := api.svc.Publish(ctx.Request().Context(), ctx.Param("id"), exam.PublishStrategy(data.Strategy))
	if err != nil {
		if errors.Cause(err) == exam.ErrAlreadyPublished {
			return core.NewValidationError(errors.Cause(err))
		}
		return errors.Wrap(err, "publishing exam marks")
	}
	return ctx.JSON(http.StatusOK, published)
}

func (api *examApi) studentMarks(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	marks, err := api.svc.StudentMarks(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == exam.ErrPortalClosed {
			return errPortalClosed
		}
		return errors.Wrap(err, "querying published marks")
	}
	if marks == nil {
		marks = []exam.PublishedMark{}
	}
	return ctx.JSON(http.StatusOK, marks)
}

func (api *examApi) portalStatus(ctx echo.Context) error {
	open, err := api.svc.PortalOpen(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying portal status")
	}
	return ctx.JSON(http.StatusOK, PortalStatusResponse{Open: open})
}

func (api *examApi) openPortal(ctx echo.Context) error {
	if err := api.svc.OpenPortal(ctx.Request().Context()); err != nil {
		return errors.Wrap(err, "opening portal")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Student portal is now open."})
}

func (api *examApi) closePortal(ctx echo.Context) error {
	if err := api.svc.ClosePortal(ctx.Request().Context()); err != nil {
		return errors.Wrap(err, "closing portal")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Student portal is now closed."})
}

type (
	PublishRequest struct {
		Strategy string `json:"strategy" validate:"required,oneof=average maximum"`
	}

	PortalStatusResponse struct {
		Open bool `json:"open"`
	}
)

func (pr *PublishRequest) Validate() error {
	pr.Strategy = core.CleanString(pr.Strategy, true /* lower */)
	return core.Validate.Struct(pr)
}

package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/lesson"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	mimeMarkdown       = "text/markdown; charset=UTF-8"
)

type lessonApi struct {
	svc      lesson.Service
	validate *validator.Validate
}

func registerLessonAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc lesson.Service, validate *validator.Validate) {
	api := lessonApi{svc: svc, validate: validate}

	lg := g.Group("/lessons", jwt)
	lg.GET("", api.query)
	lg.POST("", api.create, educatorMiddleware())
	lg.POST("/import", api.importPlan, educatorMiddleware())
	lg.GET("/search", api.search)
	lg.GET("/:id", api.retrieve)
	lg.PUT("/:id", api.update, educatorMiddleware())
	lg.DELETE("/:id", api.destroy, educatorMiddleware())
	lg.GET("/:id/export", api.export)
	lg.GET("/:id/readiness", api.readiness)
}

// PlanResponse carries a stored plan with the problems found while checking it.
type PlanResponse struct {
	Plan     lesson.Plan      `json:"plan"`
	Warnings []lesson.Warning `json:"warnings"`
}

func planResponse(p lesson.Plan, warnings []lesson.Warning) PlanResponse {
	if warnings == nil {
		warnings = []lesson.Warning{}
	}
	return PlanResponse{Plan: p, Warnings: warnings}
}

func (api *lessonApi) query(ctx echo.Context) error {
	var filter lesson.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []lesson.Plan{})
	}
	plans, err := api.svc.List(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing lessons")
	}
	if plans == nil {
		plans = []lesson.Plan{}
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api *lessonApi) create(ctx echo.Context) error {
	var data lesson.NewPlan
	if err := bindAndValidate(ctx, api.validate, &data, "NewPlan"); err != nil {
		return err
	}
	p, warnings, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, planResponse(p, warnings))
}

func (api *lessonApi) importPlan(ctx echo.Context) error {
	var data lesson.ImportPlan
	if err := bindAndValidate(ctx, api.validate, &data, "ImportPlan"); err != nil {
		return err
	}
	p, warnings, err := api.svc.Import(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "importing lesson")
	}
	return ctx.JSON(http.StatusCreated, planResponse(p, warnings))
}

func (api *lessonApi) search(ctx echo.Context) error {
	q := core.CleanString(ctx.QueryParam("q"))
	if q == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "q", Error: "q is a required field"})
	}
	limit := defaultSearchLimit
	if l := ctx.QueryParam("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > maxSearchLimit {
			return core.NewValidationError(nil, core.FieldError{
				Field: "limit",
				Error: "limit must be between 1 and " + strconv.Itoa(maxSearchLimit),
			})
		}
		limit = n
	}
	hits, err := api.svc.Search(ctx.Request().Context(), q, limit)
	if err != nil {
		return errors.Wrap(err, "searching lessons")
	}
	if hits == nil {
		hits = []lesson.Hit{}
	}
	return ctx.JSON(http.StatusOK, hits)
}

func (api *lessonApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *lessonApi) update(ctx echo.Context) error {
	var data lesson.NewPlan
	if err := bindAndValidate(ctx, api.validate, &data, "NewPlan"); err != nil {
		return err
	}
	p, warnings, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, planResponse(p, warnings))
}

func (api *lessonApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *lessonApi) export(ctx echo.Context) error {
	data, err := api.svc.Export(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "exporting lesson")
	}
	return ctx.Blob(http.StatusOK, mimeMarkdown, data)
}

func (api *lessonApi) readiness(ctx echo.Context) error {
	res, err := api.svc.Readiness(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "checking lesson readiness")
	}
	if res == nil {
		res = []lesson.LearnerReadiness{}
	}
	return ctx.JSON(http.StatusOK, res)
}

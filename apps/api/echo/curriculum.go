package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core/curriculum"
)

type curriculumApi struct {
	svc      curriculum.Service
	validate *validator.Validate
}

func registerCurriculumAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc curriculum.Service, validate *validator.Validate) {
	api := curriculumApi{svc: svc, validate: validate}

	cg := g.Group("/curricula", jwt)
	cg.GET("", api.query)
	cg.POST("", api.plan, educatorMiddleware())
	cg.GET("/:id", api.retrieve)
	cg.DELETE("/:id", api.destroy, educatorMiddleware())
	cg.POST("/:id/lessons", api.attachLesson, educatorMiddleware())
	cg.GET("/:id/export", api.export)
}

func (api *curriculumApi) query(ctx echo.Context) error {
	var filter curriculum.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []curriculum.Curriculum{})
	}
	list, err := api.svc.List(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing curricula")
	}
	if list == nil {
		list = []curriculum.Curriculum{}
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *curriculumApi) plan(ctx echo.Context) error {
	var data curriculum.NewCurriculum
	if err := bindAndValidate(ctx, api.validate, &data, "NewCurriculum"); err != nil {
		return err
	}
	c, err := api.svc.Plan(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "planning curriculum")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *curriculumApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting curriculum")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *curriculumApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting curriculum")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *curriculumApi) attachLesson(ctx echo.Context) error {
	var data curriculum.AttachLesson
	if err := bindAndValidate(ctx, api.validate, &data, "AttachLesson"); err != nil {
		return err
	}
	c, err := api.svc.AttachLesson(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "attaching lesson")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *curriculumApi) export(ctx echo.Context) error {
	data, err := api.svc.Export(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "exporting curriculum")
	}
	return ctx.Blob(http.StatusOK, mimeMarkdown, data)
}

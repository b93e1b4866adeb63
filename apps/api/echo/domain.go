package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core/skill"
)

type domainApi struct {
	repo     skill.Repository
	validate *validator.Validate
}

func registerDomainAPI(g *echo.Group, jwt echo.MiddlewareFunc, repo skill.Repository, validate *validator.Validate) {
	api := domainApi{repo: repo, validate: validate}

	dg := g.Group("/domains", jwt)
	dg.GET("", api.list)
	dg.GET("/:domain", api.retrieve)
	dg.PUT("/:domain", api.save, adminMiddleware())
	dg.POST("/:domain/infer", api.infer)
}

func (api *domainApi) list(ctx echo.Context) error {
	domains, err := api.repo.ListDomains(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing domains")
	}
	if domains == nil {
		domains = []skill.Domain{}
	}
	return ctx.JSON(http.StatusOK, domains)
}

func (api *domainApi) retrieve(ctx echo.Context) error {
	g, err := api.repo.GetGraph(ctx.Request().Context(), ctx.Param("domain"))
	if err != nil {
		return errors.Wrap(err, "getting skill graph")
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *domainApi) save(ctx echo.Context) error {
	g := new(skill.Graph)
	if err := ctx.Bind(g); err != nil {
		return errors.Wrap(err, "binding to skill.Graph")
	}
	g.Domain = ctx.Param("domain")
	if err := g.Validate(); err != nil {
		return err
	}
	if err := api.repo.SaveGraph(ctx.Request().Context(), g); err != nil {
		return errors.Wrap(err, "saving skill graph")
	}
	return ctx.JSON(http.StatusOK, g)
}

// InferRequest runs an inference over the domain graph without storing anything.
type InferRequest struct {
	Evidence []skill.Assessment `json:"evidence" validate:"required,min=1,dive"`
	Options  skill.Options      `json:"options"`
}

func (ir *InferRequest) Validate(validate *validator.Validate) error { return validate.Struct(ir) }

func (api *domainApi) infer(ctx echo.Context) error {
	var data InferRequest
	if err := bindAndValidate(ctx, api.validate, &data, "InferRequest"); err != nil {
		return err
	}
	g, err := api.repo.GetGraph(ctx.Request().Context(), ctx.Param("domain"))
	if err != nil {
		return errors.Wrap(err, "getting skill graph")
	}
	return ctx.JSON(http.StatusOK, skill.Infer(g, data.Evidence, data.Options))
}

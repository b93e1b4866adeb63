package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core/group"
)

type groupApi struct {
	svc      group.Service
	validate *validator.Validate
}

func registerGroupAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc group.Service, validate *validator.Validate) {
	api := groupApi{svc: svc, validate: validate}

	gg := g.Group("/groups", jwt)
	gg.GET("", api.query)
	gg.POST("", api.create, educatorMiddleware())
	gg.GET("/:id", api.retrieve)
	gg.PUT("/:id", api.update, educatorMiddleware())
	gg.DELETE("/:id", api.destroy, educatorMiddleware())
	gg.GET("/:id/summary", api.summary)
	gg.POST("/:id/members", api.addMembers, educatorMiddleware())
	gg.DELETE("/:id/members/:learner_id", api.removeMember, educatorMiddleware())
}

func (api *groupApi) query(ctx echo.Context) error {
	var filter group.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []group.Profile{})
	}
	groups, err := api.svc.List(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing groups")
	}
	if groups == nil {
		groups = []group.Profile{}
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *groupApi) create(ctx echo.Context) error {
	var data group.NewGroup
	if err := bindAndValidate(ctx, api.validate, &data, "NewGroup"); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	p, err := api.svc.Create(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "creating group")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *groupApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting group")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *groupApi) update(ctx echo.Context) error {
	var data group.UpdateGroup
	if err := bindAndValidate(ctx, api.validate, &data, "UpdateGroup"); err != nil {
		return err
	}
	p, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating group")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *groupApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting group")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *groupApi) summary(ctx echo.Context) error {
	sum, err := api.svc.Summary(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "summarizing group")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *groupApi) addMembers(ctx echo.Context) error {
	var data group.Members
	if err := bindAndValidate(ctx, api.validate, &data, "Members"); err != nil {
		return err
	}
	p, err := api.svc.AddMembers(ctx.Request().Context(), ctx.Param("id"), data.LearnerIDs...)
	if err != nil {
		return errors.Wrap(err, "adding group members")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *groupApi) removeMember(ctx echo.Context) error {
	p, err := api.svc.RemoveMembers(ctx.Request().Context(), ctx.Param("id"), ctx.Param("learner_id"))
	if err != nil {
		return errors.Wrap(err, "removing group member")
	}
	return ctx.JSON(http.StatusOK, p)
}

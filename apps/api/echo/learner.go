package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core/learner"
	"github.com/chekos/pedagogical-engine/core/portal"
	"github.com/chekos/pedagogical-engine/core/skill"
	"github.com/chekos/pedagogical-engine/core/user"
)

type learnerApi struct {
	svc       learner.Service
	portalSvc portal.Service
	userSvc   user.Service
	validate  *validator.Validate
}

func registerLearnerAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc learner.Service,
	portalSvc portal.Service,
	userSvc user.Service,
	validate *validator.Validate,
) {
	api := learnerApi{
		svc:       svc,
		portalSvc: portalSvc,
		userSvc:   userSvc,
		validate:  validate,
	}

	lg := g.Group("/learners", jwt)
	lg.GET("", api.query)
	lg.POST("", api.create, educatorMiddleware())
	lg.GET("/:id", api.retrieve)
	lg.PUT("/:id", api.update, educatorMiddleware())
	lg.DELETE("/:id", api.destroy, educatorMiddleware())
	lg.POST("/:id/assessments", api.recordAssessment, educatorMiddleware())
	lg.GET("/:id/portal", api.portalView)
	lg.POST("/:id/portal-link", api.makeLink, educatorMiddleware())
	lg.POST("/:id/portal-share", api.share, educatorMiddleware())
}

func (api *learnerApi) query(ctx echo.Context) error {
	var filter learner.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []learner.Profile{})
	}
	profiles, err := api.svc.List(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing learners")
	}
	if profiles == nil {
		profiles = []learner.Profile{}
	}
	return ctx.JSON(http.StatusOK, profiles)
}

func (api *learnerApi) create(ctx echo.Context) error {
	var data learner.NewLearner
	if err := bindAndValidate(ctx, api.validate, &data, "NewLearner"); err != nil {
		return err
	}
	p, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating learner")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *learnerApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting learner")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *learnerApi) update(ctx echo.Context) error {
	var data learner.UpdateLearner
	if err := bindAndValidate(ctx, api.validate, &data, "UpdateLearner"); err != nil {
		return err
	}
	p, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating learner")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *learnerApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting learner")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type AssessmentResponse struct {
	Profile   learner.Profile `json:"profile"`
	Inference skill.Result    `json:"inference"`
}

func (api *learnerApi) recordAssessment(ctx echo.Context) error {
	var data learner.RecordAssessment
	if err := bindAndValidate(ctx, api.validate, &data, "RecordAssessment"); err != nil {
		return err
	}
	p, res, err := api.svc.RecordAssessment(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "recording assessment")
	}
	return ctx.JSON(http.StatusOK, AssessmentResponse{Profile: p, Inference: res})
}

// portalView renders the portal of any audience, the educator one included, for staff.
func (api *learnerApi) portalView(ctx echo.Context) error {
	audience := portal.AudienceEducator
	if a := ctx.QueryParam("audience"); a != "" {
		var err error
		if audience, err = portal.ParseAudience(a); err != nil {
			return err
		}
	}
	return renderView(ctx, api.portalSvc, ctx.Param("id"), audience)
}

func (api *learnerApi) makeLink(ctx echo.Context) error {
	var data portal.NewLink
	if err := bindAndValidate(ctx, api.validate, &data, "NewLink"); err != nil {
		return err
	}
	link, err := api.portalSvc.MakeLink(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "making portal link")
	}
	return ctx.JSON(http.StatusCreated, link)
}

func (api *learnerApi) share(ctx echo.Context) error {
	var data portal.ShareLink
	if err := bindAndValidate(ctx, api.validate, &data, "ShareLink"); err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	link, err := api.portalSvc.Share(ctx.Request().Context(), ctx.Param("id"), data, ctxUsr.Name)
	if err != nil {
		return errors.Wrap(err, "sharing portal link")
	}
	return ctx.JSON(http.StatusCreated, link)
}

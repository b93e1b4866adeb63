package echoapi

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core/portal"
)

type portalApi struct {
	svc portal.Service
}

// registerPortalAPI serves the read-only learner portal. Access is granted by the link token,
// not by a JWT.
func registerPortalAPI(e *echo.Echo, svc portal.Service) {
	api := portalApi{svc: svc}
	e.GET("/portal/:id", api.view)
}

func (api *portalApi) view(ctx echo.Context) error {
	id := ctx.Param("id")
	audience, err := portal.ParseAudience(ctx.QueryParam("audience"))
	if err != nil {
		return err
	}
	if audience == portal.AudienceEducator {
		return portal.ErrInvalidLink // links only grant the learner & parent views
	}
	if err := api.svc.VerifyToken(ctx.Request().Context(), id, ctx.QueryParam("token"), audience); err != nil {
		return err
	}
	return renderView(ctx, api.svc, id, audience)
}

// renderView writes the portal view as JSON when asked for, HTML otherwise.
func renderView(ctx echo.Context, svc portal.Service, id string, audience portal.Audience) error {
	v, err := svc.View(ctx.Request().Context(), id, ctx.QueryParam("lang"), audience)
	if err != nil {
		return errors.Wrap(err, "building portal view")
	}
	if strings.Contains(ctx.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) {
		return ctx.JSON(http.StatusOK, v)
	}
	var buf bytes.Buffer
	if err := portal.RenderHTML(&buf, v); err != nil {
		return errors.Wrap(err, "rendering portal view")
	}
	return ctx.HTMLBlob(http.StatusOK, buf.Bytes())
}

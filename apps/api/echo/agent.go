package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chekos/pedagogical-engine/core/agent"
)

func registerAgentAPI(g *echo.Group, jwt echo.MiddlewareFunc, catalog *agent.Catalog) {
	g.GET("/agents", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, catalog.List())
	}, jwt)
}

package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/beet/core/portal"
)

type moduleApi struct {
	svc *portal.Service
}

func registerModuleAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *portal.Service) {
	api := moduleApi{svc: svc}

	mg := g.Group("/modules", jwt)
	mg.GET("", api.query)
	mg.GET("/:id", api.retrieve)
	mg.POST("/:id/continue", api.advance)
}

// Handlers

func (api *moduleApi) query(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	mods, err := api.svc.Modules(ctx.Request().Context(), learner)
	if err != nil {
		return errors.Wrap(err, "querying modules")
	}
	return ctx.JSON(http.StatusOK, mods)
}

func (api *moduleApi) retrieve(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	mod, err := api.svc.Module(ctx.Request().Context(), learner, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, mod)
}

// advance is a soft gate: a refusal is a 200 carrying the reason.
func (api *moduleApi) advance(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	decision, err := api.svc.Continue(ctx.Request().Context(), learner, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, decision)
}

package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/beet/core"
	"github.com/trezcool/beet/core/portal"
	"github.com/trezcool/beet/core/progress"
)

type (
	progressApi struct {
		svc    *portal.Service
		logger core.Logger
	}

	ProgressResponse struct {
		Key   string         `json:"key"`
		Kind  progress.Kind  `json:"kind"`
		Value progress.Value `json:"value"`
	}
)

func registerProgressAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *portal.Service, logger core.Logger) {
	api := progressApi{svc: svc, logger: logger}

	pg := g.Group("/progress", jwt)
	pg.GET("", api.query)
	pg.GET("/:key", api.retrieve)
	pg.PUT("/:key", api.update)

	cg := g.Group("/counters/:key", jwt)
	cg.POST("/increment", api.increment)
	cg.POST("/decrement", api.decrement)

	clg := g.Group("/checklists/:key/items/:item", jwt)
	clg.POST("", api.tick)
	clg.DELETE("", api.untick)

	g.GET("/events", api.events, jwt)
}

// Handlers

func (api *progressApi) query(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	entries, err := api.svc.Entries(ctx.Request().Context(), learner)
	if err != nil {
		return errors.Wrap(err, "querying progress")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *progressApi) retrieve(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	key, val, err := api.svc.Get(ctx.Request().Context(), learner, ctx.Param("key"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ProgressResponse{Key: key.Name, Kind: key.Kind, Value: val})
}

func (api *progressApi) update(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	var data portal.UpdateProgress
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProgress")
	}
	data.Key = ctx.Param("key")

	val, err := api.svc.Put(ctx.Request().Context(), learner, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ProgressResponse{Key: data.Key, Kind: val.Kind, Value: val})
}

func (api *progressApi) increment(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	status, err := api.svc.Increment(ctx.Request().Context(), learner, ctx.Param("key"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *progressApi) decrement(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	status, err := api.svc.Decrement(ctx.Request().Context(), learner, ctx.Param("key"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *progressApi) tick(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	status, err := api.svc.Tick(ctx.Request().Context(), learner, ctx.Param("key"), ctx.Param("item"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *progressApi) untick(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	status, err := api.svc.Untick(ctx.Request().Context(), learner, ctx.Param("key"), ctx.Param("item"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, status)
}

package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/beet/core"
	"github.com/trezcool/beet/core/progress"
)

var (
	eventsBufferSize   = 64
	eventsPingInterval = 30 * time.Second
)

// events streams the learner's progress changes as server-sent events,
// both those made through the API and those observed on the backing store.
func (api *progressApi) events(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}

	changes := make(chan progress.Change, eventsBufferSize)
	unsubscribe := api.svc.Subscribe(learner, progress.AnyKey(), progress.ScopeAll, func(c progress.Change) {
		// subscribers run on the writer's goroutine: never block it
		select {
		case changes <- c:
		default:
			api.logger.Warn("dropping progress event, client too slow", errors.New(c.Key), core.Person{ID: learner})
		}
	})
	defer unsubscribe()

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	ping := time.NewTicker(eventsPingInterval)
	defer ping.Stop()

	done := ctx.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case <-ping.C:
			if _, err = fmt.Fprint(resp, ": ping\n\n"); err != nil {
				return nil // client gone
			}
		case c := <-changes:
			data, err := json.Marshal(c)
			if err != nil {
				return errors.Wrap(err, "encoding progress change")
			}
			if _, err = fmt.Fprintf(resp, "event: progress\ndata: %s\n\n", data); err != nil {
				return nil
			}
		}
		resp.Flush()
	}
}

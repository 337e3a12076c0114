package tests

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_progressApi_auth(t *testing.T) {
	app := setup(t)
	otherConf := *app.conf
	otherConf.SecretKey = "not-the-secret"

	tests := []httpTest{
		{
			name:     "no token",
			method:   http.MethodGet,
			path:     "/v1/progress",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "foreign token",
			method:   http.MethodGet,
			path:     "/v1/progress",
			token:    getToken(t, &otherConf, "learner-1"),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name:     "modules",
			method:   http.MethodGet,
			path:     "/v1/modules",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
	}
	runHttpTests(t, app, tests)
}

func Test_progressApi_getPut(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, "learner-1")
	otherToken := getToken(t, app.conf, "learner-2")
	videoPath := "/v1/progress/video-getting-started-first-login"

	tests := []httpTest{
		{
			name:     "get unset",
			method:   http.MethodGet,
			path:     videoPath,
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "progress key not set"}),
		},
		{
			name:     "get unknown key",
			method:   http.MethodGet,
			path:     "/v1/progress/video-getting-started-first-logn",
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: []byte(`{
				"error": "unknown progress key \"video-getting-started-first-logn\", did you mean \"video-getting-started-first-login\"?",
				"suggestion": "video-getting-started-first-login"
			}`),
		},
		{
			name:     "put no value",
			method:   http.MethodPut,
			path:     videoPath,
			body:     []byte(`{}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"value": "this field is required"}`),
		},
		{
			name:     "put unknown key",
			method:   http.MethodPut,
			path:     "/v1/progress/video-getting-started-first-logn",
			body:     []byte(`{"value": true}`),
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: []byte(`{
				"error": "unknown progress key \"video-getting-started-first-logn\", did you mean \"video-getting-started-first-login\"?",
				"suggestion": "video-getting-started-first-login"
			}`),
		},
		{
			name:     "put wrong type",
			method:   http.MethodPut,
			path:     videoPath,
			body:     []byte(`{"value": "yes"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "put",
			method:   http.MethodPut,
			path:     videoPath,
			body:     []byte(`{"value": true}`),
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"key": "video-getting-started-first-login", "kind": "bool", "value": true}`),
		},
		{
			name:     "get",
			method:   http.MethodGet,
			path:     videoPath,
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"key": "video-getting-started-first-login", "kind": "bool", "value": true}`),
		},
		{
			name:     "get other learner",
			method:   http.MethodGet,
			path:     videoPath,
			token:    otherToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "progress key not set"}),
		},
		{
			name:     "put set",
			method:   http.MethodPut,
			path:     "/v1/progress/checklist-getting-started-setup",
			body:     []byte(`{"value": ["join-channel", "sso-login", "sso-login"]}`),
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"key": "checklist-getting-started-setup", "kind": "set", "value": ["join-channel", "sso-login"]}`),
		},
	}
	runHttpTests(t, app, tests)

	req, rec := newAuthRequest(http.MethodGet, "/v1/progress", token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"key":"checklist-getting-started-setup","kind":"set","value":["join-channel","sso-login"]`)
	assert.Contains(t, rec.Body.String(), `"key":"video-getting-started-first-login","kind":"bool","value":true`)
}

func Test_progressApi_countersAndChecklists(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, "learner-1")
	counterPath := "/v1/counters/counter-advanced-workflows-reviews-given"
	checklistPath := "/v1/checklists/checklist-advanced-workflows-capstone/items/"

	tests := []httpTest{
		{
			name:     "decrement at zero",
			method:   http.MethodPost,
			path:     counterPath + "/decrement",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"key": "counter-advanced-workflows-reviews-given", "count": 0, "target": 3, "complete": false}`),
		},
		{
			name:     "increment",
			method:   http.MethodPost,
			path:     counterPath + "/increment",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"key": "counter-advanced-workflows-reviews-given", "count": 1, "target": 3, "complete": false}`),
		},
		{
			name:     "increment not a counter",
			method:   http.MethodPost,
			path:     "/v1/counters/video-getting-started-first-login/increment",
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"key": "not a counter"}`),
		},
		{
			name:     "tick",
			method:   http.MethodPost,
			path:     checklistPath + "peer-review",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{
				"key": "checklist-advanced-workflows-capstone",
				"items": ["draft-template", "peer-review", "publish-template"],
				"ticked": ["peer-review"],
				"count": 1, "target": 2, "complete": false
			}`),
		},
		{
			name:     "tick unknown item",
			method:   http.MethodPost,
			path:     checklistPath + "coffee",
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"item": "not an item of this checklist"}`),
		},
		{
			name:     "untick",
			method:   http.MethodDelete,
			path:     checklistPath + "peer-review",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{
				"key": "checklist-advanced-workflows-capstone",
				"items": ["draft-template", "peer-review", "publish-template"],
				"ticked": [],
				"count": 0, "target": 2, "complete": false
			}`),
		},
	}
	runHttpTests(t, app, tests)

	for i := 0; i < 5; i++ {
		req, rec := newAuthRequest(http.MethodPost, counterPath+"/increment", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	req, rec := newAuthRequest(http.MethodGet, "/v1/progress/counter-advanced-workflows-reviews-given", token)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: []byte(`{"key": "counter-advanced-workflows-reviews-given", "kind": "counter", "value": 3}`),
	}, rec)
}

func Test_progressApi_events(t *testing.T) {
	app := setup(t)
	eventsServer := httptest.NewServer(app)
	defer eventsServer.Close()
	token := getToken(t, app.conf, "learner-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, eventsServer.URL+"/v1/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// headers are flushed once the subscription is registered
	put, rec := newAuthRequest(http.MethodPut, "/v1/progress/section-understood-getting-started-welcome", token, []byte(`{"value": true}`))
	app.ServeHTTP(rec, put)
	require.Equal(t, http.StatusOK, rec.Code)

	// changes of other learners are not streamed
	other, rec := newAuthRequest(http.MethodPut, "/v1/progress/video-getting-started-first-login", getToken(t, app.conf, "learner-2"), []byte(`{"value": true}`))
	app.ServeHTTP(rec, other)
	require.Equal(t, http.StatusOK, rec.Code)

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	assert.Equal(t, "event: progress", lines[0])
	assert.Equal(t,
		`data: {"learner":"learner-1","key":"section-understood-getting-started-welcome","kind":"bool","value":true,"present":true,"origin":"local"}`,
		lines[1],
	)
}

func Test_home(t *testing.T) {
	app := setup(t)
	req, rec := newAuthRequest(http.MethodGet, "/", "")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/beet/core/portal"
	"github.com/trezcool/beet/core/progress"
)

func completeGettingStarted(t *testing.T, app testApp, token string) {
	t.Helper()
	for path, value := range map[string]string{
		"section-understood-getting-started-welcome":        "true",
		"section-understood-getting-started-workspace-tour": "true",
		"section-understood-getting-started-data-policy":    "true",
		"video-getting-started-first-login":                 "true",
		"checklist-getting-started-setup":                   `["sso-login","profile-photo","notification-settings","join-channel"]`,
	} {
		req, rec := newAuthRequest(http.MethodPut, "/v1/progress/"+path, token, []byte(`{"value":`+value+`}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func Test_moduleApi_continue(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, "learner-1")

	tests := []httpTest{
		{
			name:     "unknown module",
			method:   http.MethodPost,
			path:     "/v1/modules/nope/continue",
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "module not found"}),
		},
		{
			name:     "locked module",
			method:   http.MethodPost,
			path:     "/v1/modules/prompting-basics/continue",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{
				"allowed": false,
				"reason": "complete Getting started with Beet 2.0 first",
				"status": {
					"gate": "prompting-basics",
					"completed": [],
					"missing": [
						"section-understood-prompting-basics-anatomy-of-a-prompt",
						"section-understood-prompting-basics-context-windows",
						"section-understood-prompting-basics-iterating",
						"video-prompting-basics-live-demo",
						"counter-prompting-basics-prompts-read",
						"practice-prompting-basics-rewrite-prompt"
					],
					"count": 0, "total": 6, "percent": 0,
					"complete": false, "stale": false, "healed": false
				}
			}`),
		},
	}
	runHttpTests(t, app, tests)

	req, rec := newAuthRequest(http.MethodPost, "/v1/modules/getting-started/continue", token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var decision progress.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.False(t, decision.Allowed)
	assert.Equal(t, "0 of 5 items completed; still to do: Welcome, A tour of the workspace, Data handling policy, Your first login, Account setup", decision.Reason)

	completeGettingStarted(t, app, token)
	req, rec = newAuthRequest(http.MethodPost, "/v1/modules/getting-started/continue", token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.True(t, decision.Allowed)
	assert.Equal(t, 100, decision.Status.Percent)
}

func Test_moduleApi_query(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, "learner-1")
	completeGettingStarted(t, app, token)

	req, rec := newAuthRequest(http.MethodGet, "/v1/modules", token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var mods []portal.ModuleStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mods))
	require.Len(t, mods, 3)
	assert.True(t, mods[0].Status.Complete)
	assert.True(t, mods[1].Unlocked)
	assert.Equal(t, []string{"prompting-basics"}, mods[2].LockedBy)

	// a stale completion flag is cleared by the self-healing module
	require.NoError(t, app.svc.Reset(context.Background(), "learner-1", "video-getting-started-first-login"))
	require.NoError(t, app.svc.Progress().Store("learner-1").SetBool(context.Background(), progress.BoolKey("module-complete-getting-started"), true))

	req, rec = newAuthRequest(http.MethodGet, "/v1/modules/getting-started", token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var mod portal.ModuleStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mod))
	assert.True(t, mod.Status.Healed)
	assert.Equal(t, 80, mod.Status.Percent)
	assert.Equal(t, []string{"video-getting-started-first-login"}, mod.Status.Missing)
}

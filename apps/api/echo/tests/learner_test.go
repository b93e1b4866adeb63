package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/chekos/pedagogical-engine/apps/api/echo"
	"github.com/chekos/pedagogical-engine/core/learner"
	"github.com/chekos/pedagogical-engine/core/portal"
)

func (f *fixture) createLearner(t *testing.T, name, groupID string) learner.Profile {
	t.Helper()
	p, err := f.learnerSvc.Create(context.Background(), learner.NewLearner{Name: name, GroupID: groupID, Domain: "math"})
	require.NoError(t, err)
	return p
}

func Test_learnerApi_create(t *testing.T) {
	f := setup(t)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Educator required", token: f.token(t, f.assistant), wantCode: http.StatusForbidden,
			body: marchallObj(t, learner.NewLearner{Name: "Ana"}), wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "required fields", token: f.token(t, f.educator), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"name": "this field is required"}),
		},
		{
			name: "invalid group", token: f.token(t, f.educator), wantCode: http.StatusBadRequest,
			body:     marchallObj(t, learner.NewLearner{Name: "Ana", GroupID: "Period 3!"}),
			wantData: marchallObj(t, map[string]string{"group_id": "only lowercase letters, digits and single hyphens are allowed"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/learners"
		t.Run(tt.name, func(t *testing.T) {
			f.run(t, tt)
		})
	}

	var first, second learner.Profile
	body := marchallObj(t, learner.NewLearner{Name: "  Ana Lima ", Domain: "MATH"})
	f.decode(t, httpTest{method: http.MethodPost, path: "/v1/learners", token: f.token(t, f.educator), body: body, wantCode: http.StatusCreated}, &first)
	f.decode(t, httpTest{method: http.MethodPost, path: "/v1/learners", token: f.token(t, f.educator), body: body, wantCode: http.StatusCreated}, &second)
	assert.Equal(t, "ana-lima", first.ID)
	assert.Equal(t, "ana-lima-2", second.ID)
	assert.Equal(t, "Ana Lima", first.Name)
	assert.Equal(t, "math", first.Domain)
}

func Test_learnerApi_queryRetrieveUpdateDestroy(t *testing.T) {
	f := setup(t)
	f.createLearner(t, "Ana", "period-3")
	f.createLearner(t, "Ben", "period-4")
	token := f.token(t, f.educator)

	tests := []struct {
		name string
		path string
		want []string
	}{
		{name: "all", path: "/v1/learners", want: []string{"ana", "ben"}},
		{name: "by group", path: "/v1/learners?group_id=period-4", want: []string{"ben"}},
		{name: "search", path: "/v1/learners?search=AN", want: []string{"ana"}},
		{name: "no match", path: "/v1/learners?domain=biology", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []learner.Profile
			f.decode(t, httpTest{method: http.MethodGet, path: tt.path, token: f.token(t, f.assistant)}, &got)
			ids := []string{}
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	var ben learner.Profile
	f.decode(t, httpTest{method: http.MethodGet, path: "/v1/learners/ben", token: token}, &ben)
	assert.Equal(t, "Ben", ben.Name)
	f.run(t, httpTest{
		method: http.MethodGet, path: "/v1/learners/cy", token: token,
		wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "learner not found"}),
	})

	var updated learner.Profile
	f.decode(t, httpTest{
		method: http.MethodPut, path: "/v1/learners/ana", token: token,
		body: []byte(`{"notes": "Prefers visual explanations."}`),
	}, &updated)
	assert.Equal(t, "Ana", updated.Name)
	assert.Equal(t, "Prefers visual explanations.", updated.Notes)

	f.run(t, httpTest{method: http.MethodDelete, path: "/v1/learners/ana", token: token, wantCode: http.StatusNoContent})
	f.run(t, httpTest{method: http.MethodGet, path: "/v1/learners/ana", token: token, wantCode: http.StatusNotFound})
}

func Test_learnerApi_recordAssessment(t *testing.T) {
	f := setup(t)
	f.createLearner(t, "Ana", "")
	token := f.token(t, f.educator)

	f.run(t, httpTest{
		method: http.MethodPost, path: "/v1/learners/ana/assessments", token: token, wantCode: http.StatusBadRequest,
		body:     []byte(`{"evidence": [{"skill_id": "algebra", "confidence": 0.9, "demonstrated": true}]}`),
		wantData: marchallObj(t, map[string]string{"evidence[0].skill_id": `unknown skill "algebra"`}),
	})
	f.run(t, httpTest{
		method: http.MethodPost, path: "/v1/learners/ana/assessments", token: token, wantCode: http.StatusBadRequest,
		body:     []byte(`{"evidence": [{"skill_id": "fractions", "confidence": 1.5}]}`),
		wantData: marchallObj(t, map[string]string{"confidence": "must be a number between 0 and 1"}),
	})

	var resp echoapi.AssessmentResponse
	f.decode(t, httpTest{
		method: http.MethodPost, path: "/v1/learners/ana/assessments", token: token,
		body: []byte(`{"evidence": [{"skill_id": "fractions", "confidence": 0.9, "demonstrated": true}]}`),
	}, &resp)
	assert.Contains(t, resp.Profile.Assessed, "fractions")
	assert.Contains(t, resp.Profile.Inferred, "compare-numbers")
	assert.NotContains(t, resp.Profile.Inferred, "fractions")
	_, ok := resp.Inference.Get("counting")
	assert.True(t, ok)
}

func Test_learnerApi_portal(t *testing.T) {
	f := setup(t)
	f.createLearner(t, "Ana", "")
	token := f.token(t, f.educator)

	f.run(t, httpTest{
		method: http.MethodPost, path: "/v1/learners/ana/portal-link", token: token, wantCode: http.StatusBadRequest,
		body: marchallObj(t, portal.NewLink{Audience: portal.AudienceEducator}),
	})

	var link portal.Link
	f.decode(t, httpTest{
		method: http.MethodPost, path: "/v1/learners/ana/portal-link", token: token, wantCode: http.StatusCreated,
		body: marchallObj(t, portal.NewLink{Audience: portal.AudienceParent}),
	}, &link)
	require.NotEmpty(t, link.Token)
	assert.Contains(t, link.URL, "/portal/ana?")

	portalPath := func(tok, audience string) string {
		v := url.Values{"token": {tok}}
		if audience != "" {
			v.Set("audience", audience)
		}
		return "/portal/ana?" + v.Encode()
	}

	t.Run("json view", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, portalPath(link.Token, "parent"))
		req.Header.Set("Accept", "application/json")
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var view portal.View
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.Equal(t, portal.AudienceParent, view.Audience)
		assert.Equal(t, "ana", view.LearnerID)
	})
	t.Run("html view", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, portalPath(link.Token, "parent"))
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
		assert.Contains(t, rec.Body.String(), "Ana")
	})

	forbidden := marchallObj(t, httpErr{Error: portal.ErrInvalidLink.Error()})
	tests := []httpTest{
		{name: "no token", path: "/portal/ana"},
		{name: "wrong token", path: portalPath("abc-123", "")},
		{name: "token of another learner", path: "/portal/ben?token=" + url.QueryEscape(link.Token)},
		{name: "educator view refused", path: portalPath(link.Token, "educator")},
		{name: "audience switched", path: portalPath(link.Token, "learner")},
		{name: "default audience is learner", path: portalPath(link.Token, "")},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.wantCode = http.StatusForbidden
		tt.wantData = forbidden
		t.Run(tt.name, func(t *testing.T) {
			f.run(t, tt)
		})
	}

	t.Run("staff view", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/learners/ana/portal", f.token(t, f.assistant))
		req.Header.Set("Accept", "application/json")
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var view portal.View
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.Equal(t, portal.AudienceEducator, view.Audience)
	})
}

func Test_learnerApi_share(t *testing.T) {
	f := setup(t)
	f.createLearner(t, "Ana", "")

	f.run(t, httpTest{
		method: http.MethodPost, path: "/v1/learners/ana/portal-share", token: f.token(t, f.educator), wantCode: http.StatusBadRequest,
		body: []byte(`{"emails": ["nope"]}`),
	})

	var link portal.Link
	f.decode(t, httpTest{
		method: http.MethodPost, path: "/v1/learners/ana/portal-share", token: f.token(t, f.educator), wantCode: http.StatusCreated,
		body: []byte(`{"emails": ["Parent@Home.test"]}`),
	}, &link)

	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "parent@home.test", sent[0].To[0].Address)
	data := sent[0].TemplateData.(map[string]string)
	assert.Equal(t, f.educator.Name, data["EducatorName"])
	assert.Equal(t, link.URL, data["URL"])
	assert.Contains(t, link.URL, "audience=parent")
}

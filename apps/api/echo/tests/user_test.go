package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/chekos/pedagogical-engine/apps/api/echo"
	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/agent"
	"github.com/chekos/pedagogical-engine/core/group"
	"github.com/chekos/pedagogical-engine/core/session"
	"github.com/chekos/pedagogical-engine/core/user"
	"github.com/chekos/pedagogical-engine/tests"
)

func Test_userApi_query(t *testing.T) {
	f := setup(t)

	path := func(search, ordering string, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}

	adminToken := f.token(t, f.admin)
	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users", token: f.token(t, f.educator), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "order by name", path: path("", "name"), token: adminToken, wantData: marchallList(t, f.edu(), f.adm(), f.asst())},
		{name: "order by -name", path: path("", "-name"), token: adminToken, wantData: marchallList(t, f.asst(), f.adm(), f.edu())},
		{name: "search (unknown)", path: path("lol", ""), token: adminToken, wantData: marchallList(t)},
		{name: "search=ada", path: path("ada", ""), token: adminToken, wantData: marchallList(t, f.edu())},
		{name: "role=educator:", path: path("", "", user.RoleEducator), token: adminToken, wantData: marchallList(t, f.edu())},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		t.Run(tt.name, func(t *testing.T) {
			f.run(t, tt)
		})
	}
}

// edu, adm and asst reload the fixture users, so that their last login is current.
func (f *fixture) edu() user.User  { return f.reload(f.educator) }
func (f *fixture) adm() user.User  { return f.reload(f.admin) }
func (f *fixture) asst() user.User { return f.reload(f.assistant) }

func (f *fixture) reload(usr user.User) user.User {
	got, err := f.usrRepo.GetUserByID(context.Background(), usr.ID)
	if err != nil {
		panic(err)
	}
	return got
}

func Test_userApi_login(t *testing.T) {
	f := setup(t)
	testutil.CreateUser(t, f.usrRepo, "Cy", "cy", "cy@school.test", "Lov3lace!x", []string{user.RoleEducator}, true)
	testutil.CreateUser(t, f.usrRepo, "Naughty", "ndog", "ndog@school.test", "Lov3lace!x", []string{user.RoleEducator}, false)

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "cy", Password: "nope"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "who", Password: "Lov3lace!x"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive user", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "ndog", Password: "Lov3lace!x"}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "by email", body: marchallObj(t, echoapi.LoginRequest{Username: "CY@school.test", Password: "Lov3lace!x"})},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"
		t.Run(tt.name, func(t *testing.T) {
			rec := f.run(t, tt)
			if tt.wantData == nil {
				var resp echoapi.LoginResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func Test_userApi_loginRateLimit(t *testing.T) {
	f := setup(t, func(conf *core.Config) { conf.Server.AuthRateLimit = 2 })
	body := marchallObj(t, echoapi.LoginRequest{Username: "ada", Password: "wrong"})

	for i := 0; i < 2; i++ {
		f.run(t, httpTest{method: http.MethodPost, path: "/v1/users/login", body: body, wantCode: http.StatusBadRequest})
	}
	f.run(t, httpTest{
		method: http.MethodPost, path: "/v1/users/password-reset", body: marchallObj(t, echoapi.PasswordResetRequest{Email: "ada@school.test"}),
		wantCode: http.StatusTooManyRequests, wantData: marchallObj(t, httpErr{Error: "too many requests, try again later"}),
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	f := setup(t)
	naughty := testutil.CreateUser(t, f.usrRepo, "N Dog", "ndog", "ndog@school.test", "", []string{user.RoleEducator}, false)

	now := time.Now()
	unrefreshable := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   f.educator.ID,
			ExpiresAt: now.Add(f.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * f.conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		IsEducator:   true,
		Roles:        f.educator.Roles,
	}
	unrefreshableToken, err := echoapi.GenerateToken(f.conf, unrefreshable)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Inactive user not allowed", token: f.token(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: f.token(t, f.educator)},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"
		t.Run(tt.name, func(t *testing.T) {
			rec := f.run(t, tt)
			// cannot guess new token.. just check that it's not empty
			if tt.wantData == nil {
				var resp echoapi.LoginResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func Test_userApi_passwordReset(t *testing.T) {
	f := setup(t)
	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	tests := []struct {
		httpTest
		emailSent bool
	}{
		{httpTest: httpTest{name: "required fields", wantCode: http.StatusBadRequest, wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "this field is required"})}},
		{httpTest: httpTest{
			name: "invalid email", wantCode: http.StatusBadRequest, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol"}),
			wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "email must be a valid email address"}),
		}},
		{httpTest: httpTest{name: "unknown email", body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.com"}), wantData: successData}},
		{httpTest: httpTest{name: "known email", body: marchallObj(t, echoapi.PasswordResetRequest{Email: " ADA@school.test"}), wantData: successData}, emailSent: true},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset"
		t.Run(tt.name, func(t *testing.T) {
			f.mailSvc.Reset()
			f.run(t, tt.httpTest)

			sent := f.mailSvc.SentMessages()
			if !tt.emailSent {
				assert.Empty(t, sent)
				return
			}
			require.Len(t, sent, 1)
			assert.Equal(t, f.educator.Email, sent[0].To[0].Address)
			assert.Contains(t, sent[0].TextContent, f.educator.Name)
		})
	}
}

func Test_userApi_confirmPasswordReset(t *testing.T) {
	f := setup(t)
	f.run(t, httpTest{
		method: http.MethodPost, path: "/v1/users/password-reset",
		body: marchallObj(t, echoapi.PasswordResetRequest{Email: f.educator.Email}),
	})
	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	data := sent[0].TemplateData.(map[string]string)
	uid, token := data["UID"], data["Token"]

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, user.ResetUserPassword{Token: reqMsg, UID: reqMsg, Password: reqMsg, PasswordConfirm: reqMsg}),
		},
		{
			name: "PasswordConfirm must = Password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "LolC@t123x", PasswordConfirm: "lol"}),
			wantData: marchallObj(t, user.ResetUserPassword{PasswordConfirm: "password_confirm must be equal to Password"}),
		},
		{
			name: "invalid token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "HE4TS-sigsig", UID: uid, Password: "LolC@t123x", PasswordConfirm: "LolC@t123x"}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "valid token",
			body:     marchallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: "LolC@t123x", PasswordConfirm: "LolC@t123x"}),
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset-confirm"
		t.Run(tt.name, func(t *testing.T) {
			f.run(t, tt)
		})
	}

	usr := f.reload(f.educator)
	assert.NoError(t, usr.CheckPassword("LolC@t123x"))
}

func Test_userApi_destroy(t *testing.T) {
	f := setup(t)
	owner := testutil.CreateUser(t, f.usrRepo, "Owner", "owner", "owner@school.test", "", []string{user.RoleAdminOwner}, true)
	adminToken := f.token(t, f.admin)

	tests := []httpTest{
		{name: "cannot delete themselves", path: "/v1/users/" + f.admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "cannot delete higher role", path: "/v1/users/" + owner.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "admin required", path: "/v1/users/" + f.assistant.ID, token: f.token(t, f.educator), wantCode: http.StatusNotFound},
		{name: "deleted", path: "/v1/users/" + f.assistant.ID, token: adminToken, wantCode: http.StatusNoContent},
		{name: "gone", path: "/v1/users/" + f.assistant.ID, token: adminToken, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		tt.method = http.MethodDelete
		t.Run(tt.name, func(t *testing.T) {
			f.run(t, tt)
		})
	}
}

func Test_userApi_destroyGroupOwner(t *testing.T) {
	f := setup(t)
	adminToken := f.token(t, f.admin)
	g, err := f.groupSvc.Create(context.Background(), group.NewGroup{Name: "Period 3", Domain: "math"}, f.educator.ID)
	require.NoError(t, err)

	conflict := marchallObj(t, httpErr{Error: "user " + f.educator.ID + " still owns groups; reassign or delete them first"})
	f.run(t, httpTest{
		method: http.MethodDelete, path: "/v1/users/" + f.educator.ID, token: adminToken,
		wantCode: http.StatusConflict, wantData: conflict,
	})
	f.run(t, httpTest{
		method: http.MethodDelete, path: "/v1/users?id=" + f.assistant.ID + "&id=" + f.educator.ID, token: adminToken,
		wantCode: http.StatusConflict, wantData: conflict,
	})

	require.NoError(t, f.groupSvc.Delete(context.Background(), g.ID))
	f.run(t, httpTest{method: http.MethodDelete, path: "/v1/users/" + f.educator.ID, token: adminToken, wantCode: http.StatusNoContent})
}

func Test_userApi_workspace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.run(t, httpTest{method: http.MethodGet, path: "/v1/users/me", wantCode: http.StatusUnauthorized})

	var ws echoapi.Workspace
	f.decode(t, httpTest{method: http.MethodGet, path: "/v1/users/me", token: f.token(t, f.educator)}, &ws)
	assert.Equal(t, f.educator.ID, ws.User.ID)
	assert.Empty(t, ws.Groups)
	assert.Empty(t, ws.Sessions)

	_, err := f.groupSvc.Create(ctx, group.NewGroup{Name: "Period 3", Domain: "math"}, f.educator.ID)
	require.NoError(t, err)
	_, err = f.groupSvc.Create(ctx, group.NewGroup{Name: "Period 4", Domain: "math"}, f.admin.ID)
	require.NoError(t, err)
	s, err := f.sessionSvc.Create(ctx, session.NewSession{Role: agent.RoleLesson}, f.educator.ID)
	require.NoError(t, err)

	f.decode(t, httpTest{method: http.MethodGet, path: "/v1/users/me", token: f.token(t, f.educator)}, &ws)
	require.Len(t, ws.Groups, 1)
	assert.Equal(t, "period-3", ws.Groups[0].ID)
	require.Len(t, ws.Sessions, 1)
	assert.Equal(t, s.ID, ws.Sessions[0].ID)
}

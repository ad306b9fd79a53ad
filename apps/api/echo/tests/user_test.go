package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shuleapp/shule/core/audit"
	"github.com/shuleapp/shule/core/auth"
	testutil "github.com/shuleapp/shule/tests"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)

	usr := testutil.CreateUser(t, app.usrRepo, "Super Admin", "root01", "root@shule.app", "LePassword007",
		"", false, []string{auth.RoleSuperAdmin}, true)
	naughty := testutil.CreateUser(t, app.usrRepo, "N Dog", "ndog01", "ndog@shule.app", "LePassword007",
		"", false, nil, false)

	tests := []httpTest{
		{
			name: "empty credentials", body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", body: []byte(`{"username":"who","password":"dis"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", body: []byte(`{"username":"root01","password":"nope"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", body: []byte(`{"username":"ndog01","password":"LePassword007"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "ok", body: []byte(`{"username":"root01","password":"LePassword007"}`), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.server.ServeHTTP(rec, req)

			if tt.wantData == nil {
				assert.Equal(t, tt.wantCode, rec.Code)
				var resp map[string]string
				assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp["token"])
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	// a successful login is recorded
	app.recorder.Flush()
	entries, err := app.recorder.Query(context.Background(), audit.QueryFilter{ActorID: usr.ID, Action: audit.ActionLogin})
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "user", entries[0].EntityType)

	entries, err = app.recorder.Query(context.Background(), audit.QueryFilter{ActorID: naughty.ID})
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func Test_userApi_logout(t *testing.T) {
	app := setup(t)

	usr := testutil.CreateUser(t, app.usrRepo, "Super Admin", "root01", "root@shule.app", "",
		"", false, []string{auth.RoleSuperAdmin}, true)

	req, rec := newRequest(http.MethodPost, "/v1/users/logout", nil)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req, rec = newAuthRequest(http.MethodPost, "/v1/users/logout", getToken(t, usr))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	app.recorder.Flush()
	entries, err := app.recorder.Query(context.Background(), audit.QueryFilter{ActorID: usr.ID, Action: audit.ActionLogout})
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "user", entries[0].EntityType)
}

func Test_userApi_register(t *testing.T) {
	app := setup(t)

	plan := testutil.CreatePlan(t, app.schoolRepo, "Starter", 10, 5, 512, nil)
	sch := testutil.CreateSchool(t, app.schoolRepo, "Bright Future Academy", plan.ID, "")
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin01", "admin@bright.cd", "",
		sch.ID, true, []string{auth.RoleSchoolAdmin}, true)
	teacher := testutil.CreateUser(t, app.usrRepo, "Teacher", "teach01", "teach@bright.cd", "",
		sch.ID, false, []string{auth.RoleTeacher}, true)

	body := []byte(`{"name":"New Teacher","username":"teach02","email":"teach2@bright.cd",` +
		`"roles":["teacher"],"password":"LePassword007","password_confirm":"LePassword007"}`)

	tests := []httpTest{
		{name: "auth required", body: body, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", body: body, token: getToken(t, teacher), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "cannot grant a role above own", token: getToken(t, admin), wantCode: http.StatusBadRequest,
			body: []byte(`{"name":"Sneaky","username":"sneak01","email":"sneak@bright.cd",` +
				`"roles":["super_admin"],"password":"LePassword007","password_confirm":"LePassword007"}`),
			wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{name: "ok", body: body, token: getToken(t, admin), wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", tt.token, tt.body)
			app.server.ServeHTTP(rec, req)

			if tt.wantData == nil {
				assert.Equal(t, tt.wantCode, rec.Code)
				var resp map[string]interface{}
				assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				// a school admin can only create users inside their own school
				assert.Equal(t, sch.ID, resp["school_id"])
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

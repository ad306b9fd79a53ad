package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shuleapp/shule/core/audit"
	"github.com/shuleapp/shule/core/auth"
	"github.com/shuleapp/shule/core/roster"
	testutil "github.com/shuleapp/shule/tests"
)

func Test_auditApi_query(t *testing.T) {
	app := setup(t)

	plan := testutil.CreatePlan(t, app.schoolRepo, "Starter", 10, 5, 512, nil)
	sch1 := testutil.CreateSchool(t, app.schoolRepo, "Bright Future Academy", plan.ID, "")
	sch2 := testutil.CreateSchool(t, app.schoolRepo, "Other School", plan.ID, "")

	super := testutil.CreateUser(t, app.usrRepo, "Root", "root01", "root@shule.app", "",
		"", false, []string{auth.RoleSuperAdmin}, true)
	admin1 := testutil.CreateUser(t, app.usrRepo, "Admin One", "admin01", "admin@bright.cd", "",
		sch1.ID, true, nil, true)
	teacher := testutil.CreateUser(t, app.usrRepo, "Teacher", "teach01", "teach@bright.cd", "",
		sch1.ID, false, []string{auth.RoleTeacher}, true)

	// generate governed mutations in both tenants
	ctx := context.Background()
	_, err := app.rosterSvc.AddStudent(ctx, admin1.ID, sch1.ID, roster.NewStudent{Name: "Ada Lovelace"})
	assert.NoError(t, err)
	_, err = app.rosterSvc.AddStudent(ctx, super.ID, sch2.ID, roster.NewStudent{Name: "Grace Hopper"})
	assert.NoError(t, err)
	app.recorder.Flush()

	query := func(t *testing.T, token string, params url.Values) (*json.Decoder, int) {
		t.Helper()
		req, rec := newAuthRequest(http.MethodGet, "/v1/audit?"+params.Encode(), token)
		app.server.ServeHTTP(rec, req)
		return json.NewDecoder(rec.Body), rec.Code
	}

	t.Run("super admin sees all tenants", func(t *testing.T) {
		dec, code := query(t, getToken(t, super), nil)
		assert.Equal(t, http.StatusOK, code)
		var entries []audit.Entry
		assert.NoError(t, dec.Decode(&entries))
		assert.Len(t, entries, 2)
	})

	t.Run("school admin is clamped to their tenant", func(t *testing.T) {
		// asking for another school's entries still returns only your own
		dec, code := query(t, getToken(t, admin1), url.Values{"school_id": {sch2.ID}})
		assert.Equal(t, http.StatusOK, code)
		var entries []audit.Entry
		assert.NoError(t, dec.Decode(&entries))
		if assert.Len(t, entries, 1) {
			assert.Equal(t, sch1.ID, entries[0].SchoolID)
			assert.Equal(t, audit.ActionCreate, entries[0].Action)
		}
	})

	t.Run("audit read needs the grant", func(t *testing.T) {
		_, code := query(t, getToken(t, teacher), nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/audit")
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

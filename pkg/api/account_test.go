package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	// sha256("secret")
	assert.Equal(t, "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b", hashPassword("secret"))
}

func TestSignIn_HashesPasswordAndInstallsToken(t *testing.T) {
	srv, fb := newFakeBackend(t, func(w http.ResponseWriter, r recordedRequest) {
		switch r.Path {
		case "/api/v1/user/sign-in":
			writeOK(w, map[string]any{"token": "jwt-1", "userInfo": map[string]any{"username": "admin", "oid": "u1"}})
		default:
			writeOK(w, "1.2.3")
		}
	})
	c := New(Options{BaseURL: srv.URL})

	res, err := c.SignIn(context.Background(), "admin", "secret", "en-US")
	require.NoError(t, err)
	assert.Equal(t, "admin", res.UserInfo.Username)
	assert.Equal(t, hashPassword("secret"), fb.last().Body["password"])

	v, err := c.ServerVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)
	assert.Equal(t, "Bearer jwt-1", fb.last().Header.Get("Authorization"))
}

func TestChangePassword(t *testing.T) {
	srv, fb := newFakeBackend(t, func(w http.ResponseWriter, r recordedRequest) {
		writeOK(w, true)
	})
	c := newTestClient(srv, nil)

	ok, err := c.ChangePassword(context.Background(), "old", "new")
	require.NoError(t, err)
	assert.True(t, ok)
	req := fb.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, hashPassword("old"), req.Body["oldPassword"])
	assert.Equal(t, hashPassword("new"), req.Body["newPassword"])
}

func TestSettings(t *testing.T) {
	srv, fb := newFakeBackend(t, func(w http.ResponseWriter, r recordedRequest) {
		switch r.Method {
		case http.MethodGet:
			writeOK(w, nil)
		case http.MethodPut:
			writeOK(w, r.Body["value"])
		default:
			writeOK(w, nil)
		}
	})
	c := newTestClient(srv, nil)
	ctx := context.Background()

	v, err := c.GetSetting(ctx, "editor")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = c.UpsertSetting(ctx, "editor", map[string]any{"fontSize": 14.0}, "editor prefs")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"fontSize": 14.0}, v)
	assert.Equal(t, "editor prefs", fb.last().Body["description"])

	require.NoError(t, c.DeleteSetting(ctx, "editor"))
	assert.Equal(t, http.MethodDelete, fb.last().Method)
	assert.Equal(t, "/api/v1/user-settings/editor", fb.last().Path)
}

func TestReportsAndCategories(t *testing.T) {
	srv, fb := newFakeBackend(t, func(w http.ResponseWriter, r recordedRequest) {
		switch r.Path {
		case "/api/v1/calc-report/list":
			writeOK(w, map[string]any{"items": []any{map[string]any{"oid": "r1", "name": "beam"}}, "total": 1, "skip": 0, "limit": 10})
		case "/api/v1/calc-report/count":
			writeOK(w, map[string]any{"total": 7})
		case "/api/v1/calc-report/save":
			writeOK(w, "r-new")
		case "/api/v1/calc-report-category/list":
			writeOK(w, []any{map[string]any{"oid": "c1", "name": "Bridges", "order": 1}})
		default:
			writeOK(w, map[string]any{"oid": "c2", "name": "Piers"})
		}
	})
	c := newTestClient(srv, nil)
	ctx := context.Background()

	page, err := c.ListReports(ctx, ReportFilter{CategoryID: 3})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "beam", page.Items[0].Name)
	assert.Equal(t, float64(10), fb.last().Body["pagination"].(map[string]any)["limit"])

	n, err := c.CountReports(ctx, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	oid, err := c.SaveReport(ctx, SaveReportRequest{ReportName: "beam", Code: "x=1", CategoryOid: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "r-new", oid)
	_, hasOid := fb.last().Body["reportOid"]
	assert.False(t, hasOid)

	cats, err := c.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Bridges", cats[0].Name)

	cat, err := c.CreateCategory(ctx, "Piers", 2, "")
	require.NoError(t, err)
	assert.Equal(t, "c2", cat.Oid)

	_, err = c.UpdateCategory(ctx, "c2", map[string]any{"name": "Piers & Caps"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, fb.last().Method)

	require.NoError(t, c.DeleteCategory(ctx, "c2"))
	assert.Equal(t, "/api/v1/calc-report-category/c2", fb.last().Path)
}

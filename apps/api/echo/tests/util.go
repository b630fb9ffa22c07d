package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/educarcms/educar/apps/api/echo"
	"github.com/educarcms/educar/core/user"
	filesvc "github.com/educarcms/educar/services/files"
	"github.com/educarcms/educar/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

func setup(t *testing.T) (Server, *testutil.Services) {
	svcs := testutil.NewServices(t)
	app := NewServer(ServerDeps{
		Conf:           svcs.Conf,
		Logger:         svcs.Logger,
		Validate:       svcs.Validate,
		Translator:     svcs.Translator,
		Files:          filesvc.NewLocalStorage(svcs.Conf),
		DisableReqLogs: true,
		UserSvc:        svcs.User,
		SchoolSvc:      svcs.School,
		ProfileSvc:     svcs.Profile,
		CatalogSvc:     svcs.Catalog,
		LearningSvc:    svcs.Learning,
		AssessmentSvc:  svcs.Assessment,
		DashboardSvc:   svcs.Dashboard,
	})
	t.Cleanup(func() { _ = app.Close() })
	return app, svcs
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newFormRequest builds a multipart request of fields, plus files as {field: {filename: content}}.
func newFormRequest(t *testing.T, method, path, token string, fields map[string]string, files map[string]map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("newFormRequest() failed: %v", err)
		}
	}
	for field, f := range files {
		for name, content := range f {
			fw, err := w.CreateFormFile(field, name)
			if err != nil {
				t.Fatalf("newFormRequest() failed: %v", err)
			}
			_, _ = fw.Write([]byte(content))
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("newFormRequest() failed: %v", err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func getToken(t *testing.T, svcs *testutil.Services, usr user.User) string {
	claims := GetUserClaims(svcs.Conf, usr)
	token, err := GenerateToken(svcs.Conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// checkDenied asserts rec is a soft-fail redirect to location with reason.
func checkDenied(t *testing.T, rec *httptest.ResponseRecorder, location, reason string) {
	assert.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, location, rec.Header().Get("Location"))
	var resp DeniedResponse
	unmarshal(t, rec, &resp)
	assert.Equal(t, location, resp.Redirect)
	assert.Equal(t, reason, resp.Reason)
	assert.NotEmpty(t, resp.Message)
}

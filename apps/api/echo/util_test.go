package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/invigil/apps/api/echo"
	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/core/user"
	"github.com/trezcool/invigil/tests"
)

func setup(t *testing.T) (*echoapi.Server, *testutil.Env) {
	t.Helper()
	env := testutil.Setup(t)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	schedule.InitValidators(validate)

	env.Conf.SecretKey = "secret"
	env.Conf.Server.JWTExpirationDelta = time.Hour

	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:         env.Conf,
		Logger:       env.Log,
		UserSvc:      env.Users,
		ScheduleSvc:  env.Schedule,
		TimetableSvc: env.Timetable,
		Validate:     validate,
		Translator:   translator,
	})
	return srv, env
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

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(conf, usr)
	require.NoError(t, err, "generating token")
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

func unmarshalObj(t *testing.T, data []byte, obj interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, obj), "body %s", data)
}

func runHTTPTests(t *testing.T, srv http.Handler, tests []httpTest) {
	t.Helper()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, rec := newAuthRequest(tc.method, tc.path, tc.token, tc.body)
			srv.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code, "body %s", rec.Body.String())
			if tc.wantData != nil {
				assert.JSONEq(t, string(tc.wantData), rec.Body.String())
			}
		})
	}
}

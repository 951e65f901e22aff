package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fixkme/timerd/errs"
	"github.com/fixkme/timerd/host"
	"github.com/fixkme/timerd/timer"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status int             `json:"status"`
	Error  string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func do(t *testing.T, s *Server, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestCallCreateAndFire(t *testing.T) {
	s := NewHandler(host.New(timer.New()), nil)

	code, env := do(t, s, http.MethodPost, "/api/call/create", `["h1","cb1","10","5","","","0"]`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, env.Status)
	assert.JSONEq(t, `{"code":"Success","data":"1"}`, string(env.Data))

	_, env = do(t, s, http.MethodPost, "/api/call/fire", `["10"]`)
	assert.JSONEq(t, `{"code":"Success","data":"1"}`, string(env.Data))

	_, env = do(t, s, http.MethodPost, "/api/call/fire", `["10"]`)
	assert.JSONEq(t, `{"code":"Success"}`, string(env.Data))

	_, env = do(t, s, http.MethodPost, "/api/call/status", "")
	assert.JSONEq(t, `{"code":"Success","data":"Timers: 0, RWT: 0"}`, string(env.Data))
}

func TestCallErrors(t *testing.T) {
	s := NewHandler(host.New(timer.New()), nil)

	code, env := do(t, s, http.MethodPost, "/api/call/nope", `[]`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, errs.ErrCode_UnknownOp, env.Status)

	code, env = do(t, s, http.MethodPost, "/api/call/fire", `["soon"]`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errs.ErrCode_Format, env.Status)

	code, env = do(t, s, http.MethodPost, "/api/call/fire", `{"now":1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errs.ErrCode_Format, env.Status)

	code, env = do(t, s, http.MethodPost, "/api/call/fire", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errs.ErrCode_Args, env.Status)
}

func TestStatusAndOps(t *testing.T) {
	h := host.New(timer.New())
	_, _, err := h.Call("create", "k", "cb", "3", "0", "", "", "0")
	require.NoError(t, err)
	s := NewHandler(h, &Options{})

	code, env := do(t, s, http.MethodGet, "/v0/status", "")
	require.Equal(t, http.StatusOK, code)
	var st timer.Stats
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, timer.Stats{Timers: 1, ByID: 1, ByKey: 1, LastID: 1}, st)

	_, env = do(t, s, http.MethodGet, "/v0/ops", "")
	var ops []opInfo
	require.NoError(t, json.Unmarshal(env.Data, &ops))
	require.Len(t, ops, 8)
	assert.Equal(t, opInfo{Name: "fire", Aliases: []string{"dispatch"}}, ops[1])
}

func TestApiVersionAndMiddleware(t *testing.T) {
	var hits int
	s := NewHandler(host.New(timer.New()), &Options{
		ApiVersion:  "v1",
		Middlewares: []gin.HandlerFunc{func(c *gin.Context) { hits++; c.Next() }},
	})
	code, _ := do(t, s, http.MethodPost, "/api/v1/call/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, hits)
}

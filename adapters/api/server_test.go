package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/rng"
	"github.com/gustavo-detarso/atestmed-defender-sub000/app"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/config"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/testkit"
)

const scenarioBody = `{
	"table": {"period": "2024-Q1", "rows": [
		{"entity_id": "e1", "n": 100, "nc": 5,  "score": 1, "strata": {"region": "N"}},
		{"entity_id": "e2", "n": 100, "nc": 40, "score": 9, "strata": {"region": "S"}},
		{"entity_id": "e3", "n": 100, "nc": 4,  "score": 2, "strata": {"region": "S"}}
	]},
	"baseline": 0.10,
	"params": {"alpha": 0.8},
	"options": {"permutations": 99, "bootstrap": 100, "psa_draws": 100, "seed": 7}
}`

func newTestServer(t *testing.T) (*Server, *testkit.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	score := func(v float64) *float64 { return &v }
	store := testkit.NewMemoryStore()
	store.PutPeriod(audit.NewObservationTable("2024-Q1", []audit.Observation{
		{EntityID: "e1", N: 100, NC: 5, Score: score(1)},
		{EntityID: "e2", N: 100, NC: 40, Score: score(9)},
	}), 0.10)

	logger := internal.NewLogger(internal.LogLevelError)
	svc := app.NewAuditService(rng.New(), config.Default().Analysis, store, logger)
	return NewServer(svc, store, store, logger), store
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRunAudit_JSON(t *testing.T) {
	s, store := newTestServer(t)
	w := do(s, http.MethodPost, "/api/v1/audits", scenarioBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rep struct {
		RunID       string   `json:"run_id"`
		Weight      float64  `json:"weight"`
		ImpactTotal int      `json:"impact_total"`
		Selected    []string `json:"selected"`
		CMH         *struct {
			Strata int `json:"strata"`
		} `json:"cmh"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, 1.0, rep.Weight)
	assert.Equal(t, 24, rep.ImpactTotal)
	assert.Equal(t, []string{"e2"}, rep.Selected)
	require.NotNil(t, rep.CMH)
	assert.Equal(t, 2, rep.CMH.Strata)

	assert.Equal(t, 1, store.Runs())
	got := do(s, http.MethodGet, "/api/v1/audits/"+rep.RunID, "")
	assert.Equal(t, http.StatusOK, got.Code)
	assert.Contains(t, got.Body.String(), rep.RunID)
}

func TestRunAudit_Formats(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(s, http.MethodPost, "/api/v1/audits?format=markdown", scenarioBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "# Excess impact audit"))

	w = do(s, http.MethodPost, "/api/v1/audits?format=html", scenarioBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<table>")
}

func TestRunAudit_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"unknown format", "/api/v1/audits?format=pdf", scenarioBody, http.StatusBadRequest, errors.CodeInvalidParameter},
		{"malformed json", "/api/v1/audits", `{"table":`, http.StatusBadRequest, errors.CodeInvalidInput},
		{"missing table", "/api/v1/audits", `{"baseline":0.1}`, http.StatusBadRequest, errors.CodeInvalidInput},
		{"baseline out of range", "/api/v1/audits", `{"table":{"rows":[]},"baseline":2}`, http.StatusBadRequest, errors.CodeInvalidInput},
		{"negative alpha", "/api/v1/audits",
			`{"table":{"rows":[{"entity_id":"a","n":10,"nc":1}]},"baseline":0.1,"params":{"alpha":-1}}`,
			http.StatusBadRequest, errors.CodeInvalidParameter},
		{"nc above n", "/api/v1/audits",
			`{"table":{"rows":[{"entity_id":"a","n":10,"nc":11}]},"baseline":0.1}`,
			http.StatusBadRequest, errors.CodeInvalidInput},
		{"unknown period", "/api/v1/periods/1999-Q1/audits", "", http.StatusNotFound, errors.CodeNotFound},
		{"unknown run", "/api/v1/audits/nope", "", http.StatusNotFound, errors.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if strings.HasPrefix(tt.name, "unknown run") {
				method = http.MethodGet
			}
			w := do(s, method, tt.target, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestRunPeriod(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"params":{"alpha":0.8},"options":{"permutations":99,"bootstrap":100,"psa_draws":100}}`

	w := do(s, http.MethodPost, "/api/v1/periods/2024-Q1/audits", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"period":"2024-Q1"`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.InvalidParameter("x")))
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.InvalidInput("x")))
	assert.Equal(t, http.StatusNotFound, statusFor(errors.Wrap(errors.NotFound("run"), "lookup")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.DatabaseError("down")))
}

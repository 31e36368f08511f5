package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/labvault/internal/config"
	"github.com/sells-group/labvault/internal/model"
	"github.com/sells-group/labvault/internal/monitoring"
	"github.com/sells-group/labvault/internal/pipeline"
	"github.com/sells-group/labvault/internal/store"
	"github.com/sells-group/labvault/internal/vault"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestEnv(t *testing.T, withLedger bool) *appEnv {
	t.Helper()
	dir := t.TempDir()

	v, err := vault.Open(filepath.Join(dir, "PatientVaults"))
	require.NoError(t, err)

	env := &appEnv{Vault: v, Metrics: monitoring.NewMetrics()}
	opts := []pipeline.Option{pipeline.WithMetrics(env.Metrics)}
	if withLedger {
		st, err := store.Open(context.Background(), config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(dir, "runs.db"),
		})
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() }) //nolint:errcheck
		env.Ledger = st
		opts = append(opts, pipeline.WithLedger(st))
	}
	env.Pipeline = pipeline.New(nil, v, opts...)
	return env
}

func documentBody(name, patient string) []byte {
	doc := map[string]any{
		"name": name,
		"pages": []map[string]any{{
			"page": 1,
			"text": fmt.Sprintf("CITY DIAGNOSTICS\nPatient Name : %s      Age/Gender : 45 Y / Male\n\n"+
				"TEST NAME              RESULT     UNIT      REFERENCE RANGE\n"+
				"Haemoglobin (Hb)       14.8       g/dL      13.0 - 17.0\n", patient),
			"rows": [][]any{
				{"Test Name", "Result", "Unit", "Reference Range"},
				{"Platelet Count", 250, "10^3/uL", "150 - 410"},
			},
		}},
	}
	data, _ := json.Marshal(doc)
	return data
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAPI_Health(t *testing.T) {
	h := newAPI(newTestEnv(t, false)).routes()

	rr := do(t, h, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["patients"])
}

func TestAPI_SubmitDocument_CreatesThenAppends(t *testing.T) {
	h := newAPI(newTestEnv(t, true)).routes()

	rr := do(t, h, http.MethodPost, "/documents", documentBody("cbc-1.pdf", "John Smith"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var first pipeline.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &first))
	assert.Equal(t, model.RunStatusComplete, first.Status)
	assert.True(t, first.IsNewPatient)
	assert.NotEmpty(t, first.PatientID)
	assert.NotEmpty(t, first.RunID)
	assert.Equal(t, 1, first.ReportCount)
	assert.Equal(t, 2, first.TestCount)

	rr = do(t, h, http.MethodPost, "/documents", documentBody("cbc-2.pdf", "Smith John"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var second pipeline.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &second))
	assert.False(t, second.IsNewPatient)
	assert.Equal(t, first.PatientID, second.PatientID)
	assert.Equal(t, 2, second.ReportCount)
}

func TestAPI_SubmitDocument_InvalidBody(t *testing.T) {
	h := newAPI(newTestEnv(t, false)).routes()

	rr := do(t, h, http.MethodPost, "/documents", []byte(`{"pages": [`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "error")
}

func TestAPI_SubmitDocument_QueryName(t *testing.T) {
	h := newAPI(newTestEnv(t, false)).routes()

	rr := do(t, h, http.MethodPost, "/documents?name=lipid.json", []byte(`[{"text":"Patient Name : Jane Doe"}]`))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "lipid.json", res.Document)
}

func TestAPI_Patients(t *testing.T) {
	h := newAPI(newTestEnv(t, false)).routes()
	rr := do(t, h, http.MethodPost, "/documents", documentBody("cbc.pdf", "Mary Jones"))
	require.Equal(t, http.StatusCreated, rr.Code)
	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))

	rr = do(t, h, http.MethodGet, "/patients", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var records []model.VaultRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, res.PatientID, records[0].Identity.ID)
	assert.Equal(t, "Mary Jones", records[0].Identity.CanonicalName)

	rr = do(t, h, http.MethodGet, "/patients/"+res.PatientID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var rec model.VaultRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, 1, rec.ReportCount)

	rr = do(t, h, http.MethodGet, "/patients/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_Runs(t *testing.T) {
	h := newAPI(newTestEnv(t, true)).routes()
	rr := do(t, h, http.MethodPost, "/documents", documentBody("cbc.pdf", "John Smith"))
	require.Equal(t, http.StatusCreated, rr.Code)
	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))

	rr = do(t, h, http.MethodGet, "/runs?status=complete&limit=10", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "cbc.pdf", runs[0].Document)
	require.NotNil(t, runs[0].Result)
	assert.Equal(t, res.PatientID, runs[0].Result.PatientID)

	rr = do(t, h, http.MethodGet, "/runs?status=failed", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/runs/"+res.RunID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/runs/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_Runs_BadParams(t *testing.T) {
	h := newAPI(newTestEnv(t, true)).routes()

	for _, q := range []string{"limit=abc", "offset=-1", "since=yesterday"} {
		rr := do(t, h, http.MethodGet, "/runs?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestAPI_Runs_LedgerDisabled(t *testing.T) {
	h := newAPI(newTestEnv(t, false)).routes()

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/runs", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/runs/abc", nil).Code)
}

func TestAPI_Metrics(t *testing.T) {
	h := newAPI(newTestEnv(t, false)).routes()
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/documents", documentBody("a.pdf", "John Smith")).Code)

	rr := do(t, h, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `labvault_documents_total{status="complete"} 1`)
	assert.Contains(t, rr.Body.String(), "labvault_identities_created_total 1")
}

func TestAPI_CORSPreflight(t *testing.T) {
	h := newAPI(newTestEnv(t, false)).routes()

	req := httptest.NewRequest(http.MethodOptions, "/patients", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), http.MethodGet))
}

func TestIntParam(t *testing.T) {
	n, err := intParam("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = intParam("25")
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	_, err = intParam("-3")
	assert.Error(t, err)
}

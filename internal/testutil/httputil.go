package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/p-arndt/querybench/internal/benchmark"
)

// OptimizeParams are the query-string options of POST /optimize. Zero values
// are left out of the URL.
type OptimizeParams struct {
	DBID     string
	Model    string
	UseCache *bool
}

// OptimizeRequest builds a POST /optimize request carrying query in the body.
func OptimizeRequest(t *testing.T, query string, p OptimizeParams) *http.Request {
	t.Helper()
	v := url.Values{}
	if p.DBID != "" {
		v.Set("db_id", p.DBID)
	}
	if p.Model != "" {
		v.Set("model_name", p.Model)
	}
	if p.UseCache != nil {
		v.Set("use_cache", strconv.FormatBool(*p.UseCache))
	}
	target := "/optimize"
	if len(v) > 0 {
		target += "?" + v.Encode()
	}
	return JSONRequest(t, http.MethodPost, target, map[string]string{"query": query})
}

// JSONRequest creates an httptest request whose body is body encoded as JSON.
func JSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeOutcome reads a /optimize response back into the outcome it was
// written from: an {"error": ...} body fills Error, anything else Result.
func DecodeOutcome(t *testing.T, rec *httptest.ResponseRecorder) benchmark.Outcome {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fields), "body: %s", rec.Body.String())
	if _, isError := fields["error"]; isError && len(fields) == 1 {
		var env benchmark.ErrorEnvelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		return benchmark.Outcome{Error: &env}
	}

	var res benchmark.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return benchmark.Outcome{Result: &res}
}

// DecodeJSON decodes the response body into v.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v), "body: %s", rec.Body.String())
}

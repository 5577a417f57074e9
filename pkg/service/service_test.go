package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tomydb/pkg/engine"
	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/metadata"
)

type testServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ms, err := metadata.Open("", nil)
	require.NoError(t, err)
	pool, err := buffer.NewPool(buffer.Options{})
	require.NoError(t, err)
	qm := engine.NewQueryManager(ms, pool, engine.Options{TablesDir: t.TempDir()})

	router := NewRouter(nil,
		NewSchemaAPIController(NewSchemaAPIService(ms)),
		NewExecutionAPIController(NewExecutionAPIService(qm)),
		NewMetadataAPIController(NewMetadataAPIService(ms, qm)),
	)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		qm.Close()
		_ = pool.Close()
		_ = ms.Close()
	})
	return &testServer{t: t, srv: srv}
}

func (s *testServer) do(method, path, body string) (int, []byte) {
	s.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, r)
	require.NoError(s.t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, data
}

func (s *testServer) decode(data []byte, v any) {
	s.t.Helper()
	require.NoError(s.t, json.Unmarshal(data, v), string(data))
}

func (s *testServer) submit(body string) string {
	s.t.Helper()
	code, data := s.do(http.MethodPost, "/queries", body)
	require.Equal(s.t, http.StatusOK, code, string(data))
	var resp SubmitResponse
	s.decode(data, &resp)
	return resp.QueryId
}

func (s *testServer) wait(id string) Query {
	s.t.Helper()
	var q Query
	require.Eventually(s.t, func() bool {
		code, data := s.do(http.MethodGet, "/queries/"+id, "")
		if code != http.StatusOK {
			return false
		}
		s.decode(data, &q)
		return q.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return q
}

func (s *testServer) loadCities() {
	s.t.Helper()
	code, data := s.do(http.MethodPost, "/tables", `{"name":"cities","columns":[{"name":"name","type":"VARCHAR"},{"name":"population","type":"INT64"}]}`)
	require.Equal(s.t, http.StatusOK, code, string(data))

	csvPath := filepath.Join(s.t.TempDir(), "cities.csv")
	require.NoError(s.t, os.WriteFile(csvPath, []byte("name,population\nWarsaw,1860000\nKrakow,800000\nGdansk,470000\n"), 0o644))
	id := s.submit(fmt.Sprintf(`{"copy":{"sourceFilepath":%q,"destinationTableName":"cities","doesCsvContainHeader":true}}`, csvPath))
	q := s.wait(id)
	require.Equal(s.t, engine.QueryStateFinished, q.Status, q.Error)
	assert.False(s.t, q.IsResultAvailable)
}

func TestTableEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.loadCities()

	code, data := s.do(http.MethodPost, "/tables", `{"name":"cities","columns":[{"name":"x","type":"INT64"}]}`)
	assert.Equal(t, http.StatusConflict, code, string(data))

	code, data = s.do(http.MethodPost, "/tables", `{"name":"bad","columns":[{"name":"a","type":"INT128"},{"name":"a","type":"INT64"}]}`)
	require.Equal(t, http.StatusBadRequest, code)
	var probs MultipleProblemsError
	s.decode(data, &probs)
	assert.Len(t, probs.Problems, 2)

	code, data = s.do(http.MethodGet, "/tables", "")
	require.Equal(t, http.StatusOK, code)
	var tables []ShallowTable
	s.decode(data, &tables)
	require.Len(t, tables, 1)
	assert.Equal(t, "cities", tables[0].Name)

	code, data = s.do(http.MethodGet, "/tables/cities", "")
	require.Equal(t, http.StatusOK, code)
	var details TableDetails
	s.decode(data, &details)
	assert.Equal(t, []Column{{Name: "name", Type: "VARCHAR"}, {Name: "population", Type: "INT64"}}, details.Columns)
	assert.Len(t, details.Files, 1)

	code, _ = s.do(http.MethodDelete, "/tables/cities", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodGet, "/tables/cities", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(http.MethodDelete, "/tables/cities", "")
	assert.Equal(t, http.StatusNotFound, code)
}

const biggestCity = `{"select":{"type":"sort","limit":1,
	"input":{"type":"scan","table":"cities"},
	"orderBy":[{"expr":{"type":"column","column":"population"},"descending":true}]}}`

func TestSelectAndFetchResult(t *testing.T) {
	s := newTestServer(t)
	s.loadCities()

	id := s.submit(biggestCity)
	q := s.wait(id)
	require.Equal(t, engine.QueryStateFinished, q.Status, q.Error)
	assert.True(t, q.IsResultAvailable)
	require.NotNil(t, q.Cost)
	assert.Equal(t, float64(1), q.Cost.OutputRows)

	code, data := s.do(http.MethodGet, "/queries/"+id+"/result?format=markdown", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(data), "Warsaw")

	code, data = s.do(http.MethodGet, "/queries/"+id+"/result?flush=true", "")
	require.Equal(t, http.StatusOK, code)
	var res struct {
		RowCount    uint64   `json:"rowCount"`
		ColumnNames []string `json:"columnNames"`
		Columns     [][]any  `json:"columns"`
	}
	s.decode(data, &res)
	assert.Equal(t, uint64(1), res.RowCount)
	assert.Equal(t, []string{"name", "population"}, res.ColumnNames)
	assert.Equal(t, []any{"Warsaw"}, res.Columns[0])

	code, _ = s.do(http.MethodGet, "/queries/"+id+"/result", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(http.MethodGet, "/queries/"+id+"/result?rowLimit=abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)
	s.loadCities()

	for name, body := range map[string]string{
		"unknown column": `{"select":{"type":"scan","table":"cities","columns":["area"]}}`,
		"unknown field":  `{"select":{"type":"scan","table":"cities","colums":["name"]}}`,
		"no query":       `{}`,
		"both kinds":     `{"select":{"type":"values"},"copy":{"sourceFilepath":"x","destinationTableName":"cities"}}`,
		"empty body":     ``,
	} {
		code, data := s.do(http.MethodPost, "/queries", body)
		assert.Equal(t, http.StatusBadRequest, code, name)
		var probs MultipleProblemsError
		s.decode(data, &probs)
		assert.NotEmpty(t, probs.Problems, name)
	}
}

func TestFailedQueryReportsItsError(t *testing.T) {
	s := newTestServer(t)
	s.loadCities()

	id := s.submit(`{"copy":{"sourceFilepath":"/does/not/exist.csv","destinationTableName":"cities"}}`)
	q := s.wait(id)
	assert.Equal(t, engine.QueryStateFailed, q.Status)

	code, data := s.do(http.MethodGet, "/queries/"+id+"/error", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(data), "exist.csv")

	code, _ = s.do(http.MethodGet, "/queries/"+id+"/result", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCancelEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.loadCities()

	code, _ := s.do(http.MethodDelete, "/queries/nope", "")
	assert.Equal(t, http.StatusNotFound, code)

	id := s.submit(biggestCity)
	s.wait(id)
	code, _ = s.do(http.MethodDelete, "/queries/"+id, "")
	assert.Equal(t, http.StatusConflict, code)

	code, data := s.do(http.MethodGet, "/queries", "")
	require.Equal(t, http.StatusOK, code)
	var list []ShallowQuery
	s.decode(data, &list)
	require.Len(t, list, 2)
	assert.Equal(t, engine.QueryKindCopy, list[0].Kind)
	assert.Equal(t, id, list[1].QueryId)
}

func TestExplainEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.loadCities()

	body := bytes.NewBufferString(`{"plan":`)
	body.WriteString(strings.TrimSuffix(strings.TrimPrefix(biggestCity, `{"select":`), "}"))
	body.WriteString("}")
	code, data := s.do(http.MethodPost, "/explain", body.String())
	require.Equal(t, http.StatusOK, code, string(data))
	var resp ExplainResponse
	s.decode(data, &resp)
	assert.Contains(t, resp.Plan, "Scan cities")
	assert.Positive(t, resp.Cost.TotalCost)

	code, _ = s.do(http.MethodPost, "/explain", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSystemInfoAndUnknownRoutes(t *testing.T) {
	s := newTestServer(t)
	s.loadCities()

	code, data := s.do(http.MethodGet, "/system/info", "")
	require.Equal(t, http.StatusOK, code)
	var info SystemInformation
	s.decode(data, &info)
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, 1, info.Tables)

	code, _ = s.do(http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, code)
}

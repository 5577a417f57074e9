package service

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

type ExecutionAPIController struct {
	service *ExecutionAPIService
}

func NewExecutionAPIController(s *ExecutionAPIService) *ExecutionAPIController {
	return &ExecutionAPIController{service: s}
}

func (c *ExecutionAPIController) Routes() []Route {
	return []Route{
		{"GetQueries", http.MethodGet, "/queries", c.GetQueries},
		{"SubmitQuery", http.MethodPost, "/queries", c.SubmitQuery},
		{"GetQueryById", http.MethodGet, "/queries/{id}", c.GetQueryById},
		{"CancelQuery", http.MethodDelete, "/queries/{id}", c.CancelQuery},
		{"GetQueryResult", http.MethodGet, "/queries/{id}/result", c.GetQueryResult},
		{"GetQueryError", http.MethodGet, "/queries/{id}/error", c.GetQueryError},
		{"Explain", http.MethodPost, "/explain", c.Explain},
	}
}

func (c *ExecutionAPIController) GetQueries(w http.ResponseWriter, r *http.Request) {
	result, err := c.service.GetQueries(r.Context())
	writeResponse(w, result, err)
}

func (c *ExecutionAPIController) GetQueryById(w http.ResponseWriter, r *http.Request) {
	result, err := c.service.GetQueryById(r.Context(), mux.Vars(r)["id"])
	writeResponse(w, result, err)
}

func (c *ExecutionAPIController) SubmitQuery(w http.ResponseWriter, r *http.Request) {
	var req ExecuteQueryRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		badRequest(w, err)
		return
	}
	result, err := c.service.SubmitQuery(r.Context(), req)
	writeResponse(w, result, err)
}

func (c *ExecutionAPIController) GetQueryResult(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var req GetQueryResultRequest
	var err error
	if v := query.Get("rowLimit"); v != "" {
		if req.RowLimit, err = strconv.Atoi(v); err != nil {
			badRequest(w, fmt.Errorf("rowLimit: %w", err))
			return
		}
	}
	if v := query.Get("flush"); v != "" {
		if req.FlushResult, err = strconv.ParseBool(v); err != nil {
			badRequest(w, fmt.Errorf("flush: %w", err))
			return
		}
	}
	req.Markdown = query.Get("format") == "markdown"

	result, err := c.service.GetQueryResult(r.Context(), mux.Vars(r)["id"], req)
	if err == nil && req.Markdown && result.Code == http.StatusOK {
		w.Header().Set("Content-Type", "text/markdown; charset=UTF-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(result.Body.(string)))
		return
	}
	writeResponse(w, result, err)
}

func (c *ExecutionAPIController) GetQueryError(w http.ResponseWriter, r *http.Request) {
	result, err := c.service.GetQueryError(r.Context(), mux.Vars(r)["id"])
	writeResponse(w, result, err)
}

func (c *ExecutionAPIController) CancelQuery(w http.ResponseWriter, r *http.Request) {
	result, err := c.service.CancelQuery(r.Context(), mux.Vars(r)["id"])
	writeResponse(w, result, err)
}

func (c *ExecutionAPIController) Explain(w http.ResponseWriter, r *http.Request) {
	var req ExplainRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		badRequest(w, err)
		return
	}
	result, err := c.service.Explain(r.Context(), req)
	writeResponse(w, result, err)
}

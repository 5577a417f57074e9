package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tomydb/pkg/engine"
	"tomydb/pkg/engine/cost"
	"tomydb/pkg/engine/executor"
	"tomydb/pkg/engine/planner"
)

type CopyQuery struct {
	SourceFilepath       string   `json:"sourceFilepath"`
	DestinationTableName string   `json:"destinationTableName"`
	DestinationColumns   []string `json:"destinationColumns,omitempty"`
	DoesCsvContainHeader bool     `json:"doesCsvContainHeader,omitempty"`
	RowGroupSize         int      `json:"rowGroupSize,omitempty"`
}

// ExecuteQueryRequest carries exactly one of the two query kinds.
type ExecuteQueryRequest struct {
	Select *planner.PlanNode `json:"select,omitempty"`
	Copy   *CopyQuery        `json:"copy,omitempty"`
}

type ExplainRequest struct {
	Plan *planner.PlanNode `json:"plan"`
}

type CostEstimate struct {
	OutputRows     float64 `json:"outputRows"`
	CpuOperations  float64 `json:"cpuOperations"`
	DiskOperations float64 `json:"diskOperations"`
	TotalCost      float64 `json:"totalCost"`
}

func costEstimate(c cost.Cost) *CostEstimate {
	return &CostEstimate{
		OutputRows:     c.OutputRows,
		CpuOperations:  c.TotalCpuOperations,
		DiskOperations: c.TotalDiskOperations,
		TotalCost:      c.TotalCost(),
	}
}

type ExplainResponse struct {
	Plan string        `json:"plan"`
	Cost *CostEstimate `json:"cost"`
}

type SubmitResponse struct {
	QueryId string `json:"queryId"`
}

type ShallowQuery struct {
	QueryId string            `json:"queryId"`
	Kind    engine.QueryKind  `json:"kind"`
	Status  engine.QueryState `json:"status"`
}

type Query struct {
	QueryId           string            `json:"queryId"`
	Kind              engine.QueryKind  `json:"kind"`
	Status            engine.QueryState `json:"status"`
	IsResultAvailable bool              `json:"isResultAvailable"`
	QueryDefinition   any               `json:"queryDefinition,omitempty"`
	Error             string            `json:"error,omitempty"`
	Cost              *CostEstimate     `json:"cost,omitempty"`
	SubmittedAt       time.Time         `json:"submittedAt"`
	FinishedAt        *time.Time        `json:"finishedAt,omitempty"`
}

type GetQueryResultRequest struct {
	RowLimit    int
	FlushResult bool
	Markdown    bool
}

// ExecutionAPIService submits, inspects and cancels queries.
type ExecutionAPIService struct {
	QueryManager *engine.QueryManager
}

func NewExecutionAPIService(qm *engine.QueryManager) *ExecutionAPIService {
	return &ExecutionAPIService{QueryManager: qm}
}

// GetQueries - every known query, oldest first
func (s *ExecutionAPIService) GetQueries(ctx context.Context) (ImplResponse, error) {
	infos := s.QueryManager.List()
	out := make([]ShallowQuery, 0, len(infos))
	for _, info := range infos {
		out = append(out, ShallowQuery{QueryId: info.ID, Kind: info.Kind, Status: info.State})
	}
	return Response(http.StatusOK, out), nil
}

// GetQueryById - detailed status of one query
func (s *ExecutionAPIService) GetQueryById(ctx context.Context, queryId string) (ImplResponse, error) {
	info, ok := s.QueryManager.Get(queryId)
	if !ok {
		return Response(http.StatusNotFound, Error{Message: "Query not found"}), nil
	}
	q := Query{
		QueryId:           info.ID,
		Kind:              info.Kind,
		Status:            info.State,
		IsResultAvailable: info.Kind == engine.QueryKindSelect && info.State == engine.QueryStateFinished,
		QueryDefinition:   info.Definition,
		SubmittedAt:       info.SubmittedAt,
	}
	if info.Error != nil {
		q.Error = info.Error.Error()
	}
	if info.Cost != nil {
		q.Cost = costEstimate(*info.Cost)
	}
	if !info.FinishedAt.IsZero() {
		q.FinishedAt = &info.FinishedAt
	}
	return Response(http.StatusOK, q), nil
}

// SubmitQuery - plans are validated before a query id is handed out
func (s *ExecutionAPIService) SubmitQuery(ctx context.Context, req ExecuteQueryRequest) (ImplResponse, error) {
	var (
		queryId string
		err     error
	)
	switch {
	case req.Select != nil && req.Copy != nil:
		return Response(http.StatusBadRequest, problems(errors.New("a query is either select or copy"))), nil
	case req.Select != nil:
		queryId, err = s.QueryManager.SubmitSelect(req.Select)
	case req.Copy != nil:
		queryId, err = s.QueryManager.SubmitCopy(executor.CopyRequest{
			TableName:         req.Copy.DestinationTableName,
			CsvFilePath:       req.Copy.SourceFilepath,
			CsvContainsHeader: req.Copy.DoesCsvContainHeader,
			ColumnsMapping:    req.Copy.DestinationColumns,
			RowGroupSize:      req.Copy.RowGroupSize,
		})
	default:
		return Response(http.StatusBadRequest, problems(errors.New("unknown query type"))), nil
	}
	if err != nil {
		return Response(http.StatusBadRequest, problems(err)), nil
	}
	return Response(http.StatusOK, SubmitResponse{QueryId: queryId}), nil
}

// GetQueryResult - rows of a finished select, as JSON or a markdown table
func (s *ExecutionAPIService) GetQueryResult(ctx context.Context, queryId string, req GetQueryResultRequest) (ImplResponse, error) {
	if req.RowLimit < 0 {
		return Response(http.StatusBadRequest, problems(fmt.Errorf("rowLimit must be non-negative"))), nil
	}
	result, err := s.QueryManager.Result(queryId, req.RowLimit, req.FlushResult)
	switch {
	case errors.Is(err, engine.ErrQueryNotFound):
		return Response(http.StatusNotFound, Error{Message: "Query not found"}), nil
	case errors.Is(err, engine.ErrNoResult):
		return Response(http.StatusBadRequest, Error{Message: err.Error()}), nil
	case err != nil:
		return ImplResponse{}, err
	}
	if req.Markdown {
		var buf bytes.Buffer
		if err := executor.FormatResult(&buf, result); err != nil {
			return ImplResponse{}, err
		}
		return Response(http.StatusOK, buf.String()), nil
	}
	return Response(http.StatusOK, result), nil
}

// GetQueryError - problems of a failed query
func (s *ExecutionAPIService) GetQueryError(ctx context.Context, queryId string) (ImplResponse, error) {
	info, ok := s.QueryManager.Get(queryId)
	if !ok {
		return Response(http.StatusNotFound, Error{Message: "Query not found"}), nil
	}
	if info.State != engine.QueryStateFailed {
		return Response(http.StatusBadRequest, Error{Message: "Query did not fail"}), nil
	}
	return Response(http.StatusOK, problems(info.Error)), nil
}

// CancelQuery - cancellation is asynchronous, poll the query for CANCELED
func (s *ExecutionAPIService) CancelQuery(ctx context.Context, queryId string) (ImplResponse, error) {
	err := s.QueryManager.Cancel(queryId)
	switch {
	case errors.Is(err, engine.ErrQueryNotFound):
		return Response(http.StatusNotFound, Error{Message: "Query not found"}), nil
	case errors.Is(err, engine.ErrQueryDone):
		return Response(http.StatusConflict, Error{Message: err.Error()}), nil
	case err != nil:
		return ImplResponse{}, err
	}
	return Response(http.StatusAccepted, nil), nil
}

// Explain - the physical plan and its cost, without running it
func (s *ExecutionAPIService) Explain(ctx context.Context, req ExplainRequest) (ImplResponse, error) {
	if req.Plan == nil {
		return Response(http.StatusBadRequest, problems(errors.New("plan is required"))), nil
	}
	text, c, err := s.QueryManager.Explain(req.Plan)
	if err != nil {
		return Response(http.StatusBadRequest, problems(err)), nil
	}
	return Response(http.StatusOK, ExplainResponse{Plan: text, Cost: costEstimate(c)}), nil
}

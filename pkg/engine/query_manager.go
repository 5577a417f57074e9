package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/cost"
	"tomydb/pkg/engine/executor"
	"tomydb/pkg/engine/executor/operators"
	"tomydb/pkg/engine/planner"
	"tomydb/pkg/engine/types"
	"tomydb/pkg/metadata"
)

type QueryState string

const (
	QueryStatePending  QueryState = "PENDING"
	QueryStatePlanning QueryState = "PLANNING"
	QueryStateRunning  QueryState = "RUNNING"
	QueryStateFinished QueryState = "FINISHED"
	QueryStateFailed   QueryState = "FAILED"
	QueryStateCanceled QueryState = "CANCELED"
)

func (s QueryState) Terminal() bool {
	return s == QueryStateFinished || s == QueryStateFailed || s == QueryStateCanceled
}

type QueryKind string

const (
	QueryKindSelect QueryKind = "SELECT"
	QueryKindCopy   QueryKind = "COPY"
)

var (
	ErrQueryNotFound = errors.New("query not found")
	ErrNoResult      = errors.New("query has no result")
	ErrQueryDone     = errors.New("query already finished")
)

type QueryInfo struct {
	ID          string
	Kind        QueryKind
	State       QueryState
	Definition  any
	Error       error
	Result      *types.ColumnarResult
	Cost        *cost.Cost
	SubmittedAt time.Time
	FinishedAt  time.Time

	cancel context.CancelFunc
}

type Options struct {
	ChunkSize int
	TablesDir string
	Logger    *slog.Logger
}

// QueryManager runs every submitted query in its own goroutine and keeps the
// result until it is flushed.
type QueryManager struct {
	metastore *metadata.Metastore
	env       *operators.Env
	planner   *planner.Planner
	tablesDir string
	logger    *slog.Logger

	mu      sync.RWMutex
	queries map[string]*QueryInfo
	wg      sync.WaitGroup
}

func NewQueryManager(m *metadata.Metastore, pool *buffer.Pool, opts Options) *QueryManager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	env := &operators.Env{Pool: pool, Logger: logger, ChunkSize: opts.ChunkSize}
	return &QueryManager{
		metastore: m,
		env:       env,
		planner:   planner.NewPlanner(m, env),
		tablesDir: opts.TablesDir,
		logger:    logger.With("component", "query_manager"),
		queries:   make(map[string]*QueryInfo),
	}
}

// SubmitSelect validates the plan and starts it. Validation problems are
// returned here and no query is created for them.
func (qm *QueryManager) SubmitSelect(plan *planner.PlanNode) (string, error) {
	node, err := planner.Bind(qm.metastore, plan)
	if err != nil {
		return "", err
	}
	return qm.start(QueryKindSelect, plan, func(ctx context.Context, q *QueryInfo) error {
		qm.updateState(q.ID, QueryStatePlanning)
		physical, err := qm.planner.Build(node)
		if err != nil {
			return err
		}
		defer physical.Close()
		c := physical.Cost()
		qm.mu.Lock()
		q.Cost = &c
		qm.mu.Unlock()

		qm.updateState(q.ID, QueryStateRunning)
		result, err := executor.Collect(ctx, qm.env.Pool, physical.Root, 0)
		if err != nil {
			return err
		}
		qm.mu.Lock()
		q.Result = result
		qm.mu.Unlock()
		return nil
	}), nil
}

func (qm *QueryManager) SubmitCopy(req executor.CopyRequest) (string, error) {
	if req.TableName == "" || req.CsvFilePath == "" {
		return "", types.NewVErr("missing destination table or source file", "copy")
	}
	if _, ok := qm.metastore.GetTable(req.TableName); !ok {
		return "", types.NewVErr(fmt.Sprintf("table %s does not exist", req.TableName), "copy")
	}
	return qm.start(QueryKindCopy, req, func(ctx context.Context, q *QueryInfo) error {
		qm.updateState(q.ID, QueryStateRunning)
		path, rows, err := executor.Copy(ctx, qm.metastore, qm.tablesDir, req)
		if err != nil {
			return err
		}
		qm.logger.Info("copy finished", "query_id", q.ID, "table", req.TableName, "file", path, "rows", rows)
		return nil
	}), nil
}

func (qm *QueryManager) start(kind QueryKind, definition any, run func(context.Context, *QueryInfo) error) string {
	ctx, cancel := context.WithCancel(context.Background())
	q := &QueryInfo{
		ID:          uuid.NewString(),
		Kind:        kind,
		State:       QueryStatePending,
		Definition:  definition,
		SubmittedAt: time.Now(),
		cancel:      cancel,
	}
	qm.mu.Lock()
	qm.queries[q.ID] = q
	qm.mu.Unlock()
	qm.logger.Info("query submitted", "query_id", q.ID, "kind", kind)

	qm.wg.Add(1)
	go func() {
		defer qm.wg.Done()
		defer cancel()
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
			qm.finish(ctx, q.ID, err)
		}()
		if err = ctx.Err(); err != nil {
			return
		}
		err = run(ctx, q)
	}()
	return q.ID
}

func (qm *QueryManager) finish(ctx context.Context, id string, err error) {
	state := QueryStateFinished
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		state = QueryStateCanceled
	default:
		state = QueryStateFailed
	}

	var elapsed time.Duration
	qm.mu.Lock()
	q, ok := qm.queries[id]
	if ok {
		q.State = state
		q.FinishedAt = time.Now()
		elapsed = q.FinishedAt.Sub(q.SubmittedAt)
		if state != QueryStateFinished {
			q.Error = err
			q.Result = nil
		}
	}
	qm.mu.Unlock()
	if !ok {
		return
	}

	switch state {
	case QueryStateFailed:
		qm.logger.Error("query failed", "query_id", id, "error", err)
	default:
		qm.logger.Info("query done", "query_id", id, "state", state, "elapsed", elapsed)
	}
}

func (qm *QueryManager) updateState(id string, state QueryState) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	if q, ok := qm.queries[id]; ok && !q.State.Terminal() {
		q.State = state
	}
	qm.logger.Debug("query state", "query_id", id, "state", state)
}

// Cancel stops a query that has not finished yet. The query moves to
// CANCELED once its goroutine notices.
func (qm *QueryManager) Cancel(id string) error {
	qm.mu.RLock()
	q, ok := qm.queries[id]
	var state QueryState
	if ok {
		state = q.State
	}
	qm.mu.RUnlock()
	if !ok {
		return ErrQueryNotFound
	}
	if state.Terminal() {
		return fmt.Errorf("%w: %s", ErrQueryDone, state)
	}
	q.cancel()
	return nil
}

// Get returns a snapshot of the query.
func (qm *QueryManager) Get(id string) (QueryInfo, bool) {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	q, ok := qm.queries[id]
	if !ok {
		return QueryInfo{}, false
	}
	return *q, true
}

// List returns every known query, oldest first.
func (qm *QueryManager) List() []QueryInfo {
	qm.mu.RLock()
	out := make([]QueryInfo, 0, len(qm.queries))
	for _, q := range qm.queries {
		out = append(out, *q)
	}
	qm.mu.RUnlock()
	slices.SortFunc(out, func(a, b QueryInfo) int { return a.SubmittedAt.Compare(b.SubmittedAt) })
	return out
}

// Result returns up to rowLimit rows (all when rowLimit <= 0). With flush the
// query is forgotten afterwards.
func (qm *QueryManager) Result(id string, rowLimit int, flush bool) (*types.ColumnarResult, error) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	q, ok := qm.queries[id]
	if !ok {
		return nil, ErrQueryNotFound
	}
	if q.Kind != QueryKindSelect {
		return nil, fmt.Errorf("%w: %s queries do not return rows", ErrNoResult, q.Kind)
	}
	if q.State != QueryStateFinished {
		return nil, fmt.Errorf("%w: query is %s", ErrNoResult, q.State)
	}
	res := trimResult(q.Result, rowLimit)
	if flush {
		delete(qm.queries, id)
	}
	return res, nil
}

// Explain binds and plans without running and returns the annotated
// operator tree with its total cost.
func (qm *QueryManager) Explain(plan *planner.PlanNode) (string, cost.Cost, error) {
	node, err := planner.Bind(qm.metastore, plan)
	if err != nil {
		return "", cost.Cost{}, err
	}
	physical, err := qm.planner.Build(node)
	if err != nil {
		return "", cost.Cost{}, err
	}
	defer physical.Close()
	return physical.Explain(), physical.Cost(), nil
}

// Close cancels whatever is still running and waits for it.
func (qm *QueryManager) Close() {
	qm.mu.RLock()
	for _, q := range qm.queries {
		if !q.State.Terminal() {
			q.cancel()
		}
	}
	qm.mu.RUnlock()
	qm.wg.Wait()
}

func trimResult(original *types.ColumnarResult, rowLimit int) *types.ColumnarResult {
	if original == nil || rowLimit <= 0 || uint64(rowLimit) >= original.RowCount {
		return original
	}
	trimmed := &types.ColumnarResult{
		RowCount:    uint64(rowLimit),
		ColumnNames: original.ColumnNames,
		Columns:     make([]any, len(original.Columns)),
	}
	for i, col := range original.Columns {
		trimmed.Columns[i] = col.([]any)[:rowLimit]
	}
	return trimmed
}

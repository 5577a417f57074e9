package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"tomydb/pkg/engine/types"
)

// A Route maps a method and path to a handler.
type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

// Router is implemented by every API controller.
type Router interface {
	Routes() []Route
}

// NewRouter registers the routes of all controllers, each wrapped in the
// request logger.
func NewRouter(logger *slog.Logger, routers ...Router) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")
	router := mux.NewRouter().StrictSlash(true)
	for _, api := range routers {
		for _, route := range api.Routes() {
			router.
				Methods(route.Method).
				Path(route.Pattern).
				Name(route.Name).
				Handler(requestLogger(logger, route.HandlerFunc, route.Name))
		}
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = EncodeJSONResponse(Error{Message: "no route for " + r.URL.Path}, http.StatusNotFound, w)
	})
	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogger(logger *slog.Logger, inner http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		inner.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"uri", r.RequestURI,
			"route", name,
			"status", rec.status,
			"elapsed", time.Since(start))
	})
}

// ImplResponse is what the services hand back to the controllers.
type ImplResponse struct {
	Code int
	Body any
}

func Response(code int, body any) ImplResponse {
	return ImplResponse{Code: code, Body: body}
}

type Error struct {
	Message string `json:"message"`
}

type MultipleProblemsError struct {
	Problems []types.ErrWithCtx `json:"problems"`
}

func problems(err error) MultipleProblemsError {
	return MultipleProblemsError{Problems: types.ToProblems(err)}
}

func EncodeJSONResponse(body any, status int, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if body == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(body)
}

func writeResponse(w http.ResponseWriter, result ImplResponse, err error) {
	if err != nil {
		_ = EncodeJSONResponse(Error{Message: err.Error()}, http.StatusInternalServerError, w)
		return
	}
	_ = EncodeJSONResponse(result.Body, result.Code, w)
}

// decodeJSON keeps numbers as json.Number so integer literals stay exact.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func badRequest(w http.ResponseWriter, err error) {
	_ = EncodeJSONResponse(problems(err), http.StatusBadRequest, w)
}

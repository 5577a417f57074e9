package service

import (
	"net/http"

	"github.com/gorilla/mux"
)

type SchemaAPIController struct {
	service *SchemaAPIService
}

func NewSchemaAPIController(s *SchemaAPIService) *SchemaAPIController {
	return &SchemaAPIController{service: s}
}

func (c *SchemaAPIController) Routes() []Route {
	return []Route{
		{"GetTables", http.MethodGet, "/tables", c.GetTables},
		{"CreateTable", http.MethodPost, "/tables", c.CreateTable},
		{"GetTable", http.MethodGet, "/tables/{name}", c.GetTable},
		{"DeleteTable", http.MethodDelete, "/tables/{name}", c.DeleteTable},
	}
}

func (c *SchemaAPIController) GetTables(w http.ResponseWriter, r *http.Request) {
	result, err := c.service.GetTables(r.Context())
	writeResponse(w, result, err)
}

func (c *SchemaAPIController) GetTable(w http.ResponseWriter, r *http.Request) {
	result, err := c.service.GetTable(r.Context(), mux.Vars(r)["name"])
	writeResponse(w, result, err)
}

func (c *SchemaAPIController) DeleteTable(w http.ResponseWriter, r *http.Request) {
	result, err := c.service.DeleteTable(r.Context(), mux.Vars(r)["name"])
	writeResponse(w, result, err)
}

func (c *SchemaAPIController) CreateTable(w http.ResponseWriter, r *http.Request) {
	var schema TableSchema
	if err := decodeJSON(r.Body, &schema); err != nil {
		badRequest(w, err)
		return
	}
	result, err := c.service.CreateTable(r.Context(), schema)
	writeResponse(w, result, err)
}

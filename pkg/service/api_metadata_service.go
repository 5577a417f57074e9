package service

import (
	"context"
	"net/http"
	"time"

	"tomydb/pkg/engine"
	"tomydb/pkg/metadata"
)

const Version = "1.0.0"

type SystemInformation struct {
	Version       string `json:"version"`
	Uptime        int64  `json:"uptime"`
	Tables        int    `json:"tables"`
	ActiveQueries int    `json:"activeQueries"`
}

// MetadataAPIService reports on the running server.
type MetadataAPIService struct {
	startTime    time.Time
	metastore    *metadata.Metastore
	queryManager *engine.QueryManager
}

func NewMetadataAPIService(m *metadata.Metastore, qm *engine.QueryManager) *MetadataAPIService {
	return &MetadataAPIService{startTime: time.Now(), metastore: m, queryManager: qm}
}

// GetSystemInfo - version, uptime in seconds and current load
func (s *MetadataAPIService) GetSystemInfo(ctx context.Context) (ImplResponse, error) {
	active := 0
	for _, q := range s.queryManager.List() {
		if !q.State.Terminal() {
			active++
		}
	}
	return Response(http.StatusOK, SystemInformation{
		Version:       Version,
		Uptime:        int64(time.Since(s.startTime).Seconds()),
		Tables:        len(s.metastore.ListTables()),
		ActiveQueries: active,
	}), nil
}

type MetadataAPIController struct {
	service *MetadataAPIService
}

func NewMetadataAPIController(s *MetadataAPIService) *MetadataAPIController {
	return &MetadataAPIController{service: s}
}

func (c *MetadataAPIController) Routes() []Route {
	return []Route{
		{"GetSystemInfo", http.MethodGet, "/system/info", c.GetSystemInfo},
	}
}

func (c *MetadataAPIController) GetSystemInfo(w http.ResponseWriter, r *http.Request) {
	result, err := c.service.GetSystemInfo(r.Context())
	writeResponse(w, result, err)
}

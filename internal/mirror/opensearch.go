// Package mirror indexes quarantined events into OpenSearch so failure
// history can be searched by investigation tooling.
package mirror

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"
)

// Config holds OpenSearch connection settings.
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	Index         string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:   "https://localhost:9200",
		Index: "tripstream-quarantine",
	}
}

// OpenSearch mirrors quarantine writes into a search index. Strictly best
// effort: the durable quarantine record lives in the store, this index is a
// convenience copy, so every failure here is logged and dropped.
type OpenSearch struct {
	client *opensearch.Client
	index  string
	logger *slog.Logger
}

// New creates the mirror client and verifies connectivity.
func New(cfg Config, logger *slog.Logger) (*OpenSearch, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("connect to opensearch: %w", err)
	}
	defer info.Body.Close()
	if info.IsError() {
		return nil, fmt.Errorf("opensearch info: %s", info.Status())
	}

	index := cfg.Index
	if index == "" {
		index = DefaultConfig().Index
	}
	return &OpenSearch{client: client, index: index, logger: logger}, nil
}

type failureDoc struct {
	EntityID  string         `json:"entity_id"`
	Reason    string         `json:"reason"`
	Payload   map[string]any `json:"payload,omitempty"`
	IndexedAt time.Time      `json:"indexed_at"`
}

// IndexFailure writes one quarantined event into the index.
func (m *OpenSearch) IndexFailure(ctx context.Context, entityID, reason string, payload map[string]any) {
	doc := failureDoc{
		EntityID:  entityID,
		Reason:    reason,
		Payload:   payload,
		IndexedAt: time.Now().UTC(),
	}

	req := opensearchapi.IndexRequest{
		Index: m.index,
		Body:  opensearchutil.NewJSONReader(doc),
	}

	res, err := req.Do(ctx, m.client)
	if err != nil {
		m.logger.Warn("quarantine mirror index failed", "entity_id", entityID, "error", err)
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		m.logger.Warn("quarantine mirror index rejected", "entity_id", entityID, "status", res.Status())
	}
}

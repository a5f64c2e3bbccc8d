package search

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const idxPanels = "layout_panels"

// Meili indexes panel labels in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the panel index.
// The client is returned even when the server is down; Healthy reports
// reachability and a background loop reconfigures on recovery.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxPanels,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", zap.String("index", idxPanels), zap.Error(err))
	}

	index := m.client.Index(idxPanels)
	filterable := []interface{}{"projectId", "canonicalPanel", "canonicalRoll"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", zap.String("index", idxPanels), zap.Error(err))
	}
	searchable := []string{"canonicalPanel", "canonicalRoll", "panelNumber", "rollNumber"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.String("index", idxPanels), zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search matches the canonical form when the query normalizes, otherwise the
// raw text, within the query's project.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}
	text := q.Text
	if q.Canonical != "" {
		text = q.Canonical
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID: idxPanels,
			Query:    text,
			Limit:    limit,
			Offset:   int64(q.Offset),
			Filter:   []string{fmt.Sprintf("projectId = %q", q.ProjectID)},
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, resultFromRecord(hitToRecord(hit), q.Canonical))
		}
	}
	return results, total, nil
}

func hitToRecord(hit meili.Hit) PanelRecord {
	return PanelRecord{
		ID:             decodeString(hit, "id"),
		PanelID:        decodeString(hit, "panelId"),
		ProjectID:      decodeString(hit, "projectId"),
		Shape:          decodeString(hit, "shape"),
		PanelNumber:    decodeString(hit, "panelNumber"),
		RollNumber:     decodeString(hit, "rollNumber"),
		CanonicalPanel: decodeString(hit, "canonicalPanel"),
		CanonicalRoll:  decodeString(hit, "canonicalRoll"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func (m *Meili) IndexPanels(records []PanelRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPanels).AddDocuments(records, nil)
	return err
}

func (m *Meili) DeletePanel(docID string) error {
	_, err := m.client.Index(idxPanels).DeleteDocument(docID, nil)
	return err
}

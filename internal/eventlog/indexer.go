package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/logger"
)

const taskEventsIndex = "tm2pc-task-events"

// Indexer ships tm2pc.TaskEvent documents into Elasticsearch for
// after-the-fact search ("find every task event for callee X that ended
// in Error last week"), independent of the live order store's own
// bounded retention window.
type Indexer struct {
	client *elasticsearch.Client
	logger logger.Logger
}

func NewIndexer(client *elasticsearch.Client, log logger.Logger) *Indexer {
	return &Indexer{client: client, logger: log}
}

func (i *Indexer) InitializeIndex(ctx context.Context) error {
	mapping := `{
		"mappings": {
			"properties": {
				"ttid": {"type": "long"},
				"toid": {"type": "long"},
				"kind": {"type": "keyword"},
				"status": {"type": "keyword"},
				"attempt": {"type": "integer"},
				"at": {"type": "date"},
				"receipt": {"type": "text"}
			}
		}
	}`

	req := esapi.IndicesCreateRequest{
		Index: taskEventsIndex,
		Body:  strings.NewReader(mapping),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("eventlog: create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 400 {
		return fmt.Errorf("eventlog: create index: %s", res.String())
	}
	return nil
}

func (i *Indexer) IndexTaskEvent(ctx context.Context, e tm2pc.TaskEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("eventlog: marshal task event: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      taskEventsIndex,
		DocumentID: fmt.Sprintf("%d", e.Ttid),
		Body:       bytes.NewReader(data),
		Refresh:    "false",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("eventlog: index task event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if i.logger != nil {
			i.logger.Warn("eventlog: indexing task event failed", "ttid", e.Ttid, "response", res.String())
		}
		return fmt.Errorf("eventlog: index task event: %s", res.String())
	}
	return nil
}

// SearchByCallee finds task events for a callee, optionally narrowed to a
// status (e.g. "Error" to find every failed dispatch to a participant).
func (i *Indexer) SearchByCallee(ctx context.Context, callee string, status tm2pc.TaskStatus) ([]tm2pc.TaskEvent, error) {
	must := []map[string]interface{}{
		{"match": map[string]interface{}{"kind": callee}},
	}
	if status != "" {
		must = append(must, map[string]interface{}{"match": map[string]interface{}{"status": string(status)}})
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("eventlog: encode query: %w", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(taskEventsIndex),
		i.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("eventlog: search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("eventlog: search: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source tm2pc.TaskEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("eventlog: decode search response: %w", err)
	}

	out := make([]tm2pc.TaskEvent, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

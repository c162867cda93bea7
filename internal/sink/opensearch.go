package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/fuseid-project/fuseid/internal/core"
)

// OpenSearchSink indexes alerts into daily indices
// (<prefix>-YYYY.MM.DD) for dashboarding.
type OpenSearchSink struct {
	client      *opensearch.Client
	indexPrefix string
}

// NewOpenSearchSink connects to OpenSearch and verifies it responds.
func NewOpenSearchSink(cfg core.OpenSearchSinkConfig) (*OpenSearchSink, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Insecure,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("creating opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("pinging opensearch: %w", err)
	}
	defer info.Body.Close()
	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = "hybrid-ids-alerts"
	}
	return &OpenSearchSink{client: client, indexPrefix: prefix}, nil
}

func (s *OpenSearchSink) Name() string { return "opensearch" }

func (s *OpenSearchSink) Write(alert *core.UnifiedAlert) error {
	data, err := alert.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req := opensearchapi.IndexRequest{
		Index:      s.indexName(alert.Timestamp),
		DocumentID: alert.ID,
		Body:       bytes.NewReader(data),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("indexing alert: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch index error: %s", res.Status())
	}
	return nil
}

func (s *OpenSearchSink) indexName(t time.Time) string {
	return fmt.Sprintf("%s-%s", s.indexPrefix, t.UTC().Format("2006.01.02"))
}

func (s *OpenSearchSink) Close() error { return nil }

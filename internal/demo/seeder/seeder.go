package seeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

// Service seeds a demo table through the public API: it generates a synthetic
// patient CSV, imports it with a vector index, and runs a smoke query.
type Service struct {
	cfg       Config
	log       *slog.Logger
	http      *http.Client
	generator *Generator
}

type importResponse struct {
	ImportID     string `json:"import_id"`
	RowsInserted int64  `json:"rows_inserted"`
	DurationMs   int64  `json:"duration_ms"`
	UploadKey    string `json:"upload_key"`
	ReceiptKey   string `json:"receipt_key"`
}

type queryResponse struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func NewService(cfg Config, logger *slog.Logger, client *http.Client) (*Service, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if strings.TrimSpace(cfg.TableName) == "" {
		return nil, fmt.Errorf("table name is required")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	return &Service{
		cfg:       cfg,
		log:       logger,
		http:      client,
		generator: NewGenerator(cfg.Seed, cfg.EmbeddingDim),
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.importDataset(ctx); err != nil {
		return err
	}
	if !s.cfg.RunQuery {
		return nil
	}
	return s.smokeQuery(ctx)
}

func (s *Service) importDataset(ctx context.Context) error {
	csvText := s.generator.CSV(s.cfg.RowCount)

	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	part, err := writer.CreateFormFile("file", s.cfg.TableName+".csv")
	if err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write([]byte(csvText)); err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	fields := map[string]string{
		"schema":      s.cfg.Schema,
		"primary_key": "ID",
		"existence":   s.cfg.Existence,
	}
	if s.cfg.VectorIndex {
		fields["indexes"] = `[{"column": "Embedding", "kind": "vector", "metric": "cosine"}]`
	}
	for key, value := range fields {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("build upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("build upload: %w", err)
	}

	endpoint := strings.TrimRight(s.cfg.APIBaseURL, "/") + "/v1/import/" + url.PathEscape(s.cfg.TableName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buffer)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	s.authorize(req)

	var response importResponse
	status, body, err := s.do(req, &response)
	if err != nil {
		return fmt.Errorf("import request failed: %w", err)
	}
	if status != http.StatusCreated {
		return fmt.Errorf("import request status %d: %s", status, strings.TrimSpace(string(body)))
	}

	s.log.Info(
		"seeded demo table",
		slog.String("table", s.cfg.TableName),
		slog.String("import_id", response.ImportID),
		slog.Int64("rows_inserted", response.RowsInserted),
		slog.Int64("duration_ms", response.DurationMs),
		slog.String("upload_key", response.UploadKey),
	)
	return nil
}

func (s *Service) smokeQuery(ctx context.Context) error {
	schemaName := s.cfg.Schema
	if schemaName == "" {
		schemaName = "SQLUser"
	}
	payload, _ := json.Marshal(map[string]any{
		"sql":       fmt.Sprintf("SELECT Ward, COUNT(*) AS patients FROM %s.%s GROUP BY Ward", schemaName, s.cfg.TableName),
		"row_limit": 20,
	})

	endpoint := strings.TrimRight(s.cfg.APIBaseURL, "/") + "/v1/query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	var response queryResponse
	status, body, err := s.do(req, &response)
	if err != nil {
		return fmt.Errorf("query request failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("query request status %d: %s", status, strings.TrimSpace(string(body)))
	}

	s.log.Info(
		"demo query succeeded",
		slog.String("table", s.cfg.TableName),
		slog.Int("wards", len(response.Rows)),
	)
	return nil
}

func (s *Service) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", s.cfg.APIKey)
	}
}

func (s *Service) do(req *http.Request, responseBody any) (int, []byte, error) {
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	if responseBody != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, responseBody); err != nil {
			return resp.StatusCode, body, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, body, nil
}

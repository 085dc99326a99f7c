// Package irisdmctl implements the command-line client for the irisdm API.
// Every command maps onto one HTTP endpoint; output is pretty-printed JSON.
package irisdmctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("irisdmctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "irisdm API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	schemaName := fs.String("schema", "", "schema to address (defaults to the server's schema)")
	sqlText := fs.String("sql", "", "SQL statement for the query command")
	question := fs.String("question", "", "natural-language question for the translate command")
	primaryKey := fs.String("primary-key", "", "comma-separated primary key columns for import")
	existence := fs.String("existence", "", "existence policy for import: fail, skip or drop")
	limit := fs.Int("limit", 0, "row limit for rows and query commands")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	request := apiRequest{schema: *schemaName, limit: *limit}
	switch command {
	case "health":
		request.method, request.path = http.MethodGet, "/v1/health"
	case "ready":
		request.method, request.path = http.MethodGet, "/v1/ready"
	case "schemas":
		request.method, request.path = http.MethodGet, "/v1/schemas"
	case "tables":
		request.method, request.path = http.MethodGet, "/v1/tables"
	case "describe":
		table, ok := tableArg(fs, stderr, command)
		if !ok {
			return 2
		}
		request.method, request.path = http.MethodGet, "/v1/tables/"+url.PathEscape(table)
	case "rows":
		table, ok := tableArg(fs, stderr, command)
		if !ok {
			return 2
		}
		request.method, request.path = http.MethodGet, "/v1/tables/"+url.PathEscape(table)+"/rows"
	case "profile":
		table, ok := tableArg(fs, stderr, command)
		if !ok {
			return 2
		}
		request.method, request.path = http.MethodGet, "/v1/tables/"+url.PathEscape(table)+"/profile"
	case "imports":
		table, ok := tableArg(fs, stderr, command)
		if !ok {
			return 2
		}
		request.method, request.path = http.MethodGet, "/v1/tables/"+url.PathEscape(table)+"/imports"
	case "drop":
		table, ok := tableArg(fs, stderr, command)
		if !ok {
			return 2
		}
		request.method, request.path = http.MethodDelete, "/v1/tables/"+url.PathEscape(table)
	case "query":
		if strings.TrimSpace(*sqlText) == "" {
			_, _ = fmt.Fprintln(stderr, "query requires -sql")
			return 2
		}
		request.method, request.path = http.MethodPost, "/v1/query"
		payload := map[string]any{"sql": *sqlText}
		if params := fs.Args()[1:]; len(params) > 0 {
			values := make([]any, len(params))
			for i, param := range params {
				values[i] = param
			}
			payload["params"] = values
		}
		if *limit > 0 {
			payload["row_limit"] = *limit
		}
		request.jsonBody = payload
	case "translate":
		if strings.TrimSpace(*question) == "" {
			_, _ = fmt.Fprintln(stderr, "translate requires -question")
			return 2
		}
		request.method, request.path = http.MethodPost, "/v1/query/translate"
		payload := map[string]any{"question": *question}
		if strings.TrimSpace(*schemaName) != "" {
			payload["schema"] = *schemaName
		}
		request.jsonBody = payload
	case "import":
		if fs.NArg() < 3 {
			_, _ = fmt.Fprintln(stderr, "import requires a table name and a file path")
			return 2
		}
		request.method = http.MethodPost
		request.path = "/v1/import/" + url.PathEscape(strings.TrimSpace(fs.Arg(1)))
		request.uploadPath = fs.Arg(2)
		request.primaryKey = *primaryKey
		request.existence = *existence
	case "preview":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "preview requires a file path")
			return 2
		}
		request.method, request.path = http.MethodPost, "/v1/import/preview"
		request.uploadPath = fs.Arg(1)
		request.sql = *sqlText
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + request.path
	code, responseBody, err := doRequest(ctx, client, endpoint, *apiKey, request)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

type apiRequest struct {
	method     string
	path       string
	schema     string
	limit      int
	jsonBody   map[string]any
	uploadPath string
	primaryKey string
	existence  string
	sql        string
}

func doRequest(ctx context.Context, client *http.Client, endpoint, apiKey string, request apiRequest) (int, []byte, error) {
	var body io.Reader
	contentType := ""

	switch {
	case request.uploadPath != "":
		buffer, formContentType, err := multipartBody(request)
		if err != nil {
			return 0, nil, err
		}
		body = buffer
		contentType = formContentType
	case request.jsonBody != nil:
		encoded, err := json.Marshal(request.jsonBody)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, request.method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	query := req.URL.Query()
	if request.method == http.MethodGet && strings.TrimSpace(request.schema) != "" {
		query.Set("schema", strings.TrimSpace(request.schema))
	}
	if request.method == http.MethodGet && request.limit > 0 {
		query.Set("limit", fmt.Sprint(request.limit))
	}
	req.URL.RawQuery = query.Encode()

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func multipartBody(request apiRequest) (*bytes.Buffer, string, error) {
	file, err := os.Open(request.uploadPath)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = file.Close() }()

	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	part, err := writer.CreateFormFile("file", filepath.Base(request.uploadPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}

	fields := map[string]string{
		"schema":      request.schema,
		"primary_key": request.primaryKey,
		"existence":   request.existence,
		"sql":         request.sql,
	}
	for key, value := range fields {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buffer, writer.FormDataContentType(), nil
}

func tableArg(fs *flag.FlagSet, stderr io.Writer, command string) (string, bool) {
	if fs.NArg() < 2 {
		_, _ = fmt.Fprintf(stderr, "%s requires a table name\n", command)
		return "", false
	}
	return strings.TrimSpace(fs.Arg(1)), true
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: irisdmctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                   GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                    GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  schemas                  GET /v1/schemas")
	_, _ = fmt.Fprintln(w, "  tables                   GET /v1/tables")
	_, _ = fmt.Fprintln(w, "  describe <table>         GET /v1/tables/{table}")
	_, _ = fmt.Fprintln(w, "  rows <table>             GET /v1/tables/{table}/rows")
	_, _ = fmt.Fprintln(w, "  profile <table>          GET /v1/tables/{table}/profile")
	_, _ = fmt.Fprintln(w, "  imports <table>          GET /v1/tables/{table}/imports")
	_, _ = fmt.Fprintln(w, "  drop <table>             DELETE /v1/tables/{table}")
	_, _ = fmt.Fprintln(w, "  query -sql <stmt> [params...]  POST /v1/query")
	_, _ = fmt.Fprintln(w, "  translate -question <q>  POST /v1/query/translate")
	_, _ = fmt.Fprintln(w, "  import <table> <file>    POST /v1/import/{table}")
	_, _ = fmt.Fprintln(w, "  preview <file>           POST /v1/import/preview")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

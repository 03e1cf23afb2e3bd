package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/pkg/converters"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

const maxErrorBody = 1024

// Client talks to the document extraction service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	converter  *converters.JSONConverter
	logger     logger.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func NewClient(baseURL, apiKey string, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		converter:  converters.NewJSONConverter(),
		logger:     log.Named("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListDocuments returns the summaries known to the service.
func (c *Client) ListDocuments(ctx context.Context) ([]models.Document, error) {
	body, err := c.do(ctx, "list", http.MethodGet, "/documents", nil)
	if err != nil {
		return nil, err
	}
	docs, err := c.converter.DecodeList(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document list: %w", err)
	}
	return docs, nil
}

// GetDocument returns the full record for one document.
func (c *Client) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	body, err := c.do(ctx, "detail", http.MethodGet, "/documents/"+url.PathEscape(documentID), nil)
	if err != nil {
		return nil, err
	}
	doc, err := c.converter.DecodeDocument(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", documentID, err)
	}
	return doc, nil
}

// GetStatus polls the lightweight status endpoint. The result is a partial
// record: only the identity, status and progress are set.
func (c *Client) GetStatus(ctx context.Context, documentID string) (*models.Document, error) {
	body, err := c.do(ctx, "status", http.MethodGet, "/documents/"+url.PathEscape(documentID)+"/status", nil)
	if err != nil {
		return nil, err
	}
	var ws converters.WireStatus
	if err := json.Unmarshal(body, &ws); err != nil {
		return nil, fmt.Errorf("failed to decode status %s: %w", documentID, err)
	}
	return &models.Document{
		ID:            documentID,
		Status:        converters.ConvertStatus(ws.Status),
		Progress:      ws.Progress,
		StatusMessage: ws.Message,
	}, nil
}

// FetchFile downloads the uploaded file as stored by the extraction service.
func (c *Client) FetchFile(ctx context.Context, documentID string) ([]byte, error) {
	return c.do(ctx, "file", http.MethodGet, "/documents/"+url.PathEscape(documentID)+"/file", nil)
}

// GenerateReport asks the service for its narrative markdown report.
func (c *Client) GenerateReport(ctx context.Context, documentID string) (string, error) {
	body, err := c.do(ctx, "report", http.MethodPost, "/documents/"+url.PathEscape(documentID)+"/report", nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		Report   string `json:"report"`
		Markdown string `json:"markdown"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode report %s: %w", documentID, err)
	}
	if resp.Report != "" {
		return resp.Report, nil
	}
	return resp.Markdown, nil
}

// Chat sends a question about one document.
func (c *Client) Chat(ctx context.Context, documentID, query string) (*models.ChatAnswer, error) {
	payload, err := json.Marshal(converters.WireChatRequest{DocumentID: documentID, Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}
	body, err := c.do(ctx, "chat", http.MethodPost, "/documents/chat", payload)
	if err != nil {
		return nil, err
	}
	var wr converters.WireChatResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, fmt.Errorf("failed to decode chat %s: %w", documentID, err)
	}
	return converters.ConvertChatResponse(&wr), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, error) {
	u := c.baseURL + path
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, &models.NetworkError{Op: op, URL: u, Err: err}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Collaborator request failed", logger.String("op", op), logger.Error(err))
		return nil, &models.NetworkError{Op: op, URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &models.NetworkError{Op: op, URL: u, StatusCode: resp.StatusCode, Err: models.ErrNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &models.NetworkError{
			Op:         op,
			URL:        u,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(msg))),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.NetworkError{Op: op, URL: u, StatusCode: resp.StatusCode, Err: err}
	}
	return body, nil
}

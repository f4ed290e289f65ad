// Package api - типизированный HTTP клиент к эндпоинтам загрузки и состояния формы.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"tenderdocs/internal/domain"
)

// Error - ответ сервера с ok=false
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

type envelope struct {
	OK        bool            `json:"ok"`
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"errorCode"`
	Error     string          `json:"error"`
	Details   map[string]any  `json:"details"`
}

type InitiateRequest struct {
	TenderID      uuid.UUID `json:"tenderId"`
	QuestionID    string    `json:"questionId"`
	FileName      string    `json:"fileName"`
	FileSizeBytes int64     `json:"fileSizeBytes"`
	ContentType   string    `json:"contentType"`
}

// Session - ответ initiate: либо Parts для многочастной загрузки, либо URL
type Session struct {
	UploadSessionID  uuid.UUID              `json:"uploadSessionId"`
	ProviderUploadID string                 `json:"providerUploadId"`
	ObjectKey        string                 `json:"objectKey"`
	PartSizeBytes    int64                  `json:"partSizeBytes"`
	TotalParts       int                    `json:"totalParts"`
	ExpiresAt        time.Time              `json:"expiresAt"`
	Parts            []domain.PresignedPart `json:"parts,omitempty"`
	URL              string                 `json:"url,omitempty"`
}

func (s *Session) IsSinglePart() bool {
	return s.URL != "" && len(s.Parts) == 0
}

type CompleteRequest struct {
	TenderID        uuid.UUID              `json:"tenderId"`
	UploadSessionID uuid.UUID              `json:"uploadSessionId"`
	Parts           []domain.CompletedPart `json:"parts,omitempty"`
	ETag            string                 `json:"etag,omitempty"`
}

type AbortRequest struct {
	TenderID        uuid.UUID `json:"tenderId"`
	UploadSessionID uuid.UUID `json:"uploadSessionId"`
}

type SubmitResult struct {
	Status      domain.SubmissionStatus `json:"status"`
	SubmittedAt time.Time               `json:"submittedAt"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Minute}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*Session, error) {
	var session Session
	if err := c.call(ctx, http.MethodPost, "/v1/uploads/initiate", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) Complete(ctx context.Context, req CompleteRequest) (*domain.FileSummary, error) {
	var summary domain.FileSummary
	if err := c.call(ctx, http.MethodPost, "/v1/uploads/complete", req, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) Abort(ctx context.Context, req AbortRequest) error {
	return c.call(ctx, http.MethodPost, "/v1/uploads/abort", req, nil)
}

func (c *Client) Status(ctx context.Context, tenderID uuid.UUID) (*domain.UploadStatus, error) {
	var status domain.UploadStatus
	path := "/v1/uploads/status?tenderId=" + url.QueryEscape(tenderID.String())
	if err := c.call(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) Submit(ctx context.Context, tenderID uuid.UUID) (*SubmitResult, error) {
	var result SubmitResult
	body := map[string]uuid.UUID{"tenderId": tenderID}
	if err := c.call(ctx, http.MethodPost, "/v1/uploads/submit", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetFormState(ctx context.Context, submissionID uuid.UUID) (*domain.FormState, error) {
	var state domain.FormState
	if err := c.call(ctx, http.MethodGet, formStatePath(submissionID), nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *Client) SaveFormState(ctx context.Context, submissionID uuid.UUID, state domain.FormState) error {
	return c.call(ctx, http.MethodPost, formStatePath(submissionID), state, nil)
}

func formStatePath(submissionID uuid.UUID) string {
	return "/v1/application/" + submissionID.String() + "/state"
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: failed to decode response (status %d): %w", method, path, resp.StatusCode, err)
	}
	if !env.OK {
		return &Error{Status: resp.StatusCode, Code: env.ErrorCode, Message: env.Error, Details: env.Details}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: failed to decode data: %w", method, path, err)
		}
	}
	return nil
}

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
	"sync"
	"time"

	"workhub/internal/core/domain"
	"workhub/internal/core/ports"
	apperrors "workhub/pkg/errors"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotFound         = errors.New("not found")
)

// APIError is a non-2xx response decoded from the {error, message} envelope.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

type ProjectSuggestion struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type TaskSuggestion struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ProjectID string `json:"project_id"`
}

type SearchSuggestions struct {
	Projects []ProjectSuggestion `json:"projects"`
	Tasks    []TaskSuggestion    `json:"tasks"`
}

// API is the REST client. The bearer token set with SetBearer is sent on
// every request.
type API struct {
	baseURL    string
	httpClient *http.Client

	mu     sync.RWMutex
	bearer string
}

func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (a *API) BaseURL() string { return a.baseURL }

func (a *API) SetBearer(token string) {
	a.mu.Lock()
	a.bearer = token
	a.mu.Unlock()
}

func (a *API) ClearBearer() { a.SetBearer("") }

// Authorization returns the header value sent with requests, or "".
func (a *API) Authorization() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.bearer == "" {
		return ""
	}
	return "Bearer " + a.bearer
}

func (a *API) LogIn(ctx context.Context, email, password string) (*ports.LogInResult, error) {
	var resp ports.LogInResult
	body := map[string]string{"email": email, "password": password}
	if err := a.do(ctx, http.MethodPost, "/api/auth/log_in", body, &resp); err != nil {
		return nil, fmt.Errorf("log in: %w", err)
	}
	return &resp, nil
}

func (a *API) Me(ctx context.Context) (*domain.PublicUser, error) {
	var user domain.PublicUser
	if err := a.do(ctx, http.MethodGet, "/api/users/me", nil, &user); err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	return &user, nil
}

func (a *API) Workspaces(ctx context.Context) ([]domain.WorkspaceWithRole, error) {
	var list []domain.WorkspaceWithRole
	if err := a.do(ctx, http.MethodGet, "/api/workspaces", nil, &list); err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	return list, nil
}

func (a *API) UnreadCount(ctx context.Context) (int, error) {
	var resp struct {
		UnreadCount int `json:"unread_count"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/notifications/inbox_count", nil, &resp); err != nil {
		return 0, fmt.Errorf("inbox count: %w", err)
	}
	return resp.UnreadCount, nil
}

func (a *API) Search(ctx context.Context, query string) (SearchSuggestions, error) {
	var resp SearchSuggestions
	path := "/api/search?" + url.Values{"query": {query}}.Encode()
	if err := a.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return SearchSuggestions{}, fmt.Errorf("search: %w", err)
	}
	return resp, nil
}

func (a *API) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth := a.Authorization(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, respBody)
	}
	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	var env apperrors.Envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		return &APIError{Status: status, Kind: env.Error, Message: env.Message}
	}
	return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
}

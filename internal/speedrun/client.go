package speedrun

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the speedrun.com v2 API endpoint
const DefaultBaseURL = "https://www.speedrun.com/api/v2"

// DefaultUserAgent identifies the bot to the service
const DefaultUserAgent = "gameRulesRepo"

// maxResponseBytes caps how much of a response body is read (GetGameData
// of a large game is a few MB)
const maxResponseBytes = 64 << 20

// ErrAPI is matched by every error the service reports
var ErrAPI = errors.New("speedrun api error")

// APIError is returned when the service rejects a call
type APIError struct {
	Method     string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Method, e.Message, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return ErrAPI
}

// Client is the subset of the speedrun.com API used to mirror rules
type Client interface {
	// GetSession returns the account the client is authenticated as
	GetSession(ctx context.Context) (*Session, error)
	// GetGameData returns every category, level, variable and value of a game
	GetGameData(ctx context.Context, gameID string) (*GameData, error)
	GetGameSettings(ctx context.Context, gameID string) (*GameSettings, error)
	PutGameSettings(ctx context.Context, gameID string, settings *GameSettings) error
	PutCategoryUpdate(ctx context.Context, gameID, categoryID string, category *Category) error
	PutLevelUpdate(ctx context.Context, gameID, levelID string, level *Level) error
	// PutVariableUpdate replaces a variable together with its values
	PutVariableUpdate(ctx context.Context, gameID, variableID string, variable *Variable, values []Value) error
	// GetAuditLogList returns one page of the game's audit log, newest first
	GetAuditLogList(ctx context.Context, gameID string, page int) (*AuditLogList, error)
}

// HTTPClient implements Client against the JSON API
type HTTPClient struct {
	baseURL   string
	userAgent string
	sessionID string
	http      *http.Client
}

// NewHTTPClient creates a client authenticated with the given PHPSESSID
func NewHTTPClient(baseURL, userAgent, sessionID string, timeout time.Duration) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		sessionID: sessionID,
		http:      &http.Client{Timeout: timeout},
	}
}

// GetSession returns the authenticated account and its moderation records
func (c *HTTPClient) GetSession(ctx context.Context) (*Session, error) {
	var resp struct {
		Session Session `json:"session"`
	}
	if err := c.call(ctx, "GetSession", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

// GetGameData fetches the full entity snapshot of a game
func (c *HTTPClient) GetGameData(ctx context.Context, gameID string) (*GameData, error) {
	var data GameData
	if err := c.call(ctx, "GetGameData", map[string]any{"gameId": gameID}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetGameSettings fetches the settings document of a game
func (c *HTTPClient) GetGameSettings(ctx context.Context, gameID string) (*GameSettings, error) {
	var resp struct {
		Settings GameSettings `json:"settings"`
	}
	if err := c.call(ctx, "GetGameSettings", map[string]any{"gameId": gameID}, &resp); err != nil {
		return nil, err
	}
	return &resp.Settings, nil
}

// PutGameSettings writes back a settings document
func (c *HTTPClient) PutGameSettings(ctx context.Context, gameID string, settings *GameSettings) error {
	return c.call(ctx, "PutGameSettings", map[string]any{
		"gameId":   gameID,
		"settings": settings,
	}, nil)
}

// PutCategoryUpdate writes back a category
func (c *HTTPClient) PutCategoryUpdate(ctx context.Context, gameID, categoryID string, category *Category) error {
	return c.call(ctx, "PutCategoryUpdate", map[string]any{
		"gameId":     gameID,
		"categoryId": categoryID,
		"category":   category,
	}, nil)
}

// PutLevelUpdate writes back a level
func (c *HTTPClient) PutLevelUpdate(ctx context.Context, gameID, levelID string, level *Level) error {
	return c.call(ctx, "PutLevelUpdate", map[string]any{
		"gameId":  gameID,
		"levelId": levelID,
		"level":   level,
	}, nil)
}

// PutVariableUpdate writes back a variable and its values
func (c *HTTPClient) PutVariableUpdate(ctx context.Context, gameID, variableID string, variable *Variable, values []Value) error {
	if values == nil {
		values = []Value{}
	}
	return c.call(ctx, "PutVariableUpdate", map[string]any{
		"gameId":     gameID,
		"variableId": variableID,
		"variable":   variable,
		"values":     values,
	}, nil)
}

// GetAuditLogList fetches one page of the audit log
func (c *HTTPClient) GetAuditLogList(ctx context.Context, gameID string, page int) (*AuditLogList, error) {
	var list AuditLogList
	if err := c.call(ctx, "GetAuditLogList", map[string]any{"gameId": gameID, "page": page}, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// call posts params as JSON to the named method and decodes the reply into out
func (c *HTTPClient) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.sessionID != "" {
		req.AddCookie(&http.Cookie{Name: "PHPSESSID", Value: c.sessionID})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	// The service reports failures as {"error": "..."}, sometimes with a 2xx
	// status. A null or empty error is success.
	msg := gjson.GetBytes(data, "error")
	reported := msg.Type == gjson.String && msg.String() != ""
	if resp.StatusCode < 200 || resp.StatusCode > 299 || reported {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Message: msg.String()}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	return nil
}

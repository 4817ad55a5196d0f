// Package feishu implements the platform adapter for Feishu (Lark) apps:
// an HTTP client for outbound messages and a long-connection listener for
// inbound events.
package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/agentsocial/agentsocial/internal/common/errors"
	"github.com/agentsocial/agentsocial/internal/common/logger"
)

const defaultBaseURL = "https://open.feishu.cn"

// tokenSlack renews the tenant token this long before it expires.
const tokenSlack = 5 * time.Minute

// Client is an outbound message client for one Feishu app.
type Client struct {
	appID     string
	appSecret string
	baseURL   string
	http      *http.Client
	logger    *logger.Logger

	mu          sync.Mutex
	tenantToken string
	tokenExpiry time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, for self-hosted deployments and
// tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a Feishu client for one app identity.
func NewClient(appID, appSecret string, log *logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.Default()
	}
	c := &Client{
		appID:     appID,
		appSecret: appSecret,
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: 30 * time.Second},
		logger:    log.WithFields(zap.String("component", "feishu"), zap.String("app_id", appID)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AppID returns the app identity this client sends as.
func (c *Client) AppID() string {
	return c.appID
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

// token returns a valid tenant access token, fetching a fresh one when the
// cached token is near expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tenantToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.tenantToken, nil
	}

	body, _ := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/open-apis/auth/v3/tenant_access_token/internal", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.ServiceUnavailable("feishu")
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tr.Code != 0 {
		return "", fmt.Errorf("tenant token request failed: %d %s", tr.Code, tr.Msg)
	}

	c.tenantToken = tr.TenantAccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tr.Expire)*time.Second - tokenSlack)
	return c.tenantToken, nil
}

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) call(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.ServiceUnavailable("feishu")
	}
	defer resp.Body.Close()

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if ar.Code != 0 {
		return nil, fmt.Errorf("feishu api %s failed: %d %s", path, ar.Code, ar.Msg)
	}
	return ar.Data, nil
}

// SendText sends a plain text message to a chat.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	content, _ := json.Marshal(map[string]string{"text": text})
	_, err := c.call(ctx, http.MethodPost, "/open-apis/im/v1/messages?receive_id_type=chat_id", map[string]string{
		"receive_id": chatID,
		"msg_type":   "text",
		"content":    string(content),
	})
	if err != nil {
		c.logger.Warn("send text failed", zap.String("chat_id", chatID), zap.Error(err))
	}
	return err
}

// SendCard sends an interactive card to a chat.
func (c *Client) SendCard(ctx context.Context, chatID string, card map[string]interface{}) error {
	content, err := json.Marshal(card)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, http.MethodPost, "/open-apis/im/v1/messages?receive_id_type=chat_id", map[string]string{
		"receive_id": chatID,
		"msg_type":   "interactive",
		"content":    string(content),
	})
	if err != nil {
		c.logger.Warn("send card failed", zap.String("chat_id", chatID), zap.Error(err))
	}
	return err
}

type chatListData struct {
	Items []struct {
		ChatID string `json:"chat_id"`
	} `json:"items"`
	HasMore   bool   `json:"has_more"`
	PageToken string `json:"page_token"`
}

// JoinedChats lists the chats the bot is a member of, following pagination.
func (c *Client) JoinedChats(ctx context.Context) ([]string, error) {
	var chats []string
	pageToken := ""

	for {
		path := "/open-apis/im/v1/chats?page_size=100"
		if pageToken != "" {
			path += "&page_token=" + pageToken
		}

		data, err := c.call(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var page chatListData
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("decoding chat list: %w", err)
		}
		for _, item := range page.Items {
			chats = append(chats, item.ChatID)
		}

		if !page.HasMore || page.PageToken == "" {
			break
		}
		pageToken = page.PageToken
	}
	return chats, nil
}

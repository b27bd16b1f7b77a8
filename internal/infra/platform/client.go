// Package platform is the boundary to the host site's REST API: pulling the
// notification feed, sending messages and comment replies, and moving coins.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
	"github.com/UnironicHeyMoon/HMSE/internal/infra"
)

// Client is the platform REST API client (boundary layer).
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new platform API client.
func NewClient(cfg *infra.Config) *Client {
	return &Client{
		baseURL: cfg.Platform.BaseURL,
		token:   cfg.Platform.Token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger: slog.Default().With("module", "platform_client"),
	}
}

type notificationItem struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Amount   int64  `json:"amount"`
	Body     string `json:"body"`
}

// Notifications fetches every feed entry newer than after, oldest first.
func (c *Client) Notifications(ctx context.Context, after int64) ([]domain.PlatformEvent, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatInt(after, 10))

	resp, err := c.doRequest(ctx, http.MethodGet, "/api/v1/notifications", q, nil)
	if err != nil {
		return nil, fmt.Errorf("platform notifications failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("platform api error: status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []notificationItem `json:"data"`
	}
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	events := make([]domain.PlatformEvent, 0, len(apiResp.Data))
	for _, item := range apiResp.Data {
		events = append(events, domain.PlatformEvent{
			ID:      item.ID,
			Type:    item.Type,
			User:    domain.User{ID: item.UserID, Name: item.Username},
			Amount:  item.Amount,
			Message: item.Body,
		})
	}
	return events, nil
}

// SendMessage delivers a direct message to username.
func (c *Client) SendMessage(ctx context.Context, username, body string) error {
	payload := map[string]string{"username": username, "body": body}
	return c.post(ctx, "/api/v1/messages", payload)
}

// SendDigest delivers a trade digest to user as a direct message.
func (c *Client) SendDigest(ctx context.Context, user domain.User, body string) error {
	return c.SendMessage(ctx, user.Name, body)
}

// ReplyToComment posts body as a reply under commentID.
func (c *Client) ReplyToComment(ctx context.Context, commentID int64, body string) error {
	payload := map[string]any{"parent_id": commentID, "body": body}
	return c.post(ctx, "/api/v1/comments", payload)
}

// GiveCoins pays amount of platform currency out to username.
func (c *Client) GiveCoins(ctx context.Context, username string, amount int64) error {
	payload := map[string]any{"username": username, "amount": amount}
	if err := c.post(ctx, "/api/v1/transfers", payload); err != nil {
		return err
	}
	c.logger.Info("coins paid out", slog.String("user", username), slog.Int64("amount", amount))
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	resp, err := c.doRequest(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return fmt.Errorf("platform %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("platform api error: status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// Package wordpress публикует контент через WordPress REST API с
// application password.
package wordpress

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

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// Client выполняет запросы к wp-json/wp/v2.
type Client struct {
	http *http.Client
}

var (
	_ domain.Publisher    = (*Client)(nil)
	_ domain.PreviewStore = (*Client)(nil)
)

// NewClient создаёт клиента WordPress.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

type postRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

type postResponse struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

// Publish создаёт опубликованную запись и возвращает её ссылку.
func (c *Client) Publish(ctx context.Context, conn domain.Connection, draft domain.Draft) (string, error) {
	post, err := c.createPost(ctx, conn, draft, "publish")
	if err != nil {
		return "", err
	}
	return post.Link, nil
}

// CreatePreview создаёт черновую запись для предпросмотра.
func (c *Client) CreatePreview(ctx context.Context, conn domain.Connection, draft domain.Draft) (string, error) {
	post, err := c.createPost(ctx, conn, draft, "draft")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/?p=%d&preview=true", strings.TrimRight(conn.SiteURL, "/"), post.ID), nil
}

// DeletePreview удаляет черновую запись предпросмотра. Идентификатор записи
// восстанавливается из параметра p превью-ссылки.
func (c *Client) DeletePreview(ctx context.Context, draft domain.Draft) error {
	if draft.PreviewURL == "" {
		return nil
	}
	parsed, err := url.Parse(draft.PreviewURL)
	if err != nil {
		return fmt.Errorf("wordpress: разбор превью-ссылки: %w", err)
	}
	postID := parsed.Query().Get("p")
	if postID == "" {
		return nil
	}
	endpoint := fmt.Sprintf("%s://%s/wp-json/wp/v2/posts/%s?force=true", parsed.Scheme, parsed.Host, postID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("wordpress: build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveNetworkRequest("wordpress", "post_delete", parsed.Host, start, err)
	if err != nil {
		return fmt.Errorf("wordpress: do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("wordpress: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) createPost(ctx context.Context, conn domain.Connection, draft domain.Draft, status string) (postResponse, error) {
	body, err := json.Marshal(postRequest{Title: draft.Title, Content: draft.Body, Status: status})
	if err != nil {
		return postResponse{}, fmt.Errorf("wordpress: marshal request: %w", err)
	}
	endpoint := strings.TrimRight(conn.SiteURL, "/") + "/wp-json/wp/v2/posts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return postResponse{}, fmt.Errorf("wordpress: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(conn.Login, conn.Secret)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveNetworkRequest("wordpress", "post_create", hostOf(conn.SiteURL), start, err)
	if err != nil {
		return postResponse{}, fmt.Errorf("wordpress: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return postResponse{}, fmt.Errorf("wordpress: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return postResponse{}, fmt.Errorf("wordpress: unexpected status %d: %s", resp.StatusCode, clipBody(respBody))
	}
	var post postResponse
	if err := json.Unmarshal(respBody, &post); err != nil {
		return postResponse{}, fmt.Errorf("wordpress: decode response: %w", err)
	}
	return post, nil
}

func hostOf(siteURL string) string {
	parsed, err := url.Parse(siteURL)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return parsed.Host
}

func clipBody(body []byte) string {
	const limit = 200
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit])
}

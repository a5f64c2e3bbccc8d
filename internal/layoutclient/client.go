// Package layoutclient talks to a remote panel-layout and as-built service
// over REST. It satisfies the same store interfaces as the local Postgres
// store, so a layout service can run against either.
package layoutclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
)

// Options configures the HTTP behavior. Retries apply to transport errors
// and 5xx responses only.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retries int
}

// APIError is a non-2xx response decoded from the {code, error, details}
// envelope.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("layout api: status %d", e.Status)
	}
	return fmt.Sprintf("layout api: %s: %s (status %d)", e.Code, e.Message, e.Status)
}

// Temporary reports whether repeating the request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

func New(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(max(opts.Retries, 0)).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode() >= http.StatusInternalServerError)
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}
	return &Client{http: client, logger: logger}
}

type saveLayoutResponse struct {
	ProjectID   string    `json:"projectId"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type recordsResponse struct {
	Records []store.AsbuiltRecord `json:"records"`
}

func (c *Client) GetLayout(ctx context.Context, projectID string) (store.Layout, error) {
	var layout store.Layout
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("projectId", projectID).
		SetResult(&layout).
		SetError(&APIError{}).
		Get("/api/panel-layout/{projectId}")
	if err := c.check(resp, err, "get layout"); err != nil {
		return store.Layout{}, err
	}
	if layout.ProjectID == "" {
		layout.ProjectID = projectID
	}
	return layout, nil
}

func (c *Client) SaveLayout(ctx context.Context, layout store.Layout) (time.Time, error) {
	var out saveLayoutResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("projectId", layout.ProjectID).
		SetBody(layout).
		SetResult(&out).
		SetError(&APIError{}).
		Put("/api/panel-layout/{projectId}")
	if err := c.check(resp, err, "save layout"); err != nil {
		return time.Time{}, err
	}
	c.logger.Debug("layout saved remotely",
		zap.String("project_id", layout.ProjectID),
		zap.Int("panel_count", len(layout.Panels)),
	)
	return out.LastUpdated, nil
}

// ProjectPanels returns the stored panels of a project.
func (c *Client) ProjectPanels(ctx context.Context, projectID string) ([]store.Panel, error) {
	layout, err := c.GetLayout(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return layout.Panels, nil
}

func (c *Client) InsertAsbuiltRecord(ctx context.Context, rec store.AsbuiltRecord) (store.AsbuiltRecord, error) {
	var out store.AsbuiltRecord
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rec).
		SetResult(&out).
		SetError(&APIError{}).
		Post("/api/asbuilt")
	if err := c.check(resp, err, "create as-built record"); err != nil {
		return store.AsbuiltRecord{}, err
	}
	return out, nil
}

func (c *Client) ListPanelRecords(ctx context.Context, projectID, panelID string) ([]store.AsbuiltRecord, error) {
	var out recordsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"projectId": projectID, "panelId": panelID}).
		SetResult(&out).
		SetError(&APIError{}).
		Get("/api/asbuilt/{projectId}/panels/{panelId}")
	if err := c.check(resp, err, "list panel records"); err != nil {
		return nil, err
	}
	if out.Records == nil {
		out.Records = []store.AsbuiltRecord{}
	}
	return out.Records, nil
}

func (c *Client) ProjectSummary(ctx context.Context, projectID string) (store.ProjectSummary, error) {
	var out store.ProjectSummary
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("projectId", projectID).
		SetResult(&out).
		SetError(&APIError{}).
		Get("/api/asbuilt/{projectId}/summary")
	if err := c.check(resp, err, "project summary"); err != nil {
		return store.ProjectSummary{}, err
	}
	return out, nil
}

// Ping checks that the remote service answers its health route.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).SetError(&APIError{}).Get("/api/health")
	return c.check(resp, err, "ping layout api")
}

func (c *Client) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		c.logger.Error("layout api call failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr, _ := resp.Error().(*APIError)
	if apiErr == nil {
		apiErr = &APIError{}
	}
	apiErr.Status = resp.StatusCode()
	if apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	c.logger.Warn("layout api returned error",
		zap.String("op", op),
		zap.Int("status_code", apiErr.Status),
		zap.String("code", apiErr.Code),
	)
	return fmt.Errorf("%s: %w", op, apiErr)
}

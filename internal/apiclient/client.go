// Package apiclient reads task statistics, task pages and user statistics from
// the lvl.ai backend REST API.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
	"github.com/Prajanya-g/lvl.ai/pkg/retry"
	"github.com/Prajanya-g/lvl.ai/pkg/telemetry"
)

const maxErrorBody = 4 << 10

// Config configures the upstream client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration

	// Token is a static bearer token. Ignored when ClientID is set.
	Token string

	// OAuth2 client-credentials grant.
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Client is an HTTP client for the lvl.ai backend.
type Client struct {
	base   *url.URL
	http   *http.Client
	retry  retry.Policy
	logger *slog.Logger
	tracer trace.Tracer
}

// New builds a Client. The token source, when configured, shares the client's
// timeout and transport.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	c := &Client{
		base:   base,
		http:   httpClient(ctx, cfg),
		logger: logger,
		tracer: telemetry.Tracer("apiclient"),
	}
	c.retry = retry.Policy{
		Attempts:  cfg.MaxAttempts,
		BaseDelay: cfg.BaseDelay,
		MaxDelay:  5 * time.Second,
	}
	return c, nil
}

func httpClient(ctx context.Context, cfg Config) *http.Client {
	plain := &http.Client{Timeout: cfg.Timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, plain)

	var hc *http.Client
	switch {
	case cfg.ClientID != "":
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		hc = cc.Client(ctx)
	case cfg.Token != "":
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"}))
	default:
		return plain
	}
	hc.Timeout = cfg.Timeout
	return hc
}

// retryable retries transport failures and 5xx/429 answers. Client errors are
// final.
func retryable(err error) bool {
	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		return ue.Temporary()
	}
	return true
}

// envelope is the {"success","data"} wrapper most backend routes use.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// unwrap returns the payload of an envelope, or raw itself for a bare object.
func unwrap(raw []byte) []byte {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw
	}
	if env.Success == nil || len(env.Data) == 0 {
		return raw
	}
	return env.Data
}

// endpoint appends path segments to the base URL. Each segment is escaped on
// its own, so a segment can never introduce a separator or a dot segment.
func (c *Client) endpoint(segments []string, query url.Values) string {
	u := *c.base
	plain := strings.TrimSuffix(u.Path, "/")
	raw := strings.TrimSuffix(u.EscapedPath(), "/")
	for _, seg := range segments {
		plain += "/" + seg
		raw += "/" + escapeSegment(seg)
	}
	u.Path, u.RawPath = plain, raw
	u.RawQuery = query.Encode()
	return u.String()
}

func escapeSegment(seg string) string {
	if seg == "." || seg == ".." {
		return strings.ReplaceAll(seg, ".", "%2E")
	}
	return url.PathEscape(seg)
}

// get issues a GET with retries and returns the response body.
func (c *Client) get(ctx context.Context, op string, segments []string, query url.Values, userID string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "upstream."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("lvl.user_id", userID)))
	defer span.End()

	target := c.endpoint(segments, query)

	p := c.retry
	p.Retryable = func(error) bool { return ctx.Err() == nil }
	p.OnRetry = func(attempt int, err error) {
		telemetry.UpstreamRetriesTotal.WithLabelValues(op).Inc()
		c.logger.Warn("upstream call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	body, err := retry.Value(ctx, p, func(ctx context.Context) ([]byte, error) {
		body, err := c.do(ctx, op, target, userID)
		if err != nil && !retryable(err) {
			return nil, retry.Permanent(err)
		}
		return body, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, op, target, userID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.UpstreamError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}
	return body, nil
}

func errorMessage(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

// TaskStats fetches summary statistics over the last windowDays days.
func (c *Client) TaskStats(ctx context.Context, userID string, windowDays int) (*domain.SummaryStats, error) {
	q := url.Values{}
	q.Set("days", strconv.Itoa(windowDays))
	q.Set("userId", userID)

	body, err := c.get(ctx, "task_stats", []string{"tasks", "stats"}, q, userID)
	if err != nil {
		return nil, err
	}
	var stats domain.SummaryStats
	if err := json.Unmarshal(unwrap(body), &stats); err != nil {
		return nil, fmt.Errorf("task_stats: decode: %w", err)
	}
	return &stats, nil
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type taskList struct {
	Data       json.RawMessage `json:"data"`
	Pagination *pagination     `json:"pagination"`
}

// Tasks fetches one page of tasks.
func (c *Client) Tasks(ctx context.Context, q domain.TaskQuery) (domain.TaskPage, error) {
	v := url.Values{}
	v.Set("page", strconv.Itoa(max(q.Page, 1)))
	v.Set("limit", strconv.Itoa(max(q.PageSize, 1)))
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "createdAt"
	}
	v.Set("sortBy", sortBy)
	if q.SortDesc {
		v.Set("sortOrder", "desc")
	} else {
		v.Set("sortOrder", "asc")
	}
	v.Set("userId", q.UserID)
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}

	body, err := c.get(ctx, "tasks", []string{"tasks"}, v, q.UserID)
	if err != nil {
		return domain.TaskPage{}, err
	}
	page, err := decodeTaskList(body, 2)
	if err != nil {
		return domain.TaskPage{}, fmt.Errorf("tasks: decode: %w", err)
	}
	if page.Page == 0 {
		page.Page = max(q.Page, 1)
	}
	return page, nil
}

// decodeTaskList accepts {"data":[...],"pagination":{...}}, optionally wrapped
// in a {"success","data"} envelope.
func decodeTaskList(body []byte, depth int) (domain.TaskPage, error) {
	var list taskList
	if err := json.Unmarshal(body, &list); err != nil {
		return domain.TaskPage{}, err
	}
	data := strings.TrimSpace(string(list.Data))
	switch {
	case data == "" || data == "null":
		return domain.TaskPage{}, nil
	case strings.HasPrefix(data, "{") && depth > 0:
		return decodeTaskList(list.Data, depth-1)
	}

	var page domain.TaskPage
	if err := json.Unmarshal(list.Data, &page.Tasks); err != nil {
		return domain.TaskPage{}, err
	}
	page.Total = len(page.Tasks)
	if list.Pagination != nil {
		page.Page = list.Pagination.Page
		page.Total = list.Pagination.Total
	}
	return page, nil
}

// UserStats fetches gamification stats. A 404 maps to UserNotFoundError; an
// envelope without data yields nil stats.
func (c *Client) UserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	body, err := c.get(ctx, "user_stats", []string{"users", userID, "stats"}, url.Values{}, userID)
	if err != nil {
		var ue *domain.UpstreamError
		if errors.As(err, &ue) && ue.StatusCode == http.StatusNotFound {
			return nil, &domain.UserNotFoundError{UserID: userID}
		}
		return nil, err
	}

	payload := strings.TrimSpace(string(unwrap(body)))
	if payload == "null" {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Success != nil && len(env.Data) == 0 {
		return nil, nil
	}

	var stats domain.UserStats
	if err := json.Unmarshal([]byte(payload), &stats); err != nil {
		return nil, fmt.Errorf("user_stats: decode: %w", err)
	}
	return &stats, nil
}

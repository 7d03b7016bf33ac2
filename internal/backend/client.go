// Package backend is the HTTP client for the chat-sync REST API. It serves the
// sync engine both as snapshot fetcher and as mutation client.
package backend

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

	"chat-sync/internal/apperr"
	"chat-sync/internal/identity"
	"chat-sync/internal/models"
	"chat-sync/pkg/logger"

	"golang.org/x/time/rate"
)

// ErrNoPrincipal is returned when a call is made while the identity provider is inactive.
var ErrNoPrincipal = errors.New("backend: no signed-in principal")

type Options struct {
	// BaseURL is the API root, e.g. http://localhost:8080/api/v1.
	BaseURL    string
	HTTPClient *http.Client
	// Rate and Burst bound outgoing requests. Rate <= 0 disables the limiter.
	Rate    float64
	Burst   int
	Timeout time.Duration
	Logger  *logger.Logger
}

type Client struct {
	base     *url.URL
	http     *http.Client
	identity identity.Provider
	limiter  *rate.Limiter
	log      *logger.Logger
}

func New(opts Options, id identity.Provider) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		base:     base,
		http:     httpClient,
		identity: id,
		limiter:  limiter,
		log:      log.With("component", "backend"),
	}, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// EnsureProfile creates the caller's profile if it does not exist and returns it.
func (c *Client) EnsureProfile(ctx context.Context, req models.EnsureProfileRequest) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodPost, "/users", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) ListRelationships(ctx context.Context) ([]models.Relationship, error) {
	var rels []models.Relationship
	if err := c.do(ctx, http.MethodGet, "/relationships", nil, &rels); err != nil {
		return nil, err
	}
	return rels, nil
}

func (c *Client) ListMessages(ctx context.Context) ([]models.Message, error) {
	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, "/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) SendRequest(ctx context.Context, friendID string) (*models.Relationship, error) {
	var rel models.Relationship
	err := c.do(ctx, http.MethodPost, "/relationships", models.CreateRelationshipRequest{FriendID: friendID}, &rel)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func (c *Client) UpdateRelationship(ctx context.Context, id, status string) (*models.Relationship, error) {
	var rel models.Relationship
	err := c.do(ctx, http.MethodPatch, "/relationships/"+url.PathEscape(id), models.UpdateRelationshipRequest{Status: status}, &rel)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func (c *Client) DeleteRelationship(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/relationships/"+url.PathEscape(id), nil, nil)
}

func (c *Client) SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.Message, error) {
	var msg models.Message
	if err := c.do(ctx, http.MethodPost, "/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkSeen marks every unseen message from senderID to the caller as seen and
// returns how many rows changed.
func (c *Client) MarkSeen(ctx context.Context, senderID string) (int64, error) {
	var resp models.MarkSeenResponse
	if err := c.do(ctx, http.MethodPatch, "/messages", models.MarkSeenRequest{SenderID: senderID}, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

// UpdateMessage patches a single message. patch keys are sent as given.
func (c *Client) UpdateMessage(ctx context.Context, id string, patch map[string]interface{}) (*models.Message, error) {
	var msg models.Message
	if err := c.do(ctx, http.MethodPatch, "/messages/"+url.PathEscape(id), patch, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	principal, ok := c.identity.Current(ctx)
	if !ok {
		return ErrNoPrincipal
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return apperr.Sync(err, "%s %s: rate limiter", method, path)
		}
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+principal.Token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Sync(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	c.log.Debug("Backend call", "method", method, "path", path, "status", resp.StatusCode, "latency", time.Since(start))

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Sync(err, "%s %s: decode response", method, path)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body models.ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(raw))
		if body.Message == "" {
			body.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apperr.FromHTTP(resp.StatusCode, body.Message, body.Status)
}

package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/config"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

const (
	tokenPath   = "/api/v1/token/"
	refreshPath = "/api/v1/token/refresh/"
	postsPath   = "/api/v1/posts/"

	// maxReplyPages bounds how many reply pages FetchReplies follows.
	maxReplyPages = 100
)

// Client talks to the remote comment API as a single configured user. It
// keeps the access token fresh: an expired token is refreshed before a
// request and an HTTP 401 triggers one refresh and retry.
type Client struct {
	baseURL  string
	http     *http.Client
	logger   *zap.Logger
	username string
	password string
	now      func() time.Time

	mu      sync.Mutex
	access  string
	refresh string
}

func NewClient(cfg config.API, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
		username: cfg.Username,
		password: cfg.Password,
		now:      time.Now,
		access:   cfg.AccessToken,
		refresh:  cfg.RefreshToken,
	}
}

type paginated struct {
	Count    int            `json:"count"`
	Next     *string        `json:"next"`
	Previous *string        `json:"previous"`
	Results  []comment.Item `json:"results"`
}

type createRequest struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

type voteRequest struct {
	Value int `json:"value"`
}

func (c *Client) FetchRootComments(ctx context.Context, postID string, page, pageSize int) (*comment.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(comment.ClampPageSize(pageSize)))

	var out paginated
	err := c.do(ctx, http.MethodGet, commentsPath(postID)+"?"+q.Encode(), nil, &out, comment.ErrPostNotFound)
	if err != nil {
		return nil, err
	}
	if out.Results == nil {
		out.Results = []comment.Item{}
	}
	return &comment.Page{Items: out.Results, HasNext: out.Next != nil}, nil
}

// FetchReplies returns every direct reply, following the API's next links.
func (c *Client) FetchReplies(ctx context.Context, postID string, parentID int64) ([]comment.Item, error) {
	items := []comment.Item{}
	path := fmt.Sprintf("%s%d/replies/", commentsPath(postID), parentID)

	for i := 0; i < maxReplyPages; i++ {
		var out paginated
		if err := c.do(ctx, http.MethodGet, path, nil, &out, comment.ErrCommentNotFound); err != nil {
			return nil, err
		}
		items = append(items, out.Results...)
		if out.Next == nil {
			return items, nil
		}
		next, err := c.relative(*out.Next)
		if err != nil {
			return nil, err
		}
		path = next
	}
	return nil, fmt.Errorf("replies of comment %d: more than %d pages", parentID, maxReplyPages)
}

func (c *Client) CreateComment(ctx context.Context, postID, content string, parentID *int64) (*comment.Item, error) {
	if !comment.ValidContent(content) {
		return nil, comment.ErrInvalidContent
	}
	var out comment.Item
	req := createRequest{Content: content, ParentID: parentID}
	if err := c.do(ctx, http.MethodPost, commentsPath(postID), req, &out, comment.ErrPostNotFound); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CastVote(ctx context.Context, postID string, commentID int64, value int) (*comment.VoteResult, error) {
	if !comment.ValidVote(value) {
		return nil, fmt.Errorf("%w: %d", comment.ErrInvalidVote, value)
	}
	var out comment.VoteResult
	err := c.do(ctx, http.MethodPost, ratingsPath(postID, commentID), voteRequest{Value: value}, &out, comment.ErrCommentNotFound)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RetractVote(ctx context.Context, postID string, commentID int64) (*comment.VoteResult, error) {
	var out comment.VoteResult
	err := c.do(ctx, http.MethodDelete, ratingsPath(postID, commentID), nil, &out, comment.ErrCommentNotFound)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func commentsPath(postID string) string {
	return postsPath + url.PathEscape(postID) + "/comments/"
}

func ratingsPath(postID string, commentID int64) string {
	return fmt.Sprintf("%s%d/ratings/", commentsPath(postID), commentID)
}

// do sends one authenticated request and decodes the answer into out.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, notFound error) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	status, body, err := c.send(ctx, method, path, in, token)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized && (c.canRefresh() || c.canLogin()) {
		c.logger.Debug("access token rejected, refreshing", zap.String("path", path))
		token, err = c.renew(ctx, token)
		if err != nil {
			return err
		}
		status, body, err = c.send(ctx, method, path, in, token)
		if err != nil {
			return err
		}
	}

	if status < 200 || status > 299 {
		return decodeError(method, path, status, body, kindFor(status, notFound))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, in interface{}, token string) (int, []byte, error) {
	var reader io.Reader
	if in != nil {
		payload, err := sonic.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("%s %s: encode request: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: read response: %w", method, path, err)
	}

	c.logger.Debug("comment api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return resp.StatusCode, body, nil
}

func decodeError(method, path string, status int, body []byte, kind error) error {
	apiErr := &APIError{Method: method, Path: path, Status: status, Kind: kind}
	var eb errorBody
	if len(body) > 0 && sonic.Unmarshal(body, &eb) == nil {
		apiErr.Message = eb.Message
		if apiErr.Message == "" {
			apiErr.Message = eb.Detail
		}
	}
	return apiErr
}

// relative turns an absolute next link into a path below baseURL.
func (c *Client) relative(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("bad next link %q: %w", link, err)
	}
	if !u.IsAbs() {
		return link, nil
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	if u.Host != base.Host {
		return "", fmt.Errorf("next link %q leaves %s", link, base.Host)
	}
	return u.RequestURI(), nil
}

// token returns an access token usable right now, refreshing or logging in
// when the current one is missing or expired. Anonymous use returns "".
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	access := c.access
	c.mu.Unlock()

	if access != "" && !auth.TokenExpired(access, c.now()) {
		return access, nil
	}
	if !c.canRefresh() && !c.canLogin() {
		return access, nil
	}
	return c.renew(ctx, access)
}

func (c *Client) canRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh != ""
}

func (c *Client) canLogin() bool {
	return c.username != "" && c.password != ""
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// renew replaces stale with a new access token. Concurrent callers holding
// the same stale token share one refresh.
func (c *Client) renew(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.access != stale && c.access != "" && !auth.TokenExpired(c.access, c.now()) {
		return c.access, nil
	}

	if c.refresh != "" {
		var out tokenPair
		err := c.postToken(ctx, refreshPath, map[string]string{"refresh": c.refresh}, &out)
		if err == nil && out.Access != "" {
			c.access = out.Access
			if out.Refresh != "" {
				c.refresh = out.Refresh
			}
			c.logger.Info("access token refreshed")
			return c.access, nil
		}
		c.logger.Warn("token refresh failed", zap.Error(err))
		c.refresh = ""
	}

	if !c.canLogin() {
		c.access = ""
		return "", fmt.Errorf("%w: session expired", comment.ErrUnauthorized)
	}

	var out tokenPair
	err := c.postToken(ctx, tokenPath, map[string]string{"username": c.username, "password": c.password}, &out)
	if err != nil {
		return "", err
	}
	c.access, c.refresh = out.Access, out.Refresh
	c.logger.Info("logged in to comment api", zap.String("username", c.username))
	return c.access, nil
}

func (c *Client) postToken(ctx context.Context, path string, in, out interface{}) error {
	status, body, err := c.send(ctx, http.MethodPost, path, in, "")
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return decodeError(http.MethodPost, path, status, body, comment.ErrUnauthorized)
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return fmt.Errorf("POST %s: decode response: %w", path, err)
	}
	return nil
}

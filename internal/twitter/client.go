// Package twitter is a thin client for the platform's v2 REST API. It exists
// behind an interface so the pipeline never touches HTTP directly, and every
// error it surfaces is classifiable into the pipeline's error taxonomy.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"quillbird.app/bot/core/config"
	"quillbird.app/bot/internal/model"
)

// MentionPage is one page of the mention timeline plus its expansions.
type MentionPage struct {
	Tweets    []*model.Tweet
	Users     map[string]*model.TwitterUser
	Included  map[string]*model.Tweet
	NextToken string
	NewestID  string
}

type Client interface {
	// Me resolves the authenticated bot identity.
	Me(ctx context.Context) (*model.TwitterUser, error)
	// Mentions fetches one timeline page newer than sinceID.
	Mentions(ctx context.Context, accountID, sinceID, paginationToken string) (*MentionPage, error)
	// GetTweet looks up a single tweet, always live (never cached).
	GetTweet(ctx context.Context, id string) (*model.Tweet, error)
	// GetUser looks up a single author profile.
	GetUser(ctx context.Context, id string) (*model.TwitterUser, error)
	// PostReply publishes text as a reply and returns the new tweet's ID.
	PostReply(ctx context.Context, inReplyToID, text string) (string, error)
	// Reauth re-establishes remote credentials.
	Reauth(ctx context.Context) error
}

// APIError is a non-2xx platform response.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("twitter api %d %s: %s", e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("twitter api %d %s", e.StatusCode, e.Title)
}

// ErrorClass maps an error from this client into the pipeline taxonomy.
// Anything that is not a recognized API response counts as a network error,
// since it means no response was obtained.
func ErrorClass(err error) model.ErrorType {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return model.ErrorTypeRateLimit
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return model.ErrorTypeAuth
		case apiErr.StatusCode == http.StatusNotFound:
			return model.ErrorTypeNotFound
		case apiErr.StatusCode >= 500:
			return model.ErrorTypeNetwork
		default:
			return model.ErrorTypeUnknown
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return model.ErrorTypeNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrorTypeNetwork
	}

	return model.ErrorTypeUnknown
}

const tweetFields = "author_id,conversation_id,created_at,referenced_tweets"

type httpClient struct {
	http    *http.Client
	baseURL string
	bearer  string
	cfg     config.TwitterConfig
}

func NewClient(cfg config.TwitterConfig) Client {
	return &httpClient{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: cfg.BaseURL,
		bearer:  cfg.BearerToken,
		cfg:     cfg,
	}
}

func (c *httpClient) Me(ctx context.Context) (*model.TwitterUser, error) {
	q := url.Values{}
	q.Set("user.fields", "public_metrics")

	var resp userLookupResponse
	if err := c.get(ctx, "/users/me", q, &resp); err != nil {
		return nil, fmt.Errorf("resolving bot identity: %w", err)
	}
	if resp.Data == nil {
		return nil, &APIError{StatusCode: http.StatusNotFound, Title: "Not Found", Detail: "users/me returned no data"}
	}
	return resp.Data.toModel(), nil
}

func (c *httpClient) Mentions(ctx context.Context, accountID, sinceID, paginationToken string) (*MentionPage, error) {
	q := url.Values{}
	q.Set("max_results", "100")
	q.Set("tweet.fields", tweetFields)
	q.Set("expansions", "author_id,referenced_tweets.id")
	q.Set("user.fields", "public_metrics")
	if sinceID != "" {
		q.Set("since_id", sinceID)
	}
	if paginationToken != "" {
		q.Set("pagination_token", paginationToken)
	}

	var resp timelineResponse
	if err := c.get(ctx, "/users/"+accountID+"/mentions", q, &resp); err != nil {
		return nil, fmt.Errorf("fetching mentions: %w", err)
	}

	page := &MentionPage{
		Users:     make(map[string]*model.TwitterUser, len(resp.Includes.Users)),
		Included:  make(map[string]*model.Tweet, len(resp.Includes.Tweets)),
		NextToken: resp.Meta.NextToken,
		NewestID:  resp.Meta.NewestID,
	}
	for _, t := range resp.Data {
		page.Tweets = append(page.Tweets, t.toModel())
	}
	for _, u := range resp.Includes.Users {
		page.Users[u.ID] = u.toModel()
	}
	for _, t := range resp.Includes.Tweets {
		page.Included[t.ID] = t.toModel()
	}
	return page, nil
}

func (c *httpClient) GetTweet(ctx context.Context, id string) (*model.Tweet, error) {
	q := url.Values{}
	q.Set("tweet.fields", tweetFields)

	var resp tweetLookupResponse
	if err := c.get(ctx, "/tweets/"+id, q, &resp); err != nil {
		return nil, fmt.Errorf("fetching tweet %s: %w", id, err)
	}
	if resp.Data == nil {
		// Deleted or protected tweets come back 200 with an errors array.
		return nil, &APIError{StatusCode: http.StatusNotFound, Title: "Not Found", Detail: firstDetail(resp.Errors)}
	}
	return resp.Data.toModel(), nil
}

func (c *httpClient) GetUser(ctx context.Context, id string) (*model.TwitterUser, error) {
	q := url.Values{}
	q.Set("user.fields", "public_metrics")

	var resp userLookupResponse
	if err := c.get(ctx, "/users/"+id, q, &resp); err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", id, err)
	}
	if resp.Data == nil {
		return nil, &APIError{StatusCode: http.StatusNotFound, Title: "Not Found", Detail: firstDetail(resp.Errors)}
	}
	return resp.Data.toModel(), nil
}

func (c *httpClient) PostReply(ctx context.Context, inReplyToID, text string) (string, error) {
	body := postTweetRequest{
		Text:  text,
		Reply: &postTweetReply{InReplyToTweetID: inReplyToID},
	}

	var resp postTweetResponse
	if err := c.post(ctx, "/tweets", body, &resp); err != nil {
		return "", fmt.Errorf("posting reply to %s: %w", inReplyToID, err)
	}
	if resp.Data.ID == "" {
		return "", &APIError{StatusCode: http.StatusInternalServerError, Title: "Empty Response", Detail: "create tweet returned no id"}
	}

	slog.InfoContext(ctx, "reply posted",
		"in_reply_to", inReplyToID,
		"reply_tweet_id", resp.Data.ID,
		"chars", len(text))
	return resp.Data.ID, nil
}

// Reauth re-reads the bearer credential from config. Static tokens have
// nothing to refresh, but the loop's auth mitigation always has a hook here,
// and an OAuth refresh flow slots in without touching callers.
func (c *httpClient) Reauth(ctx context.Context) error {
	c.bearer = c.cfg.BearerToken
	slog.InfoContext(ctx, "twitter credentials re-established")
	return nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.do(req, out)
}

func (c *httpClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		var parsed struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &parsed) == nil {
			if parsed.Title != "" {
				apiErr.Title = parsed.Title
			}
			apiErr.Detail = parsed.Detail
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func firstDetail(errs []apiDetail) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0].Detail
}

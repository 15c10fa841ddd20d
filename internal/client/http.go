package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alfredjeanlab/chattobot/internal/metrics"
	"github.com/alfredjeanlab/chattobot/internal/model"
)

// SessionCookie is the name of the cookie carrying the session credential.
const SessionCookie = "chatto_session"

// Options configures an HTTPClient.
type Options struct {
	// Instance is the service base URL, e.g. "https://dev.chatto.run".
	Instance   string
	Credential string

	// ReplyRate and ReplyBurst limit mutations per room. A zero rate
	// disables limiting.
	ReplyRate  rate.Limit
	ReplyBurst int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HTTPClient implements ChattoClient against the service's GraphQL endpoint.
type HTTPClient struct {
	baseURL    string
	credential string
	httpClient *http.Client
	logger     *slog.Logger

	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPClient creates a client for the given instance.
func NewHTTPClient(opts Options) *HTTPClient {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReplyBurst <= 0 {
		opts.ReplyBurst = 1
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(opts.Instance, "/"),
		credential: opts.Credential,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		limit:      opts.ReplyRate,
		burst:      opts.ReplyBurst,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Messages and reactions ---

func (c *HTTPClient) PostMessage(ctx context.Context, spaceID, roomID, body, inReplyTo string) error {
	if err := c.wait(ctx, spaceID, roomID); err != nil {
		return err
	}
	input := map[string]any{"spaceId": spaceID, "roomId": roomID, "body": body}
	if inReplyTo != "" {
		input["inReplyTo"] = inReplyTo
	}
	return c.doGraphQL(ctx, "postMessage", postMessageMutation, map[string]any{"input": input}, nil)
}

func (c *HTTPClient) AddReaction(ctx context.Context, spaceID, roomID, messageEventID, emoji string) error {
	if err := c.wait(ctx, spaceID, roomID); err != nil {
		return err
	}
	return c.doGraphQL(ctx, "addReaction", addReactionMutation, reactionVars(spaceID, roomID, messageEventID, emoji), nil)
}

func (c *HTTPClient) RemoveReaction(ctx context.Context, spaceID, roomID, messageEventID, emoji string) error {
	if err := c.wait(ctx, spaceID, roomID); err != nil {
		return err
	}
	return c.doGraphQL(ctx, "removeReaction", removeReactionMutation, reactionVars(spaceID, roomID, messageEventID, emoji), nil)
}

func reactionVars(spaceID, roomID, messageEventID, emoji string) map[string]any {
	return map[string]any{
		"spaceId":        spaceID,
		"roomId":         roomID,
		"messageEventId": messageEventID,
		"emoji":          emoji,
	}
}

// --- Lookups ---

func (c *HTTPClient) Me(ctx context.Context) (*User, error) {
	var data struct {
		Me *User `json:"me"`
	}
	if err := c.doGraphQL(ctx, "me", meQuery, nil, &data); err != nil {
		return nil, err
	}
	if data.Me == nil {
		return nil, errors.New("me: not authenticated")
	}
	return data.Me, nil
}

// Rooms returns the non-archived rooms of a space.
func (c *HTTPClient) Rooms(ctx context.Context, spaceID string) ([]Room, error) {
	var data struct {
		Space *struct {
			Rooms []Room `json:"rooms"`
		} `json:"space"`
	}
	if err := c.doGraphQL(ctx, "rooms", roomsQuery, map[string]any{"spaceId": spaceID}, &data); err != nil {
		return nil, err
	}
	if data.Space == nil {
		return nil, nil
	}
	rooms := make([]Room, 0, len(data.Space.Rooms))
	for _, r := range data.Space.Rooms {
		if !r.Archived {
			rooms = append(rooms, r)
		}
	}
	return rooms, nil
}

// RoomEvents returns the most recent events of a room, newest first, as the
// service orders them. Events of unknown types are skipped.
func (c *HTTPClient) RoomEvents(ctx context.Context, spaceID, roomID string, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var data struct {
		RoomEvents []json.RawMessage `json:"roomEvents"`
	}
	vars := map[string]any{"spaceId": spaceID, "roomId": roomID, "limit": limit}
	if err := c.doGraphQL(ctx, "roomEvents", roomEventsQuery, vars, &data); err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(data.RoomEvents))
	for _, raw := range data.RoomEvents {
		ev, err := model.ParseSpaceEvent(raw, spaceID)
		if err != nil {
			c.logger.Debug("client: skipping undecodable room event", "space", spaceID, "room", roomID, "err", err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// FetchHistory gathers the recent events of every room of a space at or
// after since, oldest first.
func (c *HTTPClient) FetchHistory(ctx context.Context, spaceID string, since time.Time) ([]model.Event, error) {
	rooms, err := c.Rooms(ctx, spaceID)
	if err != nil {
		return nil, fmt.Errorf("listing rooms of %s: %w", spaceID, err)
	}
	var out []model.Event
	for _, r := range rooms {
		evs, err := c.RoomEvents(ctx, spaceID, r.ID, DefaultHistoryLimit)
		if err != nil {
			return nil, fmt.Errorf("fetching events of room %s: %w", r.ID, err)
		}
		for _, ev := range evs {
			if !ev.Timestamp.Before(since) {
				out = append(out, ev)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

// --- Presence ---

func (c *HTTPClient) UpdatePresence(ctx context.Context, status string) error {
	return c.doGraphQL(ctx, "updatePresence", updatePresenceMutation, map[string]any{"status": status}, nil)
}

// --- internal helpers ---

// APIError represents a non-2xx HTTP response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// GraphQLError is returned when the response carries GraphQL errors.
type GraphQLError struct {
	Operation string
	Messages  []string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("%s: graphql errors: %s", e.Operation, strings.Join(e.Messages, "; "))
}

// wait blocks on the room's rate limiter.
func (c *HTTPClient) wait(ctx context.Context, spaceID, roomID string) error {
	if c.limit == 0 {
		return nil
	}
	key := spaceID + "/" + roomID
	c.mu.Lock()
	l, ok := c.limiters[key]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[key] = l
	}
	c.mu.Unlock()

	if l.Allow() {
		return nil
	}
	metrics.OutboundRequests.WithLabelValues("reply", "rate_limited").Inc()
	if err := l.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for reply rate limit: %w", err)
	}
	return nil
}

func (c *HTTPClient) graphqlURL() string { return c.baseURL + "/api/graphql" }

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Origin", c.baseURL)
	if c.credential != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: c.credential})
	}
}

// doGraphQL posts a GraphQL operation and decodes its data into result.
// If result is nil, the data is discarded.
func (c *HTTPClient) doGraphQL(ctx context.Context, op, query string, vars map[string]any, result any) (err error) {
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.OutboundRequests.WithLabelValues(op, status).Inc()
	}()

	payload := map[string]any{"query": query}
	if len(vars) > 0 {
		payload["variables"] = vars
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL(), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/graphql-response+json, application/json")
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		gqlErr := &GraphQLError{Operation: op}
		for _, e := range envelope.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return gqlErr
	}
	if result != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return fmt.Errorf("decoding %s data: %w", op, err)
		}
	}
	return nil
}

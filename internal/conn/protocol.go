package conn

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Subprotocol is the websocket subprotocol spoken with the service.
const Subprotocol = "graphql-transport-ws"

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
	msgPing           = "ping"
	msgPong           = "pong"
)

// Close codes the service uses to reject a credential.
const (
	closeUnauthorized = 4401
	closeForbidden    = 4403
)

const spaceEventsQuery = `subscription SpaceEvents($spaceId: ID!) {
  mySpaceEvents(spaceId: $spaceId) {
    id createdAt actorId sequenceId
    actor { id login displayName }
    event {
      __typename
      ... on MessagePostedEvent { spaceId roomId body messageBodyId inReplyTo inThread }
      ... on MessageUpdatedEvent { spaceId roomId body messageBodyId }
      ... on MessageDeletedEvent { spaceId roomId messageBodyId }
      ... on UserJoinedRoomEvent { spaceId roomId }
      ... on UserLeftRoomEvent { spaceId roomId }
      ... on ReactionAddedEvent { spaceId roomId messageEventId emoji }
      ... on ReactionRemovedEvent { spaceId roomId messageEventId emoji }
      ... on UserTypingEvent { spaceId roomId }
      ... on PresenceChangedEvent { status }
    }
  }
}`

type message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type nextPayload struct {
	Data struct {
		MySpaceEvents json.RawMessage `json:"mySpaceEvents"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func subscribeMessage(spaceID string) (message, error) {
	payload, err := json.Marshal(subscribePayload{
		Query:     spaceEventsQuery,
		Variables: map[string]any{"spaceId": spaceID},
	})
	if err != nil {
		return message{}, err
	}
	return message{ID: subscriptionID(spaceID), Type: msgSubscribe, Payload: payload}, nil
}

func subscriptionID(spaceID string) string { return "space:" + spaceID }

func spaceOf(subscriptionID string) string {
	return strings.TrimPrefix(subscriptionID, "space:")
}

// WebsocketURL derives the subscription endpoint from the instance URL:
// https becomes wss, http becomes ws, and the path is /api/graphql.
func WebsocketURL(instance string) (string, error) {
	u, err := url.Parse(strings.TrimRight(instance, "/"))
	if err != nil {
		return "", fmt.Errorf("parsing instance URL: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("instance URL %q: unsupported scheme %q", instance, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("instance URL %q has no host", instance)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/graphql"
	return u.String(), nil
}

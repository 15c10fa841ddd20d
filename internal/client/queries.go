package client

const meQuery = `{ me { id login displayName presenceStatus } }`

const updatePresenceMutation = `
mutation UpdatePresence($status: PresenceStatus!) {
  updateMyPresence(status: $status)
}`

const postMessageMutation = `
mutation PostMessage($input: PostMessageInput!) {
  postMessage(input: $input) { id }
}`

const addReactionMutation = `
mutation AddReaction($spaceId: ID!, $roomId: ID!, $messageEventId: ID!, $emoji: String!) {
  addReaction(spaceId: $spaceId, roomId: $roomId, messageEventId: $messageEventId, emoji: $emoji)
}`

const removeReactionMutation = `
mutation RemoveReaction($spaceId: ID!, $roomId: ID!, $messageEventId: ID!, $emoji: String!) {
  removeReaction(spaceId: $spaceId, roomId: $roomId, messageEventId: $messageEventId, emoji: $emoji)
}`

const roomsQuery = `
query GetRooms($spaceId: ID!) {
  space(id: $spaceId) { rooms { id name archived } }
}`

const roomEventsQuery = `
query RoomEvents($spaceId: ID!, $roomId: ID!, $limit: Int) {
  roomEvents(spaceId: $spaceId, roomId: $roomId, limit: $limit) {
    id createdAt actorId sequenceId
    actor { id login displayName }
    event {
      __typename
      ... on MessagePostedEvent { spaceId roomId body messageBodyId inThread }
      ... on MessageUpdatedEvent { spaceId roomId body messageBodyId }
      ... on MessageDeletedEvent { spaceId roomId messageBodyId }
      ... on ReactionAddedEvent { spaceId roomId messageEventId emoji }
      ... on ReactionRemovedEvent { spaceId roomId messageEventId emoji }
      ... on UserJoinedRoomEvent { spaceId roomId }
      ... on UserLeftRoomEvent { spaceId roomId }
    }
  }
}`

package store

import (
	"time"

	"github.com/google/uuid"
)

// Agent is the logical identity owning a single kernel instance.
type Agent struct {
	ID       uuid.UUID         `json:"id"`
	Name     string            `json:"name"`
	Bio      []string          `json:"bio,omitempty"`
	System   string            `json:"system,omitempty"`
	Settings map[string]any    `json:"settings,omitempty"`
	Secrets  map[string][]byte `json:"secrets,omitempty"` // opaque bytes; the kernel stores them unencrypted
	Plugins  []string          `json:"plugins,omitempty"`
}

// Entity is an actor: an agent, a user, or a bot.
type Entity struct {
	ID         uuid.UUID                 `json:"id"`
	AgentID    uuid.UUID                 `json:"agent_id"`
	Names      []string                  `json:"names"`
	Metadata   map[string]map[string]any `json:"metadata,omitempty"` // source -> {id,name,userName,...}
	Components []Component               `json:"components,omitempty"`
}

// World groups rooms under a server/tenant-like boundary.
type World struct {
	ID       uuid.UUID      `json:"id"`
	Name     string         `json:"name"`
	AgentID  uuid.UUID      `json:"agent_id"`
	ServerID string         `json:"server_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RoomType enumerates the kinds of conversational rooms.
type RoomType string

const (
	RoomTypeDM    RoomType = "DM"
	RoomTypeGroup RoomType = "GROUP"
	RoomTypeSelf  RoomType = "SELF"
)

// Room is a conversational channel tied to exactly one World.
type Room struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name,omitempty"`
	WorldID   uuid.UUID `json:"world_id"`
	Source    string    `json:"source,omitempty"`
	Type      RoomType  `json:"type"`
	ChannelID string    `json:"channel_id,omitempty"`
	ServerID  string    `json:"server_id,omitempty"`
}

// ParticipantState is a per-room, per-entity user state.
type ParticipantState string

const (
	ParticipantFollowed ParticipantState = "FOLLOWED"
	ParticipantMuted    ParticipantState = "MUTED"
)

// Participant is an (entityId, roomId) membership pair.
type Participant struct {
	EntityID uuid.UUID         `json:"entity_id"`
	RoomID   uuid.UUID         `json:"room_id"`
	State    *ParticipantState `json:"state,omitempty"`
}

// MemoryType enumerates the kinds of records stored as Memory.
type MemoryType string

const (
	MemoryTypeMessage      MemoryType = "MESSAGE"
	MemoryTypeActionResult MemoryType = "ACTION_RESULT"
)

// MemoryMetadata carries classification fields alongside a Memory's content.
type MemoryMetadata struct {
	Type        MemoryType `json:"type"`
	ActionName  string     `json:"actionName,omitempty"`
	RunID       uuid.UUID  `json:"runId,omitempty"`
	ActionID    uuid.UUID  `json:"actionId,omitempty"`
	TotalSteps  int        `json:"totalSteps,omitempty"`
	CurrentStep int        `json:"currentStep,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Memory is a durable message or record: an inbound message, an assistant
// response, or a persisted action result. It is stored under a named table
// (at minimum "messages", "facts", "documents").
type Memory struct {
	ID        uuid.UUID      `json:"id"`
	EntityID  uuid.UUID      `json:"entity_id"` // author
	RoomID    uuid.UUID      `json:"room_id"`
	WorldID   uuid.UUID      `json:"world_id,omitempty"`
	Content   map[string]any `json:"content"` // text, actions, thought, source, type, metadata...
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  MemoryMetadata `json:"metadata"`
	CreatedAt int64          `json:"created_at"` // epoch millis
}

// Actions returns the declared action names from Content["actions"], if any.
func (m *Memory) Actions() []string {
	raw, ok := m.Content["actions"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, a := range v {
			if s, ok := a.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Text returns Content["text"] as a string, or "" if absent.
func (m *Memory) Text() string {
	if s, ok := m.Content["text"].(string); ok {
		return s
	}
	return ""
}

// Relationship is a graph edge between two entities.
type Relationship struct {
	ID        uuid.UUID      `json:"id"`
	SourceID  uuid.UUID      `json:"source_entity_id"`
	TargetID  uuid.UUID      `json:"target_entity_id"`
	Tags      []string       `json:"tags,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt int64          `json:"created_at"`
}

// Component is a sidecar attribute record attached to an Entity.
type Component struct {
	ID        uuid.UUID      `json:"id"`
	EntityID  uuid.UUID      `json:"entity_id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	WorldID   uuid.UUID      `json:"world_id,omitempty"`
	RoomID    uuid.UUID      `json:"room_id,omitempty"`
	CreatedAt int64          `json:"created_at"`
}

// Task is a deferred job record.
type Task struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	RoomID      uuid.UUID      `json:"room_id,omitempty"`
	WorldID     uuid.UUID      `json:"world_id,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   int64          `json:"created_at"`
	UpdatedAt   int64          `json:"updated_at"`
}

// LogEntry is a structured, auditable log record written by the kernel
// (model calls, action dispatch) via the Store Adapter.
type LogEntry struct {
	ID        uuid.UUID      `json:"id"`
	EntityID  uuid.UUID      `json:"entity_id"`
	RoomID    uuid.UUID      `json:"room_id"`
	Type      string         `json:"type"`
	Body      map[string]any `json:"body"`
	CreatedAt int64          `json:"created_at"`
}

// CacheEntry is a generic key/value row used by plugins for small, durable
// scratch state (separate from the in-process state cache in provider.Composer).
type CacheEntry struct {
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
	ExpiresAt *int64         `json:"expires_at,omitempty"`
}

// NowMillis returns the current time as epoch milliseconds, the timestamp
// representation used throughout the data model.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

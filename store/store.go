// Package store defines the Store Adapter contract:
// the single interface the kernel consumes for persistence. Concrete
// backends (an in-memory adapter for tests, a PostgreSQL adapter under
// storepg/) implement this interface; the kernel never assumes which one
// is wired in.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrDuplicateKey is returned by create operations when a unique
// constraint is violated. The kernel treats this as recoverable: callers
// should log at debug level and return false rather than propagating it.
var ErrDuplicateKey = errors.New("store: duplicate key")

// ErrNotFound is returned when a lookup by id finds nothing.
var ErrNotFound = errors.New("store: not found")

// MemoryFilter selects memories for Store.GetMemories.
type MemoryFilter struct {
	RoomID     uuid.UUID
	WorldID    uuid.UUID
	Table      string
	Type       MemoryType
	Count      int
	Before     int64 // epoch millis, exclusive upper bound
	Unique     bool
}

// SearchFilter selects memories for Store.SearchMemories by embedding
// similarity, optionally narrowed by room/world/table.
type SearchFilter struct {
	Embedding []float32
	RoomID    uuid.UUID
	WorldID   uuid.UUID
	Table     string
	Count     int
	Threshold float64
}

// Store is the persistence contract the kernel depends on. All operations
// may fail with a wrapped <IOError>; duplicate-key failures on create
// operations are expected to surface as ErrDuplicateKey so the kernel can
// downgrade them.
type Store interface {
	// lifecycle
	Init(ctx context.Context) error
	Close(ctx context.Context) error
	IsReady(ctx context.Context) bool

	// agents
	GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error)
	GetAgentByName(ctx context.Context, name string) (*Agent, error)
	GetAgents(ctx context.Context) ([]*Agent, error)
	CreateAgent(ctx context.Context, a *Agent) error
	UpdateAgent(ctx context.Context, a *Agent) error
	DeleteAgent(ctx context.Context, id uuid.UUID) error

	// entities
	GetEntitiesByIDs(ctx context.Context, ids []uuid.UUID) ([]*Entity, error)
	GetEntitiesForRoom(ctx context.Context, roomID uuid.UUID, includeComponents bool) ([]*Entity, error)
	CreateEntities(ctx context.Context, entities []*Entity) error
	UpdateEntity(ctx context.Context, e *Entity) error

	// components
	GetComponent(ctx context.Context, id uuid.UUID) (*Component, error)
	GetComponents(ctx context.Context, entityID uuid.UUID) ([]*Component, error)
	CreateComponent(ctx context.Context, c *Component) error
	UpdateComponent(ctx context.Context, c *Component) error
	DeleteComponent(ctx context.Context, id uuid.UUID) error

	// worlds
	CreateWorld(ctx context.Context, w *World) error
	GetWorld(ctx context.Context, id uuid.UUID) (*World, error)
	UpdateWorld(ctx context.Context, w *World) error
	RemoveWorld(ctx context.Context, id uuid.UUID) error
	GetAllWorlds(ctx context.Context) ([]*World, error)

	// rooms
	CreateRooms(ctx context.Context, rooms []*Room) error
	GetRoomsByIDs(ctx context.Context, ids []uuid.UUID) ([]*Room, error)
	GetRoomsByWorld(ctx context.Context, worldID uuid.UUID) ([]*Room, error)
	UpdateRoom(ctx context.Context, r *Room) error
	DeleteRoom(ctx context.Context, id uuid.UUID) error
	DeleteRoomsByWorldID(ctx context.Context, worldID uuid.UUID) error

	// participants
	AddParticipantsRoom(ctx context.Context, entityIDs []uuid.UUID, roomID uuid.UUID) error
	RemoveParticipant(ctx context.Context, entityID, roomID uuid.UUID) error
	GetParticipantsForRoom(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error)
	GetParticipantsForEntity(ctx context.Context, entityID uuid.UUID) ([]*Participant, error)
	GetRoomsForParticipant(ctx context.Context, entityID uuid.UUID) ([]uuid.UUID, error)
	GetRoomsForParticipants(ctx context.Context, entityIDs []uuid.UUID) ([]uuid.UUID, error)
	GetParticipantUserState(ctx context.Context, roomID, entityID uuid.UUID) (*ParticipantState, error)
	SetParticipantUserState(ctx context.Context, roomID, entityID uuid.UUID, state *ParticipantState) error

	// memories
	CreateMemory(ctx context.Context, m *Memory, table string, unique bool) (uuid.UUID, error)
	GetMemoryByID(ctx context.Context, id uuid.UUID) (*Memory, error)
	GetMemoriesByIDs(ctx context.Context, ids []uuid.UUID) ([]*Memory, error)
	GetMemories(ctx context.Context, filter MemoryFilter) ([]*Memory, error)
	GetMemoriesByRoomIDs(ctx context.Context, roomIDs []uuid.UUID, table string) ([]*Memory, error)
	GetMemoriesByWorldID(ctx context.Context, worldID uuid.UUID, table string) ([]*Memory, error)
	SearchMemories(ctx context.Context, filter SearchFilter) ([]*Memory, error)
	UpdateMemory(ctx context.Context, m *Memory) error
	DeleteMemory(ctx context.Context, id uuid.UUID) error
	DeleteManyMemories(ctx context.Context, ids []uuid.UUID) error
	DeleteAllMemories(ctx context.Context, roomID uuid.UUID, table string) error
	CountMemories(ctx context.Context, roomID uuid.UUID, table string) (int, error)
	GetCachedEmbeddings(ctx context.Context, table string) (map[uuid.UUID][]float32, error)
	EnsureEmbeddingDimension(ctx context.Context, n int) error

	// relationships
	CreateRelationship(ctx context.Context, r *Relationship) error
	GetRelationships(ctx context.Context, entityID uuid.UUID, tags []string) ([]*Relationship, error)
	UpdateRelationship(ctx context.Context, r *Relationship) error

	// tasks
	CreateTask(ctx context.Context, t *Task) (uuid.UUID, error)
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)
	GetTasks(ctx context.Context, roomID uuid.UUID, tags []string) ([]*Task, error)
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id uuid.UUID) error

	// cache
	GetCache(ctx context.Context, key string) (*CacheEntry, error)
	SetCache(ctx context.Context, entry *CacheEntry) error
	DeleteCache(ctx context.Context, key string) error

	// logs
	Log(ctx context.Context, entry *LogEntry) error
	GetLogs(ctx context.Context, roomID uuid.UUID, logType string, count int) ([]*LogEntry, error)
}

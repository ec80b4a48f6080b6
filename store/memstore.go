package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store implementation. It is the reference
// adapter used by the kernel's own tests and by callers that don't need
// durability.
type MemStore struct {
	mu sync.RWMutex

	agents        map[uuid.UUID]*Agent
	agentsByName  map[string]uuid.UUID
	entities      map[uuid.UUID]*Entity
	components    map[uuid.UUID]*Component
	worlds        map[uuid.UUID]*World
	rooms         map[uuid.UUID]*Room
	participants  map[uuid.UUID]map[uuid.UUID]*ParticipantState // roomID -> entityID -> state
	memories      map[uuid.UUID]*Memory
	memoryTables  map[uuid.UUID]string
	relationships map[uuid.UUID]*Relationship
	tasks         map[uuid.UUID]*Task
	cache         map[string]*CacheEntry
	logs          []*LogEntry

	ready bool
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		agents:        make(map[uuid.UUID]*Agent),
		agentsByName:  make(map[string]uuid.UUID),
		entities:      make(map[uuid.UUID]*Entity),
		components:    make(map[uuid.UUID]*Component),
		worlds:        make(map[uuid.UUID]*World),
		rooms:         make(map[uuid.UUID]*Room),
		participants:  make(map[uuid.UUID]map[uuid.UUID]*ParticipantState),
		memories:      make(map[uuid.UUID]*Memory),
		memoryTables:  make(map[uuid.UUID]string),
		relationships: make(map[uuid.UUID]*Relationship),
		tasks:         make(map[uuid.UUID]*Task),
		cache:         make(map[string]*CacheEntry),
	}
}

func (s *MemStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	return nil
}

func (s *MemStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	return nil
}

func (s *MemStore) IsReady(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// --- agents ---

func (s *MemStore) GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemStore) GetAgentByName(ctx context.Context, name string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.agentsByName[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.agents[id]
	return &cp, nil
}

func (s *MemStore) GetAgents(ctx context.Context) ([]*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemStore) CreateAgent(ctx context.Context, a *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[a.ID]; exists {
		return ErrDuplicateKey
	}
	if _, exists := s.agentsByName[a.Name]; exists {
		return ErrDuplicateKey
	}
	cp := *a
	s.agents[a.ID] = &cp
	s.agentsByName[a.Name] = a.ID
	return nil
}

func (s *MemStore) UpdateAgent(ctx context.Context, a *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[a.ID]; !exists {
		return ErrNotFound
	}
	cp := *a
	s.agents[a.ID] = &cp
	s.agentsByName[a.Name] = a.ID
	return nil
}

func (s *MemStore) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.agentsByName, a.Name)
	delete(s.agents, id)
	return nil
}

// --- entities ---

func (s *MemStore) GetEntitiesByIDs(ctx context.Context, ids []uuid.UUID) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entities[id]; ok {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) GetEntitiesForRoom(ctx context.Context, roomID uuid.UUID, includeComponents bool) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.participants[roomID]
	if !ok {
		return nil, nil
	}
	out := make([]*Entity, 0, len(members))
	for entID := range members {
		e, ok := s.entities[entID]
		if !ok {
			continue
		}
		cp := *e
		if !includeComponents {
			cp.Components = nil
		}
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) CreateEntities(ctx context.Context, entities []*Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		if _, exists := s.entities[e.ID]; exists {
			return ErrDuplicateKey
		}
	}
	for _, e := range entities {
		cp := *e
		s.entities[e.ID] = &cp
	}
	return nil
}

func (s *MemStore) UpdateEntity(ctx context.Context, e *Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entities[e.ID]; !exists {
		return ErrNotFound
	}
	cp := *e
	s.entities[e.ID] = &cp
	return nil
}

// --- components ---

func (s *MemStore) GetComponent(ctx context.Context, id uuid.UUID) (*Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.components[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemStore) GetComponents(ctx context.Context, entityID uuid.UUID) ([]*Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Component{}
	for _, c := range s.components {
		if c.EntityID == entityID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) CreateComponent(ctx context.Context, c *Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.components[c.ID]; exists {
		return ErrDuplicateKey
	}
	cp := *c
	s.components[c.ID] = &cp
	return nil
}

func (s *MemStore) UpdateComponent(ctx context.Context, c *Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.components[c.ID]; !exists {
		return ErrNotFound
	}
	cp := *c
	s.components[c.ID] = &cp
	return nil
}

func (s *MemStore) DeleteComponent(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.components[id]; !exists {
		return ErrNotFound
	}
	delete(s.components, id)
	return nil
}

// --- worlds ---

func (s *MemStore) CreateWorld(ctx context.Context, w *World) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.worlds[w.ID]; exists {
		return ErrDuplicateKey
	}
	cp := *w
	s.worlds[w.ID] = &cp
	return nil
}

func (s *MemStore) GetWorld(ctx context.Context, id uuid.UUID) (*World, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.worlds[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *MemStore) UpdateWorld(ctx context.Context, w *World) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.worlds[w.ID]; !exists {
		return ErrNotFound
	}
	cp := *w
	s.worlds[w.ID] = &cp
	return nil
}

func (s *MemStore) RemoveWorld(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.worlds[id]; !exists {
		return ErrNotFound
	}
	delete(s.worlds, id)
	return nil
}

func (s *MemStore) GetAllWorlds(ctx context.Context) ([]*World, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*World, 0, len(s.worlds))
	for _, w := range s.worlds {
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

// --- rooms ---

func (s *MemStore) CreateRooms(ctx context.Context, rooms []*Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rooms {
		if _, exists := s.rooms[r.ID]; exists {
			return ErrDuplicateKey
		}
	}
	for _, r := range rooms {
		cp := *r
		s.rooms[r.ID] = &cp
	}
	return nil
}

func (s *MemStore) GetRoomsByIDs(ctx context.Context, ids []uuid.UUID) ([]*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Room, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.rooms[id]; ok {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) GetRoomsByWorld(ctx context.Context, worldID uuid.UUID) ([]*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Room{}
	for _, r := range s.rooms {
		if r.WorldID == worldID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) UpdateRoom(ctx context.Context, r *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[r.ID]; !exists {
		return ErrNotFound
	}
	cp := *r
	s.rooms[r.ID] = &cp
	return nil
}

func (s *MemStore) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[id]; !exists {
		return ErrNotFound
	}
	delete(s.rooms, id)
	delete(s.participants, id)
	return nil
}

func (s *MemStore) DeleteRoomsByWorldID(ctx context.Context, worldID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.rooms {
		if r.WorldID == worldID {
			delete(s.rooms, id)
			delete(s.participants, id)
		}
	}
	return nil
}

// --- participants ---

func (s *MemStore) AddParticipantsRoom(ctx context.Context, entityIDs []uuid.UUID, roomID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.participants[roomID]
	if !ok {
		members = make(map[uuid.UUID]*ParticipantState)
		s.participants[roomID] = members
	}
	for _, eid := range entityIDs {
		if _, exists := members[eid]; !exists {
			members[eid] = nil
		}
	}
	return nil
}

func (s *MemStore) RemoveParticipant(ctx context.Context, entityID, roomID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members, ok := s.participants[roomID]; ok {
		delete(members, entityID)
	}
	return nil
}

func (s *MemStore) GetParticipantsForRoom(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.participants[roomID]
	if !ok {
		return nil, nil
	}
	out := make([]uuid.UUID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out, nil
}

func (s *MemStore) GetParticipantsForEntity(ctx context.Context, entityID uuid.UUID) ([]*Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Participant{}
	for roomID, members := range s.participants {
		state, ok := members[entityID]
		if !ok {
			continue
		}
		out = append(out, &Participant{EntityID: entityID, RoomID: roomID, State: state})
	}
	return out, nil
}

func (s *MemStore) GetRoomsForParticipant(ctx context.Context, entityID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []uuid.UUID{}
	for roomID, members := range s.participants {
		if _, ok := members[entityID]; ok {
			out = append(out, roomID)
		}
	}
	return out, nil
}

func (s *MemStore) GetRoomsForParticipants(ctx context.Context, entityIDs []uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[uuid.UUID]struct{})
	for roomID, members := range s.participants {
		for _, eid := range entityIDs {
			if _, ok := members[eid]; ok {
				set[roomID] = struct{}{}
				break
			}
		}
	}
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, nil
}

func (s *MemStore) GetParticipantUserState(ctx context.Context, roomID, entityID uuid.UUID) (*ParticipantState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.participants[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	state, ok := members[entityID]
	if !ok {
		return nil, ErrNotFound
	}
	return state, nil
}

func (s *MemStore) SetParticipantUserState(ctx context.Context, roomID, entityID uuid.UUID, state *ParticipantState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.participants[roomID]
	if !ok {
		members = make(map[uuid.UUID]*ParticipantState)
		s.participants[roomID] = members
	}
	members[entityID] = state
	return nil
}

// --- memories ---

func (s *MemStore) CreateMemory(ctx context.Context, m *Memory, table string, unique bool) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if _, exists := s.memories[m.ID]; exists {
		return uuid.Nil, ErrDuplicateKey
	}
	if unique {
		for id, existing := range s.memories {
			if s.memoryTables[id] == table && existing.RoomID == m.RoomID && existing.Text() == m.Text() {
				return uuid.Nil, ErrDuplicateKey
			}
		}
	}
	cp := *m
	s.memories[m.ID] = &cp
	s.memoryTables[m.ID] = table
	return m.ID, nil
}

func (s *MemStore) GetMemoryByID(ctx context.Context, id uuid.UUID) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemStore) GetMemoriesByIDs(ctx context.Context, ids []uuid.UUID) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.memories[id]; ok {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) GetMemories(ctx context.Context, filter MemoryFilter) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Memory{}
	for id, m := range s.memories {
		if filter.Table != "" && s.memoryTables[id] != filter.Table {
			continue
		}
		if filter.RoomID != uuid.Nil && m.RoomID != filter.RoomID {
			continue
		}
		if filter.WorldID != uuid.Nil && m.WorldID != filter.WorldID {
			continue
		}
		if filter.Type != "" && m.Metadata.Type != filter.Type {
			continue
		}
		if filter.Before != 0 && m.CreatedAt >= filter.Before {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	if filter.Count > 0 && len(out) > filter.Count {
		out = out[len(out)-filter.Count:]
	}
	return out, nil
}

func (s *MemStore) GetMemoriesByRoomIDs(ctx context.Context, roomIDs []uuid.UUID, table string) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[uuid.UUID]struct{}, len(roomIDs))
	for _, id := range roomIDs {
		set[id] = struct{}{}
	}
	out := []*Memory{}
	for id, m := range s.memories {
		if table != "" && s.memoryTables[id] != table {
			continue
		}
		if _, ok := set[m.RoomID]; ok {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *MemStore) GetMemoriesByWorldID(ctx context.Context, worldID uuid.UUID, table string) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Memory{}
	for id, m := range s.memories {
		if table != "" && s.memoryTables[id] != table {
			continue
		}
		if m.WorldID == worldID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// SearchMemories does brute-force cosine similarity over all held
// embeddings, matching the contract (not the performance) of a vector
// index backend.
func (s *MemStore) SearchMemories(ctx context.Context, filter SearchFilter) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type scored struct {
		m     *Memory
		score float64
	}
	var candidates []scored
	for id, m := range s.memories {
		if filter.Table != "" && s.memoryTables[id] != filter.Table {
			continue
		}
		if filter.RoomID != uuid.Nil && m.RoomID != filter.RoomID {
			continue
		}
		if filter.WorldID != uuid.Nil && m.WorldID != filter.WorldID {
			continue
		}
		if len(m.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(filter.Embedding, m.Embedding)
		if score < filter.Threshold {
			continue
		}
		cp := *m
		candidates = append(candidates, scored{&cp, score})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	count := filter.Count
	if count <= 0 || count > len(candidates) {
		count = len(candidates)
	}
	out := make([]*Memory, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, candidates[i].m)
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (sqrt(na) * sqrt(nb))
}

func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 32; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

func (s *MemStore) UpdateMemory(ctx context.Context, m *Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.memories[m.ID]; !exists {
		return ErrNotFound
	}
	cp := *m
	s.memories[m.ID] = &cp
	return nil
}

func (s *MemStore) DeleteMemory(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.memories[id]; !exists {
		return ErrNotFound
	}
	delete(s.memories, id)
	delete(s.memoryTables, id)
	return nil
}

func (s *MemStore) DeleteManyMemories(ctx context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.memories, id)
		delete(s.memoryTables, id)
	}
	return nil
}

func (s *MemStore) DeleteAllMemories(ctx context.Context, roomID uuid.UUID, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.memories {
		if m.RoomID == roomID && (table == "" || s.memoryTables[id] == table) {
			delete(s.memories, id)
			delete(s.memoryTables, id)
		}
	}
	return nil
}

func (s *MemStore) CountMemories(ctx context.Context, roomID uuid.UUID, table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for id, m := range s.memories {
		if m.RoomID == roomID && (table == "" || s.memoryTables[id] == table) {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) GetCachedEmbeddings(ctx context.Context, table string) (map[uuid.UUID][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID][]float32)
	for id, m := range s.memories {
		if s.memoryTables[id] == table && len(m.Embedding) > 0 {
			out[id] = m.Embedding
		}
	}
	return out, nil
}

func (s *MemStore) EnsureEmbeddingDimension(ctx context.Context, n int) error {
	return nil
}

// --- relationships ---

func (s *MemStore) CreateRelationship(ctx context.Context, r *Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.relationships[r.ID]; exists {
		return ErrDuplicateKey
	}
	cp := *r
	s.relationships[r.ID] = &cp
	return nil
}

func (s *MemStore) GetRelationships(ctx context.Context, entityID uuid.UUID, tags []string) ([]*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Relationship{}
	for _, r := range s.relationships {
		if r.SourceID != entityID && r.TargetID != entityID {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(r.Tags, tags) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func hasAnyTag(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

func (s *MemStore) UpdateRelationship(ctx context.Context, r *Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.relationships[r.ID]; !exists {
		return ErrNotFound
	}
	cp := *r
	s.relationships[r.ID] = &cp
	return nil
}

// --- tasks ---

func (s *MemStore) CreateTask(ctx context.Context, t *Task) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if _, exists := s.tasks[t.ID]; exists {
		return uuid.Nil, ErrDuplicateKey
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return t.ID, nil
}

func (s *MemStore) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemStore) GetTasks(ctx context.Context, roomID uuid.UUID, tags []string) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Task{}
	for _, t := range s.tasks {
		if roomID != uuid.Nil && t.RoomID != roomID {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(t.Tags, tags) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) UpdateTask(ctx context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; !exists {
		return ErrNotFound
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *MemStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[id]; !exists {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// --- cache ---

func (s *MemStore) GetCache(ctx context.Context, key string) (*CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.cache[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemStore) SetCache(ctx context.Context, entry *CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.cache[entry.Key] = &cp
	return nil
}

func (s *MemStore) DeleteCache(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, key)
	return nil
}

// --- logs ---

func (s *MemStore) Log(ctx context.Context, entry *LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	cp := *entry
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *MemStore) GetLogs(ctx context.Context, roomID uuid.UUID, logType string, count int) ([]*LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*LogEntry{}
	for _, l := range s.logs {
		if roomID != uuid.Nil && l.RoomID != roomID {
			continue
		}
		if logType != "" && l.Type != logType {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	if count > 0 && len(out) > count {
		out = out[len(out)-count:]
	}
	return out, nil
}

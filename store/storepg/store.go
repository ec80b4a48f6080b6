// Package storepg implements store.Store on PostgreSQL via pgx/v5's
// connection pool: a bare *pgxpool.Pool per call, JSON columns for
// flexible fields, and pgx.ErrNoRows mapped to store.ErrNotFound. It does
// not thread pgx.Tx through context: the Store Adapter contract this
// package implements has no transaction primitive, so a bare pool held
// directly on the Store value is the simplest contract-satisfying shape.
package storepg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coreagent/kernel/store"
)

// Store implements store.Store using a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store over an existing pool created by the caller.
// Close closes that pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Init(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func (s *Store) IsReady(ctx context.Context) bool {
	return s.pool.Ping(ctx) == nil
}

// isDuplicateKey reports whether err is a PostgreSQL unique_violation,
// the signal the kernel treats as store.ErrDuplicateKey.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if isDuplicateKey(err) {
		return store.ErrDuplicateKey
	}
	return fmt.Errorf("storepg: %s: %w", op, err)
}

func marshal(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func unmarshalMap(raw []byte, out *map[string]any) error {
	if len(raw) == 0 {
		*out = map[string]any{}
		return nil
	}
	return json.Unmarshal(raw, out)
}

// --- agents ---

func (s *Store) GetAgent(ctx context.Context, id uuid.UUID) (*store.Agent, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, bio, system, settings, secrets, plugins FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

func (s *Store) GetAgentByName(ctx context.Context, name string) (*store.Agent, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, bio, system, settings, secrets, plugins FROM agents WHERE name = $1`, name)
	return scanAgent(row)
}

func scanAgent(row pgx.Row) (*store.Agent, error) {
	var a store.Agent
	var bio, plugins []string
	var settingsRaw []byte
	var secretsRaw map[string][]byte
	if err := row.Scan(&a.ID, &a.Name, &bio, &a.System, &settingsRaw, &secretsRaw, &plugins); err != nil {
		return nil, wrapErr("GetAgent", err)
	}
	a.Bio = bio
	a.Plugins = plugins
	a.Secrets = secretsRaw
	if err := unmarshalMap(settingsRaw, &a.Settings); err != nil {
		return nil, fmt.Errorf("storepg: GetAgent: decode settings: %w", err)
	}
	return &a, nil
}

func (s *Store) GetAgents(ctx context.Context) ([]*store.Agent, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, bio, system, settings, secrets, plugins FROM agents ORDER BY name`)
	if err != nil {
		return nil, wrapErr("GetAgents", err)
	}
	defer rows.Close()

	var out []*store.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, wrapErr("GetAgents", rows.Err())
}

func (s *Store) CreateAgent(ctx context.Context, a *store.Agent) error {
	settings, err := marshal(a.Settings)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO agents (id, name, bio, system, settings, secrets, plugins) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.Name, a.Bio, a.System, settings, a.Secrets, a.Plugins)
	return wrapErr("CreateAgent", err)
}

func (s *Store) UpdateAgent(ctx context.Context, a *store.Agent) error {
	settings, err := marshal(a.Settings)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET name=$2, bio=$3, system=$4, settings=$5, secrets=$6, plugins=$7 WHERE id=$1`,
		a.ID, a.Name, a.Bio, a.System, settings, a.Secrets, a.Plugins)
	if err != nil {
		return wrapErr("UpdateAgent", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id=$1`, id)
	if err != nil {
		return wrapErr("DeleteAgent", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- entities ---

func (s *Store) GetEntitiesByIDs(ctx context.Context, ids []uuid.UUID) ([]*store.Entity, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, agent_id, names, metadata FROM entities WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, wrapErr("GetEntitiesByIDs", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (s *Store) GetEntitiesForRoom(ctx context.Context, roomID uuid.UUID, includeComponents bool) ([]*store.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT e.id, e.agent_id, e.names, e.metadata FROM entities e
		 JOIN participants p ON p.entity_id = e.id WHERE p.room_id = $1`, roomID)
	if err != nil {
		return nil, wrapErr("GetEntitiesForRoom", err)
	}
	defer rows.Close()
	entities, err := scanEntities(rows)
	if err != nil {
		return nil, err
	}
	if !includeComponents {
		return entities, nil
	}
	for _, e := range entities {
		comps, err := s.GetComponents(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range comps {
			e.Components = append(e.Components, *c)
		}
	}
	return entities, nil
}

func scanEntities(rows pgx.Rows) ([]*store.Entity, error) {
	var out []*store.Entity
	for rows.Next() {
		var e store.Entity
		var names []string
		var metaRaw []byte
		if err := rows.Scan(&e.ID, &e.AgentID, &names, &metaRaw); err != nil {
			return nil, wrapErr("scanEntities", err)
		}
		e.Names = names
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &e.Metadata); err != nil {
				return nil, fmt.Errorf("storepg: scanEntities: decode metadata: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, wrapErr("scanEntities", rows.Err())
}

func (s *Store) CreateEntities(ctx context.Context, entities []*store.Entity) error {
	batch := &pgx.Batch{}
	for _, e := range entities {
		meta, err := marshal(e.Metadata)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO entities (id, agent_id, names, metadata) VALUES ($1,$2,$3,$4)`, e.ID, e.AgentID, e.Names, meta)
	}
	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()
	for range entities {
		if _, err := res.Exec(); err != nil {
			return wrapErr("CreateEntities", err)
		}
	}
	return nil
}

func (s *Store) UpdateEntity(ctx context.Context, e *store.Entity) error {
	meta, err := marshal(e.Metadata)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE entities SET names=$2, metadata=$3 WHERE id=$1`, e.ID, e.Names, meta)
	if err != nil {
		return wrapErr("UpdateEntity", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- components ---

func (s *Store) GetComponent(ctx context.Context, id uuid.UUID) (*store.Component, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, entity_id, type, data, world_id, room_id, created_at FROM components WHERE id=$1`, id)
	return scanComponent(row)
}

func scanComponent(row pgx.Row) (*store.Component, error) {
	var c store.Component
	var dataRaw []byte
	if err := row.Scan(&c.ID, &c.EntityID, &c.Type, &dataRaw, &c.WorldID, &c.RoomID, &c.CreatedAt); err != nil {
		return nil, wrapErr("GetComponent", err)
	}
	if len(dataRaw) > 0 {
		if err := json.Unmarshal(dataRaw, &c.Data); err != nil {
			return nil, fmt.Errorf("storepg: GetComponent: decode data: %w", err)
		}
	}
	return &c, nil
}

func (s *Store) GetComponents(ctx context.Context, entityID uuid.UUID) ([]*store.Component, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, entity_id, type, data, world_id, room_id, created_at FROM components WHERE entity_id=$1`, entityID)
	if err != nil {
		return nil, wrapErr("GetComponents", err)
	}
	defer rows.Close()
	var out []*store.Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, wrapErr("GetComponents", rows.Err())
}

func (s *Store) CreateComponent(ctx context.Context, c *store.Component) error {
	data, err := marshal(c.Data)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO components (id, entity_id, type, data, world_id, room_id, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.EntityID, c.Type, data, c.WorldID, c.RoomID, c.CreatedAt)
	return wrapErr("CreateComponent", err)
}

func (s *Store) UpdateComponent(ctx context.Context, c *store.Component) error {
	data, err := marshal(c.Data)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE components SET data=$2 WHERE id=$1`, c.ID, data)
	if err != nil {
		return wrapErr("UpdateComponent", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteComponent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM components WHERE id=$1`, id)
	if err != nil {
		return wrapErr("DeleteComponent", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- worlds ---

func (s *Store) CreateWorld(ctx context.Context, w *store.World) error {
	meta, err := marshal(w.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO worlds (id, name, agent_id, server_id, metadata) VALUES ($1,$2,$3,$4,$5)`,
		w.ID, w.Name, w.AgentID, w.ServerID, meta)
	return wrapErr("CreateWorld", err)
}

func (s *Store) GetWorld(ctx context.Context, id uuid.UUID) (*store.World, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, agent_id, server_id, metadata FROM worlds WHERE id=$1`, id)
	var w store.World
	var metaRaw []byte
	if err := row.Scan(&w.ID, &w.Name, &w.AgentID, &w.ServerID, &metaRaw); err != nil {
		return nil, wrapErr("GetWorld", err)
	}
	if err := unmarshalMap(metaRaw, &w.Metadata); err != nil {
		return nil, fmt.Errorf("storepg: GetWorld: decode metadata: %w", err)
	}
	return &w, nil
}

func (s *Store) UpdateWorld(ctx context.Context, w *store.World) error {
	meta, err := marshal(w.Metadata)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE worlds SET name=$2, server_id=$3, metadata=$4 WHERE id=$1`, w.ID, w.Name, w.ServerID, meta)
	if err != nil {
		return wrapErr("UpdateWorld", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RemoveWorld(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM worlds WHERE id=$1`, id)
	if err != nil {
		return wrapErr("RemoveWorld", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetAllWorlds(ctx context.Context) ([]*store.World, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, agent_id, server_id, metadata FROM worlds`)
	if err != nil {
		return nil, wrapErr("GetAllWorlds", err)
	}
	defer rows.Close()
	var out []*store.World
	for rows.Next() {
		var w store.World
		var metaRaw []byte
		if err := rows.Scan(&w.ID, &w.Name, &w.AgentID, &w.ServerID, &metaRaw); err != nil {
			return nil, wrapErr("GetAllWorlds", err)
		}
		if err := unmarshalMap(metaRaw, &w.Metadata); err != nil {
			return nil, fmt.Errorf("storepg: GetAllWorlds: decode metadata: %w", err)
		}
		out = append(out, &w)
	}
	return out, wrapErr("GetAllWorlds", rows.Err())
}

// --- rooms ---

func (s *Store) CreateRooms(ctx context.Context, rooms []*store.Room) error {
	batch := &pgx.Batch{}
	for _, r := range rooms {
		batch.Queue(`INSERT INTO rooms (id, name, world_id, source, type, channel_id, server_id) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			r.ID, r.Name, r.WorldID, r.Source, r.Type, r.ChannelID, r.ServerID)
	}
	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()
	for range rooms {
		if _, err := res.Exec(); err != nil {
			return wrapErr("CreateRooms", err)
		}
	}
	return nil
}

func (s *Store) GetRoomsByIDs(ctx context.Context, ids []uuid.UUID) ([]*store.Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, world_id, source, type, channel_id, server_id FROM rooms WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, wrapErr("GetRoomsByIDs", err)
	}
	defer rows.Close()
	return scanRooms(rows)
}

func (s *Store) GetRoomsByWorld(ctx context.Context, worldID uuid.UUID) ([]*store.Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, world_id, source, type, channel_id, server_id FROM rooms WHERE world_id=$1`, worldID)
	if err != nil {
		return nil, wrapErr("GetRoomsByWorld", err)
	}
	defer rows.Close()
	return scanRooms(rows)
}

func scanRooms(rows pgx.Rows) ([]*store.Room, error) {
	var out []*store.Room
	for rows.Next() {
		var r store.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.WorldID, &r.Source, &r.Type, &r.ChannelID, &r.ServerID); err != nil {
			return nil, wrapErr("scanRooms", err)
		}
		out = append(out, &r)
	}
	return out, wrapErr("scanRooms", rows.Err())
}

func (s *Store) UpdateRoom(ctx context.Context, r *store.Room) error {
	tag, err := s.pool.Exec(ctx, `UPDATE rooms SET name=$2, source=$3, type=$4, channel_id=$5, server_id=$6 WHERE id=$1`,
		r.ID, r.Name, r.Source, r.Type, r.ChannelID, r.ServerID)
	if err != nil {
		return wrapErr("UpdateRoom", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE id=$1`, id)
	if err != nil {
		return wrapErr("DeleteRoom", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRoomsByWorldID(ctx context.Context, worldID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE world_id=$1`, worldID)
	return wrapErr("DeleteRoomsByWorldID", err)
}

// --- participants ---

func (s *Store) AddParticipantsRoom(ctx context.Context, entityIDs []uuid.UUID, roomID uuid.UUID) error {
	batch := &pgx.Batch{}
	for _, eid := range entityIDs {
		batch.Queue(`INSERT INTO participants (entity_id, room_id, state) VALUES ($1,$2,NULL) ON CONFLICT DO NOTHING`, eid, roomID)
	}
	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()
	for range entityIDs {
		if _, err := res.Exec(); err != nil {
			return wrapErr("AddParticipantsRoom", err)
		}
	}
	return nil
}

func (s *Store) RemoveParticipant(ctx context.Context, entityID, roomID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM participants WHERE entity_id=$1 AND room_id=$2`, entityID, roomID)
	return wrapErr("RemoveParticipant", err)
}

func (s *Store) GetParticipantsForRoom(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT entity_id FROM participants WHERE room_id=$1`, roomID)
	if err != nil {
		return nil, wrapErr("GetParticipantsForRoom", err)
	}
	defer rows.Close()
	return scanUUIDs(rows)
}

func scanUUIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("scanUUIDs", err)
		}
		out = append(out, id)
	}
	return out, wrapErr("scanUUIDs", rows.Err())
}

func (s *Store) GetParticipantsForEntity(ctx context.Context, entityID uuid.UUID) ([]*store.Participant, error) {
	rows, err := s.pool.Query(ctx, `SELECT entity_id, room_id, state FROM participants WHERE entity_id=$1`, entityID)
	if err != nil {
		return nil, wrapErr("GetParticipantsForEntity", err)
	}
	defer rows.Close()
	var out []*store.Participant
	for rows.Next() {
		var p store.Participant
		var state *store.ParticipantState
		if err := rows.Scan(&p.EntityID, &p.RoomID, &state); err != nil {
			return nil, wrapErr("GetParticipantsForEntity", err)
		}
		p.State = state
		out = append(out, &p)
	}
	return out, wrapErr("GetParticipantsForEntity", rows.Err())
}

func (s *Store) GetRoomsForParticipant(ctx context.Context, entityID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT room_id FROM participants WHERE entity_id=$1`, entityID)
	if err != nil {
		return nil, wrapErr("GetRoomsForParticipant", err)
	}
	defer rows.Close()
	return scanUUIDs(rows)
}

func (s *Store) GetRoomsForParticipants(ctx context.Context, entityIDs []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT room_id FROM participants WHERE entity_id = ANY($1)`, entityIDs)
	if err != nil {
		return nil, wrapErr("GetRoomsForParticipants", err)
	}
	defer rows.Close()
	return scanUUIDs(rows)
}

func (s *Store) GetParticipantUserState(ctx context.Context, roomID, entityID uuid.UUID) (*store.ParticipantState, error) {
	row := s.pool.QueryRow(ctx, `SELECT state FROM participants WHERE room_id=$1 AND entity_id=$2`, roomID, entityID)
	var state *store.ParticipantState
	if err := row.Scan(&state); err != nil {
		return nil, wrapErr("GetParticipantUserState", err)
	}
	return state, nil
}

func (s *Store) SetParticipantUserState(ctx context.Context, roomID, entityID uuid.UUID, state *store.ParticipantState) error {
	tag, err := s.pool.Exec(ctx, `UPDATE participants SET state=$3 WHERE room_id=$1 AND entity_id=$2`, roomID, entityID, state)
	if err != nil {
		return wrapErr("SetParticipantUserState", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- memories ---

func (s *Store) CreateMemory(ctx context.Context, m *store.Memory, table string, unique bool) (uuid.UUID, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	content, err := marshal(m.Content)
	if err != nil {
		return uuid.Nil, err
	}
	meta, err := marshal(m.Metadata)
	if err != nil {
		return uuid.Nil, err
	}

	query := `INSERT INTO memories (id, entity_id, room_id, world_id, content, embedding, metadata, created_at, mem_table)
	          VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if unique {
		query += ` ON CONFLICT DO NOTHING`
	}
	tag, err := s.pool.Exec(ctx, query, m.ID, m.EntityID, m.RoomID, m.WorldID, content, m.Embedding, meta, m.CreatedAt, table)
	if err != nil {
		return uuid.Nil, wrapErr("CreateMemory", err)
	}
	if unique && tag.RowsAffected() == 0 {
		return uuid.Nil, store.ErrDuplicateKey
	}
	return m.ID, nil
}

func (s *Store) GetMemoryByID(ctx context.Context, id uuid.UUID) (*store.Memory, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, entity_id, room_id, world_id, content, embedding, metadata, created_at FROM memories WHERE id=$1`, id)
	return scanMemory(row)
}

func scanMemory(row pgx.Row) (*store.Memory, error) {
	var m store.Memory
	var contentRaw, metaRaw []byte
	if err := row.Scan(&m.ID, &m.EntityID, &m.RoomID, &m.WorldID, &contentRaw, &m.Embedding, &metaRaw, &m.CreatedAt); err != nil {
		return nil, wrapErr("scanMemory", err)
	}
	if err := unmarshalMap(contentRaw, &m.Content); err != nil {
		return nil, fmt.Errorf("storepg: scanMemory: decode content: %w", err)
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &m.Metadata); err != nil {
			return nil, fmt.Errorf("storepg: scanMemory: decode metadata: %w", err)
		}
	}
	return &m, nil
}

func (s *Store) GetMemoriesByIDs(ctx context.Context, ids []uuid.UUID) ([]*store.Memory, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, entity_id, room_id, world_id, content, embedding, metadata, created_at FROM memories WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, wrapErr("GetMemoriesByIDs", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func scanMemories(rows pgx.Rows) ([]*store.Memory, error) {
	var out []*store.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, wrapErr("scanMemories", rows.Err())
}

func (s *Store) GetMemories(ctx context.Context, filter store.MemoryFilter) ([]*store.Memory, error) {
	query := `SELECT id, entity_id, room_id, world_id, content, embedding, metadata, created_at FROM memories WHERE 1=1`
	var args []any
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if filter.Table != "" {
		query += ` AND mem_table = ` + arg(filter.Table)
	}
	if filter.RoomID != uuid.Nil {
		query += ` AND room_id = ` + arg(filter.RoomID)
	}
	if filter.WorldID != uuid.Nil {
		query += ` AND world_id = ` + arg(filter.WorldID)
	}
	if filter.Type != "" {
		query += ` AND metadata->>'type' = ` + arg(string(filter.Type))
	}
	if filter.Before != 0 {
		query += ` AND created_at < ` + arg(filter.Before)
	}
	query += ` ORDER BY created_at ASC`
	if filter.Count > 0 {
		query += ` LIMIT ` + arg(filter.Count)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("GetMemories", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *Store) GetMemoriesByRoomIDs(ctx context.Context, roomIDs []uuid.UUID, table string) ([]*store.Memory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, entity_id, room_id, world_id, content, embedding, metadata, created_at FROM memories
		 WHERE room_id = ANY($1) AND ($2 = '' OR mem_table = $2) ORDER BY created_at ASC`, roomIDs, table)
	if err != nil {
		return nil, wrapErr("GetMemoriesByRoomIDs", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *Store) GetMemoriesByWorldID(ctx context.Context, worldID uuid.UUID, table string) ([]*store.Memory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, entity_id, room_id, world_id, content, embedding, metadata, created_at FROM memories
		 WHERE world_id = $1 AND ($2 = '' OR mem_table = $2) ORDER BY created_at ASC`, worldID, table)
	if err != nil {
		return nil, wrapErr("GetMemoriesByWorldID", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// SearchMemories uses pgvector's cosine-distance operator (<=>); the
// embedding column must be declared `vector(n)` (see EnsureEmbeddingDimension).
func (s *Store) SearchMemories(ctx context.Context, filter store.SearchFilter) ([]*store.Memory, error) {
	query := `SELECT id, entity_id, room_id, world_id, content, embedding, metadata, created_at,
	          1 - (embedding <=> $1) AS score
	          FROM memories WHERE embedding IS NOT NULL`
	args := []any{pgvectorLiteral(filter.Embedding)}
	n := 1
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if filter.Table != "" {
		query += ` AND mem_table = ` + arg(filter.Table)
	}
	if filter.RoomID != uuid.Nil {
		query += ` AND room_id = ` + arg(filter.RoomID)
	}
	if filter.WorldID != uuid.Nil {
		query += ` AND world_id = ` + arg(filter.WorldID)
	}
	query += fmt.Sprintf(` AND 1 - (embedding <=> $1) >= %s ORDER BY score DESC`, arg(filter.Threshold))
	if filter.Count > 0 {
		query += ` LIMIT ` + arg(filter.Count)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("SearchMemories", err)
	}
	defer rows.Close()

	var out []*store.Memory
	for rows.Next() {
		var m store.Memory
		var contentRaw, metaRaw []byte
		var score float64
		if err := rows.Scan(&m.ID, &m.EntityID, &m.RoomID, &m.WorldID, &contentRaw, &m.Embedding, &metaRaw, &m.CreatedAt, &score); err != nil {
			return nil, wrapErr("SearchMemories", err)
		}
		if err := unmarshalMap(contentRaw, &m.Content); err != nil {
			return nil, fmt.Errorf("storepg: SearchMemories: decode content: %w", err)
		}
		if len(metaRaw) > 0 {
			_ = json.Unmarshal(metaRaw, &m.Metadata)
		}
		out = append(out, &m)
	}
	return out, wrapErr("SearchMemories", rows.Err())
}

func pgvectorLiteral(v []float32) string {
	s := "["
	for i, f := range v {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%g", f)
	}
	return s + "]"
}

func (s *Store) UpdateMemory(ctx context.Context, m *store.Memory) error {
	content, err := marshal(m.Content)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE memories SET content=$2, embedding=$3 WHERE id=$1`, m.ID, content, m.Embedding)
	if err != nil {
		return wrapErr("UpdateMemory", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMemory(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE id=$1`, id)
	if err != nil {
		return wrapErr("DeleteMemory", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteManyMemories(ctx context.Context, ids []uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE id = ANY($1)`, ids)
	return wrapErr("DeleteManyMemories", err)
}

func (s *Store) DeleteAllMemories(ctx context.Context, roomID uuid.UUID, table string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE room_id=$1 AND ($2 = '' OR mem_table=$2)`, roomID, table)
	return wrapErr("DeleteAllMemories", err)
}

func (s *Store) CountMemories(ctx context.Context, roomID uuid.UUID, table string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM memories WHERE room_id=$1 AND ($2 = '' OR mem_table=$2)`, roomID, table).Scan(&n)
	return n, wrapErr("CountMemories", err)
}

func (s *Store) GetCachedEmbeddings(ctx context.Context, table string) (map[uuid.UUID][]float32, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, embedding FROM memories WHERE mem_table=$1 AND embedding IS NOT NULL`, table)
	if err != nil {
		return nil, wrapErr("GetCachedEmbeddings", err)
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]float32)
	for rows.Next() {
		var id uuid.UUID
		var emb []float32
		if err := rows.Scan(&id, &emb); err != nil {
			return nil, wrapErr("GetCachedEmbeddings", err)
		}
		out[id] = emb
	}
	return out, wrapErr("GetCachedEmbeddings", rows.Err())
}

func (s *Store) EnsureEmbeddingDimension(ctx context.Context, n int) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`ALTER TABLE memories ALTER COLUMN embedding TYPE vector(%d)`, n))
	return wrapErr("EnsureEmbeddingDimension", err)
}

// --- relationships ---

func (s *Store) CreateRelationship(ctx context.Context, r *store.Relationship) error {
	meta, err := marshal(r.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO relationships (id, source_entity_id, target_entity_id, tags, metadata, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID, r.SourceID, r.TargetID, r.Tags, meta, r.CreatedAt)
	return wrapErr("CreateRelationship", err)
}

func (s *Store) GetRelationships(ctx context.Context, entityID uuid.UUID, tags []string) ([]*store.Relationship, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source_entity_id, target_entity_id, tags, metadata, created_at FROM relationships
		 WHERE (source_entity_id=$1 OR target_entity_id=$1) AND (cardinality($2::text[]) = 0 OR tags && $2)`,
		entityID, tags)
	if err != nil {
		return nil, wrapErr("GetRelationships", err)
	}
	defer rows.Close()
	var out []*store.Relationship
	for rows.Next() {
		var r store.Relationship
		var metaRaw []byte
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Tags, &metaRaw, &r.CreatedAt); err != nil {
			return nil, wrapErr("GetRelationships", err)
		}
		if err := unmarshalMap(metaRaw, &r.Metadata); err != nil {
			return nil, fmt.Errorf("storepg: GetRelationships: decode metadata: %w", err)
		}
		out = append(out, &r)
	}
	return out, wrapErr("GetRelationships", rows.Err())
}

func (s *Store) UpdateRelationship(ctx context.Context, r *store.Relationship) error {
	meta, err := marshal(r.Metadata)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE relationships SET tags=$2, metadata=$3 WHERE id=$1`, r.ID, r.Tags, meta)
	if err != nil {
		return wrapErr("UpdateRelationship", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- tasks ---

func (s *Store) CreateTask(ctx context.Context, t *store.Task) (uuid.UUID, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	meta, err := marshal(t.Metadata)
	if err != nil {
		return uuid.Nil, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO tasks (id, name, description, room_id, world_id, tags, metadata, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.Name, t.Description, t.RoomID, t.WorldID, t.Tags, meta, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return uuid.Nil, wrapErr("CreateTask", err)
	}
	return t.ID, nil
}

func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*store.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, description, room_id, world_id, tags, metadata, created_at, updated_at FROM tasks WHERE id=$1`, id)
	return scanTask(row)
}

func scanTask(row pgx.Row) (*store.Task, error) {
	var t store.Task
	var metaRaw []byte
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.RoomID, &t.WorldID, &t.Tags, &metaRaw, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, wrapErr("GetTask", err)
	}
	if err := unmarshalMap(metaRaw, &t.Metadata); err != nil {
		return nil, fmt.Errorf("storepg: GetTask: decode metadata: %w", err)
	}
	return &t, nil
}

func (s *Store) GetTasks(ctx context.Context, roomID uuid.UUID, tags []string) ([]*store.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, room_id, world_id, tags, metadata, created_at, updated_at FROM tasks
		 WHERE ($1 = '00000000-0000-0000-0000-000000000000'::uuid OR room_id=$1) AND (cardinality($2::text[]) = 0 OR tags && $2)`,
		roomID, tags)
	if err != nil {
		return nil, wrapErr("GetTasks", err)
	}
	defer rows.Close()
	var out []*store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, wrapErr("GetTasks", rows.Err())
}

func (s *Store) UpdateTask(ctx context.Context, t *store.Task) error {
	meta, err := marshal(t.Metadata)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE tasks SET name=$2, description=$3, tags=$4, metadata=$5, updated_at=$6 WHERE id=$1`,
		t.ID, t.Name, t.Description, t.Tags, meta, t.UpdatedAt)
	if err != nil {
		return wrapErr("UpdateTask", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id=$1`, id)
	if err != nil {
		return wrapErr("DeleteTask", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- cache ---

func (s *Store) GetCache(ctx context.Context, key string) (*store.CacheEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT key, value, expires_at FROM cache_entries WHERE key=$1`, key)
	var e store.CacheEntry
	var valueRaw []byte
	if err := row.Scan(&e.Key, &valueRaw, &e.ExpiresAt); err != nil {
		return nil, wrapErr("GetCache", err)
	}
	if err := unmarshalMap(valueRaw, &e.Value); err != nil {
		return nil, fmt.Errorf("storepg: GetCache: decode value: %w", err)
	}
	return &e, nil
}

func (s *Store) SetCache(ctx context.Context, entry *store.CacheEntry) error {
	value, err := marshal(entry.Value)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES ($1,$2,$3)
		 ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, expires_at=EXCLUDED.expires_at`,
		entry.Key, value, entry.ExpiresAt)
	return wrapErr("SetCache", err)
}

func (s *Store) DeleteCache(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key=$1`, key)
	return wrapErr("DeleteCache", err)
}

// --- logs ---

func (s *Store) Log(ctx context.Context, entry *store.LogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	body, err := marshal(entry.Body)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO logs (id, entity_id, room_id, type, body, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.ID, entry.EntityID, entry.RoomID, entry.Type, body, entry.CreatedAt)
	return wrapErr("Log", err)
}

func (s *Store) GetLogs(ctx context.Context, roomID uuid.UUID, logType string, count int) ([]*store.LogEntry, error) {
	query := `SELECT id, entity_id, room_id, type, body, created_at FROM logs
	          WHERE ($1 = '00000000-0000-0000-0000-000000000000'::uuid OR room_id=$1) AND ($2 = '' OR type=$2)
	          ORDER BY created_at ASC`
	args := []any{roomID, logType}
	if count > 0 {
		query += ` LIMIT $3`
		args = append(args, count)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("GetLogs", err)
	}
	defer rows.Close()
	var out []*store.LogEntry
	for rows.Next() {
		var l store.LogEntry
		var bodyRaw []byte
		if err := rows.Scan(&l.ID, &l.EntityID, &l.RoomID, &l.Type, &bodyRaw, &l.CreatedAt); err != nil {
			return nil, wrapErr("GetLogs", err)
		}
		if err := unmarshalMap(bodyRaw, &l.Body); err != nil {
			return nil, fmt.Errorf("storepg: GetLogs: decode body: %w", err)
		}
		out = append(out, &l)
	}
	return out, wrapErr("GetLogs", rows.Err())
}

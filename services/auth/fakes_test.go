package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maingoo/auth-service/models"
	"github.com/maingoo/auth-service/repositories"
	"github.com/maingoo/auth-service/services/events"
)

// memStore is an in-memory credential store. Transactions are serialized
// and roll back to a snapshot, which stands in for row locking.
type memStore struct {
	mu     sync.Mutex
	users  map[uuid.UUID]models.User
	roles  map[uuid.UUID]models.Role
	tokens map[uuid.UUID]models.RefreshToken

	txMu sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[uuid.UUID]models.User),
		roles:  make(map[uuid.UUID]models.Role),
		tokens: make(map[uuid.UUID]models.RefreshToken),
	}
}

type snapshot struct {
	users  map[uuid.UUID]models.User
	tokens map[uuid.UUID]models.RefreshToken
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		users:  make(map[uuid.UUID]models.User, len(s.users)),
		tokens: make(map[uuid.UUID]models.RefreshToken, len(s.tokens)),
	}
	for id, u := range s.users {
		snap.users[id] = u
	}
	for id, t := range s.tokens {
		snap.tokens[id] = t
	}
	return snap
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap.users
	s.tokens = snap.tokens
}

func (s *memStore) addRole(name, description string) *models.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	role := models.NewRole(name, description)
	s.roles[role.ID] = *role
	return role
}

func (s *memStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *memStore) activeTokens(userID uuid.UUID, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, t := range s.tokens {
		if t.UserID == userID && t.IsActive(now) {
			count++
		}
	}
	return count
}

func (s *memStore) passwordHash(id uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].PasswordHash
}

func (s *memStore) token(id uuid.UUID) (models.RefreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	return t, ok
}

func (s *memStore) setTokenExpiry(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tokens[id]
	t.ExpiresAt = at
	s.tokens[id] = t
}

// memTxManager implements repositories.TransactionManager over memStore
type memTxManager struct {
	store *memStore
}

type memTx struct {
	store *memStore
	snap  snapshot
	ctx   context.Context
	done  bool
}

func (m *memTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	m.store.txMu.Lock()
	return &memTx{store: m.store, snap: m.store.snapshot(), ctx: ctx}, nil
}

func (m *memTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx.Context(), tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.restore(t.snap)
	t.store.txMu.Unlock()
	return nil
}

func (t *memTx) Context() context.Context {
	return t.ctx
}

type memUserRepo struct {
	store *memStore
}

func (r *memUserRepo) withRole(u models.User) *models.User {
	if role, ok := r.store.roles[u.RoleID]; ok {
		u.RoleName = role.Name
	}
	return &u
}

func (r *memUserRepo) Create(ctx context.Context, user *models.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, u := range r.store.users {
		if u.Email == user.Email {
			return repositories.ErrDuplicate
		}
	}
	if _, ok := r.store.roles[user.RoleID]; !ok {
		return repositories.ErrForeignKey
	}
	stored := *user
	stored.RoleName = ""
	r.store.users[user.ID] = stored
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	u, ok := r.store.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return r.withRole(u), nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, u := range r.store.users {
		if u.Email == email {
			return r.withRole(u), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memUserRepo) LockByID(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[id]; !ok {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *memUserRepo) Update(ctx context.Context, user *models.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[user.ID]; !ok {
		return repositories.ErrNotFound
	}
	for id, u := range r.store.users {
		if id != user.ID && u.Email == user.Email {
			return repositories.ErrDuplicate
		}
	}
	stored := *user
	stored.RoleName = ""
	r.store.users[user.ID] = stored
	return nil
}

type memRoleRepo struct {
	store *memStore
}

func (r *memRoleRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	role, ok := r.store.roles[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &role, nil
}

func (r *memRoleRepo) GetByName(ctx context.Context, name string) (*models.Role, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, role := range r.store.roles {
		if role.Name == name {
			role := role
			return &role, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memRoleRepo) List(ctx context.Context) ([]*models.Role, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	roles := make([]*models.Role, 0, len(r.store.roles))
	for _, role := range r.store.roles {
		role := role
		roles = append(roles, &role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (r *memRoleRepo) Upsert(ctx context.Context, role *models.Role) (*models.Role, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.roles[role.ID] = *role
	return role, nil
}

type memTokenRepo struct {
	store *memStore
}

func (r *memTokenRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.tokens[token.ID]; ok {
		return repositories.ErrDuplicate
	}
	r.store.tokens[token.ID] = *token
	return nil
}

func (r *memTokenRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.RefreshToken, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	t, ok := r.store.tokens[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &t, nil
}

func (r *memTokenRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.RefreshToken, error) {
	return r.GetByID(ctx, id)
}

func (r *memTokenRepo) Revoke(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	t, ok := r.store.tokens[id]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = &at
	r.store.tokens[id] = t
	return true, nil
}

func (r *memTokenRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for id, t := range r.store.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			revokedAt := at
			t.RevokedAt = &revokedAt
			r.store.tokens[id] = t
			n++
		}
	}
	return n, nil
}

// recordingEmitter captures emitted events
type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *recordingEmitter) Emit(event events.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return true
}

func (e *recordingEmitter) emitted() []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]events.Event(nil), e.events...)
}

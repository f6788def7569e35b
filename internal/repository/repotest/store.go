// Package repotest provides in-memory repository implementations for tests.
package repotest

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medconcierge/intake-service/internal/domain"
	"github.com/medconcierge/intake-service/internal/repository"
)

// Store holds every table in memory. The repositories it hands out share it.
type Store struct {
	mu          sync.Mutex
	users       map[string]*domain.User
	apps        map[string]*domain.Application
	appServices map[string][]string
	history     []domain.ApplicationStatusHistory
	messages    []domain.Message
	resetCodes  []domain.PasswordResetCode
	lookups     map[domain.LookupKind][]domain.Lookup
	clock       time.Time

	// UpdateStatusErr, when set, makes UpdateStatus fail before touching any row.
	UpdateStatusErr error
	// CreateMessageErr, when set, makes message creation fail.
	CreateMessageErr error
	// RedeemErr, when set, makes reset code redemption fail with no effect.
	RedeemErr error
	// GetDetailErr, when set, makes application detail loads fail.
	GetDetailErr error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:       map[string]*domain.User{},
		apps:        map[string]*domain.Application{},
		appServices: map[string][]string{},
		lookups:     map[domain.LookupKind][]domain.Lookup{},
		clock:       time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp; callers hold mu.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

// AddUser inserts a user, assigning an id when empty.
func (s *Store) AddUser(u domain.User) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = s.tick()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = &u
	cp := u
	return &cp
}

// AddLookup inserts a reference entry.
func (s *Store) AddLookup(kind domain.LookupKind, l domain.Lookup) domain.Lookup {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	s.lookups[kind] = append(s.lookups[kind], l)
	return l
}

// AddApplication inserts an application owned by userID with the given status.
// Missing lookups are created on the fly.
func (s *Store) AddApplication(userID string, status domain.ApplicationStatus) *domain.Application {
	loc := s.AddLookup(domain.LookupLocation, domain.Lookup{Code: "berlin", Name: "Berlin", IsActive: true})
	ins := s.AddLookup(domain.LookupInsurance, domain.Lookup{Code: "private", Name: "Private", IsActive: true})
	tr := s.AddLookup(domain.LookupTravelAbility, domain.Lookup{Code: "independent", Name: "Independent", IsActive: true})
	svc := s.AddLookup(domain.LookupService, domain.Lookup{Code: "oncology", Name: "Oncology", IsActive: true})

	s.mu.Lock()
	defer s.mu.Unlock()
	app := &domain.Application{
		ID:              uuid.NewString(),
		UserID:          userID,
		Status:          status,
		LocationID:      loc.ID,
		InsuranceID:     ins.ID,
		TravelAbilityID: tr.ID,
		CreatedAt:       s.tick(),
	}
	app.UpdatedAt = app.CreatedAt
	s.apps[app.ID] = app
	s.appServices[app.ID] = []string{svc.ID}
	cp := *app
	return &cp
}

// AddMessage inserts a message as if posted by sender.
func (s *Store) AddMessage(appID string, sender *domain.User, content string, read bool) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := domain.Message{
		ID:            uuid.NewString(),
		ApplicationID: appID,
		SenderID:      sender.ID,
		SenderRole:    sender.Role,
		Content:       content,
		IsRead:        read,
		CreatedAt:     s.tick(),
	}
	s.messages = append(s.messages, msg)
	return msg
}

// Application returns a copy of the stored application, or nil.
func (s *Store) Application(id string) *domain.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return nil
	}
	cp := *app
	return &cp
}

// User returns a copy of the stored user, or nil.
func (s *Store) User(id string) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

// History returns the history rows of an application in insertion order.
func (s *Store) History(appID string) []domain.ApplicationStatusHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ApplicationStatusHistory
	for _, h := range s.history {
		if h.ApplicationID == appID {
			out = append(out, h)
		}
	}
	return out
}

// Messages returns the raw messages of an application in insertion order.
func (s *Store) Messages(appID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.messages {
		if m.ApplicationID == appID {
			out = append(out, m)
		}
	}
	return out
}

// ResetCodes returns every stored reset code of a user.
func (s *Store) ResetCodes(userID string) []domain.PasswordResetCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PasswordResetCode
	for _, c := range s.resetCodes {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// Users returns a UserRepository backed by the store.
func (s *Store) Users() repository.UserRepository { return &userRepo{s} }

// Applications returns an ApplicationRepository backed by the store.
func (s *Store) Applications() repository.ApplicationRepository { return &applicationRepo{s} }

// StatusHistory returns a StatusHistoryRepository backed by the store.
func (s *Store) StatusHistory() repository.StatusHistoryRepository { return &historyRepo{s} }

// MessageStore returns a MessageRepository backed by the store.
func (s *Store) MessageStore() repository.MessageRepository { return &messageRepo{s} }

// PasswordResets returns a PasswordResetRepository backed by the store.
func (s *Store) PasswordResets() repository.PasswordResetRepository { return &resetRepo{s} }

// Lookups returns a LookupRepository backed by the store.
func (s *Store) Lookups() repository.LookupRepository { return &lookupRepo{s} }

type userRepo struct{ s *Store }

func (r *userRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.insertUser(user)
}

func (s *Store) insertUser(user *domain.User) error {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) || u.Phone == user.Phone {
			return uniqueViolation()
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = s.tick()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (r *userRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = r.s.tick()
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.ID == id })
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *userRepo) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Phone == phone })
}

func (r *userRepo) List(_ context.Context, filter repository.UserFilter) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.User{}
	for _, u := range r.s.users {
		if len(filter.Roles) > 0 && !slices.Contains(filter.Roles, u.Role) {
			continue
		}
		if filter.Active != nil && u.IsActive != *filter.Active {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset, 50), nil
}

func (r *userRepo) find(match func(*domain.User) bool) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type applicationRepo struct{ s *Store }

func (r *applicationRepo) Create(_ context.Context, app *domain.Application, serviceIDs []string, newOwner *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if newOwner != nil {
		if err := r.s.insertUser(newOwner); err != nil {
			return err
		}
		app.UserID = newOwner.ID
	}
	if _, ok := r.s.users[app.UserID]; !ok {
		return foreignKeyViolation()
	}
	app.ID = uuid.NewString()
	app.CreatedAt = r.s.tick()
	app.UpdatedAt = app.CreatedAt
	cp := *app
	r.s.apps[app.ID] = &cp
	r.s.appServices[app.ID] = slices.Clone(serviceIDs)
	return nil
}

func (r *applicationRepo) GetByID(_ context.Context, id string) (*domain.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	app, ok := r.s.apps[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *app
	return &cp, nil
}

func (r *applicationRepo) GetDetail(_ context.Context, id string) (*domain.ApplicationDetail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.GetDetailErr != nil {
		return nil, r.s.GetDetailErr
	}
	app, ok := r.s.apps[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	detail := r.s.detail(app)
	detail.Services = []domain.Lookup{}
	for _, svcID := range r.s.appServices[id] {
		detail.Services = append(detail.Services, r.s.lookup(domain.LookupService, svcID))
	}
	return detail, nil
}

func (r *applicationRepo) List(_ context.Context, filter repository.ApplicationFilter) ([]domain.ApplicationDetail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.ApplicationDetail{}
	for _, app := range r.s.apps {
		if filter.UserID != nil && app.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && app.Status != *filter.Status {
			continue
		}
		out = append(out, *r.s.detail(app))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset, 20), nil
}

func (r *applicationRepo) HasStatus(_ context.Context, userID string, status domain.ApplicationStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, app := range r.s.apps {
		if app.UserID == userID && app.Status == status {
			return true, nil
		}
	}
	return false, nil
}

func (r *applicationRepo) UpdateStatus(_ context.Context, id string, newStatus domain.ApplicationStatus, changedBy string, comment *string) (*domain.ApplicationStatusHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.UpdateStatusErr != nil {
		return nil, r.s.UpdateStatusErr
	}
	app, ok := r.s.apps[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	now := r.s.tick()
	history := domain.ApplicationStatusHistory{
		ID:            uuid.NewString(),
		ApplicationID: id,
		OldStatus:     app.Status,
		NewStatus:     newStatus,
		ChangedBy:     changedBy,
		Comment:       comment,
		CreatedAt:     now,
	}
	app.Status = newStatus
	app.UpdatedAt = now
	r.s.history = append(r.s.history, history)
	return &history, nil
}

// detail joins an application with its owner and lookups; callers hold mu.
func (s *Store) detail(app *domain.Application) *domain.ApplicationDetail {
	d := &domain.ApplicationDetail{Application: *app}
	if owner, ok := s.users[app.UserID]; ok {
		d.Owner = domain.ApplicationOwner{
			ID:        owner.ID,
			FirstName: owner.FirstName,
			LastName:  owner.LastName,
			Email:     owner.Email,
			Phone:     owner.Phone,
		}
	}
	d.Location = s.lookup(domain.LookupLocation, app.LocationID)
	d.Insurance = s.lookup(domain.LookupInsurance, app.InsuranceID)
	d.TravelAbility = s.lookup(domain.LookupTravelAbility, app.TravelAbilityID)
	return d
}

func (s *Store) lookup(kind domain.LookupKind, id string) domain.Lookup {
	for _, l := range s.lookups[kind] {
		if l.ID == id {
			return l
		}
	}
	return domain.Lookup{ID: id}
}

type historyRepo struct{ s *Store }

func (r *historyRepo) ListByApplication(_ context.Context, applicationID string) ([]domain.ApplicationStatusHistory, error) {
	out := r.s.History(applicationID)
	if out == nil {
		out = []domain.ApplicationStatusHistory{}
	}
	return out, nil
}

type messageRepo struct{ s *Store }

func (r *messageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.CreateMessageErr != nil {
		return r.s.CreateMessageErr
	}
	if _, ok := r.s.apps[msg.ApplicationID]; !ok {
		return foreignKeyViolation()
	}
	msg.ID = uuid.NewString()
	msg.IsRead = false
	msg.CreatedAt = r.s.tick()
	msg.Sender = r.s.sender(msg.SenderID)
	stored := *msg
	stored.Sender = nil
	r.s.messages = append(r.s.messages, stored)
	return nil
}

func (r *messageRepo) ListByApplication(_ context.Context, applicationID string) ([]domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Message{}
	for _, m := range r.s.messages {
		if m.ApplicationID == applicationID {
			m.Sender = r.s.sender(m.SenderID)
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *messageRepo) MarkRead(_ context.Context, applicationID string, senderRoles []domain.Role) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for i := range r.s.messages {
		m := &r.s.messages[i]
		if m.ApplicationID == applicationID && !m.IsRead && slices.Contains(senderRoles, m.SenderRole) {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *messageRepo) UnreadCounts(_ context.Context, senderRole domain.Role) (map[string]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[string]int{}
	for _, m := range r.s.messages {
		if m.SenderRole == senderRole && !m.IsRead {
			counts[m.ApplicationID]++
		}
	}
	return counts, nil
}

func (s *Store) sender(id string) *domain.MessageSender {
	u, ok := s.users[id]
	if !ok {
		return &domain.MessageSender{ID: id}
	}
	return &domain.MessageSender{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Role: u.Role}
}

type resetRepo struct{ s *Store }

func (r *resetRepo) Create(_ context.Context, code *domain.PasswordResetCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	code.ID = uuid.NewString()
	code.CreatedAt = r.s.tick()
	r.s.resetCodes = append(r.s.resetCodes, *code)
	return nil
}

func (r *resetRepo) GetLatestForUser(_ context.Context, userID string) (*domain.PasswordResetCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.resetCodes) - 1; i >= 0; i-- {
		if r.s.resetCodes[i].UserID == userID {
			cp := r.s.resetCodes[i]
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *resetRepo) Redeem(_ context.Context, codeID, userID, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.RedeemErr != nil {
		return r.s.RedeemErr
	}
	u, ok := r.s.users[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	for i := range r.s.resetCodes {
		c := &r.s.resetCodes[i]
		if c.ID == codeID && c.UsedAt == nil {
			now := r.s.tick()
			c.UsedAt = &now
			u.PasswordHash = passwordHash
			u.UpdatedAt = now
			return nil
		}
	}
	return pgx.ErrNoRows
}

type lookupRepo struct{ s *Store }

func (r *lookupRepo) ListActive(_ context.Context, kind domain.LookupKind) ([]domain.Lookup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Lookup{}
	for _, l := range r.s.lookups[kind] {
		if l.IsActive {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *lookupRepo) CountActive(_ context.Context, kind domain.LookupKind, ids []string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, l := range r.s.lookups[kind] {
		if l.IsActive && slices.Contains(ids, l.ID) {
			n++
		}
	}
	return n, nil
}

func page[T any](items []T, limit, offset, fallback int) []T {
	if limit <= 0 {
		limit = fallback
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/dmitrijs2005/orgdesk/internal/common"
	"github.com/dmitrijs2005/orgdesk/internal/dbx"
	"github.com/dmitrijs2005/orgdesk/internal/server/models"
	"github.com/dmitrijs2005/orgdesk/internal/server/repositories/orders"
	"github.com/dmitrijs2005/orgdesk/internal/server/repositories/organizations"
	"github.com/dmitrijs2005/orgdesk/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/orgdesk/internal/server/repositories/users"
	"github.com/google/uuid"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// --- users ---

type fakeUsersRepo struct {
	mu    sync.Mutex
	byID  map[string]models.User
	err   error
	calls int
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: map[string]models.User{}}
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now()
	f.byID[u.ID] = *u
	return u, nil
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) ListByOrganization(_ context.Context, orgID string) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []models.User{}
	for _, u := range f.byID {
		if u.OrganizationID == orgID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsersRepo) Update(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	existing, ok := f.byID[u.ID]
	if !ok || existing.OrganizationID != u.OrganizationID {
		return nil, common.ErrorNotFound
	}
	for id, other := range f.byID {
		if id != u.ID && other.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	existing.Email, existing.FirstName, existing.LastName = u.Email, u.FirstName, u.LastName
	f.byID[u.ID] = existing
	return &existing, nil
}

func (f *fakeUsersRepo) Delete(_ context.Context, orgID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	u, ok := f.byID[id]
	if !ok || u.OrganizationID != orgID {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

// --- organizations ---

type fakeOrgsRepo struct {
	byID map[string]models.Organization
	err  error
}

func newFakeOrgsRepo(names ...string) *fakeOrgsRepo {
	f := &fakeOrgsRepo{byID: map[string]models.Organization{}}
	for _, n := range names {
		id := "org-" + n
		f.byID[id] = models.Organization{ID: id, Name: n}
	}
	return f
}

func (f *fakeOrgsRepo) Create(_ context.Context, o *models.Organization) (*models.Organization, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, existing := range f.byID {
		if existing.Name == o.Name {
			return nil, common.ErrorAlreadyExists
		}
	}
	o.ID = "org-" + o.Name
	f.byID[o.ID] = *o
	return o, nil
}

func (f *fakeOrgsRepo) GetByID(_ context.Context, id string) (*models.Organization, error) {
	if f.err != nil {
		return nil, f.err
	}
	o, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &o, nil
}

func (f *fakeOrgsRepo) GetByName(_ context.Context, name string) (*models.Organization, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, o := range f.byID {
		if o.Name == name {
			return &o, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeOrgsRepo) List(_ context.Context) ([]models.Organization, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []models.Organization{}
	for _, o := range f.byID {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOrgsRepo) Update(_ context.Context, o *models.Organization) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.byID[o.ID]; !ok {
		return common.ErrorNotFound
	}
	f.byID[o.ID] = *o
	return nil
}

func (f *fakeOrgsRepo) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

// --- orders ---

type fakeOrdersRepo struct {
	byID map[string]models.Order
	err  error
}

func newFakeOrdersRepo() *fakeOrdersRepo {
	return &fakeOrdersRepo{byID: map[string]models.Order{}}
}

func (f *fakeOrdersRepo) Create(_ context.Context, o *models.Order) (*models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	o.ID = uuid.NewString()
	f.byID[o.ID] = *o
	return o, nil
}

func (f *fakeOrdersRepo) GetByID(_ context.Context, orgID, id string) (*models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	o, ok := f.byID[id]
	if !ok || o.OrganizationID != orgID {
		return nil, common.ErrorNotFound
	}
	return &o, nil
}

func (f *fakeOrdersRepo) ListByOrganization(_ context.Context, orgID string) ([]models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []models.Order{}
	for _, o := range f.byID {
		if o.OrganizationID == orgID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrdersRepo) Update(_ context.Context, o *models.Order) (*models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	cur, ok := f.byID[o.ID]
	if !ok || cur.OrganizationID != o.OrganizationID {
		return nil, common.ErrorNotFound
	}
	cur.TotalAmount = o.TotalAmount
	f.byID[o.ID] = cur
	return &cur, nil
}

func (f *fakeOrdersRepo) Delete(_ context.Context, orgID, id string) error {
	if f.err != nil {
		return f.err
	}
	o, ok := f.byID[id]
	if !ok || o.OrganizationID != orgID {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

// --- manager ---

type fakeRepoManager struct {
	u  *fakeUsersRepo
	o  *fakeOrgsRepo
	or *fakeOrdersRepo
}

func newFakeRepoManager(orgNames ...string) *fakeRepoManager {
	return &fakeRepoManager{u: newFakeUsersRepo(), o: newFakeOrgsRepo(orgNames...), or: newFakeOrdersRepo()}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository {
	return m.u
}

func (m *fakeRepoManager) Organizations(dbx.DBTX) organizations.Repository {
	return m.o
}

func (m *fakeRepoManager) Orders(dbx.DBTX) orders.Repository {
	return m.or
}

// --- refresh token store wrappers ---

// failingStore wraps a working store and fails selected operations.
type failingStore struct {
	refreshtokens.Store
	createErr       error
	rotateErr       error
	revokeFamilyErr error
	findErr         error
}

func (f *failingStore) Create(ctx context.Context, rt *models.RefreshToken) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.Store.Create(ctx, rt)
}

func (f *failingStore) FindByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.Store.FindByID(ctx, id)
}

func (f *failingStore) RevokeFamily(ctx context.Context, family string) (int64, error) {
	if f.revokeFamilyErr != nil {
		return 0, f.revokeFamilyErr
	}
	return f.Store.RevokeFamily(ctx, family)
}

// Rotate fails as a whole, the way every real store does.
func (f *failingStore) Rotate(ctx context.Context, oldID string, next *models.RefreshToken) (bool, error) {
	if f.rotateErr != nil {
		return false, f.rotateErr
	}
	return f.Store.Rotate(ctx, oldID, next)
}

// racingStore simulates a concurrent rotation that wins between the record
// lookup and the rotate.
type racingStore struct {
	refreshtokens.Store
}

func (r *racingStore) Rotate(context.Context, string, *models.RefreshToken) (bool, error) {
	return false, nil
}


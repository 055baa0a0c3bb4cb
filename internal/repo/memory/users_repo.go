package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/garagehub/internal/domain/user"
	"github.com/google/uuid"
)

// UsersRepo is an in-memory stand-in for the mongo users repository. It backs
// the workflow and handler tests and keeps the same conditional-update
// semantics as the real store.
type UsersRepo struct {
	mu    sync.RWMutex
	items map[string]user.User
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items: make(map[string]user.User),
	}
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(u.Email))

	for _, existing := range r.items {
		if existing.Email == email {
			return user.User{}, user.ErrEmailAlreadyUsed
		}
	}

	now := time.Now().UTC()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now

	r.items[u.ID] = u

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.items {
		if u.Email == email {
			return u, nil
		}
	}

	return user.User{}, user.ErrNotFound
}

// GetByID excludes soft-deleted users; normal reads never see them.
func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]

	if !ok || u.Deleted {
		return user.User{}, user.ErrNotFound
	}

	return u, nil
}

// GetByIDAnyState also returns soft-deleted users (admin reads).
func (r *UsersRepo) GetByIDAnyState(ctx context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]

	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return u, nil
}

func (r *UsersRepo) UpdateAccount(ctx context.Context, id string, req user.UpdateProfileRequest, passwordHash *string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]

	if !ok || u.Deleted {
		return user.User{}, user.ErrNotFound
	}

	if req.Name != nil {
		u.Name = *req.Name
	}

	if req.Phone != nil {
		u.Phone = *req.Phone
	}

	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}

	u.UpdatedAt = time.Now().UTC()
	r.items[id] = u

	return u, nil
}

func (r *UsersRepo) SoftDelete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]

	if !ok || u.Deleted {
		return user.ErrNotFound
	}

	now := time.Now().UTC()
	u.Deleted = true
	u.DeletedAt = &now
	u.Active = false
	u.UpdatedAt = now
	r.items[id] = u

	return nil
}

func (r *UsersRepo) HardDelete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return user.ErrNotFound
	}

	delete(r.items, id)

	return nil
}

func (r *UsersRepo) UpdateGarageProfile(ctx context.Context, id string, req user.UpdateGarageProfileRequest) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]

	if !ok || u.Deleted {
		return user.User{}, user.ErrNotFound
	}

	if u.Role != user.RoleGarageOwner || u.GarageProfile == nil {
		return user.User{}, user.ErrNotGarageOwner
	}

	p := u.GarageProfile

	if req.GarageName != nil {
		p.GarageName = *req.GarageName
	}
	if req.Address != nil {
		p.Address = *req.Address
	}
	if req.City != nil {
		p.City = *req.City
	}
	if req.HourlyRate != nil {
		p.HourlyRate = *req.HourlyRate
	}
	if req.Capacity != nil {
		p.Capacity = *req.Capacity
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.LicenseNumber != nil {
		p.LicenseNumber = *req.LicenseNumber
	}
	if req.LicenseDocument != nil {
		p.LicenseDocument = *req.LicenseDocument
	}

	u.UpdatedAt = time.Now().UTC()
	r.items[id] = u

	return u, nil
}

func (r *UsersRepo) SetPaymentCustomerRef(ctx context.Context, id, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]

	if !ok || u.Deleted || u.GarageProfile == nil {
		return user.ErrNotFound
	}

	u.GarageProfile.PaymentCustomerRef = ref
	u.UpdatedAt = time.Now().UTC()
	r.items[id] = u

	return nil
}

// --- workflow.ProfileStore ---

func (r *UsersRepo) MarkPaid(ctx context.Context, userID string, expiry time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[userID]

	if !ok || u.Deleted || u.Role != user.RoleGarageOwner || u.GarageProfile == nil {
		return false, user.ErrNotFound
	}

	if u.GarageProfile.PaymentStatus == user.PaymentPaid {
		// already paid, idempotent no-op
		return false, nil
	}

	u.GarageProfile.PaymentStatus = user.PaymentPaid
	u.GarageProfile.SubscriptionExpiry = &expiry
	u.UpdatedAt = time.Now().UTC()
	r.items[userID] = u

	return true, nil
}

func (r *UsersRepo) MarkPaymentFailed(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[userID]

	if !ok || u.Deleted || u.Role != user.RoleGarageOwner || u.GarageProfile == nil {
		return user.ErrNotFound
	}

	if u.GarageProfile.PaymentStatus == user.PaymentPaid {
		// a late failure event never downgrades a completed payment
		return nil
	}

	u.GarageProfile.PaymentStatus = user.PaymentFailed
	u.UpdatedAt = time.Now().UTC()
	r.items[userID] = u

	return nil
}

func (r *UsersRepo) SetApprovalStatus(ctx context.Context, userID, status string, requirePaid bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[userID]

	if !ok || u.Deleted || u.Role != user.RoleGarageOwner || u.GarageProfile == nil {
		return false, nil
	}

	if requirePaid && u.GarageProfile.PaymentStatus != user.PaymentPaid {
		return false, nil
	}

	u.GarageProfile.ApprovalStatus = status
	u.UpdatedAt = time.Now().UTC()
	r.items[userID] = u

	return true, nil
}

// --- service catalog ---

func (r *UsersRepo) AddService(ctx context.Context, userID string, svc user.Service) (user.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[userID]

	if !ok || u.Deleted || u.GarageProfile == nil {
		return user.Service{}, user.ErrNotFound
	}

	now := time.Now().UTC()

	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}

	svc.CreatedAt = now
	svc.UpdatedAt = now

	u.GarageProfile.Services = append(u.GarageProfile.Services, svc)
	u.UpdatedAt = now
	r.items[userID] = u

	return svc, nil
}

func (r *UsersRepo) UpdateService(ctx context.Context, userID, serviceID string, req user.UpdateServiceRequest) (user.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[userID]

	if !ok || u.Deleted || u.GarageProfile == nil {
		return user.Service{}, user.ErrNotFound
	}

	for i := range u.GarageProfile.Services {
		s := &u.GarageProfile.Services[i]

		if s.ID != serviceID {
			continue
		}

		if req.Name != nil {
			s.Name = *req.Name
		}
		if req.Price != nil {
			s.Price = *req.Price
		}
		if req.DurationMinutes != nil {
			s.DurationMinutes = *req.DurationMinutes
		}
		if req.Description != nil {
			s.Description = *req.Description
		}

		s.UpdatedAt = time.Now().UTC()
		r.items[userID] = u

		return *s, nil
	}

	return user.Service{}, user.ErrServiceNotFound
}

func (r *UsersRepo) SetServiceDeleted(ctx context.Context, userID, serviceID string, deleted bool) (user.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[userID]

	if !ok || u.Deleted || u.GarageProfile == nil {
		return user.Service{}, user.ErrNotFound
	}

	for i := range u.GarageProfile.Services {
		s := &u.GarageProfile.Services[i]

		if s.ID != serviceID {
			continue
		}

		now := time.Now().UTC()
		s.Deleted = deleted

		if deleted {
			s.DeletedAt = &now
		} else {
			s.DeletedAt = nil
		}

		s.UpdatedAt = now
		r.items[userID] = u

		return *s, nil
	}

	return user.Service{}, user.ErrServiceNotFound
}

func (r *UsersRepo) RemoveService(ctx context.Context, userID, serviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[userID]

	if !ok || u.Deleted || u.GarageProfile == nil {
		return user.ErrNotFound
	}

	services := u.GarageProfile.Services

	for i := range services {
		if services[i].ID == serviceID {
			u.GarageProfile.Services = append(services[:i:i], services[i+1:]...)
			u.UpdatedAt = time.Now().UTC()
			r.items[userID] = u

			return nil
		}
	}

	return user.ErrServiceNotFound
}

// --- listings ---

func (r *UsersRepo) ListPublicGarages(ctx context.Context, filter user.ListGaragesFilter) ([]user.User, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]user.User, 0)

	for _, u := range r.items {
		if !garageMatchesPublic(u, filter) {
			continue
		}

		matched = append(matched, u)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)

	page := filter.Page
	limit := filter.Limit

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	start := (page - 1) * limit

	if start >= total {
		return []user.User{}, total, nil
	}

	end := start + limit

	if end > total {
		end = total
	}

	return matched[start:end], total, nil
}

func garageMatchesPublic(u user.User, filter user.ListGaragesFilter) bool {
	if u.Deleted || u.Role != user.RoleGarageOwner || u.GarageProfile == nil {
		return false
	}

	p := u.GarageProfile

	if p.ApprovalStatus != user.ApprovalApproved {
		return false
	}

	if filter.City != nil && !strings.EqualFold(p.City, *filter.City) {
		return false
	}

	if filter.Service != nil {
		found := false

		for _, s := range p.ActiveServices() {
			if strings.EqualFold(s.Name, *filter.Service) {
				found = true
				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}

func (r *UsersRepo) ListGarages(ctx context.Context, filter user.AdminGaragesFilter) ([]user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]user.User, 0)

	for _, u := range r.items {
		if u.Role != user.RoleGarageOwner || u.GarageProfile == nil {
			continue
		}

		if filter.ApprovalStatus != nil && u.GarageProfile.ApprovalStatus != *filter.ApprovalStatus {
			continue
		}

		if filter.PaymentStatus != nil && u.GarageProfile.PaymentStatus != *filter.PaymentStatus {
			continue
		}

		out = append(out, u)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

// ListPendingGarages returns paid garages still waiting on the admin decision.
func (r *UsersRepo) ListPendingGarages(ctx context.Context) ([]user.User, error) {
	paid := user.PaymentPaid
	pending := user.ApprovalPending

	return r.ListGarages(ctx, user.AdminGaragesFilter{
		ApprovalStatus: &pending,
		PaymentStatus:  &paid,
	})
}

func (r *UsersRepo) DashboardStats(ctx context.Context) (user.DashboardStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats user.DashboardStats

	for _, u := range r.items {
		if u.Deleted {
			continue
		}

		stats.TotalUsers++

		if u.Role != user.RoleGarageOwner || u.GarageProfile == nil {
			continue
		}

		stats.TotalGarages++

		p := u.GarageProfile

		if p.PaymentStatus == user.PaymentPaid && p.ApprovalStatus == user.ApprovalPending {
			stats.PendingGarages++
		}

		if p.PaymentStatus == user.PaymentPending {
			stats.PendingPayments++
		}
	}

	return stats, nil
}

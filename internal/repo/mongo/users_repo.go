package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/garagehub/internal/domain/user"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// UsersRepo persists users (with the embedded garage profile and service
// subdocuments) in a single mongo collection. All workflow-sensitive writes
// are conditional single-document updates: the filter carries the
// precondition, so the check and the write cannot interleave with a
// concurrent webhook or admin action.
type UsersRepo struct {
	col *mongo.Collection
}

func NewUsersRepo(db *mongo.Database) *UsersRepo {
	return &UsersRepo{col: db.Collection(usersCollection)}
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := r.col.InsertOne(ctx, u)

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrEmailAlreadyUsed
		}

		return user.User{}, err
	}

	return u, nil
}

// GetByEmail also returns soft-deleted users so login can distinguish a
// deactivated account from bad credentials.
func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var u user.User

	err := r.col.FindOne(ctx, bson.M{"email": email}).Decode(&u)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}

	return u, nil
}

// GetByID excludes soft-deleted users; normal reads never see them.
func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.getOne(ctx, bson.M{"_id": id, "deleted": false})
}

// GetByIDAnyState also returns soft-deleted users (admin reads).
func (r *UsersRepo) GetByIDAnyState(ctx context.Context, id string) (user.User, error) {
	return r.getOne(ctx, bson.M{"_id": id})
}

func (r *UsersRepo) getOne(ctx context.Context, filter bson.M) (user.User, error) {
	var u user.User

	err := r.col.FindOne(ctx, filter).Decode(&u)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) UpdateAccount(ctx context.Context, id string, req user.UpdateProfileRequest, passwordHash *string) (user.User, error) {
	set := bson.M{"updated_at": time.Now().UTC()}

	if req.Name != nil {
		set["name"] = *req.Name
	}
	if req.Phone != nil {
		set["phone"] = *req.Phone
	}
	if passwordHash != nil {
		set["password_hash"] = *passwordHash
	}

	return r.findOneAndUpdate(ctx, bson.M{"_id": id, "deleted": false}, bson.M{"$set": set})
}

func (r *UsersRepo) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "deleted": false},
		bson.M{"$set": bson.M{
			"deleted":    true,
			"deleted_at": now,
			"active":     false,
			"updated_at": now,
		}},
	)

	if err != nil {
		return err
	}

	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}

	return nil
}

func (r *UsersRepo) HardDelete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})

	if err != nil {
		return err
	}

	if res.DeletedCount == 0 {
		return user.ErrNotFound
	}

	return nil
}

func (r *UsersRepo) UpdateGarageProfile(ctx context.Context, id string, req user.UpdateGarageProfileRequest) (user.User, error) {
	set := bson.M{"updated_at": time.Now().UTC()}

	if req.GarageName != nil {
		set["garage_profile.garage_name"] = *req.GarageName
	}
	if req.Address != nil {
		set["garage_profile.address"] = *req.Address
	}
	if req.City != nil {
		set["garage_profile.city"] = *req.City
	}
	if req.HourlyRate != nil {
		set["garage_profile.hourly_rate"] = *req.HourlyRate
	}
	if req.Capacity != nil {
		set["garage_profile.capacity"] = *req.Capacity
	}
	if req.Description != nil {
		set["garage_profile.description"] = *req.Description
	}
	if req.LicenseNumber != nil {
		set["garage_profile.license_number"] = *req.LicenseNumber
	}
	if req.LicenseDocument != nil {
		set["garage_profile.license_document"] = *req.LicenseDocument
	}

	u, err := r.findOneAndUpdate(ctx,
		bson.M{"_id": id, "deleted": false, "role": user.RoleGarageOwner},
		bson.M{"$set": set},
	)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// distinguish "wrong role" from "missing" for the error taxonomy
			if _, lookupErr := r.GetByID(ctx, id); lookupErr == nil {
				return user.User{}, user.ErrNotGarageOwner
			}
		}

		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) SetPaymentCustomerRef(ctx context.Context, id, ref string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "deleted": false, "role": user.RoleGarageOwner},
		bson.M{"$set": bson.M{
			"garage_profile.payment_customer_ref": ref,
			"updated_at":                          time.Now().UTC(),
		}},
	)

	if err != nil {
		return err
	}

	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}

	return nil
}

// --- workflow.ProfileStore ---

// MarkPaid flips payment_status to paid and stamps the subscription expiry.
// The not-already-paid condition rides on the filter, so the duplicate
// delivery of a success webhook matches zero documents and writes nothing.
func (r *UsersRepo) MarkPaid(ctx context.Context, userID string, expiry time.Time) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{
			"_id":                            userID,
			"deleted":                        false,
			"role":                           user.RoleGarageOwner,
			"garage_profile.payment_status": bson.M{"$ne": user.PaymentPaid},
		},
		bson.M{"$set": bson.M{
			"garage_profile.payment_status":      user.PaymentPaid,
			"garage_profile.subscription_expiry": expiry,
			"updated_at":                         time.Now().UTC(),
		}},
	)

	if err != nil {
		return false, err
	}

	if res.MatchedCount == 0 {
		// already paid is a no-op; a missing garage owner is an error
		if _, lookupErr := r.GetByID(ctx, userID); lookupErr != nil {
			return false, user.ErrNotFound
		}

		return false, nil
	}

	return true, nil
}

func (r *UsersRepo) MarkPaymentFailed(ctx context.Context, userID string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{
			"_id":                            userID,
			"deleted":                        false,
			"role":                           user.RoleGarageOwner,
			"garage_profile.payment_status": bson.M{"$ne": user.PaymentPaid},
		},
		bson.M{"$set": bson.M{
			"garage_profile.payment_status": user.PaymentFailed,
			"updated_at":                    time.Now().UTC(),
		}},
	)

	if err != nil {
		return err
	}

	if res.MatchedCount == 0 {
		if _, lookupErr := r.GetByID(ctx, userID); lookupErr != nil {
			return user.ErrNotFound
		}
	}

	return nil
}

// SetApprovalStatus applies the admin decision; with requirePaid the paid
// precondition is part of the same atomic update.
func (r *UsersRepo) SetApprovalStatus(ctx context.Context, userID, status string, requirePaid bool) (bool, error) {
	filter := bson.M{
		"_id":     userID,
		"deleted": false,
		"role":    user.RoleGarageOwner,
	}

	if requirePaid {
		filter["garage_profile.payment_status"] = user.PaymentPaid
	}

	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"garage_profile.approval_status": status,
		"updated_at":                     time.Now().UTC(),
	}})

	if err != nil {
		return false, err
	}

	return res.MatchedCount > 0, nil
}

// --- service catalog ---

func (r *UsersRepo) AddService(ctx context.Context, userID string, svc user.Service) (user.Service, error) {
	now := time.Now().UTC()

	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}

	svc.CreatedAt = now
	svc.UpdatedAt = now

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": userID, "deleted": false, "role": user.RoleGarageOwner},
		bson.M{
			"$push": bson.M{"garage_profile.services": svc},
			"$set":  bson.M{"updated_at": now},
		},
	)

	if err != nil {
		return user.Service{}, err
	}

	if res.MatchedCount == 0 {
		return user.Service{}, user.ErrNotFound
	}

	return svc, nil
}

func (r *UsersRepo) UpdateService(ctx context.Context, userID, serviceID string, req user.UpdateServiceRequest) (user.Service, error) {
	now := time.Now().UTC()

	set := bson.M{
		"updated_at": now,
		"garage_profile.services.$[s].updated_at": now,
	}

	if req.Name != nil {
		set["garage_profile.services.$[s].name"] = *req.Name
	}
	if req.Price != nil {
		set["garage_profile.services.$[s].price"] = *req.Price
	}
	if req.DurationMinutes != nil {
		set["garage_profile.services.$[s].duration_minutes"] = *req.DurationMinutes
	}
	if req.Description != nil {
		set["garage_profile.services.$[s].description"] = *req.Description
	}

	return r.updateServiceElem(ctx, userID, serviceID, bson.M{"$set": set})
}

func (r *UsersRepo) SetServiceDeleted(ctx context.Context, userID, serviceID string, deleted bool) (user.Service, error) {
	now := time.Now().UTC()

	set := bson.M{
		"updated_at": now,
		"garage_profile.services.$[s].deleted":    deleted,
		"garage_profile.services.$[s].updated_at": now,
	}

	update := bson.M{"$set": set}

	if deleted {
		set["garage_profile.services.$[s].deleted_at"] = now
	} else {
		update["$unset"] = bson.M{"garage_profile.services.$[s].deleted_at": ""}
	}

	return r.updateServiceElem(ctx, userID, serviceID, update)
}

// updateServiceElem applies an arrayFilters update to one embedded service and
// re-reads it for the response body.
func (r *UsersRepo) updateServiceElem(ctx context.Context, userID, serviceID string, update bson.M) (user.Service, error) {
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"s._id": serviceID}},
	})

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": userID, "deleted": false, "garage_profile.services._id": serviceID},
		update,
		opts,
	)

	if err != nil {
		return user.Service{}, err
	}

	if res.MatchedCount == 0 {
		if _, lookupErr := r.GetByID(ctx, userID); lookupErr != nil {
			return user.Service{}, user.ErrNotFound
		}

		return user.Service{}, user.ErrServiceNotFound
	}

	u, err := r.GetByID(ctx, userID)

	if err != nil {
		return user.Service{}, err
	}

	svc, ok := u.GarageProfile.ServiceByID(serviceID)

	if !ok {
		return user.Service{}, user.ErrServiceNotFound
	}

	return svc, nil
}

func (r *UsersRepo) RemoveService(ctx context.Context, userID, serviceID string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": userID, "deleted": false, "garage_profile.services._id": serviceID},
		bson.M{
			"$pull": bson.M{"garage_profile.services": bson.M{"_id": serviceID}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)

	if err != nil {
		return err
	}

	if res.MatchedCount == 0 {
		if _, lookupErr := r.GetByID(ctx, userID); lookupErr != nil {
			return user.ErrNotFound
		}

		return user.ErrServiceNotFound
	}

	return nil
}

// --- listings ---

func (r *UsersRepo) ListPublicGarages(ctx context.Context, filter user.ListGaragesFilter) ([]user.User, int, error) {
	query := bson.M{
		"deleted": false,
		"role":    user.RoleGarageOwner,
		"garage_profile.approval_status": user.ApprovalApproved,
	}

	if filter.City != nil {
		query["garage_profile.city"] = bson.M{"$regex": "^" + escapeRegex(*filter.City) + "$", "$options": "i"}
	}

	if filter.Service != nil {
		query["garage_profile.services"] = bson.M{"$elemMatch": bson.M{
			"name":    bson.M{"$regex": "^" + escapeRegex(*filter.Service) + "$", "$options": "i"},
			"deleted": false,
		}}
	}

	page := filter.Page
	limit := filter.Limit

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	total, err := r.col.CountDocuments(ctx, query)

	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	return r.findUsers(ctx, query, int(total), opts)
}

func (r *UsersRepo) ListGarages(ctx context.Context, filter user.AdminGaragesFilter) ([]user.User, error) {
	query := bson.M{"role": user.RoleGarageOwner}

	if filter.ApprovalStatus != nil {
		query["garage_profile.approval_status"] = *filter.ApprovalStatus
	}

	if filter.PaymentStatus != nil {
		query["garage_profile.payment_status"] = *filter.PaymentStatus
	}

	users, _, err := r.findUsers(ctx, query, 0, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))

	return users, err
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

func (r *UsersRepo) findUsers(ctx context.Context, query bson.M, total int, opts *options.FindOptions) ([]user.User, int, error) {
	cur, err := r.col.Find(ctx, query, opts)

	if err != nil {
		return nil, 0, err
	}

	defer cur.Close(ctx)

	users := make([]user.User, 0)

	if err := cur.All(ctx, &users); err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *UsersRepo) DashboardStats(ctx context.Context) (user.DashboardStats, error) {
	var stats user.DashboardStats
	var err error

	stats.TotalUsers, err = r.col.CountDocuments(ctx, bson.M{"deleted": false})

	if err != nil {
		return stats, err
	}

	stats.TotalGarages, err = r.col.CountDocuments(ctx, bson.M{
		"deleted": false,
		"role":    user.RoleGarageOwner,
	})

	if err != nil {
		return stats, err
	}

	stats.PendingGarages, err = r.col.CountDocuments(ctx, bson.M{
		"deleted": false,
		"role":    user.RoleGarageOwner,
		"garage_profile.approval_status": user.ApprovalPending,
		"garage_profile.payment_status":  user.PaymentPaid,
	})

	if err != nil {
		return stats, err
	}

	stats.PendingPayments, err = r.col.CountDocuments(ctx, bson.M{
		"deleted": false,
		"role":    user.RoleGarageOwner,
		"garage_profile.payment_status": user.PaymentPending,
	})

	return stats, err
}

func (r *UsersRepo) findOneAndUpdate(ctx context.Context, filter, update bson.M) (user.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var u user.User

	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&u)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}

	return u, nil
}

// escapeRegex neutralizes regex metacharacters in user-supplied filters.
func escapeRegex(s string) string {
	const meta = `\.+*?()|[]{}^$`

	var b strings.Builder

	for _, r := range s {
		if strings.ContainsRune(meta, r) {
			b.WriteRune('\\')
		}

		b.WriteRune(r)
	}

	return b.String()
}

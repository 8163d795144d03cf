package repository

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/forgo/hiretrack/api/internal/database"
	"github.com/forgo/hiretrack/api/internal/model"
)

// UserRepository handles user data access
type UserRepository struct {
	db database.Database
}

// NewUserRepository creates a new user repository
func NewUserRepository(db database.Database) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user. The email is stored lower-cased.
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	id := newRecordID("user")

	query := `
		CREATE type::record($id) CONTENT {
			email: $email,
			full_name: $full_name,
			hash: $hash,
			role: $role,
			company_id: $company_id,
			created_on: <datetime>$now,
			updated_on: <datetime>$now
		}
	`
	vars := map[string]interface{}{
		"id":         id,
		"email":      strings.ToLower(user.Email),
		"full_name":  user.FullName,
		"hash":       ptrToNone(user.Hash),
		"role":       string(user.Role),
		"company_id": ptrToNone(user.CompanyID),
		"now":        nowString(now),
	}

	if err := r.db.Execute(ctx, query, vars); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return errors.Wrap(database.ErrDuplicate, "email already exists")
		}
		return err
	}

	user.ID = id
	user.Email = strings.ToLower(user.Email)
	user.CreatedOn = now
	user.UpdatedOn = now
	return nil
}

// GetByID retrieves a user by ID. Returns nil, nil when absent.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	if !isRecordOf(id, "user") {
		return nil, nil
	}
	result, err := r.db.QueryOne(ctx, `SELECT * FROM type::record($id)`, map[string]interface{}{"id": id})
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return parseUserResult(result)
}

// GetByEmail retrieves a user by email. Returns nil, nil when absent.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT * FROM user WHERE email = $email LIMIT 1`
	result, err := r.db.QueryOne(ctx, query, map[string]interface{}{"email": strings.ToLower(email)})
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return parseUserResult(result)
}

// GetByIDs loads several users keyed by id; missing ids are left out
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User, len(ids))
	for _, id := range ids {
		if _, seen := out[id]; seen {
			continue
		}
		u, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			out[id] = u
		}
	}
	return out, nil
}

func parseUserResult(result interface{}) (*model.User, error) {
	data, err := asRow(result)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	user := &model.User{
		ID:        convertSurrealID(data["id"]),
		Email:     getString(data, "email"),
		FullName:  getString(data, "full_name"),
		Hash:      getStringPtr(data, "hash"),
		Role:      model.UserRole(getString(data, "role")),
		CompanyID: getStringPtr(data, "company_id"),
		CreatedOn: parseTime(data["created_on"]),
		UpdatedOn: parseTime(data["updated_on"]),
	}
	return user, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-enroll-api/internal/models"
)

// UserRepository provides database access for accounts and their
// role-owned profile rows.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(full_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"email":      true,
		"created_at": true,
		"full_name":  true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		baseQuery, sortBy, sortOrder, pageSize, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + baseQuery
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// CreateWithProfile inserts the account and, when the role owns one, its
// profile row within one transaction so no account ever exists without its
// role-side record.
func (r *UserRepository) CreateWithProfile(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertUser = `INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
        VALUES (:id, :email, :password_hash, :full_name, :role, :active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertUser, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	if err := createProfileTx(ctx, tx, user.ID, user.Role); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

// ChangeRole atomically swaps the account's role and its dependent profile
// row. The target row is locked for the duration so concurrent role
// changes and the last-admin check cannot interleave.
func (r *UserRepository) ChangeRole(ctx context.Context, id string, newRole models.UserRole) (oldRole models.UserRole, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin role change: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current models.User
	if err := tx.GetContext(ctx, &current, `SELECT id, role FROM users WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("lock user for role change: %w", err)
	}
	oldRole = current.Role
	if oldRole == newRole {
		return oldRole, tx.Commit()
	}

	if oldRole == models.RoleAdmin {
		var admins int
		if err := tx.GetContext(ctx, &admins, `SELECT COUNT(*) FROM users WHERE role = $1`, models.RoleAdmin); err != nil {
			return "", fmt.Errorf("count admins: %w", err)
		}
		if admins <= 1 {
			return "", ErrLastAdmin
		}
	}

	switch oldRole {
	case models.RoleStudent:
		if _, err := tx.ExecContext(ctx, `DELETE FROM student_profiles WHERE user_id = $1`, id); err != nil {
			return "", fmt.Errorf("remove student profile: %w", err)
		}
	case models.RoleFaculty:
		if _, err := tx.ExecContext(ctx, `DELETE FROM faculty_profiles WHERE user_id = $1`, id); err != nil {
			return "", fmt.Errorf("remove faculty profile: %w", err)
		}
	}

	if err := createProfileTx(ctx, tx, id, newRole); err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET role = $2, updated_at = $3 WHERE id = $1`, id, newRole, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("update role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit role change: %w", err)
	}
	return oldRole, nil
}

// Delete removes the account; profile rows cascade in the schema. Deleting
// the last admin is rejected inside the same transaction.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var role models.UserRole
	if err := tx.GetContext(ctx, &role, `SELECT role FROM users WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock user for delete: %w", err)
	}

	if role == models.RoleAdmin {
		var admins int
		if err := tx.GetContext(ctx, &admins, `SELECT COUNT(*) FROM users WHERE role = $1`, models.RoleAdmin); err != nil {
			return fmt.Errorf("count admins: %w", err)
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete user: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// FindStudentProfileByUserID resolves the student profile for an account.
func (r *UserRepository) FindStudentProfileByUserID(ctx context.Context, userID string) (*models.StudentProfile, error) {
	const query = `SELECT id, user_id, roll_number, created_at FROM student_profiles WHERE user_id = $1 LIMIT 1`
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student profile: %w", err)
	}
	return &profile, nil
}

// FindFacultyProfileByUserID resolves the faculty profile for an account.
func (r *UserRepository) FindFacultyProfileByUserID(ctx context.Context, userID string) (*models.FacultyProfile, error) {
	const query = `SELECT id, user_id, department_id, employee_id, created_at FROM faculty_profiles WHERE user_id = $1 LIMIT 1`
	var profile models.FacultyProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find faculty profile: %w", err)
	}
	return &profile, nil
}

func createProfileTx(ctx context.Context, tx *sqlx.Tx, userID string, role models.UserRole) error {
	now := time.Now().UTC()
	switch role {
	case models.RoleStudent:
		if _, err := tx.ExecContext(ctx, `INSERT INTO student_profiles (id, user_id, created_at) VALUES ($1, $2, $3)`,
			uuid.NewString(), userID, now); err != nil {
			return fmt.Errorf("create student profile: %w", err)
		}
	case models.RoleFaculty:
		if _, err := tx.ExecContext(ctx, `INSERT INTO faculty_profiles (id, user_id, created_at) VALUES ($1, $2, $3)`,
			uuid.NewString(), userID, now); err != nil {
			return fmt.Errorf("create faculty profile: %w", err)
		}
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/pcahill/chartroom/internal/chat"
	"github.com/pcahill/chartroom/internal/ids"
)

// Auth types for accounts.
const (
	AuthPassword = "PASSWORD"
	AuthGuest    = "GUEST"
)

// ErrUserNotFound is returned when a user lookup yields no results.
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists is returned when attempting to create a duplicate username.
var ErrUserExists = errors.New("user already exists")

// ErrInvalidCredentials is returned when authentication fails.
var ErrInvalidCredentials = errors.New("invalid credentials")

// User is an account row.
type User struct {
	ID           string
	Username     string
	AuthType     string
	PasswordHash string
	CreatedAt    time.Time
}

// Chat converts the row to the core's user type.
func (u User) Chat() *chat.User {
	return &chat.User{ID: u.ID, Username: u.Username}
}

// UserRepository provides account persistence operations.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a UserRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a password account with a bcrypt-hashed password.
//
// Precondition: username and password have already been validated.
// Postcondition: Returns the created user, or ErrUserExists if the username
// is taken.
func (r *UserRepository) Create(ctx context.Context, username, password string) (User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}

	var u User
	err = r.db.QueryRow(ctx,
		`INSERT INTO users (id, username, auth_type, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, username, auth_type, password_hash, created_at`,
		ids.New(), username, AuthPassword, hash,
	).Scan(&u.ID, &u.Username, &u.AuthType, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return User{}, ErrUserExists
		}
		return User{}, fmt.Errorf("inserting user: %w", err)
	}
	return u, nil
}

// CreateGuest inserts a throwaway account with a generated username and no
// password. Retries on the rare username collision.
//
// Postcondition: Returns the created guest user.
func (r *UserRepository) CreateGuest(ctx context.Context) (User, error) {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		username := fmt.Sprintf("guest%06d", rand.Intn(1_000_000))
		var u User
		err := r.db.QueryRow(ctx,
			`INSERT INTO users (id, username, auth_type)
			 VALUES ($1, $2, $3)
			 RETURNING id, username, auth_type, created_at`,
			ids.New(), username, AuthGuest,
		).Scan(&u.ID, &u.Username, &u.AuthType, &u.CreatedAt)
		if err == nil {
			return u, nil
		}
		if !isDuplicateKeyError(err) {
			return User{}, fmt.Errorf("inserting guest user: %w", err)
		}
		lastErr = err
	}
	return User{}, fmt.Errorf("inserting guest user: %w", lastErr)
}

// Authenticate verifies credentials and returns the matching user.
//
// Postcondition: Returns the user if credentials are valid,
// ErrUserNotFound if the username doesn't exist, or ErrInvalidCredentials if
// the password is wrong or the account has no password.
func (r *UserRepository) Authenticate(ctx context.Context, username, password string) (User, error) {
	var u User
	var hash *string
	err := r.db.QueryRow(ctx,
		`SELECT id, username, auth_type, password_hash, created_at
		 FROM users WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.AuthType, &hash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("querying user: %w", err)
	}

	if u.AuthType != AuthPassword || hash == nil || !CheckPassword(password, *hash) {
		return User{}, ErrInvalidCredentials
	}
	u.PasswordHash = *hash
	return u, nil
}

// GetByID retrieves a user by id for token verification.
//
// Postcondition: Returns the user or ErrUserNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*chat.User, error) {
	var u User
	err := r.db.QueryRow(ctx,
		`SELECT id, username FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u.Chat(), nil
}

// HashPassword creates a bcrypt hash of the given password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

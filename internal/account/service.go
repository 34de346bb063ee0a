// Package account manages directory users, their favorite trucks, and the
// per-client login snapshot and theme.
package account

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"chathistory/internal/clientstore"
	"chathistory/internal/models"
)

const defaultImage = "https://images.pexels.com/photos/1126993/pexels-photo-1126993.jpeg"

var (
	ErrMissingFields      = errors.New("all fields are required")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrEmailExists        = errors.New("email already exists")
	ErrOwnerDetails       = errors.New("truck name and cuisine are required for owners")
	ErrInvalidCuisine     = errors.New("unknown cuisine")
	ErrInvalidRole        = errors.New("unknown role")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotLoggedIn        = errors.New("not logged in")
	ErrUserNotFound       = errors.New("user not found")
)

// Cuisines lists the cuisines an owner may pick.
var Cuisines = []string{"italian", "mexican", "indian", "chinese", "japanese", "american", "other"}

// SignupInput mirrors the signup form.
type SignupInput struct {
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Password        string      `json:"password"`
	ConfirmPassword string      `json:"confirmPassword"`
	Role            models.Role `json:"role"`
	TruckName       string      `json:"truckName"`
	Cuisine         string      `json:"cuisine"`
}

// LoginResult is a logged-in user and the page they land on.
type LoginResult struct {
	User     *models.User `json:"user"`
	Redirect string       `json:"redirect"`
}

// Service handles user lifecycle against the database and client storage.
type Service struct {
	db    *sql.DB
	store clientstore.Store
}

func NewService(db *sql.DB, store clientstore.Store) *Service {
	return &Service{db: db, store: store}
}

// Signup validates the form and creates the user.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	in.TruckName = strings.TrimSpace(in.TruckName)
	in.Cuisine = strings.ToLower(strings.TrimSpace(in.Cuisine))
	if in.Role == "" {
		in.Role = models.RoleCustomer
	}

	if in.Name == "" || in.Email == "" || in.Password == "" || in.ConfirmPassword == "" {
		return nil, ErrMissingFields
	}
	if in.Role != models.RoleCustomer && in.Role != models.RoleOwner {
		return nil, ErrInvalidRole
	}
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	if in.Role == models.RoleOwner {
		if in.TruckName == "" || in.Cuisine == "" {
			return nil, ErrOwnerDetails
		}
		if !validCuisine(in.Cuisine) {
			return nil, ErrInvalidCuisine
		}
	} else {
		in.TruckName, in.Cuisine = "", ""
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, in.Email,
	).Scan(&exists); err != nil {
		return nil, errors.Wrap(err, "check email")
	}
	if exists {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Image:        defaultImage,
		Role:         in.Role,
		TruckName:    in.TruckName,
		Cuisine:      in.Cuisine,
		SavedTrucks:  []string{},
		CreatedAt:    time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, image, role, truck_name, cuisine, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Image, string(user.Role), user.TruckName, user.Cuisine, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, errors.Wrap(err, "create user")
	}
	log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("account created")
	return user, nil
}

// Login checks credentials and stores the user snapshot for clientID.
func (s *Service) Login(ctx context.Context, clientID, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.scanUser(s.db.QueryRowContext(ctx, userSelect+` WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.SavedTrucks, err = s.ListFavorites(ctx, user.ID); err != nil {
		return nil, err
	}
	if err := s.saveSnapshot(ctx, clientID, user); err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Redirect: LandingPath(user.Role)}, nil
}

// LandingPath is where a user goes right after logging in.
func LandingPath(role models.Role) string {
	if role == models.RoleOwner {
		return "/owner/dashboard"
	}
	return "/"
}

// Logout removes the user snapshot of clientID.
func (s *Service) Logout(ctx context.Context, clientID string) error {
	if err := s.store.Delete(ctx, clientID, models.CurrentUserKey); err != nil {
		return errors.Wrap(err, "clear current user")
	}
	return nil
}

// CurrentUser returns the snapshot saved at login. A malformed snapshot is
// treated as logged out.
func (s *Service) CurrentUser(ctx context.Context, clientID string) (*models.User, error) {
	raw, err := s.store.Get(ctx, clientID, models.CurrentUserKey)
	if err != nil {
		if errors.Is(err, clientstore.ErrNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, errors.Wrap(err, "load current user")
	}
	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil || user.ID == "" {
		log.Warn().Err(err).Str("client_id", clientID).Msg("failed to parse current user, ignoring")
		return nil, ErrNotLoggedIn
	}
	if user.SavedTrucks == nil {
		user.SavedTrucks = []string{}
	}
	return &user, nil
}

// UserByID loads a user with their favorites.
func (s *Service) UserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.scanUser(s.db.QueryRowContext(ctx, userSelect+` WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if user.SavedTrucks, err = s.ListFavorites(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

const userSelect = `SELECT id, name, email, password_hash, image, role, truck_name, cuisine, created_at FROM users`

func (s *Service) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	var role string
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Image,
		&role, &user.TruckName, &user.Cuisine, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, "query user")
	}
	user.Role = models.Role(role)
	return &user, nil
}

func (s *Service) saveSnapshot(ctx context.Context, clientID string, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "encode current user")
	}
	if err := s.store.Set(ctx, clientID, models.CurrentUserKey, string(data)); err != nil {
		return errors.Wrap(err, "save current user")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validCuisine(c string) bool {
	for _, known := range Cuisines {
		if c == known {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

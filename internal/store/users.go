package store

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// ErrUsernameTaken is returned by CreateUser when the username already
// exists.
var ErrUsernameTaken = errors.New("store: username already taken")

// ErrBadRegistrationKey is returned by CreateUser when a non-empty
// registration key is configured and the presented key doesn't match.
var ErrBadRegistrationKey = errors.New("store: invalid registration key")

// GetUserByToken looks up the user owning an authentication token.
func (s *Store) GetUserByToken(token string) (*User, error) {
	var u User
	err := s.db.Get(&u, `SELECT user_id, username, password, token, role, mu, sigma FROM users WHERE token = ?`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by token: %w", err)
	}
	return &u, nil
}

// GetUser looks up a user by their stable id.
func (s *Store) GetUser(userID int) (*User, error) {
	var u User
	err := s.db.Get(&u, `SELECT user_id, username, password, token, role, mu, sigma FROM users WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserByUsername looks up a user by their unique username.
func (s *Store) GetUserByUsername(username string) (*User, error) {
	var u User
	err := s.db.Get(&u, `SELECT user_id, username, password, token, role, mu, sigma FROM users WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return &u, nil
}

// CreateUser registers a new user with a bcrypt-hashed password and a
// freshly minted token, gated by registrationKey when configuredKey is
// non-empty.
func (s *Store) CreateUser(username, password string, role Role, registrationKey, configuredKey string) (*User, error) {
	if configuredKey != "" {
		if subtle.ConstantTimeCompare([]byte(registrationKey), []byte(configuredKey)) != 1 {
			return nil, ErrBadRegistrationKey
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	res, err := s.db.Exec(
		`INSERT INTO users (username, password, token, role, mu, sigma) VALUES (?, ?, ?, ?, ?, ?)`,
		username, hash, token, role, DefaultMu, DefaultSigma,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read inserted user id: %w", err)
	}

	return &User{
		UserID:       int(id),
		Username:     username,
		PasswordHash: hash,
		Token:        token,
		Role:         role,
		Mu:           DefaultMu,
		Sigma:        DefaultSigma,
	}, nil
}

// VerifyPassword checks a plaintext password against the user's stored
// bcrypt hash.
func (u *User) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) == nil
}

// GetMatchmakingParameters returns a user's current (mu, sigma).
func (s *Store) GetMatchmakingParameters(userID int) (mu, sigma float64, err error) {
	var u User
	err = s.db.Get(&u, `SELECT mu, sigma FROM users WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("get matchmaking parameters: %w", err)
	}
	return u.Mu, u.Sigma, nil
}

// UpdateMatchmakingParameters writes a user's new (mu, sigma) back after a
// rating update.
func (s *Store) UpdateMatchmakingParameters(userID int, mu, sigma float64) error {
	_, err := s.db.Exec(`UPDATE users SET mu = ?, sigma = ? WHERE user_id = ?`, mu, sigma, userID)
	if err != nil {
		return fmt.Errorf("update matchmaking parameters: %w", err)
	}
	return nil
}

// ResetRating restores a user's mu/sigma to the system defaults
// (admin reset).
func (s *Store) ResetRating(userID int) error {
	return s.UpdateMatchmakingParameters(userID, DefaultMu, DefaultSigma)
}

// DecayAllSigmas adds delta to every user's sigma.
func (s *Store) DecayAllSigmas(delta float64) (int64, error) {
	res, err := s.db.Exec(`UPDATE users SET sigma = sigma + ?`, delta)
	if err != nil {
		return 0, fmt.Errorf("decay sigmas: %w", err)
	}
	return res.RowsAffected()
}

// Leaderboard returns users ordered by score (mu - 3*sigma) descending,
// for the read-only dashboard.
func (s *Store) Leaderboard(limit int) ([]User, error) {
	var users []User
	err := s.db.Select(&users,
		`SELECT user_id, username, password, token, role, mu, sigma FROM users
		 ORDER BY (mu - 3*sigma) DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	return users, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func isUniqueConstraintErr(err error) bool {
	// mattn/go-sqlite3 reports constraint violations with this substring;
	// matching on it avoids importing the driver's internal error type.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

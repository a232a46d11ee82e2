package db

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"carbontracker/internal/config"
)

// User is an account that can sign in and own uploads. The ID is the
// identity carried in tokens and stored as UserID on every other table.
type User struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"size:255;not null"`
}

var (
	// ErrInvalidCredentials is returned for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("user already exists")
)

// CreateUser stores a new user with a bcrypt hash of password.
func CreateUser(db *gorm.DB, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("username and password required")
	}

	var count int64
	if err := db.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &User{Username: username, PasswordHash: string(hash)}
	if err := db.Create(user).Error; err != nil {
		// concurrent signup with the same name
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

// Authenticate returns the user when password matches the stored hash.
func Authenticate(db *gorm.DB, username, password string) (*User, error) {
	var user User
	if err := db.Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// EnsureBootstrapUser makes sure the user named in config exists. An
// existing user with that name is left as-is.
func EnsureBootstrapUser(db *gorm.DB, cfg *config.Config) error {
	if cfg.BootstrapUser == "" || cfg.BootstrapPassword == "" {
		return nil
	}

	_, err := CreateUser(db, cfg.BootstrapUser, cfg.BootstrapPassword)
	if errors.Is(err, ErrUserExists) {
		return nil
	}
	return err
}

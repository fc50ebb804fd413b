// Package auth issues and verifies access tokens and manages password
// hashes. Tokens are HS256 JWTs carrying the user id; passwords use
// bcrypt at default cost.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mfcastro/aihub/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const tokenTTL = 24 * time.Hour

type Service struct {
	db        *gorm.DB
	jwtSecret string
}

func NewService(db *gorm.DB, jwtSecret string) *Service {
	return &Service{db: db, jwtSecret: jwtSecret}
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a password with a hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Login verifies credentials and returns a signed token. Inactive users
// fail the same way as bad passwords.
func (s *Service) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("username = ? AND is_active = ?", username, true).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, models.NewAuthenticationError("invalid credentials")
	}
	if err != nil {
		return "", nil, models.NewInternalError("login failed", err)
	}

	if !CheckPassword(password, user.PasswordHash) {
		return "", nil, models.NewAuthenticationError("invalid credentials")
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).
		Model(&user).
		Update("last_login_at", now).Error; err != nil {
		return "", nil, models.NewInternalError("login failed", err)
	}
	user.LastLoginAt = &now

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return "", nil, models.NewInternalError("token issue failed", err)
	}
	return token, &user, nil
}

// IssueToken signs a token for a user id.
func (s *Service) IssueToken(userID uint) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// VerifyToken validates a token and loads its active user.
func (s *Service) VerifyToken(ctx context.Context, tokenString string) (*models.User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, models.NewAuthenticationError("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, models.NewAuthenticationError("invalid token claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, models.NewAuthenticationError("invalid token subject")
	}
	userID, err := strconv.ParseUint(sub, 10, 64)
	if err != nil {
		return nil, models.NewAuthenticationError("invalid token subject")
	}

	var user models.User
	dbErr := s.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", uint(userID), true).
		First(&user).Error
	if errors.Is(dbErr, gorm.ErrRecordNotFound) {
		return nil, models.NewAuthenticationError("user no longer active")
	}
	if dbErr != nil {
		return nil, models.NewInternalError("token verification failed", dbErr)
	}

	return &user, nil
}

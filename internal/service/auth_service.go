package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	TokenSecret   string
	TokenExpiry   time.Duration
	Issuer        string
	LoginPerMin   int
	LoginBurst    int
	LimiterMaxIPs int
}

// AuthService verifies teacher credentials for the login page and issues API
// bearer tokens.
type AuthService struct {
	repo      authUserRepository
	limiter   *loginLimiter
	activity  activityRecorder
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, activity activityRecorder, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if activity == nil {
		activity = noopActivity{}
	}
	if config.TokenExpiry <= 0 {
		config.TokenExpiry = time.Hour
	}
	return &AuthService{
		repo:      repo,
		limiter:   newLoginLimiter(config.LoginPerMin, config.LoginBurst, config.LimiterMaxIPs),
		activity:  activity,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// Login checks credentials and returns the authenticated teacher account.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.User, error) {
	if !s.limiter.Allow(req.IP) {
		return nil, appErrors.ErrTooManyRequests
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Please enter your email and password.")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}
	if user.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Only teachers can sign in here.")
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.activity.Record(ctx, models.TeacherScope{UserID: user.ID, IPAddress: req.IP}, models.ActivityLogin, "auth", user.ID, nil)
	return user, nil
}

// Logout records the end of a page session.
func (s *AuthService) Logout(ctx context.Context, scope models.TeacherScope) {
	if scope.UserID == "" {
		return
	}
	s.activity.Record(ctx, scope, models.ActivityLogout, "auth", scope.UserID, nil)
}

// IssueToken authenticates req and returns a signed bearer token for the API.
func (s *AuthService) IssueToken(ctx context.Context, req models.LoginRequest) (*models.TokenResponse, error) {
	user, err := s.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	issuedAt := s.now().UTC()
	token, err := s.sign(user, issuedAt)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}
	return &models.TokenResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.TokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
		User: models.UserInfo{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName,
			Role:     user.Role,
		},
	}, nil
}

func (s *AuthService) sign(user *models.User, issuedAt time.Time) (string, error) {
	if s.config.TokenSecret == "" {
		return "", fmt.Errorf("token secret not configured")
	}
	claims := models.JWTClaims{
		UserID:   user.ID,
		Role:     user.Role,
		Email:    user.Email,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.TokenExpiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.TokenSecret))
}

// ValidateToken parses and validates a bearer token.
func (s *AuthService) ValidateToken(token string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now)}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.config.TokenSecret), nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return claims, nil
}

// loginLimiter keeps one token bucket per client IP. When the table is full
// it is reset rather than grown.
type loginLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	maxKeys int
	buckets map[string]*rate.Limiter
}

func newLoginLimiter(perMinute, burst, maxKeys int) *loginLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = 5
	}
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &loginLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		maxKeys: maxKeys,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *loginLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxKeys {
			l.buckets = make(map[string]*rate.Limiter)
		}
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = bucket
	}
	return bucket.Allow()
}

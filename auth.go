package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	operatorExpiry   = 24 * time.Hour
	controlExpiry    = 12 * time.Hour
	minPasswordLen   = 4
	minUsernameLen   = 2
	maxUsernameLen   = 16
	loginRateWindow  = 60 * time.Second
	maxLoginAttempts = 10
)

// bcryptCost is lowered by tests
var bcryptCost = 12

// Token roles
const (
	RoleOperator = "operator"
	RoleControl  = "control"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrRateLimited        = errors.New("too many login attempts, try again later")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims is the payload of operator and session control tokens
type Claims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Auth issues and validates tokens
type Auth struct {
	db        *DB
	jwtSecret []byte

	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth creates a new Auth handler
func NewAuth(db *DB) *Auth {
	return &Auth{
		db:        db,
		jwtSecret: loadOrCreateSecret(db),
		rateMap:   make(map[string]*rateEntry),
	}
}

// loadOrCreateSecret loads the signing secret from settings, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *DB) []byte {
	if db != nil {
		if h := db.GetSetting("jwt_secret"); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting("jwt_secret", hex.EncodeToString(secret)); err != nil {
			log.Printf("warning: could not persist JWT secret: %v", err)
		}
	}
	return secret
}

// CreateOperator registers an operator account
func (a *Auth) CreateOperator(username, password string) (int64, error) {
	if a.db == nil {
		return 0, errors.New("no database")
	}
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return 0, fmt.Errorf("username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	}
	if len(password) < minPasswordLen {
		return 0, fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	exists, err := a.db.OperatorExists(username)
	if err != nil {
		return 0, fmt.Errorf("check operator: %w", err)
	}
	if exists {
		return 0, fmt.Errorf("username %q already taken", username)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	return a.db.CreateOperator(username, string(hash))
}

// Login authenticates an operator and returns an operator token
func (a *Auth) Login(username, password, ip string) (string, error) {
	if !a.checkRate(ip) {
		return "", ErrRateLimited
	}
	if a.db == nil {
		return "", ErrInvalidCredentials
	}
	op, err := a.db.GetOperatorByUsername(username)
	if err != nil {
		return "", fmt.Errorf("load operator: %w", err)
	}
	if op == nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PassHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return a.sign(Claims{
		Role: RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: op.Username,
		},
	}, operatorExpiry)
}

// ControlToken issues the token that lets a client mutate a session
func (a *Auth) ControlToken(sessionID, clientID string) (string, error) {
	return a.sign(Claims{
		Role:      RoleControl,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: clientID,
		},
	}, controlExpiry)
}

// ValidateToken parses a token and returns its claims
func (a *Auth) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authorize validates a token and checks its role, and its session for
// control tokens.
func (a *Auth) Authorize(tokenStr, role, sessionID string) (*Claims, error) {
	c, err := a.ValidateToken(tokenStr)
	if err != nil {
		return nil, err
	}
	if c.Role != role {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidToken, c.Role)
	}
	if role == RoleControl && c.SessionID != sessionID {
		return nil, fmt.Errorf("%w: token is for another session", ErrInvalidToken)
	}
	return c, nil
}

func (a *Auth) sign(c Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(a.jwtSecret)
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(loginRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxLoginAttempts
}

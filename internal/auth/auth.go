package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/types"
)

const (
	userIdClaim = "user-id"
	expClaim    = "exp"

	TokenCookieKey    = "token"
	TokenQueryKey     = "token"
	DefaultExpiration = time.Hour * 24
)

// ErrUnauthorized is the only verification failure callers see.
var ErrUnauthorized = errors.New("unauthorized")

type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (types.User, error)
}

type JWTVerifier struct {
	log        *log.Logger
	db         database.SupportChatRepository
	signingKey []byte
}

func NewJWTVerifier(logger *log.Logger, db database.SupportChatRepository, signingKey []byte) *JWTVerifier {
	return &JWTVerifier{
		log:        logger,
		db:         db,
		signingKey: signingKey,
	}
}

func (v *JWTVerifier) IssueToken(userId int, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(v.signingKey)
}

func (v *JWTVerifier) userIdFromToken(tokenString string) (int, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return 0, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("invalid token claims")
	}

	if _, ok := claims[expClaim]; !ok {
		return 0, fmt.Errorf("missing exp claim")
	}

	userId, ok := claims[userIdClaim].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid user id claim")
	}

	return int(userId), nil
}

// Verify resolves a bearer credential to an identity. Missing, malformed,
// expired or unknown-user credentials all yield ErrUnauthorized; any other
// error is a lookup failure.
func (v *JWTVerifier) Verify(ctx context.Context, credential string) (types.User, error) {
	if credential == "" {
		return types.User{}, ErrUnauthorized
	}

	userId, err := v.userIdFromToken(credential)
	if err != nil {
		v.log.Println("verify credential:", err)
		return types.User{}, ErrUnauthorized
	}

	return v.Resolve(ctx, userId)
}

// Resolve loads the account and tags it with its role. Staff accounts
// without a support profile get a default one.
func (v *JWTVerifier) Resolve(ctx context.Context, userId int) (types.User, error) {
	account, err := v.db.GetAccountById(ctx, userId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.User{}, ErrUnauthorized
		}
		return types.User{}, fmt.Errorf("get account: %w", err)
	}

	user := types.User{
		Id:           account.Id,
		Username:     account.Username,
		EmailAddress: account.EmailAddress,
		Role:         types.RoleCustomer,
		CreatedAt:    account.CreatedAt,
		UpdatedAt:    account.UpdatedAt,
	}

	_, err = v.db.GetStaffProfile(ctx, userId)
	switch {
	case err == nil:
		user.Role = types.RoleStaff
	case errors.Is(err, database.ErrNotFound):
		if account.IsStaff {
			if _, err := v.db.CreateStaffProfile(ctx, userId, database.DefaultMaxConcurrentChats); err != nil {
				return types.User{}, fmt.Errorf("create staff profile: %w", err)
			}
			v.log.Printf("created support profile for %q", account.Username)
			user.Role = types.RoleStaff
		}
	default:
		return types.User{}, fmt.Errorf("get staff profile: %w", err)
	}

	return user, nil
}

// CredentialFromRequest looks for a bearer credential in the query string,
// then the Authorization header, then the session cookie.
func CredentialFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get(TokenQueryKey); token != "" {
		return token
	}

	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}

	if c, err := r.Cookie(TokenCookieKey); err == nil {
		return c.Value
	}

	return ""
}

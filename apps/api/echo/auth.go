package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/member"
)

// AllSchools is the school claim of admins allowed to act on every school.
const AllSchools = "*"

const contextTokenKey = "memberToken"

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	School  string      `json:"school"`
	Kind    member.Kind `json:"kind"`
	IsAdmin bool        `json:"isAdmin,omitempty"`
}

// NewClaims returns the claims of a member's token. allSchools is only honored for admins.
func NewClaims(mbr member.Member, conf *core.Config, allSchools bool) *Claims {
	now := time.Now()
	school := mbr.School
	if allSchools && mbr.IsAdmin {
		school = AllSchools
	}
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   mbr.ID,
			Audience:  "Library",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		School:  school,
		Kind:    mbr.Kind,
		IsAdmin: mbr.IsAdmin,
	}
}

func (c Claims) IsStaff() bool { return c.Kind.IsStaff() }

// CanAccess reports whether the bearer may read or change the data of a school.
func (c Claims) CanAccess(school string) bool {
	return c.School == AllSchools || c.School == school
}

// scope is the school used to look entities up: empty (any school) for cross-school admins.
func (c Claims) scope() string {
	if c.School == AllSchools {
		return ""
	}
	return c.School
}

func jwtConfig(secretKey string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// GenerateToken generates a signed JWT token string representing the member Claims.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)

	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

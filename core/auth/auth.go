package auth

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/beet/core"
)

var (
	SigningMethod = jwt.SigningMethodHS256
	audience      = "Learners"

	nowFunc = time.Now // mockable

	// errors
	ErrInvalidToken = errors.New("invalid token")
	errNoLearner    = errors.New("learner is required")
)

// Claims represents the authorization claims transmitted via a JWT.
// The subject is the learner whose progress the bearer may read and write.
type Claims struct {
	jwt.StandardClaims
	Learner string `json:"learner"`
}

func NewClaims(conf *core.Config, learner string) (*Claims, error) {
	learner = core.CleanString(learner)
	if learner == "" {
		return nil, errNoLearner
	}

	now := nowFunc()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Issuer:    conf.AppName,
			Subject:   learner,
			Audience:  audience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Learner: learner,
	}, nil
}

// Valid also requires the learner to match the subject.
func (c Claims) Valid() error {
	if err := c.StandardClaims.Valid(); err != nil {
		return err
	}
	if c.Learner == "" || c.Learner != c.Subject {
		return ErrInvalidToken
	}
	return nil
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(SigningMethod, claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// ParseToken verifies a token string and returns its claims.
func ParseToken(conf *core.Config, tokenString string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != SigningMethod.Alg() {
			return nil, errors.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return []byte(conf.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.Wrap(ErrInvalidToken, errString(err))
	}
	return claims, nil
}

func errString(err error) string {
	if err == nil {
		return "token not valid"
	}
	return err.Error()
}

package invoice

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"payment-service/models"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSigningSecret = errors.New("invoice link secret is not configured")
	ErrInvalidLink     = errors.New("invalid invoice link")
)

// LinkClaims bind a link to one order. Subject is "orderNumber|total".
type LinkClaims struct {
	OrderID string `json:"oid"`
	jwt.RegisteredClaims
}

// Signer mints invoice links that stay valid for the life of the order. The
// token carries no timestamps, so the same order always yields the same URL.
type Signer struct {
	secret  []byte
	baseURL string
}

func NewSigner(secret, baseURL string) *Signer {
	return &Signer{secret: []byte(secret), baseURL: strings.TrimRight(baseURL, "/")}
}

func linkSubject(order *models.Order) string {
	return fmt.Sprintf("%s|%d", order.OrderNumber, order.Total)
}

func (s *Signer) Token(order *models.Order) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSigningSecret
	}
	claims := LinkClaims{
		OrderID:          order.ID,
		RegisteredClaims: jwt.RegisteredClaims{Subject: linkSubject(order)},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Signer) FallbackURL(order *models.Order) (string, error) {
	token, err := s.Token(order)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/invoices/" + url.PathEscape(order.ID) + "?token=" + url.QueryEscape(token), nil
}

// Verify parses token and returns its claims.
func (s *Signer) Verify(token string) (*LinkClaims, error) {
	if len(s.secret) == 0 {
		return nil, ErrNoSigningSecret
	}
	claims := &LinkClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	return claims, nil
}

// Matches reports whether claims were minted for order as it stands.
func (c *LinkClaims) Matches(order *models.Order) bool {
	return c.OrderID == order.ID && c.Subject == linkSubject(order)
}

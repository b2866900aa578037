package service

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"

	"mindtrack/internal/domains"
)

const invitationTokenType = "questionnaire_invitation"

// InvitationTokens signs and verifies the links sent to respondents. A token depends only
// on the assignment, its questionnaire and its expiry, so it can be reissued for
// reminders and still match the stored hash.
type InvitationTokens struct {
	secret  string
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

func NewInvitationTokens(secret string, ttl time.Duration, publicBaseURL string) *InvitationTokens {
	if ttl <= 0 {
		ttl = 15 * 24 * time.Hour
	}
	return &InvitationTokens{
		secret:  secret,
		ttl:     ttl,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		now:     time.Now,
	}
}

// Generate satisfies domains.InvitationTokenGenerator.
func (t *InvitationTokens) Generate(payload domains.InvitationTokenPayload) (string, []byte, time.Time, error) {
	now := t.now().UTC()
	expiresAt := now.Add(t.ttl)
	if payload.ExpiresAt != nil {
		expiresAt = payload.ExpiresAt.UTC()
	}
	expiresAt = expiresAt.Truncate(time.Second)
	if !expiresAt.After(now) {
		return "", nil, expiresAt, ErrInvitationExpired
	}

	token, err := t.sign(payload.AssignmentID, payload.QuestionnaireID, expiresAt)
	if err != nil {
		return "", nil, expiresAt, err
	}
	return token, HashToken(token), expiresAt, nil
}

// Reissue rebuilds the token of an open assignment.
func (t *InvitationTokens) Reissue(assignment domains.Assignment) (string, error) {
	if assignment.TokenExpiresAt == nil || len(assignment.TokenHash) == 0 {
		return "", ErrInvitationInvalid
	}
	token, err := t.sign(assignment.ID, assignment.QuestionnaireID, assignment.TokenExpiresAt.UTC())
	if err != nil {
		return "", err
	}
	if string(HashToken(token)) != string(assignment.TokenHash) {
		return "", ErrInvitationInvalid
	}
	return token, nil
}

func (t *InvitationTokens) sign(assignmentID, questionnaireID int64, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":              strconv.FormatInt(assignmentID, 10),
		"questionnaire_id": questionnaireID,
		"type":             invitationTokenType,
		"exp":              expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.secret))
	if err != nil {
		return "", fmt.Errorf("sign invitation token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, type and expiry and returns the assignment and
// questionnaire ids the token was issued for.
func (t *InvitationTokens) Parse(raw string) (int64, int64, error) {
	if raw == "" {
		return 0, 0, ErrInvitationInvalid
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(t.secret), nil
	})
	if err != nil {
		var validation *jwt.ValidationError
		if errors.As(err, &validation) && validation.Errors&jwt.ValidationErrorExpired != 0 {
			return 0, 0, ErrInvitationExpired
		}
		return 0, 0, ErrInvitationInvalid
	}
	if !parsed.Valid || claims["type"] != invitationTokenType {
		return 0, 0, ErrInvitationInvalid
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, 0, ErrInvitationInvalid
	}
	assignmentID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, 0, ErrInvitationInvalid
	}
	questionnaireID, err := claimToInt64(claims["questionnaire_id"])
	if err != nil {
		return 0, 0, ErrInvitationInvalid
	}
	return assignmentID, questionnaireID, nil
}

func (t *InvitationTokens) Link(token string) string {
	return t.baseURL + "/q?token=" + url.QueryEscape(token)
}

func HashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

func claimToInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, errors.New("missing claim")
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported claim type %T", value)
	}
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/idtoken"

	"github.com/dukerupert/streakforge/internal/apperr"
	"github.com/dukerupert/streakforge/internal/model"
	"github.com/dukerupert/streakforge/internal/store"
)

// ErrInvalidCredentials is returned by Login for an unknown email or wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

const avatarBaseURL = "https://api.dicebear.com/7.x/initials/svg?seed="

type UserStore interface {
	Create(ctx context.Context, email, passwordHash, googleSubject string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGoogleSubject(ctx context.Context, subject string) (*model.User, error)
	LinkGoogleSubject(ctx context.Context, id, subject string) error
	Delete(ctx context.Context, id string) error
}

type SessionStore interface {
	Create(ctx context.Context, userID string) (*model.Session, error)
	Delete(ctx context.Context, token string) error
}

type ProfileStore interface {
	CreateProfile(ctx context.Context, p model.Profile) error
}

// GoogleIdentity is the verified subset of a Google ID token.
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// IDTokenValidator verifies a federated ID token.
type IDTokenValidator interface {
	Validate(ctx context.Context, token string) (*GoogleIdentity, error)
}

// GoogleValidator checks ID tokens against Google's signing keys for one client ID.
type GoogleValidator struct {
	ClientID string
}

func (v GoogleValidator) Validate(ctx context.Context, token string) (*GoogleIdentity, error) {
	payload, err := idtoken.Validate(ctx, token, v.ClientID)
	if err != nil {
		return nil, fmt.Errorf("validate id token: %w", err)
	}
	claim := func(key string) string {
		s, _ := payload.Claims[key].(string)
		return s
	}
	return &GoogleIdentity{
		Subject:       payload.Subject,
		Email:         claim("email"),
		EmailVerified: emailVerified(payload.Claims["email_verified"]),
		Name:          claim("name"),
		Picture:       claim("picture"),
	}, nil
}

// emailVerified reads the email_verified claim, which Google sends as a
// boolean and some older tokens carry as the string "true".
func emailVerified(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// Signup is the registration payload.
type Signup struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	DisplayName string `json:"display_name" validate:"required"`
}

// Result is a signed-in user with a fresh session and bearer token.
type Result struct {
	User    *model.User    `json:"user"`
	Session *model.Session `json:"-"`
	Token   string         `json:"token"`
	Created bool           `json:"created"`
}

// Accounts registers users and signs them in. Each new account is seeded
// with a profile document.
type Accounts struct {
	users    UserStore
	sessions SessionStore
	profiles ProfileStore
	tokens   *Tokens
	google   IDTokenValidator
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAccounts(users UserStore, sessions SessionStore, profiles ProfileStore, tokens *Tokens, google IDTokenValidator, logger *slog.Logger) *Accounts {
	return &Accounts{
		users:    users,
		sessions: sessions,
		profiles: profiles,
		tokens:   tokens,
		google:   google,
		validate: validator.New(),
		logger:   logger.With("component", "accounts"),
	}
}

// AvatarURL is the generated placeholder picture for a display name.
func AvatarURL(displayName string) string {
	return avatarBaseURL + url.QueryEscape(displayName)
}

func (a *Accounts) Register(ctx context.Context, in Signup) (*Result, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := a.validate.Struct(in); err != nil {
		return nil, signupError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := a.users.Create(ctx, in.Email, string(hash), "")
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.Conflict("an account with this email already exists")
	}
	if err != nil {
		return nil, err
	}
	if err := a.seedProfile(ctx, u, in.DisplayName, ""); err != nil {
		return nil, err
	}

	a.logger.Info("account registered", "user_id", u.ID)
	res, err := a.signIn(ctx, u)
	if err != nil {
		return nil, err
	}
	res.Created = true
	return res, nil
}

func (a *Accounts) Login(ctx context.Context, email, password string) (*Result, error) {
	u, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return a.signIn(ctx, u)
}

// GoogleLogin signs in with a Google ID token. The first sign-in creates the user
// and profile; an existing password account with the same email is linked.
func (a *Accounts) GoogleLogin(ctx context.Context, idToken string) (*Result, error) {
	if a.google == nil {
		return nil, apperr.Forbidden("google sign-in is not enabled")
	}
	id, err := a.google.Validate(ctx, idToken)
	if err != nil {
		a.logger.Warn("google token rejected", "error", err)
		return nil, ErrInvalidToken
	}
	if id.Subject == "" || id.Email == "" {
		return nil, ErrInvalidToken
	}

	u, err := a.users.GetByGoogleSubject(ctx, id.Subject)
	if err != nil {
		return nil, err
	}
	if u != nil {
		return a.signIn(ctx, u)
	}

	// An unverified address must not claim an existing account or create one.
	if !id.EmailVerified {
		a.logger.Warn("google sign-in with unverified email", "subject", id.Subject)
		return nil, apperr.Forbidden("your Google account email is not verified")
	}

	u, err = a.users.GetByEmail(ctx, id.Email)
	if err != nil {
		return nil, err
	}
	if u != nil {
		if err := a.users.LinkGoogleSubject(ctx, u.ID, id.Subject); err != nil {
			return nil, err
		}
		return a.signIn(ctx, u)
	}

	u, err = a.users.Create(ctx, id.Email, "", id.Subject)
	if err != nil {
		return nil, err
	}
	name := id.Name
	if name == "" {
		name, _, _ = strings.Cut(id.Email, "@")
	}
	if err := a.seedProfile(ctx, u, name, id.Picture); err != nil {
		return nil, err
	}

	a.logger.Info("account created from google sign-in", "user_id", u.ID)
	res, err := a.signIn(ctx, u)
	if err != nil {
		return nil, err
	}
	res.Created = true
	return res, nil
}

func (a *Accounts) Logout(ctx context.Context, sessionToken string) error {
	return a.sessions.Delete(ctx, sessionToken)
}

func (a *Accounts) seedProfile(ctx context.Context, u *model.User, displayName, photoURL string) error {
	if photoURL == "" {
		photoURL = AvatarURL(displayName)
	}
	err := a.profiles.CreateProfile(ctx, model.Profile{
		UID:         u.ID,
		Email:       u.Email,
		DisplayName: displayName,
		PhotoURL:    photoURL,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		if delErr := a.users.Delete(ctx, u.ID); delErr != nil {
			a.logger.Error("remove user after failed profile seed", "user_id", u.ID, "error", delErr)
		}
		return fmt.Errorf("seed profile: %w", err)
	}
	return nil
}

func (a *Accounts) signIn(ctx context.Context, u *model.User) (*Result, error) {
	sess, err := a.sessions.Create(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	token, err := a.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	return &Result{User: u, Session: sess, Token: token}, nil
}

func signupError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("invalid sign-up details")
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Email":
		if fe.Tag() == "required" {
			return apperr.Validation("email is required")
		}
		return apperr.Validation("email address is invalid")
	case "Password":
		return apperr.Validation("password must be at least 6 characters")
	case "DisplayName":
		return apperr.Validation("display name is required")
	}
	return apperr.Validation("invalid sign-up details")
}

package services

import (
	"context"

	"github.com/rindwa/dispatch/authz"
	"github.com/rindwa/dispatch/db"
	"github.com/rindwa/dispatch/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

// AuthService authenticates staff principals and mints the bearer token the
// rest of the core consumes. Citizen report submission never goes through
// here — it is unauthenticated by design (spec §1).
type AuthService struct {
	Store      db.Store
	JWTService *authz.JWTService
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	User  db.User `json:"user"`
	Token string  `json:"token"`
}

func NewAuthService(store db.Store) *AuthService {
	return &AuthService{
		Store:      store,
		JWTService: authz.NewJWTService(""),
	}
}

// Login validates credentials and issues a token. Failures are always
// Unauthenticated — no distinction between "no such user" and "wrong
// password" is surfaced, to avoid account enumeration.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.Store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperr.NewUnavailable("failed to look up user", err)
	}
	if user == nil || !user.IsActive {
		return nil, apperr.NewUnauthenticated("invalid email or password")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, apperr.NewUnauthenticated("invalid email or password")
	}

	principal := db.Principal{
		UserID:         user.ID,
		Role:           user.Role,
		OrganisationID: user.OrganisationID,
		StationID:      user.StationID,
	}
	token, err := s.JWTService.Issue(principal)
	if err != nil {
		return nil, apperr.NewInternal(err)
	}

	return &LoginResponse{User: *user, Token: token}, nil
}

// HashPassword creates a bcrypt hash of the password, used when accepting
// an invitation.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

type AcceptInvitationResponse struct {
	User  db.User `json:"user"`
	Token string  `json:"token"`
}

// AcceptInvitation redeems an invitation token into a new staff user and
// logs them straight in, the invitation-accept-plus-user-create mutation
// of §5.
func (s *AuthService) AcceptInvitation(ctx context.Context, req db.AcceptInvitationRequest) (*AcceptInvitationResponse, error) {
	inv, err := s.Store.GetInvitationByToken(ctx, req.Token)
	if err != nil {
		return nil, apperr.NewUnavailable("failed to look up invitation", err)
	}
	if inv == nil {
		return nil, apperr.NewNotFound("invitation not found")
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, apperr.NewInternal(err)
	}

	user := &db.User{
		Name:           req.Name,
		Email:          inv.Email,
		PasswordHash:   hash,
		Role:           inv.Role,
		OrganisationID: inv.OrganisationID,
		StationID:      inv.StationID,
		IsActive:       true,
	}
	created, err := s.Store.AcceptInvitation(ctx, req.Token, user)
	if err != nil {
		return nil, apperr.NewConflict(err.Error())
	}

	principal := db.Principal{
		UserID:         created.ID,
		Role:           created.Role,
		OrganisationID: created.OrganisationID,
		StationID:      created.StationID,
	}
	token, err := s.JWTService.Issue(principal)
	if err != nil {
		return nil, apperr.NewInternal(err)
	}

	return &AcceptInvitationResponse{User: *created, Token: token}, nil
}

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bloodbridge/platform/pkg/gateway/auth"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var (
	ErrBootstrapNotAllowed = errors.New("platform already bootstrapped")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrForbidden           = errors.New("insufficient permissions")
	ErrInvalidInput        = errors.New("invalid account details")
)

type Service struct {
	repo *Repository
	cost int
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost}
}

// Bootstrap creates the first hospital and its admin. It only works on an empty install.
func (s *Service) Bootstrap(ctx context.Context, in BootstrapInput) (*Hospital, *Account, error) {
	count, err := s.repo.CountAccounts(ctx)
	if err != nil {
		return nil, nil, err
	}
	if count > 0 {
		return nil, nil, ErrBootstrapNotAllowed
	}
	if strings.TrimSpace(in.HospitalName) == "" || strings.TrimSpace(in.HospitalSlug) == "" {
		return nil, nil, fmt.Errorf("%w: hospital name and slug required", ErrInvalidInput)
	}

	hospital, err := s.repo.CreateHospital(ctx, in.HospitalName, in.HospitalSlug)
	if err != nil {
		return nil, nil, err
	}
	acc, err := s.createAccount(ctx, hospital.ID, in.Email, in.Name, in.Password, auth.RoleAdmin)
	if err != nil {
		return nil, nil, err
	}
	return hospital, acc, nil
}

func (s *Service) Register(ctx context.Context, actor *auth.Claims, in RegisterInput) (*Account, error) {
	role := in.Role
	if role == "" {
		role = auth.RoleHospital
	}
	if role != auth.RoleHospital && role != auth.RoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	isAdmin := actor.Role == auth.RoleAdmin
	if role == auth.RoleAdmin && !isAdmin {
		return nil, ErrForbidden
	}

	hospitalID := in.HospitalID
	switch {
	case in.HospitalName != "":
		if !isAdmin {
			return nil, ErrForbidden
		}
		hospital, err := s.repo.CreateHospital(ctx, in.HospitalName, in.HospitalSlug)
		if err != nil {
			return nil, err
		}
		hospitalID = hospital.ID
	case hospitalID == "":
		hospitalID = actor.HospitalID
	case hospitalID != actor.HospitalID && !isAdmin:
		return nil, ErrForbidden
	default:
		if _, err := s.repo.GetHospital(ctx, hospitalID); err != nil {
			return nil, err
		}
	}

	return s.createAccount(ctx, hospitalID, in.Email, in.Name, in.Password, role)
}

func (s *Service) createAccount(ctx context.Context, hospitalID, email, name, password, role string) (*Account, error) {
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email required", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}

	acc := &Account{
		HospitalID:   hospitalID,
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         role,
		PasswordHash: string(hash),
	}
	if err := s.repo.CreateAccount(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// Authenticate checks credentials and returns the identity a session token is issued for.
func (s *Service) Authenticate(ctx context.Context, email, password string) (auth.Principal, error) {
	acc, err := s.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return auth.Principal{}, ErrInvalidCredentials
		}
		return auth.Principal{}, err
	}
	if password == "" || bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return auth.Principal{}, ErrInvalidCredentials
	}

	hospital, err := s.repo.GetHospital(ctx, acc.HospitalID)
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{
		UserID:       acc.ID,
		HospitalID:   hospital.ID,
		HospitalName: hospital.Name,
		Role:         acc.Role,
	}, nil
}

func (s *Service) GetAccount(ctx context.Context, id string) (*Account, error) {
	return s.repo.GetAccount(ctx, id)
}

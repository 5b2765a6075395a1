package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	m, err := NewJWTManager("0123456789abcdef-secret", "bloodbridge", "hospitals", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.IssueToken(Principal{UserID: "u1", HospitalID: "H1", HospitalName: "City General"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.HospitalID != "H1" || claims.HospitalName != "City General" || claims.Role != RoleHospital {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestValidateRejectsTampering(t *testing.T) {
	m, _ := NewJWTManager("0123456789abcdef-secret", "bloodbridge", "hospitals", time.Hour)
	token, _ := m.IssueToken(Principal{HospitalID: "H1"})

	parts := strings.Split(token, ".")
	other, _ := m.IssueToken(Principal{HospitalID: "H2"})
	forged := parts[0] + "." + strings.Split(other, ".")[1] + "." + parts[2]

	if _, err := m.ValidateToken(context.Background(), forged); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	m, _ := NewJWTManager("0123456789abcdef-secret", "bloodbridge", "hospitals", time.Minute)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time { return issued }
	token, _ := m.IssueToken(Principal{HospitalID: "H1"})

	m.nowFunc = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := m.ValidateToken(context.Background(), token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

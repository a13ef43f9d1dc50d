package domain

import (
	"errors"
	"testing"
)

func TestUserValidate(t *testing.T) {
	u := &User{Email: "  Bob@Example.COM ", FullName: " Bob "}
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if u.Email != "bob@example.com" || u.FullName != "Bob" || u.Status != UserStatusActive {
		t.Errorf("normalized = %+v", u)
	}
	if err := (&User{Email: " "}).Validate(); !errors.Is(err, ErrEmailRequired) {
		t.Errorf("empty email err = %v", err)
	}
}

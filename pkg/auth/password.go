package auth

import (
	stderrors "errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength applies to every principal role.
const MinPasswordLength = 8

var ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

// ErrInvalidCredentials covers both unknown accounts and wrong passwords.
var ErrInvalidCredentials = stderrors.New("invalid credentials")

// placeholderHash is compared against when the account does not exist so a
// miss costs the same as a wrong password.
var placeholderHash, _ = bcrypt.GenerateFromPassword([]byte("engage-placeholder"), bcrypt.DefaultCost)

func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckCredentials compares password with the stored hash. An empty hash
// means the account was not found.
func CheckCredentials(storedHash, password string) error {
	if storedHash == "" {
		_ = bcrypt.CompareHashAndPassword(placeholderHash, []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

package lifecycle

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a cleartext password at the package cost.
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, passwordHashCost())
}

// HashPasswordWithCost hashes at an explicit bcrypt cost. Costs outside
// the bcrypt range fall back to the package cost.
func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return err
	}
	return nil
}

//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// race builds hash at the minimum cost; sign-in tests hash on every request
func passwordHashCost() int {
	return bcrypt.MinCost
}

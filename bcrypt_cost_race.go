//go:build race

package membership

import "golang.org/x/crypto/bcrypt"

// race builds hash with the library default cost
func defaultBcryptCost() int {
	return bcrypt.DefaultCost
}

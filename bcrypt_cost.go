//go:build !race

package membership

func defaultBcryptCost() int {
	return 12
}

package dice

import (
	"crypto/rand"
	"io"
	"math/big"
)

// cryptoSource implements Source by drawing from an entropy reader,
// crypto/rand.Reader in production.
//
// Invariant: values are uniformly distributed in [0, n) for any n > 0.
type cryptoSource struct {
	r io.Reader
}

// NewCryptoSource returns a Source backed by crypto/rand. This is the
// production source; tests inject fixed sequences instead.
func NewCryptoSource() Source {
	return &cryptoSource{r: rand.Reader}
}

// Intn returns a cryptographically secure random int in [0, n).
//
// Precondition: n > 0. Panics with "dice: Intn called with n <= 0" if n <= 0.
// Panics with "dice: crypto/rand failure: <err>" if the entropy reader fails.
func (c *cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	val, err := rand.Int(c.r, big.NewInt(int64(n)))
	if err != nil {
		panic("dice: crypto/rand failure: " + err.Error())
	}
	return int(val.Int64())
}

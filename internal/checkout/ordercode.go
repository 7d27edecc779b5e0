package checkout

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	orderCodePrefix   = "FS"
	orderCodeRandLen  = 5
	orderCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// CodeGenerator produces a candidate order code.
type CodeGenerator func(now time.Time) (string, error)

// NewOrderCode builds "FS" + base-36 unix millis + five random base-36 characters.
func NewOrderCode(now time.Time) (string, error) {
	var b strings.Builder
	b.WriteString(orderCodePrefix)
	b.WriteString(strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)))

	max := big.NewInt(int64(len(orderCodeAlphabet)))
	for i := 0; i < orderCodeRandLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(orderCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

package checkout

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewOrderCodeFormat(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	code, err := NewOrderCode(now)
	require.NoError(t, err)

	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	require.True(t, strings.HasPrefix(code, "FS"+stamp))
	require.Regexp(t, regexp.MustCompile(`^FS[0-9A-Z]+$`), code)
	require.Len(t, code, 2+len(stamp)+5)
}

func TestNewOrderCodeIsRandomised(t *testing.T) {
	now := time.Now()
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		code, err := NewOrderCode(now)
		require.NoError(t, err)
		seen[code] = struct{}{}
	}
	require.Greater(t, len(seen), 45)
}

package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShippingAddressMissing(t *testing.T) {
	addr := ShippingAddress{FullName: "Lan", Phone: " ", Province: "HCM", Street: "1 Le Loi"}
	require.Equal(t, []string{"phone", "district", "ward"}, addr.Missing())

	full := ShippingAddress{FullName: "Lan", Phone: "090", Province: "HCM", District: "1", Ward: "Ben Nghe", Street: "1 Le Loi"}
	require.Empty(t, full.Missing())
}

func TestShippingAddressNormalize(t *testing.T) {
	addr := ShippingAddress{FullName: "  Lan ", Phone: "090 "}.Normalize()
	require.Equal(t, "Lan", addr.FullName)
	require.Equal(t, "090", addr.Phone)
}

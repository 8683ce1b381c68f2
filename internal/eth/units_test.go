package eth

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGasPriceGwei(t *testing.T) {
	tests := []struct {
		in      string
		want    *big.Int
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "1", want: big.NewInt(1_000_000_000)},
		{in: "0.1", want: big.NewInt(100_000_000)},
		{in: " 3.5 ", want: big.NewInt(3_500_000_000)},
		{in: "0", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseGasPriceGwei(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFormatUnits(t *testing.T) {
	amount, _ := new(big.Int).SetString("1234567890000000000", 10)
	assert.Equal(t, "1.23", FormatUnits(amount, 18, 2))
	assert.Equal(t, "1.234568", FormatUnits(amount, 18, 6))
	assert.Equal(t, "15.00", FormatUnits(big.NewInt(15_000_000), 6, 2))
	assert.Equal(t, "0.00", FormatUnits(nil, 18, 2))
}

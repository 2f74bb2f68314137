package chain_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/agrosync/internal/chain"
)

var errBadAmount = errors.New("bad amount")

func TestParseDecimalAmount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in       string
		decimals int
		want     string
		ok       bool
	}{
		{"1.5", 6, "1500000", true},
		{"100", 6, "100000000", true},
		{"0.000001", 6, "1", true},
		{"0.0000019", 6, "1", true},
		{".5", 6, "500000", true},
		{" 2 ", 6, "2000000", true},
		{"7", 0, "7", true},
		{"", 6, "", false},
		{"-1", 6, "", false},
		{"+1", 6, "", false},
		{"1.2.3", 6, "", false},
		{"1e6", 6, "", false},
		{"abc", 6, "", false},
		{"1.x", 6, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := chain.ParseDecimalAmount(tt.in, tt.decimals, errBadAmount)
			if !tt.ok {
				require.ErrorIs(t, err, errBadAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatDecimalAmount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in       int64
		decimals int
		want     string
	}{
		{1500000, 6, "1.5"},
		{1000000, 6, "1.0"},
		{0, 6, "0.0"},
		{1, 6, "0.000001"},
		{123456789, 6, "123.456789"},
		{-2500000, 6, "-2.5"},
		{42, 0, "42"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, chain.FormatDecimalAmount(big.NewInt(tt.in), tt.decimals), "%d", tt.in)
	}
	assert.Equal(t, "0", chain.FormatDecimalAmount(nil, 6))
}

func TestParseFormat_RoundTrip(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"1.5", "250.0", "0.000001", "999999.999999"} {
		v, err := chain.ParseDecimalAmount(s, 6, errBadAmount)
		require.NoError(t, err)
		assert.Equal(t, s, chain.FormatDecimalAmount(v, 6))
	}
}

func TestFormatInt(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0", chain.FormatInt(nil))
	assert.Equal(t, "1718000000", chain.FormatInt(big.NewInt(1718000000)))
}

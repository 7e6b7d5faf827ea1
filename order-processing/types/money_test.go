package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(amount int64) Money { return NewMoney(amount, "USD", 2) }

func TestMoney_Arithmetic(t *testing.T) {
	sum, err := usd(1000).Add(usd(250))
	require.NoError(t, err)
	assert.Equal(t, usd(1250), sum)

	diff, err := usd(1000).Subtract(usd(250))
	require.NoError(t, err)
	assert.Equal(t, usd(750), diff)

	eq, err := usd(5).Equals(usd(5))
	require.NoError(t, err)
	assert.True(t, eq)

	assert.True(t, usd(0).IsZero())
	assert.False(t, usd(1).IsZero())
}

func TestMoney_CurrencyMismatch(t *testing.T) {
	eur := NewMoney(100, "EUR", 2)

	_, err := usd(100).Add(eur)
	var mismatch *CurrencyMismatchError
	require.True(t, errors.As(err, &mismatch))

	_, err = usd(100).Subtract(eur)
	require.True(t, errors.As(err, &mismatch))

	_, err = usd(100).Equals(eur)
	require.True(t, errors.As(err, &mismatch))

	// same code, different exponent
	_, err = usd(100).Add(NewMoney(100, "USD", 3))
	require.True(t, errors.As(err, &mismatch))
}

func TestSumLineItems(t *testing.T) {
	total, err := SumLineItems([]LineItem{
		{ProductCode: "a", Amount: usd(700), Type: LineItemBaseProduct},
		{ProductCode: "b", Amount: usd(300), Type: LineItemAddOnProduct},
		{ProductCode: "tax", Amount: usd(80), Type: LineItemSalesTax},
	})
	require.NoError(t, err)
	assert.Equal(t, usd(1080), total)

	_, err = SumLineItems([]LineItem{
		{ProductCode: "a", Amount: usd(700)},
		{ProductCode: "b", Amount: NewMoney(1, "JPY", 0)},
	})
	assert.Error(t, err)
}

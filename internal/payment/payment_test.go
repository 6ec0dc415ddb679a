package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "rzp_test_secret"
	testOrder   = "order_N5zN9xYqLk2aBc"
	testPayment = "pay_N5zNdQ7hX1pQrs"
)

func mutate(s string, i int) string {
	b := []byte(s)
	if b[i] == 'a' {
		b[i] = 'b'
	} else {
		b[i] = 'a'
	}
	return string(b)
}

func TestSignerDeterministic(t *testing.T) {
	s, err := NewSigner(testSecret)
	require.NoError(t, err)

	sig := s.Sign(testOrder, testPayment)
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, s.Sign(testOrder, testPayment))
	assert.True(t, s.Verify(testOrder, testPayment, sig))

	other, err := NewSigner(testSecret)
	require.NoError(t, err)
	assert.True(t, other.Verify(testOrder, testPayment, sig))
}

func TestSignerRejectsAnySingleCharacterMutation(t *testing.T) {
	s, err := NewSigner(testSecret)
	require.NoError(t, err)
	sig := s.Sign(testOrder, testPayment)

	for i := range testOrder {
		assert.False(t, s.Verify(mutate(testOrder, i), testPayment, sig), "order id index %d", i)
	}
	for i := range testPayment {
		assert.False(t, s.Verify(testOrder, mutate(testPayment, i), sig), "payment id index %d", i)
	}
	for i := range sig {
		assert.False(t, s.Verify(testOrder, testPayment, mutate(sig, i)), "signature index %d", i)
	}
}

func TestSignerRejectsEmptyAndForeignSecret(t *testing.T) {
	_, err := NewSigner("")
	require.ErrorIs(t, err, ErrMissingSecret)

	s, _ := NewSigner(testSecret)
	foreign, _ := NewSigner("another_secret")
	assert.False(t, s.Verify(testOrder, testPayment, foreign.Sign(testOrder, testPayment)))
	assert.False(t, s.Verify("", testPayment, s.Sign("", testPayment)))
}

func TestParseOrder(t *testing.T) {
	o, err := parseOrder(map[string]interface{}{
		"id":       "order_abc",
		"amount":   float64(110000),
		"currency": "INR",
		"receipt":  "MNT-TECH-XYZ",
	})
	require.NoError(t, err)
	assert.Equal(t, &Order{ID: "order_abc", Amount: 110000, Currency: "INR", Receipt: "MNT-TECH-XYZ"}, o)

	_, err = parseOrder(map[string]interface{}{"error": "bad"})
	require.Error(t, err)
}

func TestRazorpayRequiresKeys(t *testing.T) {
	_, err := NewRazorpay("", "x")
	require.Error(t, err)

	rp, err := NewRazorpay("rzp_test_key", testSecret)
	require.NoError(t, err)
	assert.Equal(t, "rzp_test_key", rp.KeyID())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rp.CreateOrder(ctx, 100, CurrencyINR, "r", nil)
	require.ErrorIs(t, err, context.Canceled)
}

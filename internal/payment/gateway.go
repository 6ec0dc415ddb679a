package payment

import (
	"context"
	"errors"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

const CurrencyINR = "INR"

type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
}

// Gateway creates payment orders on the external provider.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error)
}

// Razorpay is the Gateway backed by the Razorpay Orders API.
type Razorpay struct {
	client *razorpay.Client
	keyID  string
}

func NewRazorpay(keyID, keySecret string) (*Razorpay, error) {
	if keyID == "" || keySecret == "" {
		return nil, errors.New("payment: razorpay key id and secret are required")
	}
	return &Razorpay{
		client: razorpay.NewClient(keyID, keySecret),
		keyID:  keyID,
	}, nil
}

// KeyID is the public key the checkout widget needs.
func (r *Razorpay) KeyID() string { return r.keyID }

func (r *Razorpay) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	noteMap := make(map[string]interface{}, len(notes))
	for k, v := range notes {
		noteMap[k] = v
	}
	body, err := r.client.Order.Create(map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
		"notes":    noteMap,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	return parseOrder(body)
}

func parseOrder(body map[string]interface{}) (*Order, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return nil, errors.New("razorpay create order: response has no order id")
	}
	o := &Order{ID: id}
	switch a := body["amount"].(type) {
	case float64:
		o.Amount = int64(a)
	case int64:
		o.Amount = a
	case int:
		o.Amount = int64(a)
	}
	o.Currency, _ = body["currency"].(string)
	o.Receipt, _ = body["receipt"].(string)
	return o, nil
}

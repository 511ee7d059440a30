package stripegw

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"

	"github.com/stagepass/seat-reservation/internal/config"
	"github.com/stagepass/seat-reservation/internal/domain/payment"
)

// Gateway は Stripe PaymentIntents を使った payment.Gateway 実装
type Gateway struct {
	currency string
}

// New は新しい Stripe ゲートウェイを作成する
func New(cfg *config.StripeConfig) (*Gateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("Stripeシークレットキーが設定されていません")
	}
	stripe.Key = cfg.SecretKey
	currency := cfg.Currency
	if currency == "" {
		currency = "gbp"
	}
	return &Gateway{currency: currency}, nil
}

// CreateIntent は PaymentIntent を作成し、クライアントシークレットを返す
// 金額は最小通貨単位（ペンス）でそのまま渡す
func (g *Gateway) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	currency := req.Currency
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(req.AmountPence)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: req.Metadata,
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("PaymentIntent作成に失敗: %w", err)
	}

	return &payment.Intent{
		ProviderRef:  pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

var _ payment.Gateway = (*Gateway)(nil)

package stripegw

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/stagepass/seat-reservation/internal/domain/payment"
)

// WebhookResult は検証済み Webhook イベントから抽出した最終結果
type WebhookResult struct {
	ProviderRef string
	Outcome     payment.Outcome
	// Handled が false のイベント種別は無視してよい
	Handled bool
}

// Verifier は Webhook 署名検証を署名シークレットごと束ねたもの
type Verifier struct {
	secret string
}

// NewVerifier は新しい Verifier を作成する
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify は署名を検証し、決済の最終結果を抽出する
func (v *Verifier) Verify(payload []byte, sigHeader string) (providerRef string, outcome payment.Outcome, handled bool, err error) {
	res, err := ParseEvent(payload, sigHeader, v.secret)
	if err != nil {
		return "", "", false, err
	}
	return res.ProviderRef, res.Outcome, res.Handled, nil
}

// ParseEvent は署名を検証し、PaymentIntent の最終結果を抽出する
func ParseEvent(payload []byte, sigHeader, webhookSecret string) (*WebhookResult, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("Webhook署名の検証に失敗: %w", err)
	}
	return resultFromEvent(event)
}

func resultFromEvent(event stripe.Event) (*WebhookResult, error) {
	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
	default:
		return &WebhookResult{Handled: false}, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("PaymentIntentのデシリアライズに失敗: %w", err)
	}

	outcome := payment.OutcomeFailed
	if event.Type == "payment_intent.succeeded" {
		outcome = payment.OutcomeSucceeded
	}
	return &WebhookResult{
		ProviderRef: pi.ID,
		Outcome:     outcome,
		Handled:     true,
	}, nil
}

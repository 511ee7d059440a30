package payment

import "context"

// IntentRequest は決済インテント作成のリクエスト
type IntentRequest struct {
	AmountPence int
	Currency    string
	Metadata    map[string]string
}

// Intent は決済プロバイダーが発行したインテント
type Intent struct {
	ProviderRef  string
	ClientSecret string
}

// Gateway は外部決済プロバイダーとの契約
// インテント作成のみ同期で行い、最終結果は Webhook 経由で受け取る
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
}

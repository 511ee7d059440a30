package hold

import "time"

// State はホールドの状態を表す
type State string

const (
	StateActive   State = "active"
	StatePromoted State = "promoted"
	StateReleased State = "released"
	StateExpired  State = "expired"
)

// DefaultTTL はホールドの有効期間のデフォルト値
// 決済完了までの猶予として長めに取る
const DefaultTTL = 15 * time.Minute

// Hold は座席の時限付き排他ホールドを表す
// active な状態遷移は promoted / released / expired のいずれかで終端し、
// 終端状態からの遷移は存在しない
type Hold struct {
	ID             string
	ShowID         string
	SeatIDs        []string
	SessionToken   string
	UserID         *string // ゲスト購入を許容するため任意
	State          State
	TTL            time.Duration
	IdempotencyKey *string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	UpdatedAt      time.Time
}

// New は新しいホールドを作成する
func New(showID, sessionToken string, userID *string, seatIDs []string, ttl time.Duration) *Hold {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	return &Hold{
		ShowID:       showID,
		SeatIDs:      seatIDs,
		SessionToken: sessionToken,
		UserID:       userID,
		State:        StateActive,
		TTL:          ttl,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		UpdatedAt:    now,
	}
}

// IsExpired はホールドが期限切れかを返す
// スイープ未実行でも期限超過は期限切れとして扱う（読み取り時判定）
func (h *Hold) IsExpired() bool {
	return time.Now().After(h.ExpiresAt)
}

// IsActive はホールドが有効（active かつ期限内）かを返す
func (h *Hold) IsActive() bool {
	return h.State == StateActive && !h.IsExpired()
}

// IsTerminal はホールドが終端状態かを返す
func (h *Hold) IsTerminal() bool {
	return h.State != StateActive
}

// OwnedBy はホールドが指定セッションの所有かを返す
func (h *Hold) OwnedBy(sessionToken string) bool {
	return h.SessionToken == sessionToken
}

// Validate はホールドの検証を行う
func (h *Hold) Validate() error {
	if h.ShowID == "" {
		return ErrShowIDRequired
	}
	if h.SessionToken == "" {
		return ErrSessionTokenRequired
	}
	if len(h.SeatIDs) == 0 {
		return ErrSeatIDsRequired
	}
	return nil
}

package models

import "time"

// ScanToken is the stored form of a rotating scan token. Only the SHA-256
// digest of the secret is persisted; the raw secret lives in the QR payload.
type ScanToken struct {
	ID         string     `db:"id" json:"id"`
	RoundID    string     `db:"round_id" json:"round_id"`
	SecretHash string     `db:"secret_hash" json:"-"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	Consumed   bool       `db:"consumed" json:"consumed"`
	ConsumedAt *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// IssuedToken is returned by token issuance; RawSecret is never stored.
type IssuedToken struct {
	ID        string    `json:"id"`
	RoundID   string    `json:"round_id"`
	RawSecret string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// QRPayload is the exact object embedded in the displayed QR code.
type QRPayload struct {
	RoundID      string        `json:"roundId"`
	Token        string        `json:"token"`
	SessionID    string        `json:"sessionId"`
	RoundNumber  int           `json:"roundNumber"`
	IsBreakRound bool          `json:"isBreakRound"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	Geofence     *GeofenceOpts `json:"geofence,omitempty"`
}

package dto

import "github.com/rollcall-io/rollcall-api/internal/models"

// StartSessionRequest opens a session for a group, with round 1 implied.
type StartSessionRequest struct {
	GroupID  string               `json:"groupId" binding:"required"`
	IsBreak  bool                 `json:"isBreak"`
	Geofence *models.GeofenceOpts `json:"geofence"`
}

// StartRoundRequest opens the next round of an active session.
type StartRoundRequest struct {
	IsBreak  bool                 `json:"isBreak"`
	Geofence *models.GeofenceOpts `json:"geofence"`
}

// StartSessionResponse returns the new session and the first QR payload.
type StartSessionResponse struct {
	Session *models.Session   `json:"session"`
	QR      *models.QRPayload `json:"qr"`
}

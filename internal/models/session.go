package models

import "time"

// SessionStatus is the session lifecycle state.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusEnded     SessionStatus = "ended"
)

// Session is one class meeting, containing one or more rounds.
type Session struct {
	ID          string        `db:"id" json:"id"`
	GroupID     string        `db:"group_id" json:"group_id"`
	ProfessorID string        `db:"professor_id" json:"professor_id"`
	Status      SessionStatus `db:"status" json:"status"`
	IsActive    bool          `db:"is_active" json:"is_active"`
	StartsAt    time.Time     `db:"starts_at" json:"starts_at"`
	EndsAt      *time.Time    `db:"ends_at" json:"ends_at,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// Round is one timed attendance-taking window within a session. At most one
// round per session is active; creating a new round closes the previous one.
type Round struct {
	ID              string     `db:"id" json:"id"`
	SessionID       string     `db:"session_id" json:"session_id"`
	RoundNumber     int        `db:"round_number" json:"round_number"`
	StartsAt        time.Time  `db:"starts_at" json:"starts_at"`
	EndsAt          *time.Time `db:"ends_at" json:"ends_at,omitempty"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	IsBreakRound    bool       `db:"is_break_round" json:"is_break_round"`
	GeofenceEnabled bool       `db:"geofence_enabled" json:"geofence_enabled"`
	GeofenceLat     *float64   `db:"geofence_lat" json:"geofence_lat,omitempty"`
	GeofenceLon     *float64   `db:"geofence_lon" json:"geofence_lon,omitempty"`
	GeofenceRadiusM *float64   `db:"geofence_radius_m" json:"geofence_radius_m,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// Geofence returns the configured circle. The second result is false when the
// round has geofencing enabled but the stored center or radius is unusable.
func (r *Round) Geofence() (lat, lon, radiusM float64, ok bool) {
	if r.GeofenceLat == nil || r.GeofenceLon == nil || r.GeofenceRadiusM == nil {
		return 0, 0, 0, false
	}
	lat, lon, radiusM = *r.GeofenceLat, *r.GeofenceLon, *r.GeofenceRadiusM
	if radiusM <= 0 || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, 0, false
	}
	return lat, lon, radiusM, true
}

// GeofenceOpts configures an optional geofence when opening a round.
type GeofenceOpts struct {
	Lat     float64 `json:"lat" validate:"min=-90,max=90"`
	Lon     float64 `json:"lon" validate:"min=-180,max=180"`
	RadiusM float64 `json:"radius_m" validate:"gt=0"`
}

// SessionSummary carries aggregate totals for a session, published with the
// session-ended event and served to the professor's live view.
type SessionSummary struct {
	SessionID       string         `json:"session_id"`
	Status          SessionStatus  `json:"status"`
	RoundCount      int            `json:"round_count"`
	AttendanceCount int            `json:"attendance_count"`
	Rounds          []RoundSummary `json:"rounds,omitempty"`
}

// RoundSummary aggregates per-round attendance counts.
type RoundSummary struct {
	RoundID     string `db:"round_id" json:"round_id"`
	RoundNumber int    `db:"round_number" json:"round_number"`
	OnTime      int    `db:"on_time" json:"on_time"`
	Late        int    `db:"late" json:"late"`
	Excused     int    `db:"excused" json:"excused"`
}

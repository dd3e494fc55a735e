package models

import "time"

// User is an authenticated account, as returned by /auth/me.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is an opaque bearer token bound to a user.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthProfile holds a user's declared health data from onboarding. The
// scoring core never reads this; the server cross-references it against
// detected allergens after a scan.
type HealthProfile struct {
	UserID            string    `json:"user_id"`
	Age               int       `json:"age,omitempty"`
	Diet              string    `json:"diet,omitempty"`
	Allergies         []string  `json:"allergies"`
	MedicalConditions []string  `json:"medical_conditions"`
	Medications       []string  `json:"medications"`
	Lifestyle         string    `json:"lifestyle,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

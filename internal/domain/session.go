package domain

import (
	"time"
)

type SessionState string

const (
	StateNoSession         SessionState = "no-session"
	StateTrialActive       SessionState = "trial-active"
	StateDowngradePending  SessionState = "trial-expired-downgrade-pending"
	StateActive            SessionState = "active"
	StateProfileIncomplete SessionState = "profile-incomplete"
)

// Ready reports whether the session may proceed into the app.
func (s SessionState) Ready() bool {
	return s == StateActive || s == StateTrialActive
}

// UserData is the session summary kept under the userData cache key.
type UserData struct {
	Identity       string     `json:"email"`
	MembershipTier Tier       `json:"membershipType"`
	ProfileStatus  string     `json:"profileStatus,omitempty"`
	HasPaid        bool       `json:"hasPaid"`
	TrialEndsAt    *time.Time `json:"trialEndsAt"`
}

// TrialExpired reports whether an unpaid trial has run out at now.
func (u UserData) TrialExpired(now time.Time) bool {
	return !u.HasPaid && u.TrialEndsAt != nil && now.After(*u.TrialEndsAt)
}

type Session struct {
	State       SessionState `json:"state"`
	Identity    string       `json:"email,omitempty"`
	Tier        Tier         `json:"membershipType,omitempty"`
	HasPaid     bool         `json:"hasPaid"`
	TrialEndsAt *time.Time   `json:"trialEndsAt,omitempty"`
	Downgraded  bool         `json:"downgraded"`
	Missing     []string     `json:"missing,omitempty"`
	Profile     *Profile     `json:"profile,omitempty"`
}

// DowngradeLog is appended to the audit collection whenever a trial lapses.
type DowngradeLog struct {
	ID       string    `json:"id"`
	Identity string    `json:"email"`
	Date     time.Time `json:"date"`
	Reason   string    `json:"reason"`
	FromTier Tier      `json:"fromTier"`
}

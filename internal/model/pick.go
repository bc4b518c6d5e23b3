package model

import "time"

// Pick is a scan hit the user confirmed for later outcome verification.
type Pick struct {
	Symbol          string
	DisplayName     string
	RegisteredDate  time.Time // date granularity, midnight local time
	RegisteredPrice float64
}

// Verification is the realized outcome of one pick. It is never written back.
type Verification struct {
	Pick        Pick
	LatestClose float64
	MaxHigh     float64
	ChangePct   float64
	UpsidePct   float64
	DaysHeld    int
}

// Unverifiable records a pick whose history could not be obtained.
type Unverifiable struct {
	Pick   Pick
	Reason string
}

// VerificationReport is the ephemeral result of re-checking picks.
type VerificationReport struct {
	GeneratedAt  time.Time
	Rows         []Verification
	Unverifiable []Unverifiable
}

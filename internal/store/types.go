package store

import "time"

// Run is one recorded analysis run and its summary counts.
type Run struct {
	ID         int64
	StartedAt  time.Time
	Duration   time.Duration
	ConfigHash string
	Root       string
	Files      int
	Findings   int
	New        int
	Suppressed int
	Baselined  int
	Tooling    int
}

// Package uuidv7 generates the time-ordered identifiers assigned to stock
// records.
package uuidv7

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// NewString returns a fresh UUIDv7 in canonical form. It panics if the
// system random source fails.
func NewString() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Sequence returns a generator of predictable identifiers
// (prefix-000001, prefix-000002, ...). Safe for concurrent use.
func Sequence(prefix string) func() string {
	var n atomic.Uint64
	return func() string {
		return fmt.Sprintf("%s-%06d", prefix, n.Add(1))
	}
}

// Time extracts the creation instant embedded in a UUIDv7 string. ok is
// false for anything that is not a version 7 UUID.
func Time(id string) (t time.Time, ok bool) {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.Version() != 7 {
		return time.Time{}, false
	}
	sec, nsec := parsed.Time().UnixTime()
	return time.Unix(sec, nsec).UTC(), true
}

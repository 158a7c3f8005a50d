// Package apiversion models the API version argument passed along every request of an episode and
// the per-process "configured version" a dependent reports from its /config route.
package apiversion

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
)

// QueryParam is the query parameter carrying the version on every hop.
const QueryParam = "api_version"

// Nominal is the first version that runs without injected latency.
const Nominal Version = 2

// Legacy is the version pinned by the find_* routes.
const Legacy Version = 1

var ErrInvalidVersion = errors.New("invalid api_version")

// Version is an API version. Valid values are >= 1.
type Version int

// Degraded reports whether v selects the degraded latency policy.
func (v Version) Degraded() bool {
	return v < Nominal
}

func (v Version) String() string {
	return strconv.Itoa(int(v))
}

// Parse converts a raw parameter into a Version. Empty, non-integer and < 1 values are rejected.
func Parse(raw string) (Version, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: missing", ErrInvalidVersion)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidVersion, raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %d is below 1", ErrInvalidVersion, n)
	}
	return Version(n), nil
}

// FromRequest reads the version query parameter. ok is false when the parameter is absent;
// a present but malformed value returns ErrInvalidVersion.
func FromRequest(r *http.Request) (v Version, ok bool, err error) {
	values, present := r.URL.Query()[QueryParam]
	if !present {
		return 0, false, nil
	}
	raw := ""
	if len(values) > 0 {
		raw = values[0]
	}
	v, err = Parse(raw)
	if err != nil {
		return 0, true, err
	}
	return v, true, nil
}

// State is the version a service is currently configured with. Reads always observe the most
// recently completed Set.
type State struct {
	v atomic.Int64
}

func NewState(initial Version) *State {
	s := &State{}
	s.v.Store(int64(initial))
	return s
}

func (s *State) Get() Version {
	return Version(s.v.Load())
}

// Set stores v and returns the previous version.
func (s *State) Set(v Version) Version {
	return Version(s.v.Swap(int64(v)))
}

package util

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrMissingJobRef is returned when no job id can be found in the argument.
var ErrMissingJobRef = errors.New("no job id given")

var (
	jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
	jobIDParams  = []string{"session_id", "job_id", "id"}
	// Page and API segments that are never ids.
	routeWords = map[string]bool{"progress": true, "status": true, "api": true, "process": true}
)

// ParseJobRef extracts a job id from a bare id, or from a URL carrying it in
// a session_id, job_id or id query parameter or as its last path segment.
func ParseJobRef(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingJobRef
	}

	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		q := u.Query()
		for _, key := range jobIDParams {
			if v := strings.TrimSpace(q.Get(key)); v != "" {
				return validJobID(v)
			}
		}
		segs := strings.Split(strings.Trim(u.Path, "/"), "/")
		if last := segs[len(segs)-1]; last != "" && !routeWords[strings.ToLower(last)] {
			return validJobID(last)
		}
		return "", fmt.Errorf("%w in %q", ErrMissingJobRef, raw)
	}
	return validJobID(raw)
}

func validJobID(id string) (string, error) {
	if !jobIDPattern.MatchString(id) {
		return "", fmt.Errorf("invalid job id %q", id)
	}
	return id, nil
}

package store

// Session carries the per-request identity state. The engine runs
// single-threaded within one session; a Session must not be shared
// between goroutines.
//
// The principal can be substituted for the duration of a scoped
// operation with PushPrincipal; the returned restore function must run
// on every exit path (use defer) so that a substituted identity never
// leaks into subsequent operations on the same session.
type Session struct {
	principals []string
}

// NewSession creates a session for the given principal. An empty href
// creates an unauthenticated session.
func NewSession(principalHref string) *Session {
	return &Session{principals: []string{principalHref}}
}

// Principal returns the session's current principal href, or "" when
// unauthenticated.
func (s *Session) Principal() string {
	if s == nil || len(s.principals) == 0 {
		return ""
	}
	return s.principals[len(s.principals)-1]
}

// PushPrincipal substitutes the session identity and returns a restore
// function. Restoring twice is a no-op.
func (s *Session) PushPrincipal(href string) (restore func()) {
	s.principals = append(s.principals, href)
	restored := false
	return func() {
		if restored {
			return
		}
		restored = true
		s.principals = s.principals[:len(s.principals)-1]
	}
}

// CacheKey returns the principal component of cache keys, "*" for
// unauthenticated sessions.
func (s *Session) CacheKey() string {
	if p := s.Principal(); p != "" {
		return p
	}
	return "*"
}

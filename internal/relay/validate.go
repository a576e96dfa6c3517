package relay

import "regexp"

// eventIDPattern also governs pcid, which is drawn from the same grammar.
var eventIDPattern = regexp.MustCompile(`^[a-z0-9-]{3,32}$`)

var sidPattern = regexp.MustCompile(`^[A-Za-z0-9]{10}$`)

// ValidEventID reports whether id is a legal event/pcid identifier.
func ValidEventID(id string) bool {
	return eventIDPattern.MatchString(id)
}

// ValidSID reports whether sid is a legal 10-character session identifier.
func ValidSID(sid string) bool {
	return sidPattern.MatchString(sid)
}

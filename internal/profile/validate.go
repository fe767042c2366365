package profile

import (
	"fmt"
	"regexp"
)

var idRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateID checks that a server-assigned user id is safe to use as a
// partition directory name.
func ValidateID(id string) error {
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid user id %q: must match ^[A-Za-z0-9_-]{1,64}$", id)
	}
	return nil
}

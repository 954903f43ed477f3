package tenant

import (
	"fmt"
	"regexp"
)

var idRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateID checks that id conforms to tenant id rules.
func ValidateID(id string) error {
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid tenant id %q: must match ^[A-Za-z0-9_-]{1,64}$", id)
	}
	return nil
}

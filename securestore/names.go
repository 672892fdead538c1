package securestore

import (
	"fmt"

	"github.com/attestify/keybox-provisioner/interfaces"
)

// validateRecordName enforces the record naming contract shared by every
// backend: non-empty, at most interfaces.MaxRecordNameLen bytes, and drawn
// from a charset that cannot escape a file-backed store or break an object
// key.
func validateRecordName(name string) error {
	if name == "" || len(name) > interfaces.MaxRecordNameLen {
		return fmt.Errorf("%w: %q", interfaces.ErrInvalidRecordName, name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q", interfaces.ErrInvalidRecordName, name)
	}
	for i := 0; i < len(name); i++ {
		switch c := name[i]; {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return fmt.Errorf("%w: %q", interfaces.ErrInvalidRecordName, name)
		}
	}
	return nil
}

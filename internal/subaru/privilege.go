package subaru

import "os"

// geteuid is a seam for tests; everything else goes through requireRoot.
var geteuid = os.Geteuid

// requireRoot gates operations that write the installed database.
func requireRoot() error {
	if geteuid() != 0 {
		return ErrNotRoot
	}
	return nil
}

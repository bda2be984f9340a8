//go:build !darwin

package capture

type openPermissions struct{}

// SystemPermissions returns a gate that allows everything. Non-darwin
// platforms have no TCC-style prompt to consult.
func SystemPermissions() Permissions {
	return openPermissions{}
}

func (openPermissions) Ensure(PermissionKind) error { return nil }

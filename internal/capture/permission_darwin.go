//go:build darwin

package capture

import (
	macgo "github.com/tmc/macgo"
)

type macPermissions struct{}

// SystemPermissions returns the macOS permission gate backed by TCC.
func SystemPermissions() Permissions {
	return macPermissions{}
}

func (macPermissions) Ensure(kind PermissionKind) error {
	var perm macgo.Permission
	switch kind {
	case PermissionScreen:
		perm = macgo.ScreenRecording
	case PermissionCamera:
		perm = macgo.Camera
	case PermissionMicrophone:
		perm = macgo.Microphone
	default:
		return nil
	}
	if err := macgo.Request(perm); err != nil {
		return &PermissionError{Kind: kind}
	}
	return nil
}

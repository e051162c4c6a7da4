//go:build purego

package backend

// NativeAvailable reports whether this build includes the native backend.
const NativeAvailable = false

func newNative(Params) (Backend, error) {
	return nil, ErrNativeUnavailable
}

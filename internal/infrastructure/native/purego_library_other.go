//go:build !darwin && !linux

package native

import "errors"

// PuregoLibrary is only available on darwin and linux.
type PuregoLibrary struct {
	Library
}

func LoadLibrary(path string) (*PuregoLibrary, error) {
	return nil, errors.New("engine library loading is not supported on this platform")
}

func (l *PuregoLibrary) Close() error { return nil }

func (l *PuregoLibrary) Path() string { return "" }

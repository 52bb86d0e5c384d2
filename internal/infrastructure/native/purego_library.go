//go:build darwin || linux

package native

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

// PuregoLibrary binds the engine's C shim (librtc_sender) at runtime.
type PuregoLibrary struct {
	handle uintptr
	path   string

	initialize               func(fieldTrials uintptr, nativeLogging int32) int32
	shutdown                 func() int32
	alloc                    func(size uint64) uintptr
	free                     func(ptr uintptr)
	getCapabilities          func(kind uint32, out, outLen uintptr) int32
	getParameters            func(sender uint64, out, outLen uintptr) int32
	setParameters            func(sender uint64, buf uintptr, length uint64) int32
	getDegradationPreference func(sender uint64, out uintptr) int32
	setDegradationPreference func(sender uint64, pref int32) int32
	replaceTrack             func(sender, track uint64) int32
	getTrack                 func(sender uint64, out, outLen uintptr) int32
	releaseSender            func(sender uint64) int32
	lastError                func() uintptr
}

var symbols = []string{
	"rtc_initialize",
	"rtc_shutdown",
	"rtc_alloc",
	"rtc_free",
	"rtc_sender_get_capabilities",
	"rtc_sender_get_parameters",
	"rtc_sender_set_parameters",
	"rtc_sender_get_degradation_preference",
	"rtc_sender_set_degradation_preference",
	"rtc_sender_replace_track",
	"rtc_sender_get_track",
	"rtc_sender_release",
	"rtc_last_error",
}

// LoadLibrary opens the shim at path, or searches the usual locations when
// path is empty.
func LoadLibrary(path string) (*PuregoLibrary, error) {
	paths := []string{path}
	if path == "" {
		paths = libraryPaths()
	}

	var lastErr error
	for _, p := range paths {
		handle, err := purego.Dlopen(p, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		lib := &PuregoLibrary{handle: handle, path: p}
		if err := lib.bind(); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		return lib, nil
	}
	return nil, fmt.Errorf("failed to load engine library: %w", lastErr)
}

func libraryPaths() []string {
	libName := "librtc_sender.so"
	if runtime.GOOS == "darwin" {
		libName = "librtc_sender.dylib"
	}

	var paths []string
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, libName),
			filepath.Join(exeDir, "..", "lib", libName),
		)
	}
	if wd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(wd, "build", libName))
	}

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths, libName, "/usr/local/lib/"+libName, "/opt/homebrew/lib/"+libName)
	case "linux":
		paths = append(paths, libName, "/usr/local/lib/"+libName, "/usr/lib/"+libName)
	}
	return paths
}

func (l *PuregoLibrary) bind() error {
	for _, name := range symbols {
		if _, err := purego.Dlsym(l.handle, name); err != nil {
			return fmt.Errorf("%s: missing symbol %s: %w", l.path, name, err)
		}
	}

	purego.RegisterLibFunc(&l.initialize, l.handle, "rtc_initialize")
	purego.RegisterLibFunc(&l.shutdown, l.handle, "rtc_shutdown")
	purego.RegisterLibFunc(&l.alloc, l.handle, "rtc_alloc")
	purego.RegisterLibFunc(&l.free, l.handle, "rtc_free")
	purego.RegisterLibFunc(&l.getCapabilities, l.handle, "rtc_sender_get_capabilities")
	purego.RegisterLibFunc(&l.getParameters, l.handle, "rtc_sender_get_parameters")
	purego.RegisterLibFunc(&l.setParameters, l.handle, "rtc_sender_set_parameters")
	purego.RegisterLibFunc(&l.getDegradationPreference, l.handle, "rtc_sender_get_degradation_preference")
	purego.RegisterLibFunc(&l.setDegradationPreference, l.handle, "rtc_sender_set_degradation_preference")
	purego.RegisterLibFunc(&l.replaceTrack, l.handle, "rtc_sender_replace_track")
	purego.RegisterLibFunc(&l.getTrack, l.handle, "rtc_sender_get_track")
	purego.RegisterLibFunc(&l.releaseSender, l.handle, "rtc_sender_release")
	purego.RegisterLibFunc(&l.lastError, l.handle, "rtc_last_error")
	return nil
}

// Close unloads the shim. The engine must be shut down first.
func (l *PuregoLibrary) Close() error {
	return purego.Dlclose(l.handle)
}

func (l *PuregoLibrary) Path() string {
	return l.path
}

func (l *PuregoLibrary) Initialize(fieldTrials *string, nativeLogging bool) Status {
	var logging int32
	if nativeLogging {
		logging = 1
	}
	if fieldTrials == nil {
		return Status(l.initialize(0, logging))
	}

	cstr := append([]byte(*fieldTrials), 0)
	status := l.initialize(uintptr(unsafe.Pointer(&cstr[0])), logging)
	runtime.KeepAlive(cstr)
	return Status(status)
}

func (l *PuregoLibrary) Shutdown() Status {
	return Status(l.shutdown())
}

func (l *PuregoLibrary) Alloc(size int) (Buffer, Status) {
	ptr := l.alloc(uint64(size))
	if ptr == 0 {
		return nil, StatusError
	}
	return &cBuffer{lib: l, ptr: ptr, size: size}, StatusOK
}

func (l *PuregoLibrary) SenderCapabilities(kind uint32) (Buffer, Status) {
	return l.out(func(out, outLen uintptr) int32 { return l.getCapabilities(kind, out, outLen) })
}

func (l *PuregoLibrary) SenderParameters(sender uint64) (Buffer, Status) {
	return l.out(func(out, outLen uintptr) int32 { return l.getParameters(sender, out, outLen) })
}

func (l *PuregoLibrary) SetSenderParameters(sender uint64, params Buffer) Status {
	cb, ok := params.(*cBuffer)
	if !ok || cb.lib != l {
		return StatusInvalidParameter
	}
	return Status(l.setParameters(sender, cb.ptr, uint64(cb.size)))
}

func (l *PuregoLibrary) SenderDegradationPreference(sender uint64) (int32, Status) {
	var pref int32
	status := l.getDegradationPreference(sender, uintptr(unsafe.Pointer(&pref)))
	runtime.KeepAlive(&pref)
	return pref, Status(status)
}

func (l *PuregoLibrary) SetSenderDegradationPreference(sender uint64, pref int32) Status {
	return Status(l.setDegradationPreference(sender, pref))
}

func (l *PuregoLibrary) SenderReplaceTrack(sender uint64, track uint64) Status {
	return Status(l.replaceTrack(sender, track))
}

func (l *PuregoLibrary) SenderTrack(sender uint64) (Buffer, Status) {
	return l.out(func(out, outLen uintptr) int32 { return l.getTrack(sender, out, outLen) })
}

func (l *PuregoLibrary) ReleaseSender(sender uint64) Status {
	return Status(l.releaseSender(sender))
}

func (l *PuregoLibrary) LastError() string {
	return goStringFromPtr(l.lastError())
}

// out runs a getter that reports its result through (uint8_t**, uint64_t*)
// out-params. The pointer is only trusted when the status is OK.
func (l *PuregoLibrary) out(call func(out, outLen uintptr) int32) (Buffer, Status) {
	var ptr uintptr
	var size uint64
	status := Status(call(uintptr(unsafe.Pointer(&ptr)), uintptr(unsafe.Pointer(&size))))
	runtime.KeepAlive(&ptr)
	runtime.KeepAlive(&size)

	if status != StatusOK {
		return nil, status
	}
	if ptr == 0 {
		return nil, StatusError
	}
	return &cBuffer{lib: l, ptr: ptr, size: int(size)}, StatusOK
}

// cBuffer is memory from rtc_alloc or returned by a getter; both are
// returned with rtc_free.
type cBuffer struct {
	lib      *PuregoLibrary
	ptr      uintptr
	size     int
	released atomic.Bool
}

func (b *cBuffer) Bytes() []byte {
	if b.released.Load() || b.size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(b.ptr)), b.size)
}

func (b *cBuffer) Release() {
	if b.released.CompareAndSwap(false, true) {
		b.lib.free(b.ptr)
	}
}

const maxCStringLen = 4096

func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	var n int
	for n < maxCStringLen && *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}

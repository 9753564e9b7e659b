package dylib

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"unsafe"
)

// Exported symbol names every plugin library must provide.
const (
	SymbolProtocolVersion = "llx_plugin_protocol_version"
	SymbolHandleRequest   = "llx_plugin_handle_request"
	SymbolFreeResponse    = "llx_plugin_free_response"
)

// MaxResponseSize bounds the response length the host accepts from a plugin.
const MaxResponseSize = 64 << 20

var (
	// ErrMissingSymbol means a required entry point is not exported by the library.
	ErrMissingSymbol = errors.New("missing required symbol")
	// ErrClosed is returned by calls on a closed library.
	ErrClosed = errors.New("library is closed")
	// ErrNullResponse means the plugin returned a NULL response buffer.
	ErrNullResponse = errors.New("plugin returned a null response buffer")
	// ErrEmptyResponse means the plugin returned a zero-length response buffer.
	ErrEmptyResponse = errors.New("plugin returned an empty response buffer")
	// ErrResponseTooLarge means the response exceeded MaxResponseSize.
	ErrResponseTooLarge = errors.New("plugin response exceeds size limit")
	// ErrUnsupportedPlatform is returned where dynamic loading is not implemented.
	ErrUnsupportedPlatform = errors.New("dynamic plugin loading is not supported on " + runtime.GOOS)
)

// OpenError reports a failure to open a library or bind one of its symbols.
type OpenError struct {
	Path   string
	Symbol string
	Err    error
}

func (e *OpenError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("dylib: %s: symbol %s: %v", e.Path, e.Symbol, e.Err)
	}
	return fmt.Sprintf("dylib: open %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// CallError reports a fault raised while control was inside a foreign call.
type CallError struct {
	Symbol string
	Panic  any
}

func (e *CallError) Error() string {
	return fmt.Sprintf("dylib: fault in %s: %v", e.Symbol, e.Panic)
}

// Library is one opened plugin library. It is not safe for concurrent calls;
// callers serialize access.
type Library struct {
	path   string
	handle uintptr

	protocolVersion func() uint32
	handleRequest   func(req *byte, reqLen uintptr, respLen *uintptr) unsafe.Pointer
	freeResponse    func(resp unsafe.Pointer, respLen uintptr)
}

// Open loads the library at path and binds the three contract symbols.
func Open(path string) (lib *Library, err error) {
	handle, err := loadLibrary(path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	defer func() {
		if err != nil {
			_ = releaseLibrary(handle)
		}
	}()

	lib = &Library{path: path, handle: handle}
	symbols := []struct {
		name string
		fptr any
	}{
		{SymbolProtocolVersion, &lib.protocolVersion},
		{SymbolHandleRequest, &lib.handleRequest},
		{SymbolFreeResponse, &lib.freeResponse},
	}
	for _, sym := range symbols {
		addr, lookupErr := librarySymbol(handle, sym.name)
		if lookupErr != nil || addr == 0 {
			return nil, &OpenError{Path: path, Symbol: sym.name, Err: ErrMissingSymbol}
		}
		if bindErr := bind(sym.fptr, addr); bindErr != nil {
			return nil, &OpenError{Path: path, Symbol: sym.name, Err: bindErr}
		}
	}
	return lib, nil
}

// bind registers a Go function variable for a native address, converting a
// registration panic into an error.
func bind(fptr any, addr uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bind: %v", r)
		}
	}()
	registerFunc(fptr, addr)
	return nil
}

// Path returns the file the library was opened from.
func (l *Library) Path() string {
	return l.path
}

// ProtocolVersion calls the library's version entry point.
func (l *Library) ProtocolVersion() (v uint32, err error) {
	if l.protocolVersion == nil {
		return 0, ErrClosed
	}
	defer contain(SymbolProtocolVersion, &err)()
	return l.protocolVersion(), nil
}

// Call hands req to the plugin and returns a copy of its response. The plugin's
// buffer is released through llx_plugin_free_response before Call returns,
// whatever the outcome.
func (l *Library) Call(req []byte) (resp []byte, err error) {
	if l.handleRequest == nil {
		return nil, ErrClosed
	}
	defer contain(SymbolHandleRequest, &err)()

	var reqPtr *byte
	if len(req) > 0 {
		reqPtr = &req[0]
	}
	var n uintptr
	ptr := l.handleRequest(reqPtr, uintptr(len(req)), &n)
	runtime.KeepAlive(req)

	if ptr == nil {
		return nil, ErrNullResponse
	}
	defer l.freeResponse(ptr, n)

	switch {
	case n == 0:
		return nil, ErrEmptyResponse
	case n > MaxResponseSize:
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseTooLarge, n)
	}

	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(ptr), int(n)))
	return out, nil
}

// Close unloads the library. Callers must guarantee no call is in flight.
func (l *Library) Close() error {
	if l.handleRequest == nil {
		return nil
	}
	l.protocolVersion = nil
	l.handleRequest = nil
	l.freeResponse = nil
	if l.handle == 0 {
		return nil
	}
	err := releaseLibrary(l.handle)
	l.handle = 0
	return err
}

// contain turns a panic, including a memory fault raised while executing Go code
// on behalf of the foreign call, into a CallError stored in *errp.
func contain(symbol string, errp *error) func() {
	prev := debug.SetPanicOnFault(true)
	return func() {
		debug.SetPanicOnFault(prev)
		if r := recover(); r != nil {
			*errp = &CallError{Symbol: symbol, Panic: r}
		}
	}
}

//go:build windows

package zet

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"golang.org/x/sys/windows"
)

type dll struct {
	procs [numProcs]*windows.LazyProc
}

func loadLibrary() (library, error) {
	d := windows.NewLazyDLL(LibraryName)
	if err := d.Load(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", LibraryName, err)
	}
	l := &dll{}
	for i := range l.procs {
		l.procs[i] = d.NewProc(procNames[i])
	}
	return l, nil
}

func (l *dll) call(p proc, args ...interface{}) (int32, error) {
	lp := l.procs[p]
	if err := lp.Find(); err != nil {
		return 0, fmt.Errorf("%s: %w", p, err)
	}
	a := make([]uintptr, 0, len(args)+2)
	for _, arg := range args {
		var err error
		a, err = appendArg(a, arg)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", p, err)
		}
	}
	r, _, _ := lp.Call(a...)
	runtime.KeepAlive(args)
	return int32(r), nil
}

// appendArg converts one argument to its stdcall representation.
// Doubles are passed by bit pattern; on amd64 the runtime mirrors the first
// four integer registers into XMM0-3, on 386 a double occupies two slots
func appendArg(a []uintptr, arg interface{}) ([]uintptr, error) {
	switch v := arg.(type) {
	case int32:
		return append(a, uintptr(v)), nil
	case uint32:
		return append(a, uintptr(v)), nil
	case float64:
		bits := math.Float64bits(v)
		if unsafe.Sizeof(uintptr(0)) == 4 {
			return append(a, uintptr(uint32(bits)), uintptr(uint32(bits>>32))), nil
		}
		return append(a, uintptr(bits)), nil
	case *int32:
		return append(a, uintptr(unsafe.Pointer(v))), nil
	case *uint32:
		return append(a, uintptr(unsafe.Pointer(v))), nil
	case *float64:
		return append(a, uintptr(unsafe.Pointer(v))), nil
	case *uintptr:
		return append(a, uintptr(unsafe.Pointer(v))), nil
	case []byte:
		if len(v) == 0 {
			return append(a, 0), nil
		}
		return append(a, uintptr(unsafe.Pointer(&v[0]))), nil
	default:
		return a, fmt.Errorf("unsupported argument type %T", arg)
	}
}

// wordsAt views driver memory as a slice of 16-bit words
func wordsAt(ptr uintptr, n int) []int16 {
	if ptr == 0 || n <= 0 {
		return nil
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(ptr)), n)
}

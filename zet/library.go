package zet

import "sync"

// LibraryName is the file name of the vendor library
const LibraryName = "Zadc.dll"

// library invokes driver procedures.  Arguments may be int32, uint32,
// float64, *int32, *uint32, *float64, *uintptr or []byte (passed as a pointer
// to its first element).  The returned status is zero on success
type library interface {
	call(p proc, args ...interface{}) (int32, error)
}

var (
	libOnce   sync.Once
	libShared library
	libErr    error
)

// sharedLibrary loads the vendor library once per process
func sharedLibrary() (library, error) {
	libOnce.Do(func() {
		libShared, libErr = loadLibrary()
	})
	return libShared, libErr
}

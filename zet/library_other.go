//go:build !windows

package zet

func loadLibrary() (library, error) {
	return nil, ErrUnsupportedPlatform
}

func wordsAt(ptr uintptr, n int) []int16 {
	return nil
}

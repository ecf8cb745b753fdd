//go:build !unix

package execmem

// Without mmap the protection state is tracked by Region alone.

func pageSize() int {
	return 4096
}

func sysAlloc(n int) ([]byte, error) {
	return make([]byte, n), nil
}

func sysProtect(b []byte, exec bool) error {
	return nil
}

func sysFree(b []byte) error {
	return nil
}

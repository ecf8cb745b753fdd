//go:build unix

package execmem

import "golang.org/x/sys/unix"

func pageSize() int {
	return unix.Getpagesize()
}

func sysAlloc(n int) ([]byte, error) {
	return unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func sysProtect(b []byte, exec bool) error {
	if exec {
		return unix.Mprotect(b, unix.PROT_READ|unix.PROT_EXEC)
	}
	return unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE)
}

func sysFree(b []byte) error {
	return unix.Munmap(b)
}

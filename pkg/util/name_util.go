package util

import (
	"strings"

	"golang.org/x/sys/unix"

	"Netshape/pkg/tcerr"
)

// CheckInterfaceName applies the kernel's rules for interface names.
func CheckInterfaceName(name string) error {
	switch {
	case name == "":
		return tcerr.Invalid("interface name", name, "must not be empty")
	case name == "." || name == "..":
		return tcerr.Invalid("interface name", name, "is reserved")
	case strings.ContainsAny(name, "/: \t\n"):
		return tcerr.Invalid("interface name", name, "must not contain '/', ':' or whitespace")
	case len(name) > unix.IFNAMSIZ-1:
		return &tcerr.NameTooLongError{Name: name, Limit: unix.IFNAMSIZ - 1}
	}
	return nil
}

//go:build !unix

package sfdb

import (
	"errors"
	"os"
)

func flockTry(f *os.File, exclusive bool) (bool, error) {
	return false, errors.ErrUnsupported
}

func funlock(f *os.File) error {
	return errors.ErrUnsupported
}

//go:build !sqlite

package storage

import (
	"errors"

	"cronshift/pkg/logx"
)

// newSQLiteStore without the sqlite tag only explains how to get it.
func newSQLiteStore(Config, logx.Logger) (Store, error) {
	return nil, errors.New(`storage driver "sqlite" requires building with -tags sqlite`)
}

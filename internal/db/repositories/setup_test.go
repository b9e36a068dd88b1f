package repositories

import "errors"

// errDB is the generic database failure used across repository tests.
var errDB = errors.New("db failure")

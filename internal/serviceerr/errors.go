package serviceerr

import "errors"

var ErrNotFound = errors.New("not found")
var ErrInvalidSession = errors.New("invalid session")
var ErrNoRefreshToken = errors.New("no refresh token")
var ErrSessionExpired = errors.New("session expired, please log in again")
var ErrUnknownUserCategory = errors.New("unknown user category")
var ErrUnknownStorageType = errors.New("unknown storage type")

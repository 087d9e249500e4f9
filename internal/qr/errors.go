package qr

import "errors"

// ErrMalformedPayload is returned when a scanned string does not match the
// {role}/{subject}/{vaccine} shape. Recoverable by rescanning.
var ErrMalformedPayload = errors.New("payload does not match expected scan format")

package elgamal

import "fmt"

// ErrOdevitySearchExhausted is returned when no encoding key with the
// requested x coordinate parity was found within MaxOdevityAttempts.
var ErrOdevitySearchExhausted = fmt.Errorf("odevity search exhausted")

// ErrInvalidPrivateKey is returned when decrypting with an empty key.
var ErrInvalidPrivateKey = fmt.Errorf("invalid private key")

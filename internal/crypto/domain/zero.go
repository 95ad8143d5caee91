package domain

// Zero overwrites key material in place. Callers zero master keys, shares,
// and plaintext buffers as soon as they are done with them.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

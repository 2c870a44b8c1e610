package strtab

import "encoding/base64"

// EncodeBase64 and DecodeBase64 supplement the original implementation's
// src/base64.c, which spec.md §8 names as a testable round-trip property
// ("Base64 encode/decode round-trips arbitrary byte sequences") without
// assigning it to a component. The original keeps base64 as a small
// standalone module alongside the core rather than gating it behind an
// external-collaborator interface the way fs/fetch are (SPEC_FULL.md §12),
// so it lives here next to the rest of the byte-level string utilities.
// Nothing outside this package's tests calls it.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

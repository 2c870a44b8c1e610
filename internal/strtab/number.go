package strtab

import "github.com/joeycumines/go-utilpkg/jsonenc"

// FormatFloat implements the ECMAScript ToString coercion for numbers
// ("3" for eval("1+2"), "NaN"/"Infinity"/"-Infinity" for the non-finite
// cases), by way of jsonenc's own NaN/Inf handling and float formatting
// (spec.md §8 seed scenario 1 requires str(3) == "3"). jsonenc quotes its
// three special-case strings for JSON-string-literal use; we strip those
// quotes since a bare JS number-to-string coercion is not itself a JSON
// string.
func FormatFloat(f float64) string {
	out := jsonenc.AppendFloat64(nil, f)
	if len(out) >= 2 && out[0] == '"' && out[len(out)-1] == '"' {
		out = out[1 : len(out)-1]
	}
	return string(out)
}

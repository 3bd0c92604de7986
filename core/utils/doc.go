// Package utils holds the value conversions shared by the catalog loader, the
// record decoder and the CLI: loosely typed driver or JSON values into int64,
// string and bool, plus comma separated flag parsing.
package utils

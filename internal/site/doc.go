// Package site resolves the analytics configuration for a hostname. A Table is
// an ordered list of hostname patterns; lookup prefers the localhost carve-out,
// then an exact match, then the first pattern contained in the hostname, then
// the table's fallback.
package site

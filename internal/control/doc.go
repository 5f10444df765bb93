// Package control implements the line-oriented operator surface.
//
// ParseCommand turns one input line into a Command. Shell reads lines from an
// io.Reader, forwards each command to a Target (the supervisor), and prints
// replies. End of input is treated as quit. Unknown or malformed lines are
// ignored.
package control

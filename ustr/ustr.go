// Package ustr implements the small path/string type the directory and
// path-resolution code is built on, adapted from the teacher's ustr
// package (biscuit/src/ustr/ustr.go).
package ustr

import "golang.org/x/text/unicode/norm"

// Ustr is an immutable path or name used by the directory layer.
type Ustr []byte

// MkUstr creates an empty Ustr.
func MkUstr() Ustr { return Ustr{} }

// MkUstrRoot returns a Ustr for the root directory "/".
func MkUstrRoot() Ustr { return Ustr("/") }

// MkUstrDot returns a Ustr representing ".".
func MkUstrDot() Ustr { return Ustr(".") }

// DotDot is a reusable Ustr containing "..".
var DotDot = Ustr("..")

// Isdot reports whether the string equals ".".
func (us Ustr) Isdot() bool { return len(us) == 1 && us[0] == '.' }

// Isdotdot reports whether the string equals "..".
func (us Ustr) Isdotdot() bool { return len(us) == 2 && us[0] == '.' && us[1] == '.' }

// Eq compares two Ustr values for equality.
func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i, v := range us {
		if v != s[i] {
			return false
		}
	}
	return true
}

// IsAbsolute reports whether the path begins with '/'.
func (us Ustr) IsAbsolute() bool {
	return len(us) > 0 && us[0] == '/'
}

// String converts the Ustr to a Go string.
func (us Ustr) String() string { return string(us) }

// Extend appends '/' and p to the current Ustr and returns the result.
func (us Ustr) Extend(p Ustr) Ustr {
	tmp := make(Ustr, len(us))
	copy(tmp, us)
	r := append(tmp, '/')
	return append(r, p...)
}

// ExtendStr appends '/' and the string p.
func (us Ustr) ExtendStr(p string) Ustr { return us.Extend(Ustr(p)) }

// Tokens splits the path on '/', dropping empty components (so repeated or
// trailing slashes don't produce spurious tokens). This is the tokenizer
// spec.md §4.3's path resolution walks over.
func (us Ustr) Tokens() []Ustr {
	var toks []Ustr
	start := -1
	for i, c := range us {
		if c == '/' {
			if start >= 0 {
				toks = append(toks, us[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		toks = append(toks, us[start:])
	}
	return toks
}

// Normalize returns the NFC-normalized form of the name, used before a
// name is written into a fixed NAME_MAX directory slot so that visually
// identical names compare equal (spec.md §4.3's dir_add/dir_remove name
// comparisons).
func Normalize(name Ustr) Ustr {
	return Ustr(norm.NFC.Bytes([]byte(name)))
}

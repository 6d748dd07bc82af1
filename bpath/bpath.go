// Package bpath canonicalizes slash-separated paths before they reach the
// file system's path resolver. The teacher's bpath package carried no code
// (a stub module in the retrieval pack); the name is reused here for the
// concern fd.Cwd_t already names it for: folding "." and ".." components
// and collapsing repeated slashes, the same normalization xv6's namex
// (original_source/xv6-riscv-riscv/kernel/fs.c) performs one component at
// a time as it walks rather than as a separate pass.
package bpath

import "github.com/nicemissing/xv6/ustr"

// Canonicalize collapses "." and ".." components and repeated slashes in
// p. An absolute p yields an absolute path and a relative p stays
// relative; a result with no components becomes "/". It does not consult the
// file system, so a ".." past a symlink or a nonexistent directory is not
// detected here -- namex (fs.Namei) is the authority on whether the
// resulting path actually resolves.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	abs := p.IsAbsolute()
	parts := split(p)
	stack := make([]ustr.Ustr, 0, len(parts))
	for _, part := range parts {
		switch {
		case len(part) == 0:
			continue
		case part.Isdot():
			continue
		case part.Isdotdot():
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, part)
		}
	}
	out := ustr.Ustr{}
	if abs {
		out = append(out, '/')
	}
	for i, part := range stack {
		if i > 0 {
			out = append(out, '/')
		}
		out = append(out, part...)
	}
	if len(out) == 0 {
		out = ustr.MkUstrRoot()
	}
	return out
}

func split(p ustr.Ustr) []ustr.Ustr {
	var parts []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			parts = append(parts, p[start:i])
			start = i + 1
		}
	}
	return parts
}

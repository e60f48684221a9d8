// Copyright 2023 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package semver implements the version and range algebra used by the npm
ecosystem: parsing and comparing semantic versions, and evaluating the
wildcard/exact/hyphen/x-range/caret/tilde/comparator range grammar against
them.

It is a narrowed, single-ecosystem descendant of a generic multi-packaging-
system semver engine: the comparison algorithm (numeric component compare,
then prerelease-identifier compare) and the general shape of Version and
Range are grounded in that ancestry, but the grammar here targets the npm
ecosystem only.
*/
package semver

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed semantic version: major.minor.patch, an optional
// dot-separated prerelease identifier list, and build metadata (ignored for
// comparison purposes).
type Version struct {
	Major, Minor, Patch uint64
	Pre                 []string
	Build               string
	raw                 string
}

// InvalidVersionError is returned by Parse when the input is not a
// recognizable version string.
type InvalidVersionError struct {
	Input string
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version %q", e.Input)
}

// Parse parses str as an npm-style semantic version. Leading 'v'/'V'
// characters are stripped, matching npm practice (node-semver tolerates a
// leading v even though semver.org does not require one).
func Parse(str string) (*Version, error) {
	s := strings.TrimLeft(str, "vV")
	if s == "" {
		return nil, &InvalidVersionError{Input: str}
	}

	build := ""
	if i := strings.IndexByte(s, '+'); i >= 0 {
		build = s[i:]
		s = s[:i]
	}

	core := s
	var pre []string
	if i := strings.IndexByte(s, '-'); i >= 0 {
		core = s[:i]
		preStr := s[i+1:]
		if preStr == "" {
			return nil, &InvalidVersionError{Input: str}
		}
		pre = strings.Split(preStr, ".")
		for _, p := range pre {
			if p == "" {
				return nil, &InvalidVersionError{Input: str}
			}
		}
	}

	nums := strings.Split(core, ".")
	if len(nums) != 3 {
		return nil, &InvalidVersionError{Input: str}
	}
	var vals [3]uint64
	for i, n := range nums {
		if n == "" {
			return nil, &InvalidVersionError{Input: str}
		}
		v, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return nil, &InvalidVersionError{Input: str}
		}
		vals[i] = v
	}

	return &Version{
		Major: vals[0],
		Minor: vals[1],
		Patch: vals[2],
		Pre:   pre,
		Build: build,
		raw:   str,
	}, nil
}

// MustParse is like Parse but panics on error; it exists for tests and
// package-level constants, never for parsing registry input.
func MustParse(str string) *Version {
	v, err := Parse(str)
	if err != nil {
		panic(err)
	}
	return v
}

func (v *Version) String() string {
	if v == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if len(v.Pre) > 0 {
		b.WriteByte('-')
		b.WriteString(strings.Join(v.Pre, "."))
	}
	b.WriteString(v.Build)
	return b.String()
}

// IsPrerelease reports whether v carries prerelease identifiers.
func (v *Version) IsPrerelease() bool { return v != nil && len(v.Pre) > 0 }

// Compare returns -1, 0 or 1 depending on whether v sorts before, the same
// as, or after o. Build metadata is ignored. A version with no prerelease
// sorts after an otherwise-identical version with one.
func (v *Version) Compare(o *Version) int {
	if c := cmpUint(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmpUint(v.Minor, o.Minor); c != 0 {
		return c
	}
	if c := cmpUint(v.Patch, o.Patch); c != 0 {
		return c
	}
	switch {
	case len(v.Pre) == 0 && len(o.Pre) == 0:
		return 0
	case len(v.Pre) == 0:
		return 1
	case len(o.Pre) == 0:
		return -1
	}
	return comparePre(v.Pre, o.Pre)
}

// comparePre compares two non-empty prerelease identifier lists per
// semver.org 2.0.0: numeric identifiers compare numerically and sort below
// alphanumeric ones; a longer list of otherwise-equal identifiers is
// greater.
func comparePre(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareIdent(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmpInt(len(a), len(b))
}

func compareIdent(a, b string) int {
	an, aok := isNumericIdent(a)
	bn, bok := isNumericIdent(b)
	switch {
	case aok && bok:
		return cmpUint(an, bn)
	case aok:
		return -1
	case bok:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func isNumericIdent(s string) (uint64, bool) {
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Eq, Gt, Gte, Lt, Lte are convenience comparison predicates over parsed
// versions.
func Eq(a, b *Version) bool  { return a.Compare(b) == 0 }
func Gt(a, b *Version) bool  { return a.Compare(b) > 0 }
func Gte(a, b *Version) bool { return a.Compare(b) >= 0 }
func Lt(a, b *Version) bool  { return a.Compare(b) < 0 }
func Lte(a, b *Version) bool { return a.Compare(b) <= 0 }

// coerceRe-free coercion: scan for the first run of the form
// digits[.digits[.digits]] and zero-pad any missing components. This avoids
// pulling in regexp for a scan this simple.

// Coerce extracts the first M[.m[.p]] substring from str and returns the
// zero-padded Version it denotes, or nil if no such substring exists.
func Coerce(str string) *Version {
	n := len(str)
	for start := 0; start < n; start++ {
		if !isDigit(str[start]) {
			continue
		}
		end := start
		comps := 0
		lastDigitEnd := start
		for end <= n {
			// Consume one run of digits.
			runStart := end
			for end < n && isDigit(str[end]) {
				end++
			}
			if end == runStart {
				break
			}
			comps++
			lastDigitEnd = end
			if comps == 3 || end >= n || str[end] != '.' {
				break
			}
			end++ // consume '.'
		}
		if comps == 0 {
			continue
		}
		core := str[start:lastDigitEnd]
		parts := strings.Split(core, ".")
		for len(parts) < 3 {
			parts = append(parts, "0")
		}
		v, err := Parse(strings.Join(parts[:3], "."))
		if err != nil {
			continue
		}
		return v
	}
	return nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

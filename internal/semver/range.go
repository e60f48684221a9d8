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

package semver

import (
	"sort"
	"strconv"
	"strings"
)

// Range is a parsed npm-style version range: a disjunction ("||") of
// comparator sets, each an implicit conjunction of comparators.
type Range struct {
	sets []comparatorSet
	raw  string
}

type comparatorSet struct {
	comparators []comparator
}

type comparator struct {
	op string // "", "=", ">", ">=", "<", "<="
	v  *Version
}

func (c comparator) match(v *Version) bool {
	switch c.op {
	case "", "=":
		return v.Compare(c.v) == 0
	case ">":
		return v.Compare(c.v) > 0
	case ">=":
		return v.Compare(c.v) >= 0
	case "<":
		return v.Compare(c.v) < 0
	case "<=":
		return v.Compare(c.v) <= 0
	default:
		return false
	}
}

func (cs comparatorSet) match(v *Version) bool {
	for _, c := range cs.comparators {
		if !c.match(v) {
			return false
		}
	}
	if v.IsPrerelease() {
		anchored := false
		for _, c := range cs.comparators {
			if c.v.IsPrerelease() && c.v.Major == v.Major && c.v.Minor == v.Minor && c.v.Patch == v.Patch {
				anchored = true
				break
			}
		}
		if !anchored {
			return false
		}
	}
	return true
}

// Match reports whether v satisfies the range.
func (r *Range) Match(v *Version) bool {
	if r == nil || len(r.sets) == 0 {
		return true
	}
	for _, cs := range r.sets {
		if cs.match(v) {
			return true
		}
	}
	return false
}

func (r *Range) String() string { return r.raw }

// ParseRange parses an npm-style range expression: conjunctions of
// comparators separated by whitespace, disjunctions separated by "||",
// wildcard/x-ranges, caret and tilde ranges, and hyphen ranges.
func ParseRange(raw string) (*Range, error) {
	r := &Range{raw: raw}
	for _, alt := range strings.Split(raw, "||") {
		alt = strings.TrimSpace(alt)
		cs, err := parseComparatorSet(alt)
		if err != nil {
			return nil, err
		}
		r.sets = append(r.sets, *cs)
	}
	return r, nil
}

func parseComparatorSet(s string) (*comparatorSet, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return &comparatorSet{}, nil
	}

	// A hyphen range "A - B" must be the only item: VERSION ' - ' VERSION.
	if parts := strings.SplitN(s, " - ", 2); len(parts) == 2 {
		return hyphenRange(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	}

	var cs comparatorSet
	for _, tok := range strings.Fields(s) {
		cmps, err := parseAtom(tok)
		if err != nil {
			return nil, err
		}
		cs.comparators = append(cs.comparators, cmps...)
	}
	return &cs, nil
}

// partial is a version-like token with 0-3 concrete leading components;
// any remaining components are wildcarded (from "x"/"X"/"*" or simply
// missing, e.g. "1.2").
type partial struct {
	major, minor, patch uint64
	concrete            int // number of leading concrete components, 0-3
	pre                  []string
}

func parsePartial(s string) (*partial, error) {
	s = strings.TrimLeft(s, "vV")
	if s == "" || s == "*" || strings.EqualFold(s, "x") {
		return &partial{}, nil
	}

	core := s
	var pre []string
	// Build metadata is irrelevant to ranges; drop it first.
	if i := strings.IndexByte(core, '+'); i >= 0 {
		core = core[:i]
	}
	if i := strings.IndexByte(core, '-'); i >= 0 {
		pre = strings.Split(core[i+1:], ".")
		core = core[:i]
	}

	comps := strings.Split(core, ".")
	if len(comps) > 3 {
		return nil, &InvalidRangeError{Input: s}
	}
	p := &partial{}
	fields := [3]*uint64{&p.major, &p.minor, &p.patch}
	for i, c := range comps {
		if c == "" || c == "x" || c == "X" || c == "*" {
			break
		}
		n, err := strconv.ParseUint(c, 10, 64)
		if err != nil {
			return nil, &InvalidRangeError{Input: s}
		}
		*fields[i] = n
		p.concrete = i + 1
	}
	if p.concrete == 3 {
		p.pre = pre
	}
	return p, nil
}

// InvalidRangeError indicates a range expression with no recognizable
// grammar; callers fall back to treating the range as an exact string
// match, per the version algebra's documented behaviour.
type InvalidRangeError struct{ Input string }

func (e *InvalidRangeError) Error() string { return "invalid range fragment: " + e.Input }

func (p *partial) floor() *Version {
	return &Version{Major: p.major, Minor: p.minor, Patch: p.patch, Pre: p.pre}
}

// next returns the version immediately above the entire wildcard span
// implied by p's concrete-component count (e.g. "1.2" spans [1.2.0,1.3.0)
// so next is 1.3.0). Only meaningful when p.concrete < 3.
func (p *partial) next() *Version {
	switch p.concrete {
	case 0:
		return &Version{}
	case 1:
		return &Version{Major: p.major + 1}
	default: // 2
		return &Version{Major: p.major, Minor: p.minor + 1}
	}
}

func parseAtom(tok string) ([]comparator, error) {
	switch {
	case strings.HasPrefix(tok, "^"):
		p, err := parsePartial(tok[1:])
		if err != nil {
			return nil, err
		}
		return caretComparators(p), nil
	case strings.HasPrefix(tok, "~"):
		p, err := parsePartial(strings.TrimPrefix(tok[1:], ">"))
		if err != nil {
			return nil, err
		}
		return tildeComparators(p), nil
	case strings.HasPrefix(tok, ">="):
		p, err := parsePartial(tok[2:])
		if err != nil {
			return nil, err
		}
		return opComparators(">=", p), nil
	case strings.HasPrefix(tok, "<="):
		p, err := parsePartial(tok[2:])
		if err != nil {
			return nil, err
		}
		return opComparators("<=", p), nil
	case strings.HasPrefix(tok, ">"):
		p, err := parsePartial(tok[1:])
		if err != nil {
			return nil, err
		}
		return opComparators(">", p), nil
	case strings.HasPrefix(tok, "<"):
		p, err := parsePartial(tok[1:])
		if err != nil {
			return nil, err
		}
		return opComparators("<", p), nil
	case strings.HasPrefix(tok, "="):
		p, err := parsePartial(tok[1:])
		if err != nil {
			return nil, err
		}
		return opComparators("=", p), nil
	default:
		p, err := parsePartial(tok)
		if err != nil {
			return nil, err
		}
		return opComparators("=", p), nil
	}
}

// opComparators implements the standard translation of an operator applied
// to a possibly-partial version, per the spec's caret/tilde/x-range table.
func opComparators(op string, p *partial) []comparator {
	if p.concrete == 0 {
		return nil // unconstrained
	}
	if p.concrete == 3 {
		return []comparator{{op: op, v: p.floor()}}
	}
	switch op {
	case "", "=":
		return []comparator{{op: ">=", v: p.floor()}, {op: "<", v: p.next()}}
	case ">":
		return []comparator{{op: ">=", v: p.next()}}
	case ">=":
		return []comparator{{op: ">=", v: p.floor()}}
	case "<":
		return []comparator{{op: "<", v: p.floor()}}
	case "<=":
		return []comparator{{op: "<", v: p.next()}}
	default:
		return []comparator{{op: op, v: p.floor()}}
	}
}

// caretComparators implements spec.md §4.1's caret table.
func caretComparators(p *partial) []comparator {
	if p.concrete == 0 {
		return nil
	}
	floor := p.floor()
	var ceil *Version
	switch {
	case p.major > 0:
		ceil = &Version{Major: p.major + 1}
	case p.concrete >= 2 && p.minor > 0:
		ceil = &Version{Minor: p.minor + 1}
	case p.concrete == 3:
		ceil = &Version{Patch: p.patch + 1}
	case p.concrete == 1: // ^0
		ceil = &Version{Major: 1}
	default: // p.concrete == 2, minor == 0: ^0.0
		ceil = &Version{Minor: 1}
	}
	return []comparator{{op: ">=", v: floor}, {op: "<", v: ceil}}
}

// tildeComparators implements spec.md §4.1's tilde table.
func tildeComparators(p *partial) []comparator {
	if p.concrete == 0 {
		return nil
	}
	floor := p.floor()
	var ceil *Version
	if p.concrete == 1 {
		ceil = &Version{Major: p.major + 1}
	} else {
		ceil = &Version{Major: p.major, Minor: p.minor + 1}
	}
	return []comparator{{op: ">=", v: floor}, {op: "<", v: ceil}}
}

func hyphenRange(loStr, hiStr string) (*comparatorSet, error) {
	lo, err := parsePartial(loStr)
	if err != nil {
		return nil, err
	}
	hi, err := parsePartial(hiStr)
	if err != nil {
		return nil, err
	}
	cs := &comparatorSet{comparators: []comparator{{op: ">=", v: lo.floor()}}}
	if hi.concrete == 3 {
		cs.comparators = append(cs.comparators, comparator{op: "<=", v: hi.floor()})
	} else if hi.concrete > 0 {
		cs.comparators = append(cs.comparators, comparator{op: "<", v: hi.next()})
	}
	return cs, nil
}

// looksLikeTag reports whether spec is a bare identifier with no version or
// range syntax in it — a dist-tag name such as "latest" or "next" that is
// resolved through the registry's dist-tags map rather than range matching.
func looksLikeTag(spec string) bool {
	if spec == "" {
		return false
	}
	for _, c := range spec {
		switch {
		case c >= '0' && c <= '9':
			return false
		case strings.ContainsRune("<>=^~|*.-", c):
			return false
		}
	}
	return true
}

func looksLikeAlwaysSatisfied(spec string) bool {
	if strings.Contains(spec, "://") {
		return true
	}
	for _, p := range []string{"git+", "git:", "github:", "file:"} {
		if strings.HasPrefix(spec, p) {
			return true
		}
	}
	return looksLikeTag(spec)
}

// stripProtocol recognizes the npm: aliasing protocol and the workspace:
// protocol. For npm:name@range it returns the range portion (defaulting to
// "*" if no @range tail is present, to allow for scoped names containing
// "@"). For workspace: it reports ok=false, signalling "always satisfied".
func stripProtocol(spec string) (rest string, ok bool) {
	lower := strings.ToLower(spec)
	if strings.HasPrefix(lower, "workspace:") {
		return "", false
	}
	if !strings.HasPrefix(lower, "npm:") {
		return spec, true
	}
	rest = spec[len("npm:"):]
	at := strings.LastIndexByte(rest, '@')
	if at <= 0 {
		return "*", true
	}
	return rest[at+1:], true
}

// Satisfies reports whether version satisfies range, per spec.md §4.1. It
// fails only when version itself is malformed; a malformed range is treated
// as an exact string match against the raw version string.
func Satisfies(version, rangeStr string) (bool, error) {
	v, err := Parse(version)
	if err != nil {
		return false, err
	}

	rest, ok := stripProtocol(rangeStr)
	if !ok {
		return true, nil // workspace: — out of scope, always satisfied.
	}

	trimmed := strings.TrimSpace(rest)
	if trimmed == "" || trimmed == "*" || trimmed == "latest" {
		return true, nil
	}
	if looksLikeAlwaysSatisfied(trimmed) {
		return true, nil
	}

	r, perr := ParseRange(trimmed)
	if perr != nil {
		return rangeStr == version, nil
	}
	return r.Match(v), nil
}

// MaxSatisfying returns the greatest version in versions that satisfies
// range, or ("", false) if none does. Ties are not possible: Compare is a
// total order over concrete versions. Invalid version strings in versions
// are skipped, never propagated as InvalidVersion, since the caller
// provides them.
func MaxSatisfying(versions []string, rangeStr string) (string, bool) {
	type parsed struct {
		raw string
		v   *Version
	}
	var candidates []parsed
	for _, vs := range versions {
		v, err := Parse(vs)
		if err != nil {
			continue
		}
		ok, err := Satisfies(vs, rangeStr)
		if err != nil || !ok {
			continue
		}
		candidates = append(candidates, parsed{raw: vs, v: v})
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].v.Compare(candidates[j].v) < 0
	})
	return candidates[len(candidates)-1].raw, true
}

// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package ffmpeg

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator decides whether an address may be used as input or output
type Validator interface {
	IsValid(address string) bool
}

// patternValidator matches addresses against allow and block expressions.
// Block wins; an empty allow list allows everything else.
type patternValidator struct {
	allow []*regexp.Regexp
	block []*regexp.Regexp
}

// NewValidator compiles the given expressions. Blank expressions are ignored.
func NewValidator(allow, block []string) (Validator, error) {
	v := &patternValidator{}
	var err error

	if v.allow, err = compileAll("allow", allow); err != nil {
		return nil, err
	}
	if v.block, err = compileAll("block", block); err != nil {
		return nil, err
	}

	return v, nil
}

func compileAll(kind string, exps []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, exp := range exps {
		exp = strings.TrimSpace(exp)
		if exp == "" {
			continue
		}
		re, err := regexp.Compile(exp)
		if err != nil {
			return nil, fmt.Errorf("invalid %s expression '%s': %w", kind, exp, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (v *patternValidator) IsValid(address string) bool {
	for _, e := range v.block {
		if e.MatchString(address) {
			return false
		}
	}
	if len(v.allow) == 0 {
		return true
	}
	for _, e := range v.allow {
		if e.MatchString(address) {
			return true
		}
	}
	return false
}

type allowAll struct{}

func (allowAll) IsValid(string) bool { return true }

// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// PasswordPolicy defines requirements for catalogue passwords.
type PasswordPolicy struct {
	// MinLength is the minimum length in characters.
	MinLength int

	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool

	// MaxConsecutiveRepeats is the maximum allowed run of one character (0 = disabled).
	MaxConsecutiveRepeats int

	ForbidCommonPasswords    bool
	ForbidUsernameSimilarity bool
}

// StrictPasswordPolicy is applied to administrators, and to everyone when
// password.strict is set.
func StrictPasswordPolicy(minLength int) PasswordPolicy {
	if minLength < 12 {
		minLength = 12
	}
	return PasswordPolicy{
		MinLength:                minLength,
		RequireUppercase:         true,
		RequireLowercase:         true,
		RequireDigit:             true,
		RequireSpecial:           true,
		MaxConsecutiveRepeats:    3,
		ForbidCommonPasswords:    true,
		ForbidUsernameSimilarity: true,
	}
}

// UserPasswordPolicy is the default for regular users.
func UserPasswordPolicy(minLength int) PasswordPolicy {
	return PasswordPolicy{
		MinLength:                minLength,
		MaxConsecutiveRepeats:    4,
		ForbidCommonPasswords:    true,
		ForbidUsernameSimilarity: true,
	}
}

// Policy returns the policy for a user with the given admin flag.
func (c PasswordConfig) Policy(admin bool) PasswordPolicy {
	if admin || c.Strict {
		return StrictPasswordPolicy(c.MinLength)
	}
	return UserPasswordPolicy(c.MinLength)
}

// PasswordValidationResult contains details about password validation.
type PasswordValidationResult struct {
	Valid    bool
	Errors   []string
	Strength PasswordStrength
}

// PasswordStrength indicates the overall password strength.
type PasswordStrength int

const (
	PasswordStrengthWeak PasswordStrength = iota
	PasswordStrengthFair
	PasswordStrengthGood
	PasswordStrengthStrong
)

// String returns the string representation of password strength.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordStrengthWeak:
		return "weak"
	case PasswordStrengthFair:
		return "fair"
	case PasswordStrengthGood:
		return "good"
	case PasswordStrengthStrong:
		return "strong"
	default:
		return "unknown"
	}
}

type charClasses struct {
	hasUpper   bool
	hasLower   bool
	hasDigit   bool
	hasSpecial bool
}

func (cc charClasses) count() int {
	n := 0
	for _, ok := range []bool{cc.hasUpper, cc.hasLower, cc.hasDigit, cc.hasSpecial} {
		if ok {
			n++
		}
	}
	return n
}

func analyzeCharClasses(password string) charClasses {
	var cc charClasses
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			cc.hasUpper = true
		case unicode.IsLower(r):
			cc.hasLower = true
		case unicode.IsDigit(r):
			cc.hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			cc.hasSpecial = true
		}
	}
	return cc
}

// maxConsecutiveRepeats returns the longest run of a single character.
func maxConsecutiveRepeats(password string) int {
	longest, run := 0, 0
	var last rune
	for i, r := range password {
		if i > 0 && r == last {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		last = r
	}
	return longest
}

// Validate checks password against the policy and collects every violation.
func (p PasswordPolicy) Validate(password, username string) PasswordValidationResult {
	result := PasswordValidationResult{Valid: true}
	fail := func(format string, args ...any) {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}

	if n := len([]rune(password)); n < p.MinLength {
		fail("password must be at least %d characters (got %d)", p.MinLength, n)
	}
	if len(password) > MaxPasswordBytes {
		fail("password must be at most %d bytes", MaxPasswordBytes)
	}

	cc := analyzeCharClasses(password)
	if p.RequireUppercase && !cc.hasUpper {
		fail("password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !cc.hasLower {
		fail("password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !cc.hasDigit {
		fail("password must contain at least one digit")
	}
	if p.RequireSpecial && !cc.hasSpecial {
		fail("password must contain at least one special character")
	}

	if p.MaxConsecutiveRepeats > 0 && maxConsecutiveRepeats(password) > p.MaxConsecutiveRepeats {
		fail("password cannot have more than %d consecutive repeated characters", p.MaxConsecutiveRepeats)
	}
	if p.ForbidCommonPasswords && isCommonPassword(password) {
		fail("password is too common and easily guessable")
	}
	if p.ForbidUsernameSimilarity && username != "" && isSimilarToUsername(password, username) {
		fail("password is too similar to username")
	}

	result.Strength = passwordStrength(password, cc)
	return result
}

// ValidateWithError returns the joined violations, or nil.
func (p PasswordPolicy) ValidateWithError(password, username string) error {
	result := p.Validate(password, username)
	if !result.Valid {
		return errors.New(strings.Join(result.Errors, "; "))
	}
	return nil
}

func passwordStrength(password string, cc charClasses) PasswordStrength {
	score := cc.count()
	switch n := len([]rune(password)); {
	case n >= 20:
		score += 3
	case n >= 14:
		score += 2
	case n >= 10:
		score++
	}
	if hasSequentialChars(password) {
		score--
	}
	switch {
	case score >= 6:
		return PasswordStrengthStrong
	case score >= 4:
		return PasswordStrengthGood
	case score >= 2:
		return PasswordStrengthFair
	default:
		return PasswordStrengthWeak
	}
}

var commonPasswords = map[string]bool{
	"password": true, "password1": true, "password123": true, "passw0rd": true,
	"123456": true, "12345678": true, "123456789": true, "1234567890": true,
	"qwerty": true, "qwerty123": true, "abc123": true, "111111": true,
	"letmein": true, "welcome": true, "welcome1": true, "admin": true,
	"admin123": true, "iloveyou": true, "monkey": true, "dragon": true,
	"sunshine": true, "football": true, "baseball": true, "master": true,
	"changeme": true, "secret": true, "backup": true, "backup123": true,
	"rdiffbackup": true, "rdiffweb": true, "rdiffgate": true,
}

func isCommonPassword(password string) bool {
	return commonPasswords[strings.ToLower(password)]
}

// isSimilarToUsername reports whether the password contains the username,
// its reverse, or a leetspeak spelling of it.
func isSimilarToUsername(password, username string) bool {
	lowerPass := strings.ToLower(password)
	lowerUser := strings.ToLower(username)

	if strings.Contains(lowerPass, lowerUser) || strings.Contains(lowerUser, lowerPass) {
		return true
	}
	if strings.Contains(lowerPass, reverseString(lowerUser)) {
		return true
	}

	substitutions := map[rune]rune{'a': '@', 'e': '3', 'i': '1', 'o': '0', 's': '$', 't': '7'}
	substituted := strings.Map(func(r rune) rune {
		if sub, ok := substitutions[r]; ok {
			return sub
		}
		return r
	}, lowerUser)
	return strings.Contains(lowerPass, substituted)
}

// hasSequentialChars reports runs such as "abc" or "321".
func hasSequentialChars(password string) bool {
	runes := []rune(strings.ToLower(password))
	run := 0
	for i := 1; i < len(runes); i++ {
		if d := runes[i] - runes[i-1]; d == 1 || d == -1 {
			run++
			if run >= 2 {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func reverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package validate

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/temporahq/tempora/internal/platform/apperr"
)

// # Password Policy

// PasswordMinLength is the minimum accepted password length.
const PasswordMinLength = 12

// commonPasswords is a small embedded denylist of passwords that appear at
// the top of public breach corpora. Checked case-insensitively.
var commonPasswords = map[string]struct{}{
	"password":         {},
	"password1":        {},
	"password123":      {},
	"password1234":     {},
	"passw0rd!":        {},
	"p@ssw0rd1234":     {},
	"123456789012":     {},
	"qwertyuiop12":     {},
	"qwerty123456":     {},
	"letmein12345":     {},
	"iloveyou1234":     {},
	"administrator":    {},
	"admin1234567":     {},
	"welcome12345":     {},
	"welcome1234!":     {},
	"changeme1234":     {},
	"sunshine1234":     {},
	"monkey123456":     {},
	"dragon123456":     {},
	"trustno1!234":     {},
	"1q2w3e4r5t6y":     {},
	"superman1234":     {},
	"baseball1234":     {},
	"football1234":     {},
	"whatever1234":     {},
	"zaq12wsxcde3":     {},
	"temporarypass":    {},
	"defaultpassword":  {},
	"password2024!":    {},
	"password2025!":    {},
	"corporate123!":    {},
	"companypass1!":    {},
	"winter2024!!":     {},
	"summer2025!!":     {},
	"spring2025!!":     {},
	"autumn2024!!":     {},
	"abc123456789":     {},
	"aa123456789!":     {},
	"qwe123456789":     {},
	"secretpassword1":  {},
	"mysecretpass1":    {},
	"pa$$word1234":     {},
	"starwars1234":     {},
	"pokemon12345":     {},
	"princess1234":     {},
	"michael12345":     {},
	"jennifer1234":     {},
	"1234567890ab":     {},
	"!qaz2wsx3edc":     {},
	"adminadmin123":    {},
	"rootpassword1":    {},
	"guestaccount1":    {},
	"testtest1234":     {},
	"hello12345678":    {},
	"november2024!":    {},
	"december2024!":    {},
	"january2025!!":    {},
	"springfield12":    {},
	"computer12345":    {},
	"internet12345":    {},
	"greenday12345":    {},
	"metallica1234":    {},
	"liverpool1234":    {},
	"arsenal123456":    {},
	"chelsea123456":    {},
	"samsung123456":    {},
	"apple12345678":    {},
	"google12345678":   {},
	"facebook12345":    {},
	"shadow1234567":    {},
	"master1234567":    {},
	"killer1234567":    {},
	"jordan1234567":    {},
	"harley1234567":    {},
	"ranger1234567":    {},
	"hunter1234567":    {},
	"batman1234567":    {},
	"thomas1234567":    {},
	"robert1234567":    {},
	"soccer1234567":    {},
	"hockey1234567":    {},
	"george1234567":    {},
	"andrew1234567":    {},
	"charlie123456":    {},
	"daniel1234567":    {},
	"freedom123456":    {},
	"ginger1234567":    {},
	"joshua1234567":    {},
	"matrix1234567":    {},
	"secret1234567":    {},
	"silver1234567":    {},
	"orange1234567":    {},
	"purple1234567":    {},
	"yellow1234567":    {},
	"banana1234567":    {},
	"cookie1234567":    {},
	"pepper1234567":    {},
	"summer1234567":    {},
	"winter1234567":    {},
	"tempora123456":    {},
	"timetracking1":    {},
	"worksmarter123":   {},
	"employee12345":    {},
	"manager123456":    {},
	"office1234567":    {},
	"business12345":    {},
	"enterprise123":    {},
	"production123":    {},
	"development12":    {},
	"staging123456":    {},
	"localhost1234":    {},
	"database12345":    {},
	"server1234567":    {},
	"backup1234567":    {},
	"security12345":    {},
	"firewall12345":    {},
	"networking123":    {},
	"wireless12345":    {},
	"bluetooth1234":    {},
	"keyboard12345":    {},
	"monitor123456":    {},
	"printer123456":    {},
	"scanner123456":    {},
	"desktop123456":    {},
	"laptop1234567":    {},
	"tablet1234567":    {},
	"iphone1234567":    {},
	"android123456":    {},
	"windows123456":    {},
	"linuxlinux123":    {},
	"ubuntu1234567":    {},
	"debian1234567":    {},
	"fedora1234567":    {},
	"centos1234567":    {},
	"redhat1234567":    {},
	"docker1234567":    {},
	"kubernetes123":    {},
	"jenkins123456":    {},
	"gitlab1234567":    {},
	"github1234567":    {},
	"bitbucket1234":    {},
	"atlassian1234":    {},
	"confluence123":    {},
	"jirajira12345":    {},
	"slackslack123":    {},
	"zoomzoom12345":    {},
	"teamsteams123":    {},
	"outlook123456":    {},
	"gmailgmail123":    {},
	"yahooyahoo123":    {},
	"hotmail123456":    {},
	"protonmail123":    {},
	"correcthorsebatterystaple": {},
}

// Password enforces the platform password policy on the given value.
//
// # Policy
//
//   - At least [PasswordMinLength] characters.
//   - Contains an uppercase letter, a lowercase letter, a digit, and a symbol.
//   - Not present in the embedded common-password denylist.
func (v *Validator) Password(field, value string) *Validator {
	if utf8.RuneCountInString(value) < PasswordMinLength {
		v.add(field, fmt.Sprintf("Minimum %d characters", PasswordMinLength))
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range value {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}

	if !hasUpper {
		v.add(field, "Must contain an uppercase letter")
	}
	if !hasLower {
		v.add(field, "Must contain a lowercase letter")
	}
	if !hasDigit {
		v.add(field, "Must contain a digit")
	}
	if !hasSymbol {
		v.add(field, "Must contain a symbol")
	}

	if _, known := commonPasswords[strings.ToLower(value)]; known {
		v.add(field, "This password is too common")
	}

	return v
}

// PasswordError converts accumulated password-policy failures into the
// dedicated WEAK_PASSWORD error kind. Returns nil when the policy passed.
func (v *Validator) PasswordError() error {
	if len(v.errs) == 0 {
		return nil
	}
	return apperr.WeakPassword(v.errs...)
}

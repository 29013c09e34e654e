// Package validation holds the request rule sets. Every rule of a set runs,
// in declaration order, and all violations are reported together.
package validation

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vitrine-app/apiserver/types"
)

// ErrValidationFailed matches any *Error via errors.Is.
var ErrValidationFailed = errors.New("validation failed")

const (
	MsgInvalidEmail    = "Invalid Email"
	MsgInvalidUsername = "Invalid Username"
	MsgInvalidPassword = "Invalid Password"
	MsgInvalidAge      = "Invalid Age"
	MsgInvalidTags     = "Invalid Tags"
	MsgInvalidPhone    = "Invalid Phone Number"
	MsgInvalidLocation = "Invalid Location"
	MsgInvalidPrice    = "Invalid Price"

	// MinPrice is the lowest accepted price.
	MinPrice = 50
)

// Violation is a single failed rule.
type Violation struct {
	Field   string
	Message string
}

// Error aggregates every violation of one request.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	return ErrValidationFailed.Error() + ": " + strings.Join(e.Messages(), ", ")
}

func (e *Error) Is(target error) bool {
	return target == ErrValidationFailed
}

// Messages returns the violation messages in rule order.
func (e *Error) Messages() []string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return msgs
}

var validate = validator.New()

type rule[T any] func(req T) *Violation

func run[T any](req T, rules []rule[T]) error {
	var violations []Violation
	for _, r := range rules {
		if v := r(req); v != nil {
			violations = append(violations, *v)
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return &Error{Violations: violations}
}

// ValidateCreate checks a registration request.
func ValidateCreate(req types.CreateUserRequest) error {
	return run(req, []rule[types.CreateUserRequest]{
		func(r types.CreateUserRequest) *Violation {
			if validate.Var(r.Email, "required,email") != nil {
				return &Violation{Field: "email", Message: MsgInvalidEmail}
			}
			return nil
		},
		func(r types.CreateUserRequest) *Violation {
			if len(r.Username) == 0 {
				return &Violation{Field: "username", Message: MsgInvalidUsername}
			}
			return nil
		},
		func(r types.CreateUserRequest) *Violation {
			if len(r.Password) == 0 {
				return &Violation{Field: "password", Message: MsgInvalidPassword}
			}
			return nil
		},
	})
}

// ValidateUpdate checks a profile update against the tag whitelist.
func ValidateUpdate(req types.UpdateUserRequest, tagWhitelist []string) error {
	allowed := make(map[string]struct{}, len(tagWhitelist))
	for _, tag := range tagWhitelist {
		allowed[tag] = struct{}{}
	}

	return run(req, []rule[types.UpdateUserRequest]{
		func(r types.UpdateUserRequest) *Violation {
			if r.Age == nil || validate.Var(*r.Age, "required,numeric") != nil {
				return &Violation{Field: "age", Message: MsgInvalidAge}
			}
			return nil
		},
		func(r types.UpdateUserRequest) *Violation {
			if r.Tags == nil {
				return &Violation{Field: "tags", Message: MsgInvalidTags}
			}
			for _, tag := range r.Tags {
				if _, ok := allowed[tag]; !ok {
					return &Violation{Field: "tags", Message: MsgInvalidTags}
				}
			}
			return nil
		},
		func(r types.UpdateUserRequest) *Violation {
			if r.Phone == nil || !IsMobilePhone(*r.Phone) {
				return &Violation{Field: "phone", Message: MsgInvalidPhone}
			}
			return nil
		},
		func(r types.UpdateUserRequest) *Violation {
			if r.Location == nil || len(*r.Location) == 0 {
				return &Violation{Field: "location", Message: MsgInvalidLocation}
			}
			return nil
		},
		func(r types.UpdateUserRequest) *Violation {
			if r.Price == nil {
				return &Violation{Field: "price", Message: MsgInvalidPrice}
			}
			if _, err := ParsePrice(*r.Price); err != nil {
				return &Violation{Field: "price", Message: MsgInvalidPrice}
			}
			return nil
		},
	})
}

// IsMobilePhone accepts numbers that are valid E.164 once spaces, dashes,
// dots and parentheses are removed. A missing leading '+' is tolerated.
func IsMobilePhone(phone string) bool {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
	if cleaned == "" {
		return false
	}
	if !strings.HasPrefix(cleaned, "+") {
		cleaned = "+" + cleaned
	}
	return validate.Var(cleaned, "e164") == nil
}

// ParsePrice converts a price that passed the update rules.
func ParsePrice(raw string) (int, error) {
	price, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if price < MinPrice {
		return 0, errors.New("price below minimum")
	}
	return price, nil
}

// ParseAge converts an age that passed the update rules. Fractions are
// truncated.
func ParseAge(raw string) (int, error) {
	age, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	return int(age), nil
}

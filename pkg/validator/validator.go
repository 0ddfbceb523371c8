package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate

	notificationTypePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{0,63}$`)
	entityTypePattern       = regexp.MustCompile(`^[A-Z][A-Z0-9_]{0,63}$|^[a-z][a-z0-9_.-]{0,63}$`)
)

// rules are the custom tags available to struct validation.
var rules = map[string]func(string) bool{
	"notification_type": IsNotificationType,
	"entity_type":       isEntityType,
}

// FieldError describes why one field was rejected.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// FieldErrors is returned by Struct when one or more fields fail.
type FieldErrors []FieldError

func (f FieldErrors) Error() string {
	if len(f) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(f))
	for i, fe := range f {
		messages[i] = fe.Message
	}
	return strings.Join(messages, "; ")
}

// Struct validates s and returns FieldErrors describing every failed rule.
func Struct(s any) error {
	err := engine().Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	failures := make(FieldErrors, 0, len(ve))
	for _, fe := range ve {
		failures = append(failures, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: describe(fe.Field(), fe.Tag(), fe.Param()),
		})
	}
	return failures
}

// IsNotificationType reports whether value looks like an upper snake case category such as ORDER_UPDATE.
func IsNotificationType(value string) bool {
	return notificationTypePattern.MatchString(value)
}

func isEntityType(value string) bool {
	return entityTypePattern.MatchString(value)
}

func describe(field, rule, param string) string {
	switch rule {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, param)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, param)
	case "notification_type":
		return field + " must be an upper snake case type such as ORDER_UPDATE"
	case "entity_type":
		return field + " must name an entity such as ORDER"
	case "":
		return field + " is invalid"
	}
	if param != "" {
		return fmt.Sprintf("%s failed %s=%s", field, rule, param)
	}
	return fmt.Sprintf("%s failed %s", field, rule)
}

func engine() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		for tag, rule := range rules {
			check := rule
			_ = validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
				return check(fl.Field().String())
			})
		}
	})
	return validate
}

// jsonFieldName reports fields by their JSON name so messages match the payload.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

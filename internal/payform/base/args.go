package base

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/smallbiznis/payforms/internal/payform/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// DecodeArgs decodes a raw argument map into a typed struct and validates it.
func DecodeArgs(raw map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return &domain.ArgsValidationError{Fields: []domain.FieldError{{
			Field:   "args",
			Rule:    "decode",
			Message: err.Error(),
		}}}
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return toArgsError(verrs)
		}
		return err
	}
	return nil
}

func toArgsError(verrs validator.ValidationErrors) *domain.ArgsValidationError {
	fields := make([]domain.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, domain.FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return &domain.ArgsValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "numeric":
		return fmt.Sprintf("%s must be numeric", fe.Field())
	case "url":
		return fmt.Sprintf("%s must be a valid url", fe.Field())
	default:
		return fmt.Sprintf("%s fails %s", fe.Field(), fe.Tag())
	}
}

// RulesOf lists the mapstructure key and validate tag of each field of an argument struct.
func RulesOf(schema any) []domain.ArgRule {
	if schema == nil {
		return nil
	}
	t := reflect.TypeOf(schema)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	rules := make([]domain.ArgRule, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if key == "" || key == "-" {
			continue
		}
		rules = append(rules, domain.ArgRule{Key: key, Rules: field.Tag.Get("validate")})
	}
	return rules
}

// EffectiveArgs is the view GetArg sees: with sandbox on, only suffixed keys count, unsuffixed.
func EffectiveArgs(args map[string]any, sandbox bool) map[string]any {
	out := make(map[string]any, len(args))
	if !sandbox {
		for k, v := range args {
			out[k] = v
		}
		return out
	}
	for k, v := range args {
		if key, ok := strings.CutSuffix(k, domain.SandboxSuffix); ok {
			out[key] = v
		}
	}
	if toggle, ok := args[domain.SandboxToggle]; ok {
		out[domain.SandboxToggle] = toggle
	}
	return out
}

func truthy(v any) bool {
	switch typed := v.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		s := strings.TrimSpace(typed)
		return s != "" && s != "0" && !strings.EqualFold(s, "false")
	case float64:
		return typed != 0
	case float32:
		return typed != 0
	case int:
		return typed != 0
	case int64:
		return typed != 0
	default:
		return true
	}
}

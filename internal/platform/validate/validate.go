// Package validate wraps go-playground/validator with json/yaml field names
// and readable messages.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "yaml"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
		instance = v
	})
	return instance
}

var messages = map[string]string{
	"required":      "is required",
	"min":           "must be at least %s",
	"max":           "must be at most %s",
	"gte":           "must be greater than or equal to %s",
	"lte":           "must be less than or equal to %s",
	"gt":            "must be greater than %s",
	"oneof":         "must be one of [%s]",
	"url":           "must be a valid URL",
	"uuid":          "must be a valid UUID",
	"hostname_port": "must be host:port",
}

// Error maps field paths to messages.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func message(fe validator.FieldError) string {
	msg, ok := messages[fe.Tag()]
	if !ok {
		return "is invalid (" + fe.Tag() + ")"
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return msg
}

// Struct validates s. It returns *Error for rule violations and the raw error
// for programming mistakes such as passing a non-struct.
func Struct(s any) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{Fields: map[string]string{}}
	for _, fe := range verrs {
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		out.Fields[path] = message(fe)
	}
	return out
}

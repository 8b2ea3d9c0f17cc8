package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
	"github.com/nakiaasuryanto/bday-bot/internal/engine"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields under their roster file names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate decodes and checks one roster record. index is its position in
// the file and only appears in diagnostics.
func Validate(index int, r Record) (engine.Entry, *engine.ValidationError) {
	if !r.IsObject() {
		return engine.Entry{}, &engine.ValidationError{Index: index, Fields: []string{"record (type)"}}
	}
	e, err := r.Entry()
	if err != nil {
		field := "record"
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			field = typeErr.Field
		}
		return e, &engine.ValidationError{Index: index, Name: r.String(config.FieldName), Fields: []string{field + " (type)"}}
	}

	if err := validate.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return e, &engine.ValidationError{Index: index, Name: e.Name, Fields: []string{err.Error()}}
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
		return e, &engine.ValidationError{Index: index, Name: e.Name, Fields: fields}
	}
	return e, nil
}

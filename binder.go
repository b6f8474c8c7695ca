package ignis

import (
	"errors"
	"reflect"
	"strconv"
)

// paramSource names where Bind reads a struct field's value from.
type paramSource uint8

// Parameter sources.
const (
	SourcePath paramSource = iota
	SourceQuery
	SourceHeader
)

// Bind populates the exported fields of v (a pointer to a struct) from
// the one part of req that source selects (path parameters, query
// parameters or headers), looking each field up under the name given by
// its struct tag named tag (the field name when the tag is absent), the
// way the teacher's own binder walks struct fields by tag and coerces each
// value to the field's kind.
func Bind(req *Request, source paramSource, tag string, v interface{}) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return errors.New("ignis: bind target must be a pointer to a struct")
	}

	typ := val.Elem().Type()
	val = val.Elem()

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		fv := val.Field(i)
		if !fv.CanSet() {
			continue
		}

		name := field.Tag.Get(tag)
		if name == "" {
			name = field.Name
		}

		raw, ok := lookupParam(req, source, name)
		if !ok {
			continue
		}

		if err := setFieldFromString(fv, raw); err != nil {
			return errValidation([]FieldError{{Field: name, Message: err.Error(), Value: raw}})
		}
	}

	return nil
}

func lookupParam(req *Request, source paramSource, name string) (string, bool) {
	switch source {
	case SourcePath:
		p := req.Param(name)
		return p.value, p.found
	case SourceQuery:
		return req.QueryValue(name)
	case SourceHeader:
		v := req.Header.Get(name)
		return v, v != ""
	default:
		return "", false
	}
}

func setFieldFromString(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return errors.New("not an integer")
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return errors.New("not an unsigned integer")
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return errors.New("not a float")
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return errors.New("not a bool")
		}
		field.SetBool(b)
	default:
		return errors.New("unsupported field kind")
	}
	return nil
}

package binding

import (
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// QueryUnmarshaler lets a custom type parse its own query value.
type QueryUnmarshaler interface {
	UnmarshalQuery(string) error
}

var queryUnmarshalerType = reflect.TypeOf((*QueryUnmarshaler)(nil)).Elem()

// QueryParser binds url.Values onto tagged struct fields.
//
//	type cropQuery struct {
//	    X0    *int `query:"x0" validate:"required,min=0"`
//	    Layer int  `query:"layer" default:"6" validate:"min=1,max=6"`
//	}
//
// Missing parameters take the `default` tag. Pointer fields stay nil when the
// parameter is absent and has no default, which lets `required` tell "missing"
// apart from an explicit zero.
type QueryParser struct {
	tagName    string
	defaultTag string
}

// NewQueryParser creates a parser reading `query` and `default` tags.
func NewQueryParser() *QueryParser {
	return &QueryParser{
		tagName:    "query",
		defaultTag: "default",
	}
}

// Parse binds values into v, which must be a non-nil pointer to a struct.
func (qp *QueryParser) Parse(values url.Values, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return &BindError{
			Type:    "bind_error",
			Message: "v must be a non-nil pointer",
		}
	}

	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return &BindError{
			Type:    "bind_error",
			Message: "v must be a pointer to struct",
		}
	}

	return qp.parseStruct(values, rv, "")
}

func (qp *QueryParser) parseStruct(values url.Values, rv reflect.Value, prefix string) error {
	rt := rv.Type()

	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		queryName := qp.getQueryName(fieldType, prefix)
		if queryName == "-" {
			continue
		}

		if field.Kind() == reflect.Struct && !field.Addr().Type().Implements(queryUnmarshalerType) {
			if err := qp.parseStruct(values, field, queryName+"."); err != nil {
				return err
			}
			continue
		}

		raw, ok := qp.lookup(values, queryName, fieldType)
		if !ok {
			continue
		}
		if err := qp.setField(field, raw, queryName); err != nil {
			return err
		}
	}

	return nil
}

// lookup returns the query values for a field, falling back to its default tag.
func (qp *QueryParser) lookup(values url.Values, queryName string, fieldType reflect.StructField) ([]string, bool) {
	if raw, ok := values[queryName]; ok && len(raw) > 0 {
		return raw, true
	}
	if def, ok := fieldType.Tag.Lookup(qp.defaultTag); ok {
		return []string{def}, true
	}
	return nil, false
}

// getQueryName resolves the parameter name from the query tag, then json, then the field name.
func (qp *QueryParser) getQueryName(fieldType reflect.StructField, prefix string) string {
	for _, tag := range []string{qp.tagName, "json"} {
		if tagValue := fieldType.Tag.Get(tag); tagValue != "" {
			name := strings.Split(tagValue, ",")[0]
			if name == "-" {
				return "-"
			}
			return prefix + name
		}
	}
	return prefix + strings.ToLower(fieldType.Name)
}

func (qp *QueryParser) setField(field reflect.Value, values []string, fieldName string) error {
	if field.Kind() == reflect.Ptr {
		elem := reflect.New(field.Type().Elem())
		if err := qp.setField(elem.Elem(), values, fieldName); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	if field.CanAddr() && field.Addr().Type().Implements(queryUnmarshalerType) {
		if err := field.Addr().Interface().(QueryUnmarshaler).UnmarshalQuery(values[0]); err != nil {
			return bindErr(fieldName, "failed to unmarshal query: "+err.Error())
		}
		return nil
	}

	if field.Kind() == reflect.Slice {
		parts := values
		if len(values) == 1 && strings.Contains(values[0], ",") {
			parts = strings.Split(values[0], ",")
		}
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := setScalar(slice.Index(i), strings.TrimSpace(part), fieldName); err != nil {
				return err
			}
		}
		field.Set(slice)
		return nil
	}

	return setScalar(field, strings.TrimSpace(values[0]), fieldName)
}

func setScalar(field reflect.Value, value string, fieldName string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intVal, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return bindErr(fieldName, "must be a valid integer")
		}
		field.SetInt(intVal)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		uintVal, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return bindErr(fieldName, "must be a valid unsigned integer")
		}
		field.SetUint(uintVal)

	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return bindErr(fieldName, "must be a valid number")
		}
		field.SetFloat(floatVal)

	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return bindErr(fieldName, "must be a valid boolean")
		}
		field.SetBool(boolVal)

	default:
		return bindErr(fieldName, "unsupported field type: "+field.Kind().String())
	}

	return nil
}

func bindErr(field, message string) *BindError {
	return &BindError{
		Type:    "bind_error",
		Field:   field,
		Message: message,
	}
}

// pkg/model/values.go
package model

// Helpers turning optional values into SQL arguments (nil is NULL)

func NullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func NullableBool(v *bool) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// NullableString maps the empty string to NULL
func NullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

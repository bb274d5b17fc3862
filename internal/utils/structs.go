package utils

import (
	"reflect"
)

var ColumnTag = "db"

// StructTagValues returns the column names of input in field order.
// Anonymous embedded structs without a tag are flattened, matching how
// pgxscan maps them.
func StructTagValues(input any) []string {
	targetValue := reflect.ValueOf(input)
	if targetValue.Kind() == reflect.Ptr {
		targetValue = targetValue.Elem()
	}

	if targetValue.Kind() != reflect.Struct {
		panic("input must be a pointer to a struct or a struct")
	}

	result := make([]string, 0, targetValue.NumField())
	walkColumns(targetValue, func(column string, _ reflect.Value) {
		result = append(result, column)
	})

	return result
}

func StructToMap(input any) map[string]any {
	itemValue := reflect.ValueOf(input)
	if itemValue.Kind() == reflect.Ptr {
		itemValue = itemValue.Elem()
	}

	if itemValue.Kind() != reflect.Struct {
		panic("input must be a pointer to a struct or a struct")
	}

	result := make(map[string]any)
	walkColumns(itemValue, func(column string, v reflect.Value) {
		result[column] = v.Interface()
	})

	return result
}

func walkColumns(v reflect.Value, fn func(column string, field reflect.Value)) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}

		tagValue := field.Tag.Get(ColumnTag)
		if tagValue == "-" {
			continue
		}

		if tagValue == "" {
			if field.Anonymous && field.Type.Kind() == reflect.Struct {
				walkColumns(v.Field(i), fn)
			}
			continue
		}

		fn(tagValue, v.Field(i))
	}
}

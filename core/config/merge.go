package config

import (
	"reflect"
)

// DeepMerge copies every non-zero leaf of src onto dst. Both must be
// pointers to the same struct type; anything else is ignored.
func DeepMerge(dst, src any) {
	d := reflect.ValueOf(dst)
	s := reflect.ValueOf(src)
	if d.Kind() != reflect.Ptr || s.Kind() != reflect.Ptr || d.IsNil() || s.IsNil() {
		return
	}
	if d.Elem().Type() != s.Elem().Type() {
		return
	}
	mergeValues(d.Elem(), s.Elem())
}

func mergeValues(dst, src reflect.Value) {
	if !dst.CanSet() {
		return
	}
	if dst.Kind() == reflect.Struct {
		for i := 0; i < dst.NumField(); i++ {
			mergeValues(dst.Field(i), src.Field(i))
		}
		return
	}
	if !src.IsZero() {
		dst.Set(src)
	}
}

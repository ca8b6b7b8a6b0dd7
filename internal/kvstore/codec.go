package kvstore

import (
	"encoding/json"
	"reflect"
)

// Unmarshal decodes raw into dst only if the whole value decodes; a partial
// decode never leaks into dst. dst must be a non-nil pointer.
func Unmarshal(raw []byte, dst any) bool {
	if len(raw) == 0 {
		return false
	}
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false
	}
	tmp := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(raw, tmp.Interface()); err != nil {
		return false
	}
	rv.Elem().Set(tmp.Elem())
	return true
}

package rpcconn

import (
	"context"
	"fmt"
	"reflect"
	"unicode"

	"github.com/relaywire/rpcconn/markers"
)

// ctxType and errType let callConvertedMethod recognize a leading
// context.Context parameter and a trailing error return without importing
// reflect twice over; computed once at package init.
var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// exportedName title-cases a wire property/method name to the Go exported
// identifier it should match, since the wire protocol's property names are
// lowerCamel (spec §4.5's "method", "property") and Go exports only
// Capitalized identifiers.
func exportedName(name string) string {
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// getMember implements spec §4.5 call-handling step 3 "get": reads a named
// property off target, an exported struct field taking priority over a
// zero-argument method of the same name (a computed property).
func getMember(target any, name string) (any, error) {
	if name == "" {
		return nil, &TypeError{Reason: "get requires a property name"}
	}
	rv := indirect(reflect.ValueOf(target))
	if !rv.IsValid() {
		return nil, &TypeError{Reason: fmt.Sprintf("cannot read property %q of nil target", name)}
	}
	field := exportedName(name)
	if rv.Kind() == reflect.Struct {
		if fv := rv.FieldByName(field); fv.IsValid() && fv.CanInterface() {
			return fv.Interface(), nil
		}
	}
	if mv := methodByName(reflect.ValueOf(target), field); mv.IsValid() && mv.Type().NumIn() == 0 {
		return callReflected(mv, nil)
	}
	return nil, &TypeError{Reason: fmt.Sprintf("no readable property %q on target", name)}
}

// setMember implements spec §4.5 call-handling step 3 "set": writes a named,
// exported struct field on target.
func setMember(target any, name string, value any) error {
	if name == "" {
		return &TypeError{Reason: "set requires a property name"}
	}
	rv := indirect(reflect.ValueOf(target))
	if rv.Kind() != reflect.Struct || !rv.CanSet() {
		return &TypeError{Reason: fmt.Sprintf("cannot set property %q: target is not an addressable struct", name)}
	}
	fv := rv.FieldByName(exportedName(name))
	if !fv.IsValid() || !fv.CanSet() {
		return &TypeError{Reason: fmt.Sprintf("no settable property %q on target", name)}
	}
	val := reflect.ValueOf(value)
	if !value2AssignableTo(val, fv.Type()) {
		converted, ok := convertArg(value, fv.Type())
		if !ok {
			return &TypeError{Reason: fmt.Sprintf("property %q: cannot assign %T to %s", name, value, fv.Type())}
		}
		fv.Set(converted)
		return nil
	}
	fv.Set(val)
	return nil
}

// callTarget implements spec §4.5 call-handling step 3's two `call` shapes:
// method == "" invokes target itself as callable (a markers.Func); method
// != "" reads the named member and invokes it with target as receiver.
func callTarget(ctx context.Context, target any, method string, args []any) (any, error) {
	if method == "" {
		fn, ok := target.(markers.Func)
		if !ok {
			return nil, &TypeError{Reason: "call target is not callable"}
		}
		return fn(ctx, args)
	}
	mv := methodByName(reflect.ValueOf(target), exportedName(method))
	if !mv.IsValid() {
		return nil, &TypeError{Reason: fmt.Sprintf("no method %q on target", method)}
	}
	return callReflected(mv, withLeadingContext(ctx, mv, args))
}

func methodByName(rv reflect.Value, name string) reflect.Value {
	if !rv.IsValid() {
		return reflect.Value{}
	}
	if mv := rv.MethodByName(name); mv.IsValid() {
		return mv
	}
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		return rv.Elem().MethodByName(name)
	}
	return reflect.Value{}
}

// withLeadingContext prepends ctx to args when mv's first parameter is a
// context.Context, matching the teacher's convention of context-first
// methods (sdks/go/client.go's Evaluate/Check) without forcing every
// exposed method to take one.
func withLeadingContext(ctx context.Context, mv reflect.Value, args []any) []any {
	t := mv.Type()
	if t.NumIn() > 0 && t.In(0) == ctxType {
		out := make([]any, 0, len(args)+1)
		out = append(out, ctx)
		out = append(out, args...)
		return out
	}
	return args
}

// callReflected invokes mv with args, converting each JSON-shaped argument
// (float64, string, bool, []any, map[string]any, ...) to mv's declared
// parameter type, and unpacks a conventional (result, error), (error), or
// (result) return shape. This is this module's reflect-based method
// dispatcher: no pack example implements a generic-by-name RPC invoker
// outside a vendored framework, so it is grounded directly on
// encode.go/decode.go's own use of package reflect rather than a
// third-party library (see DESIGN.md).
func callReflected(mv reflect.Value, args []any) (any, error) {
	t := mv.Type()
	variadic := t.IsVariadic()
	minIn := t.NumIn()
	if variadic {
		minIn--
	}
	if (!variadic && len(args) != t.NumIn()) || (variadic && len(args) < minIn) {
		return nil, &TypeError{Reason: fmt.Sprintf("method expects %d argument(s), got %d", t.NumIn(), len(args))}
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var want reflect.Type
		if variadic && i >= minIn {
			want = t.In(t.NumIn() - 1).Elem()
		} else {
			want = t.In(i)
		}
		v, ok := convertArg(a, want)
		if !ok {
			return nil, &TypeError{Reason: fmt.Sprintf("argument %d: cannot convert %T to %s", i, a, want)}
		}
		in[i] = v
	}

	out := mv.Call(in)
	return unpackResults(out)
}

// unpackResults implements the conventional Go return shapes a target
// method may use: (value, error), (error), (value), or no return value.
func unpackResults(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if out[0].Type().Implements(errType) {
			if out[0].IsNil() {
				return nil, nil
			}
			return nil, out[0].Interface().(error)
		}
		return out[0].Interface(), nil
	default:
		last := out[len(out)-1]
		var err error
		if last.Type().Implements(errType) && !last.IsNil() {
			err = last.Interface().(error)
		}
		if out[0].Type().Implements(errType) {
			return nil, err
		}
		return out[0].Interface(), err
	}
}

func indirect(rv reflect.Value) reflect.Value {
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}

func value2AssignableTo(v reflect.Value, t reflect.Type) bool {
	return v.IsValid() && v.Type().AssignableTo(t)
}

// convertArg converts a decoded wire argument (produced by decode.go's
// encoding/json-backed fromWire, so numbers surface as float64, objects as
// map[string]any, arrays as []any) to want, the declared Go parameter type.
func convertArg(a any, want reflect.Type) (reflect.Value, bool) {
	if a == nil {
		return reflect.Zero(want), true
	}
	av := reflect.ValueOf(a)
	if av.Type().AssignableTo(want) {
		return av, true
	}
	if want == reflect.TypeOf((*any)(nil)).Elem() {
		return av, true
	}
	if av.Type().ConvertibleTo(want) && isNumericKind(av.Kind()) && isNumericKind(want.Kind()) {
		return av.Convert(want), true
	}
	if want.Kind() == reflect.Interface && av.Type().Implements(want) {
		return av, true
	}
	if want.Kind() == reflect.Slice && av.Kind() == reflect.Slice {
		out := reflect.MakeSlice(want, av.Len(), av.Len())
		for i := 0; i < av.Len(); i++ {
			cv, ok := convertArg(av.Index(i).Interface(), want.Elem())
			if !ok {
				return reflect.Value{}, false
			}
			out.Index(i).Set(cv)
		}
		return out, true
	}
	if want.Kind() == reflect.Ptr && av.Type().ConvertibleTo(want.Elem()) {
		ptr := reflect.New(want.Elem())
		cv, ok := convertArg(a, want.Elem())
		if !ok {
			return reflect.Value{}, false
		}
		ptr.Elem().Set(cv)
		return ptr, true
	}
	return reflect.Value{}, false
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

package rpcservice

import (
	"fmt"
	"reflect"

	"github.com/matrixant/message-pack/value"
)

// decodeInto fills dst (addressable, obtained via reflect.New(...).Elem())
// from v. Structs are populated from a Map value keyed by field name;
// everything else follows the natural MessagePack<->Go correspondence the
// codec package already documents for the untyped value tree.
func decodeInto(v value.Value, dst reflect.Value) error {
	if dst.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return decodeInto(v, dst.Elem())
	}

	switch dst.Kind() {
	case reflect.Bool:
		b, ok := v.AsBool()
		if !ok {
			return fmt.Errorf("rpcservice: expected bool, got %s", v.Kind())
		}
		dst.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, ok := v.AsInt(); ok {
			dst.SetInt(i)
		} else if u, ok := v.AsUInt(); ok {
			dst.SetInt(int64(u))
		} else {
			return fmt.Errorf("rpcservice: expected int, got %s", v.Kind())
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u, ok := v.AsUInt(); ok {
			dst.SetUint(u)
		} else if i, ok := v.AsInt(); ok && i >= 0 {
			dst.SetUint(uint64(i))
		} else {
			return fmt.Errorf("rpcservice: expected uint, got %s", v.Kind())
		}
	case reflect.Float32, reflect.Float64:
		if f, ok := v.AsFloat64(); ok {
			dst.SetFloat(f)
		} else if f, ok := v.AsFloat32(); ok {
			dst.SetFloat(float64(f))
		} else {
			return fmt.Errorf("rpcservice: expected float, got %s", v.Kind())
		}
	case reflect.String:
		s, ok := v.AsStr()
		if !ok {
			return fmt.Errorf("rpcservice: expected str, got %s", v.Kind())
		}
		dst.SetString(s)
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			if b, ok := v.AsBin(); ok {
				dst.SetBytes(append([]byte(nil), b...))
				return nil
			}
		}
		elems, ok := v.AsArray()
		if !ok {
			return fmt.Errorf("rpcservice: expected array, got %s", v.Kind())
		}
		out := reflect.MakeSlice(dst.Type(), len(elems), len(elems))
		for i, e := range elems {
			if err := decodeInto(e, out.Index(i)); err != nil {
				return err
			}
		}
		dst.Set(out)
	case reflect.Map:
		pairs := v.Pairs()
		out := reflect.MakeMapWithSize(dst.Type(), len(pairs))
		for _, kv := range pairs {
			key := reflect.New(dst.Type().Key()).Elem()
			if err := decodeInto(kv.Key, key); err != nil {
				return err
			}
			val := reflect.New(dst.Type().Elem()).Elem()
			if err := decodeInto(kv.Val, val); err != nil {
				return err
			}
			out.SetMapIndex(key, val)
		}
		dst.Set(out)
	case reflect.Struct:
		for _, kv := range v.Pairs() {
			name, ok := kv.Key.AsStr()
			if !ok {
				continue
			}
			field := dst.FieldByName(name)
			if !field.IsValid() || !field.CanSet() {
				continue
			}
			if err := decodeInto(kv.Val, field); err != nil {
				return err
			}
		}
	case reflect.Interface:
		dst.Set(reflect.ValueOf(toInterface(v)))
	default:
		return fmt.Errorf("rpcservice: unsupported destination kind %s", dst.Kind())
	}
	return nil
}

// toInterface converts v into the nearest native Go type, for fields typed
// as interface{}.
func toInterface(v value.Value) any {
	switch v.Kind() {
	case value.KindNil:
		return nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindInt:
		i, _ := v.AsInt()
		return i
	case value.KindUInt:
		u, _ := v.AsUInt()
		return u
	case value.KindFloat32:
		f, _ := v.AsFloat32()
		return f
	case value.KindFloat64:
		f, _ := v.AsFloat64()
		return f
	case value.KindStr:
		s, _ := v.AsStr()
		return s
	case value.KindBin:
		b, _ := v.AsBin()
		return b
	case value.KindArray:
		elems, _ := v.AsArray()
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = toInterface(e)
		}
		return out
	case value.KindMap:
		pairs := v.Pairs()
		out := make(map[string]any, len(pairs))
		for _, kv := range pairs {
			k, _ := kv.Key.AsStr()
			out[k] = toInterface(kv.Val)
		}
		return out
	default:
		return nil
	}
}

// encodeReflect is decodeInto's inverse: it builds a value.Value tree out
// of a Go value returned from a bound method's *Reply argument.
func encodeReflect(rv reflect.Value) value.Value {
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return value.Nil()
		}
		return encodeReflect(rv.Elem())
	}

	switch rv.Kind() {
	case reflect.Bool:
		return value.Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return value.Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return value.UInt(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return value.Float64(rv.Float())
	case reflect.String:
		return value.Str(rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return value.Bin(append([]byte(nil), rv.Bytes()...))
		}
		elems := make([]value.Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elems[i] = encodeReflect(rv.Index(i))
		}
		return value.Array(elems)
	case reflect.Map:
		pairs := make([]value.KV, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, value.KV{Key: encodeReflect(iter.Key()), Val: encodeReflect(iter.Value())})
		}
		return value.MapOf(pairs...)
	case reflect.Struct:
		pairs := make([]value.KV, 0, rv.NumField())
		t := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue
			}
			pairs = append(pairs, value.KV{Key: value.Str(f.Name), Val: encodeReflect(rv.Field(i))})
		}
		return value.MapOf(pairs...)
	case reflect.Interface:
		if rv.IsNil() {
			return value.Nil()
		}
		return encodeReflect(rv.Elem())
	default:
		return value.Nil()
	}
}

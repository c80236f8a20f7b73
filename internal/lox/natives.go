package lox

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// registerNatives installs the host-provided function surface (section 7's
// supplemented features): `clock` from the original tutorial plus a small
// `math_*`/`json_*` surface generalized from the teacher's modules/math.go
// and core/env.go onto Lox's single NumberValue/Value model.
func registerNatives(vm *VM) {
	def := func(name string, arity int, fn NativeFunc) {
		vm.globals[vm.heap.internString(name)] = vm.heap.newNative(name, arity, fn)
	}

	def("clock", 0, func(*VM, []Value) (Value, error) {
		return NumberValue(float64(time.Now().UnixNano()) / 1e9), nil
	})

	def("math_pi", 0, func(*VM, []Value) (Value, error) {
		return NumberValue(math.Pi), nil
	})
	def("math_sin", 1, requireNumber(math.Sin))
	def("math_cos", 1, requireNumber(math.Cos))
	def("math_sqrt", 1, requireNumber(math.Sqrt))
	def("math_floor", 1, requireNumber(math.Floor))
	def("math_ceil", 1, requireNumber(math.Ceil))
	def("math_abs", 1, requireNumber(math.Abs))
	def("math_pow", 2, func(_ *VM, args []Value) (Value, error) {
		base, ok := args[0].(NumberValue)
		if !ok {
			return Nil, fmt.Errorf("math_pow expects numbers")
		}
		exp, ok := args[1].(NumberValue)
		if !ok {
			return Nil, fmt.Errorf("math_pow expects numbers")
		}
		return NumberValue(math.Pow(float64(base), float64(exp))), nil
	})

	def("json_serialize", 1, func(vm *VM, args []Value) (Value, error) {
		native, err := toJSONScalar(args[0])
		if err != nil {
			return Nil, err
		}
		out, err := json.Marshal(native)
		if err != nil {
			return Nil, err
		}
		return vm.heap.internString(string(out)), nil
	})
	def("json_parse", 1, func(vm *VM, args []Value) (Value, error) {
		str, ok := args[0].(*ObjString)
		if !ok {
			return Nil, fmt.Errorf("json_parse expects a string")
		}
		var native interface{}
		if err := json.Unmarshal([]byte(str.chars), &native); err != nil {
			return Nil, err
		}
		return fromJSONScalar(vm.heap, native)
	})
}

func requireNumber(fn func(float64) float64) NativeFunc {
	return func(_ *VM, args []Value) (Value, error) {
		n, ok := args[0].(NumberValue)
		if !ok {
			return Nil, fmt.Errorf("expected a number")
		}
		return NumberValue(fn(float64(n))), nil
	}
}

// toJSONScalar/fromJSONScalar restrict json_* to the scalar subset Lox
// can represent without list/map literal syntax (section 4's data model):
// nil, bool, number, string. Composite values are out of scope.
func toJSONScalar(v Value) (interface{}, error) {
	switch val := v.(type) {
	case NilValue:
		return nil, nil
	case BoolValue:
		return bool(val), nil
	case NumberValue:
		return float64(val), nil
	case *ObjString:
		return val.chars, nil
	default:
		return nil, fmt.Errorf("json_serialize: unsupported value %s", v.String())
	}
}

func fromJSONScalar(heap *Heap, native interface{}) (Value, error) {
	switch val := native.(type) {
	case nil:
		return Nil, nil
	case bool:
		return BoolValue(val), nil
	case float64:
		return NumberValue(val), nil
	case string:
		return heap.internString(val), nil
	default:
		return Nil, fmt.Errorf("json_parse: unsupported JSON value")
	}
}

package packet

import (
	"errors"
	"fmt"
	"math"

	"github.com/phuhao00/scriptbridge/server/internal/model"
)

// ArgKind tags a native-call argument on the wire.
type ArgKind uint8

const (
	ArgBool ArgKind = iota + 1
	ArgInt
	ArgFloat
	ArgString
	ArgVector3
)

// MaxNativeArgs is the most arguments a single native call can carry.
const MaxNativeArgs = math.MaxUint8

var ErrUnsupportedArgument = errors.New("packet: unsupported native argument")

// NativeArg is one typed argument of a native call.
type NativeArg struct {
	Kind   ArgKind
	Bool   bool
	Int    int64
	Float  float64
	String string
	Vector model.Vector3
}

// Value returns the Go value carried by a.
func (a NativeArg) Value() interface{} {
	switch a.Kind {
	case ArgBool:
		return a.Bool
	case ArgInt:
		return a.Int
	case ArgFloat:
		return a.Float
	case ArgString:
		return a.String
	case ArgVector3:
		return a.Vector
	default:
		return nil
	}
}

func (a NativeArg) encode(w *Writer) {
	w.PutUint8(uint8(a.Kind))
	switch a.Kind {
	case ArgBool:
		w.PutBool(a.Bool)
	case ArgInt:
		w.PutInt64(a.Int)
	case ArgFloat:
		w.PutFloat64(a.Float)
	case ArgString:
		w.PutString(a.String)
	case ArgVector3:
		putVector(w, a.Vector)
	}
}

func (a *NativeArg) decode(r *Reader) {
	a.Kind = ArgKind(r.Uint8())
	switch a.Kind {
	case ArgBool:
		a.Bool = r.Bool()
	case ArgInt:
		a.Int = r.Int64()
	case ArgFloat:
		a.Float = r.Float64()
	case ArgString:
		a.String = r.String()
	case ArgVector3:
		a.Vector = readVector(r)
	default:
		if r.err == nil {
			r.err = fmt.Errorf("%w: kind %d", ErrUnsupportedArgument, uint8(a.Kind))
		}
	}
}

// ToNativeArg converts a Go value into its wire representation.
func ToNativeArg(v interface{}) (NativeArg, error) {
	switch x := v.(type) {
	case NativeArg:
		return x, nil
	case bool:
		return NativeArg{Kind: ArgBool, Bool: x}, nil
	case int:
		return NativeArg{Kind: ArgInt, Int: int64(x)}, nil
	case int8:
		return NativeArg{Kind: ArgInt, Int: int64(x)}, nil
	case int16:
		return NativeArg{Kind: ArgInt, Int: int64(x)}, nil
	case int32:
		return NativeArg{Kind: ArgInt, Int: int64(x)}, nil
	case int64:
		return NativeArg{Kind: ArgInt, Int: x}, nil
	case uint8:
		return NativeArg{Kind: ArgInt, Int: int64(x)}, nil
	case uint16:
		return NativeArg{Kind: ArgInt, Int: int64(x)}, nil
	case uint32:
		return NativeArg{Kind: ArgInt, Int: int64(x)}, nil
	case uint64:
		if x > math.MaxInt64 {
			return NativeArg{}, fmt.Errorf("%w: uint64 %d overflows int64", ErrUnsupportedArgument, x)
		}
		return NativeArg{Kind: ArgInt, Int: int64(x)}, nil
	case float32:
		return NativeArg{Kind: ArgFloat, Float: float64(x)}, nil
	case float64:
		return NativeArg{Kind: ArgFloat, Float: x}, nil
	case string:
		return NativeArg{Kind: ArgString, String: x}, nil
	case model.Vector3:
		return NativeArg{Kind: ArgVector3, Vector: x}, nil
	case *model.Vector3:
		if x == nil {
			return NativeArg{}, fmt.Errorf("%w: nil *model.Vector3", ErrUnsupportedArgument)
		}
		return NativeArg{Kind: ArgVector3, Vector: *x}, nil
	default:
		return NativeArg{}, fmt.Errorf("%w: %T", ErrUnsupportedArgument, v)
	}
}

// ToNativeArgs converts every value or fails on the first one that cannot be
// represented. A partial list is never returned.
func ToNativeArgs(values ...interface{}) ([]NativeArg, error) {
	if len(values) > MaxNativeArgs {
		return nil, fmt.Errorf("%w: %d arguments exceeds %d", ErrUnsupportedArgument, len(values), MaxNativeArgs)
	}
	out := make([]NativeArg, 0, len(values))
	for i, v := range values {
		a, err := ToNativeArg(v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Kyooooma/RMDB/errors"
)

// Value is one typed column value, either read out of a record or taken
// from a statement literal. Raw holds the fixed-width on-disk image once
// InitRaw has run.
type Value struct {
	Type        ColType
	IntVal      int32
	FloatVal    float64
	BigintVal   int64
	DatetimeVal int64
	StrVal      string
	Raw         []byte
}

func NewIntValue(v int32) Value      { return Value{Type: TypeInt, IntVal: v} }
func NewFloatValue(v float64) Value  { return Value{Type: TypeFloat, FloatVal: v} }
func NewBigintValue(v int64) Value   { return Value{Type: TypeBigint, BigintVal: v} }
func NewStringValue(v string) Value  { return Value{Type: TypeString, StrVal: v} }
func NewDatetimeValue(v int64) Value { return Value{Type: TypeDatetime, DatetimeVal: v} }

func (v *Value) SetInt(val int32) {
	v.Type = TypeInt
	v.IntVal = val
	v.Raw = nil
}

func (v *Value) SetFloat(val float64) {
	v.Type = TypeFloat
	v.FloatVal = val
	v.Raw = nil
}

func (v *Value) SetBigint(val int64) {
	v.Type = TypeBigint
	v.BigintVal = val
	v.Raw = nil
}

func (v *Value) SetString(val string) {
	v.Type = TypeString
	v.StrVal = val
	v.Raw = nil
}

func (v *Value) SetDatetime(val int64) {
	v.Type = TypeDatetime
	v.DatetimeVal = val
	v.Raw = nil
}

// InitRaw builds the fixed-width byte image of the value. For strings
// the declared column width caps the value.
func (v *Value) InitRaw(length int32) error {
	buf := new(bytes.Buffer)
	switch v.Type {
	case TypeInt:
		binary.Write(buf, binary.LittleEndian, v.IntVal)
	case TypeFloat:
		binary.Write(buf, binary.LittleEndian, v.FloatVal)
	case TypeBigint:
		binary.Write(buf, binary.LittleEndian, v.BigintVal)
	case TypeDatetime:
		binary.Write(buf, binary.LittleEndian, v.DatetimeVal)
	case TypeString:
		if int32(len(v.StrVal)) > length {
			return errors.NewStringOverflow()
		}
		raw := make([]byte, length)
		copy(raw, v.StrVal)
		v.Raw = raw
		return nil
	default:
		return errors.NewInternal("InitRaw: unexpected value type %d", v.Type)
	}
	v.Raw = buf.Bytes()
	return nil
}

// ValueFromBytes decodes the fixed-width image at data into a Value.
func ValueFromBytes(colType ColType, data []byte) Value {
	switch colType {
	case TypeInt:
		return NewIntValue(int32(binary.LittleEndian.Uint32(data)))
	case TypeFloat:
		return NewFloatValue(math.Float64frombits(binary.LittleEndian.Uint64(data)))
	case TypeBigint:
		return NewBigintValue(int64(binary.LittleEndian.Uint64(data)))
	case TypeDatetime:
		return NewDatetimeValue(int64(binary.LittleEndian.Uint64(data)))
	case TypeString:
		end := bytes.IndexByte(data, 0)
		if end == -1 {
			end = len(data)
		}
		return NewStringValue(string(data[:end]))
	}
	return Value{}
}

// DatetimeToString renders a packed YYYYMMDDHHMMSS value as the
// canonical "YYYY-MM-DD HH:MM:SS".
func DatetimeToString(x int64) string {
	parts := make([]int64, 5)
	for i := 4; i >= 0; i-- {
		parts[i] = x % 100
		x /= 100
	}
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		x, parts[0], parts[1], parts[2], parts[3], parts[4])
}

// StringToDatetime parses "YYYY-MM-DD HH:MM:SS" into the packed decimal
// representation. The calendar is validated coarsely.
func StringToDatetime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if len(s) != 19 || s[4] != '-' || s[7] != '-' || s[10] != ' ' || s[13] != ':' || s[16] != ':' {
		return 0, errors.NewIncompatibleType("DATETIME", "CHAR")
	}
	get := func(from, to int) (int64, error) {
		n, err := strconv.ParseInt(s[from:to], 10, 64)
		if err != nil {
			return 0, errors.NewIncompatibleType("DATETIME", "CHAR")
		}
		return n, nil
	}
	year, err := get(0, 4)
	if err != nil {
		return 0, err
	}
	month, err := get(5, 7)
	if err != nil {
		return 0, err
	}
	day, err := get(8, 10)
	if err != nil {
		return 0, err
	}
	hour, err := get(11, 13)
	if err != nil {
		return 0, err
	}
	minute, err := get(14, 16)
	if err != nil {
		return 0, err
	}
	second, err := get(17, 19)
	if err != nil {
		return 0, err
	}
	if year < 1000 || month < 1 || month > 12 || day < 1 || day > 31 ||
		hour > 23 || minute > 59 || second > 59 {
		return 0, errors.NewIncompatibleType("DATETIME", "CHAR")
	}
	return ((((year*100+month)*100+day)*100+hour)*100+minute)*100 + second, nil
}

// Convert applies the implicit promotion rules to make a and b the same
// type: int->float, int->bigint, bigint->float, datetime<->string.
func Convert(a *Value, b *Value) error {
	if a.Type == b.Type {
		return nil
	}
	switch a.Type {
	case TypeFloat:
		if b.Type == TypeInt {
			b.SetFloat(float64(b.IntVal))
			return nil
		}
		if b.Type == TypeBigint {
			b.SetFloat(float64(b.BigintVal))
			return nil
		}
	case TypeInt:
		if b.Type == TypeFloat {
			a.SetFloat(float64(a.IntVal))
			return nil
		}
		if b.Type == TypeBigint {
			a.SetBigint(int64(a.IntVal))
			return nil
		}
	case TypeBigint:
		if b.Type == TypeInt {
			b.SetBigint(int64(b.IntVal))
			return nil
		}
		if b.Type == TypeFloat {
			a.SetFloat(float64(a.BigintVal))
			return nil
		}
	case TypeDatetime:
		if b.Type == TypeString {
			dt, err := StringToDatetime(b.StrVal)
			if err != nil {
				a.SetString(DatetimeToString(a.DatetimeVal))
				return nil
			}
			b.SetDatetime(dt)
			return nil
		}
	case TypeString:
		if b.Type == TypeDatetime {
			dt, err := StringToDatetime(a.StrVal)
			if err != nil {
				b.SetString(DatetimeToString(b.DatetimeVal))
				return nil
			}
			a.SetDatetime(dt)
			return nil
		}
	}
	return errors.NewIncompatibleType(a.Type.String(), b.Type.String())
}

// CoerceTo converts v in place to target where the promotion rules allow
// it, for storing a literal into a column of a different type.
func (v *Value) CoerceTo(target ColType) error {
	if v.Type == target {
		return nil
	}
	switch {
	case target == TypeFloat && v.Type == TypeInt:
		v.SetFloat(float64(v.IntVal))
	case target == TypeFloat && v.Type == TypeBigint:
		v.SetFloat(float64(v.BigintVal))
	case target == TypeBigint && v.Type == TypeInt:
		v.SetBigint(int64(v.IntVal))
	case target == TypeDatetime && v.Type == TypeString:
		dt, err := StringToDatetime(v.StrVal)
		if err != nil {
			return err
		}
		v.SetDatetime(dt)
	default:
		return errors.NewIncompatibleType(target.String(), v.Type.String())
	}
	return nil
}

// Compare orders a against b after implicit conversion; the result is
// the usual -1/0/1.
func Compare(a Value, b Value) (int, error) {
	if err := Convert(&a, &b); err != nil {
		return 0, err
	}
	switch a.Type {
	case TypeInt:
		return compareOrdered(a.IntVal, b.IntVal), nil
	case TypeFloat:
		return compareOrdered(a.FloatVal, b.FloatVal), nil
	case TypeBigint:
		return compareOrdered(a.BigintVal, b.BigintVal), nil
	case TypeDatetime:
		return compareOrdered(a.DatetimeVal, b.DatetimeVal), nil
	case TypeString:
		return strings.Compare(a.StrVal, b.StrVal), nil
	}
	return 0, errors.NewInternal("Compare: unexpected value type %d", a.Type)
}

func compareOrdered[T int32 | int64 | float64](a T, b T) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// String renders the value the way the result printer shows it.
func (v Value) String() string {
	switch v.Type {
	case TypeInt:
		return strconv.FormatInt(int64(v.IntVal), 10)
	case TypeFloat:
		return strconv.FormatFloat(v.FloatVal, 'f', 6, 64)
	case TypeBigint:
		return strconv.FormatInt(v.BigintVal, 10)
	case TypeDatetime:
		return DatetimeToString(v.DatetimeVal)
	case TypeString:
		return v.StrVal
	}
	return ""
}

// MinValueBytes returns the least possible fixed-width image for the
// type, used to fill composite key suffixes when positioning a scan.
func MinValueBytes(colType ColType, length int32) []byte {
	v := Value{}
	switch colType {
	case TypeInt:
		v.SetInt(math.MinInt32)
	case TypeFloat:
		v.SetFloat(-math.MaxFloat64)
	case TypeBigint:
		v.SetBigint(math.MinInt64)
	case TypeDatetime:
		v.SetDatetime(10000101000000)
	case TypeString:
		v.SetString("")
	}
	v.InitRaw(length)
	return v.Raw
}

// MaxValueBytes is the greatest counterpart of MinValueBytes.
func MaxValueBytes(colType ColType, length int32) []byte {
	v := Value{}
	switch colType {
	case TypeInt:
		v.SetInt(math.MaxInt32)
	case TypeFloat:
		v.SetFloat(math.MaxFloat64)
	case TypeBigint:
		v.SetBigint(math.MaxInt64)
	case TypeDatetime:
		v.SetDatetime(99991231235959)
	case TypeString:
		v.SetString(strings.Repeat(string(rune(127)), int(length)))
	}
	v.InitRaw(length)
	return v.Raw
}

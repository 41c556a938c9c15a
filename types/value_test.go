package types

import (
	"testing"

	testingpkg "github.com/Kyooooma/RMDB/testing/testing_assert"
)

func TestCompareWithPromotion(t *testing.T) {
	// int vs float
	cmp, err := Compare(NewIntValue(3), NewFloatValue(3.5))
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, -1, cmp)

	// int vs bigint
	cmp, err = Compare(NewIntValue(7), NewBigintValue(7))
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, 0, cmp)

	// bigint vs float
	cmp, err = Compare(NewBigintValue(10), NewFloatValue(9.5))
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, 1, cmp)

	// string vs string is lexicographic
	cmp, err = Compare(NewStringValue("abc"), NewStringValue("abd"))
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, -1, cmp)

	// string vs int is illegal
	_, err = Compare(NewStringValue("1"), NewIntValue(1))
	testingpkg.Assert(t, err != nil, "string vs int must be rejected")
}

func TestDatetimeConversion(t *testing.T) {
	dt, err := StringToDatetime("2023-01-02 03:04:05")
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, int64(20230102030405), dt)
	testingpkg.Equals(t, "2023-01-02 03:04:05", DatetimeToString(dt))

	_, err = StringToDatetime("not a datetime")
	testingpkg.Assert(t, err != nil, "malformed datetime must be rejected")

	// datetime vs canonical string compares equal
	cmp, err := Compare(NewDatetimeValue(dt), NewStringValue("2023-01-02 03:04:05"))
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, 0, cmp)
}

func TestRawRoundTrip(t *testing.T) {
	v := NewIntValue(-42)
	testingpkg.Ok(t, v.InitRaw(4))
	testingpkg.Equals(t, NewIntValue(-42), ValueFromBytes(TypeInt, v.Raw))

	f := NewFloatValue(2.5)
	testingpkg.Ok(t, f.InitRaw(8))
	testingpkg.Equals(t, NewFloatValue(2.5), ValueFromBytes(TypeFloat, f.Raw))

	s := NewStringValue("ab")
	testingpkg.Ok(t, s.InitRaw(4))
	testingpkg.Equals(t, 4, len(s.Raw))
	testingpkg.Equals(t, "ab", ValueFromBytes(TypeString, s.Raw).StrVal)

	long := NewStringValue("abcde")
	err := long.InitRaw(4)
	testingpkg.Assert(t, err != nil, "overlong string must overflow")
}

func TestMinMaxValueBytesOrder(t *testing.T) {
	for _, colType := range []ColType{TypeInt, TypeFloat, TypeBigint, TypeDatetime} {
		length := colType.FixedLen()
		min := ValueFromBytes(colType, MinValueBytes(colType, length))
		max := ValueFromBytes(colType, MaxValueBytes(colType, length))
		cmp, err := Compare(min, max)
		testingpkg.Ok(t, err)
		testingpkg.Equals(t, -1, cmp)
	}
}

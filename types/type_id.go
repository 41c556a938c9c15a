package types

// ColType is the declared type of a table column.
type ColType int32

const (
	TypeInt ColType = iota
	TypeFloat
	TypeBigint
	TypeString
	TypeDatetime
)

func (t ColType) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeBigint:
		return "BIGINT"
	case TypeString:
		return "CHAR"
	case TypeDatetime:
		return "DATETIME"
	}
	return "UNKNOWN"
}

// FixedLen returns the storage width of t, or -1 for strings whose
// width comes from the declaration.
func (t ColType) FixedLen() int32 {
	switch t {
	case TypeInt:
		return 4
	case TypeFloat:
		return 8
	case TypeBigint:
		return 8
	case TypeDatetime:
		return 8
	}
	return -1
}

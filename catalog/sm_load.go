package catalog

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/concurrency"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/recovery"
	"github.com/Kyooooma/RMDB/types"
)

// LoadRecord bulk-inserts the rows of a CSV file into the table through
// the regular insert path: every row is logged and indexed. A header
// line naming the first column is skipped.
func (sm *SmManager) LoadRecord(fileName string, tabName string, ctx *concurrency.Context) (int, error) {
	tab, err := sm.Db.GetTable(tabName)
	if err != nil {
		return 0, err
	}
	fh, ok := sm.Fhs[tabName]
	if !ok {
		return 0, errors.NewTableNotFound(tabName)
	}

	file, err := os.Open(fileName)
	if err != nil {
		return 0, errors.NewUnixError(err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return 0, errors.NewUnixError(err)
	}

	count := 0
	for rowIdx, row := range rows {
		if rowIdx == 0 && len(row) > 0 && len(tab.Cols) > 0 && row[0] == tab.Cols[0].Name {
			continue
		}
		if len(row) != len(tab.Cols) {
			return count, errors.NewInvalidValueCount()
		}
		recData := make([]byte, tab.RecordSize())
		for i, field := range row {
			col := tab.Cols[i]
			value, err := parseCsvValue(field, col.Type)
			if err != nil {
				return count, err
			}
			if err := value.InitRaw(col.Len); err != nil {
				return count, err
			}
			copy(recData[col.Offset:col.Offset+col.Len], value.Raw)
		}

		rid, err := fh.InsertRecord(recData, ctx)
		if err != nil {
			return count, err
		}
		if ctx != nil {
			logRecord := recovery.NewInsertDeleteLogRecord(ctx.Txn.GetTransactionId(), recovery.LogInsert, tabName, rid, recData)
			if err := ctx.AppendLog(logRecord); err != nil {
				return count, err
			}
			wr := concurrency.NewWriteRecord(concurrency.WInsert, tabName, rid, recData)
			ctx.Txn.AppendWriteRecord(wr)
		}
		if err := sm.InsertIndexEntries(ctx, tabName, recData, rid); err != nil {
			return count, err
		}
		count++
	}
	common.Logger.WithField("table", tabName).WithField("rows", count).Info("load finished")
	return count, nil
}

func parseCsvValue(field string, colType types.ColType) (types.Value, error) {
	switch colType {
	case types.TypeInt:
		n, err := strconv.ParseInt(field, 10, 32)
		if err != nil {
			return types.Value{}, errors.NewIncompatibleType("INT", "CHAR")
		}
		return types.NewIntValue(int32(n)), nil
	case types.TypeBigint:
		n, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return types.Value{}, errors.NewIncompatibleType("BIGINT", "CHAR")
		}
		return types.NewBigintValue(n), nil
	case types.TypeFloat:
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return types.Value{}, errors.NewIncompatibleType("FLOAT", "CHAR")
		}
		return types.NewFloatValue(f), nil
	case types.TypeDatetime:
		dt, err := types.StringToDatetime(field)
		if err != nil {
			return types.Value{}, err
		}
		return types.NewDatetimeValue(dt), nil
	default:
		return types.NewStringValue(field), nil
	}
}

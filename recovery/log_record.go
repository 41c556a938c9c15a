package recovery

import (
	"bytes"
	"encoding/binary"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/types"
)

type LogType int32

const (
	LogInvalid LogType = iota
	LogBegin
	LogCommit
	LogAbort
	LogInsert
	LogDelete
	LogUpdate
	LogIndexInsert
	LogIndexDelete
)

func (t LogType) String() string {
	switch t {
	case LogBegin:
		return "BEGIN"
	case LogCommit:
		return "COMMIT"
	case LogAbort:
		return "ABORT"
	case LogInsert:
		return "INSERT"
	case LogDelete:
		return "DELETE"
	case LogUpdate:
		return "UPDATE"
	case LogIndexInsert:
		return "INDEX_INSERT"
	case LogIndexDelete:
		return "INDEX_DELETE"
	}
	return "INVALID"
}

/**
 * Every log record starts with the same five fields (4 bytes each,
 * 20 bytes in total).
 *-----------------------------------------------
 * | type | LSN | log_tot_len | txn_id | prevLSN |
 *-----------------------------------------------
 * For insert/delete type log record
 *--------------------------------------------------------------
 * | HEADER | rid | record_size | record_data | table_name(lp) |
 *--------------------------------------------------------------
 * For update type log record
 *----------------------------------------------------------------------------------------
 * | HEADER | rid | record_size | old_data | record_size | new_data | table_name(lp) |
 *----------------------------------------------------------------------------------------
 * For index insert/delete type log record
 *--------------------------------------------------------
 * | HEADER | rid | key_size | key_data | index_name(lp) |
 *--------------------------------------------------------
 * Strings are length prefixed with an int32.
 */

const LogHeaderSize int32 = 20

// size of a serialized rid (page_no + slot_no)
const ridSize int32 = 8

type LogRecord struct {
	LogType   LogType
	Lsn       types.LSN
	LogTotLen int32
	TxnID     common.TxnID
	PrevLsn   types.LSN

	// INSERT / DELETE / UPDATE
	TableName string
	Rid       types.Rid
	Record    []byte
	// UPDATE carries both images: Record is the before image,
	// NewRecord the after image.
	NewRecord []byte

	// INDEX_INSERT / INDEX_DELETE
	IndexName string
	Key       []byte
}

// constructor for transaction type (BEGIN/COMMIT/ABORT)
func NewTxnLogRecord(txnID common.TxnID, logType LogType) *LogRecord {
	ret := new(LogRecord)
	ret.LogType = logType
	ret.TxnID = txnID
	ret.Lsn = common.InvalidLSN
	ret.PrevLsn = common.InvalidLSN
	ret.LogTotLen = LogHeaderSize
	return ret
}

// constructor for INSERT/DELETE type
func NewInsertDeleteLogRecord(txnID common.TxnID, logType LogType, tabName string, rid types.Rid, record []byte) *LogRecord {
	ret := new(LogRecord)
	ret.LogType = logType
	ret.TxnID = txnID
	ret.Lsn = common.InvalidLSN
	ret.PrevLsn = common.InvalidLSN
	ret.TableName = tabName
	ret.Rid = rid
	ret.Record = append([]byte(nil), record...)
	ret.LogTotLen = LogHeaderSize + ridSize + 4 + int32(len(record)) + 4 + int32(len(tabName))
	return ret
}

// constructor for UPDATE type
func NewUpdateLogRecord(txnID common.TxnID, tabName string, rid types.Rid, oldRecord []byte, newRecord []byte) *LogRecord {
	ret := new(LogRecord)
	ret.LogType = LogUpdate
	ret.TxnID = txnID
	ret.Lsn = common.InvalidLSN
	ret.PrevLsn = common.InvalidLSN
	ret.TableName = tabName
	ret.Rid = rid
	ret.Record = append([]byte(nil), oldRecord...)
	ret.NewRecord = append([]byte(nil), newRecord...)
	ret.LogTotLen = LogHeaderSize + ridSize + 4 + int32(len(oldRecord)) + 4 + int32(len(newRecord)) + 4 + int32(len(tabName))
	return ret
}

// constructor for INDEX_INSERT/INDEX_DELETE type
func NewIndexLogRecord(txnID common.TxnID, logType LogType, ixName string, key []byte, rid types.Rid) *LogRecord {
	ret := new(LogRecord)
	ret.LogType = logType
	ret.TxnID = txnID
	ret.Lsn = common.InvalidLSN
	ret.PrevLsn = common.InvalidLSN
	ret.IndexName = ixName
	ret.Key = append([]byte(nil), key...)
	ret.Rid = rid
	ret.LogTotLen = LogHeaderSize + ridSize + 4 + int32(len(key)) + 4 + int32(len(ixName))
	return ret
}

func (r *LogRecord) GetLSN() types.LSN     { return r.Lsn }
func (r *LogRecord) GetTxnID() common.TxnID { return r.TxnID }
func (r *LogRecord) GetPrevLSN() types.LSN { return r.PrevLsn }
func (r *LogRecord) GetSize() int32        { return r.LogTotLen }

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, int32(len(s)))
	buf.WriteString(s)
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.LittleEndian, int32(len(b)))
	buf.Write(b)
}

// Serialize renders the record in its on-disk layout.
func (r *LogRecord) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, int32(r.LogType))
	binary.Write(buf, binary.LittleEndian, int32(r.Lsn))
	binary.Write(buf, binary.LittleEndian, r.LogTotLen)
	binary.Write(buf, binary.LittleEndian, int32(r.TxnID))
	binary.Write(buf, binary.LittleEndian, int32(r.PrevLsn))

	switch r.LogType {
	case LogInsert, LogDelete:
		binary.Write(buf, binary.LittleEndian, int32(r.Rid.PageNo))
		binary.Write(buf, binary.LittleEndian, r.Rid.SlotNo)
		writeBytes(buf, r.Record)
		writeString(buf, r.TableName)
	case LogUpdate:
		binary.Write(buf, binary.LittleEndian, int32(r.Rid.PageNo))
		binary.Write(buf, binary.LittleEndian, r.Rid.SlotNo)
		writeBytes(buf, r.Record)
		writeBytes(buf, r.NewRecord)
		writeString(buf, r.TableName)
	case LogIndexInsert, LogIndexDelete:
		binary.Write(buf, binary.LittleEndian, int32(r.Rid.PageNo))
		binary.Write(buf, binary.LittleEndian, r.Rid.SlotNo)
		writeBytes(buf, r.Key)
		writeString(buf, r.IndexName)
	}
	return buf.Bytes()
}

type logReader struct {
	data []byte
	pos  int32
	err  error
}

func (lr *logReader) int32_() int32 {
	if lr.err != nil {
		return 0
	}
	if lr.pos+4 > int32(len(lr.data)) {
		lr.err = errors.NewInternal("log record truncated")
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(lr.data[lr.pos:]))
	lr.pos += 4
	return v
}

func (lr *logReader) bytes_() []byte {
	n := lr.int32_()
	if lr.err != nil {
		return nil
	}
	if n < 0 || lr.pos+n > int32(len(lr.data)) {
		lr.err = errors.NewInternal("log record truncated")
		return nil
	}
	v := append([]byte(nil), lr.data[lr.pos:lr.pos+n]...)
	lr.pos += n
	return v
}

// DeserializeLogRecord parses one record from the head of data. data
// must hold at least LogTotLen bytes of the record.
func DeserializeLogRecord(data []byte) (*LogRecord, error) {
	lr := &logReader{data: data}
	ret := new(LogRecord)
	ret.LogType = LogType(lr.int32_())
	ret.Lsn = types.LSN(lr.int32_())
	ret.LogTotLen = lr.int32_()
	ret.TxnID = common.TxnID(lr.int32_())
	ret.PrevLsn = types.LSN(lr.int32_())
	if lr.err != nil {
		return nil, lr.err
	}

	switch ret.LogType {
	case LogBegin, LogCommit, LogAbort:
		// header only
	case LogInsert, LogDelete:
		ret.Rid.PageNo = types.PageID(lr.int32_())
		ret.Rid.SlotNo = lr.int32_()
		ret.Record = lr.bytes_()
		ret.TableName = string(lr.bytes_())
	case LogUpdate:
		ret.Rid.PageNo = types.PageID(lr.int32_())
		ret.Rid.SlotNo = lr.int32_()
		ret.Record = lr.bytes_()
		ret.NewRecord = lr.bytes_()
		ret.TableName = string(lr.bytes_())
	case LogIndexInsert, LogIndexDelete:
		ret.Rid.PageNo = types.PageID(lr.int32_())
		ret.Rid.SlotNo = lr.int32_()
		ret.Key = lr.bytes_()
		ret.IndexName = string(lr.bytes_())
	default:
		return nil, errors.NewInternal("unknown log record type %d", ret.LogType)
	}
	if lr.err != nil {
		return nil, lr.err
	}
	return ret, nil
}

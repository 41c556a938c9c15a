package recovery

import (
	"sync"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/storage/disk"
	"github.com/Kyooooma/RMDB/types"
)

/**
 * LogManager buffers serialized log records on memory and writes the
 * buffer out when it would overflow or when a caller forces a flush.
 * LSN assignment happens under the manager's latch, so LSNs are dense
 * and strictly increasing in file order.
 */
type LogManager struct {
	latch  sync.Mutex
	offset int32
	// lsn of the newest record held in the buffer
	logBufferLsn types.LSN
	/** the next log sequence number to hand out */
	nextLsn types.LSN
	/** records up to and including this lsn have reached disk */
	persistentLsn types.LSN
	logBuffer     []byte
	diskManager   disk.DiskManager
}

func NewLogManager(diskManager disk.DiskManager) *LogManager {
	ret := new(LogManager)
	ret.nextLsn = 0
	ret.persistentLsn = common.InvalidLSN
	ret.logBuffer = make([]byte, 0, common.LogBufferSize)
	ret.diskManager = diskManager
	return ret
}

func (lm *LogManager) GetNextLSN() types.LSN {
	lm.latch.Lock()
	defer lm.latch.Unlock()
	return lm.nextLsn
}

// SetNextLSN seeds the counter after recovery replayed an existing log.
func (lm *LogManager) SetNextLSN(lsn types.LSN) {
	lm.latch.Lock()
	defer lm.latch.Unlock()
	lm.nextLsn = lsn
}

func (lm *LogManager) GetPersistentLSN() types.LSN {
	lm.latch.Lock()
	defer lm.latch.Unlock()
	return lm.persistentLsn
}

// AddLogToBuffer assigns the next LSN to the record and appends its
// serialized form to the buffer, flushing first if it would not fit.
func (lm *LogManager) AddLogToBuffer(logRecord *LogRecord) (types.LSN, error) {
	lm.latch.Lock()

	if lm.offset+logRecord.LogTotLen > common.LogBufferSize {
		if err := lm.flushNoLock(); err != nil {
			lm.latch.Unlock()
			return common.InvalidLSN, err
		}
	}

	logRecord.Lsn = lm.nextLsn
	lm.nextLsn++
	lm.logBuffer = append(lm.logBuffer, logRecord.Serialize()...)
	lm.offset += logRecord.LogTotLen
	lm.logBufferLsn = logRecord.Lsn

	lm.latch.Unlock()
	return logRecord.Lsn, nil
}

// Flush force-writes the buffered records. Called at commit and abort.
func (lm *LogManager) Flush() error {
	lm.latch.Lock()
	defer lm.latch.Unlock()
	return lm.flushNoLock()
}

func (lm *LogManager) flushNoLock() error {
	if lm.offset == 0 {
		return nil
	}
	if err := lm.diskManager.WriteLog(lm.logBuffer); err != nil {
		return err
	}
	lm.persistentLsn = lm.logBufferLsn
	lm.logBuffer = lm.logBuffer[:0]
	lm.offset = 0
	return nil
}

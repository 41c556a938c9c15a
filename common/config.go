package common

type TxnID int32

const (
	// invalid page id
	InvalidPageID = -1
	// invalid transaction id
	InvalidTxnID = -1
	// invalid log sequence number
	InvalidLSN = -1
	// size of a data page in byte
	PageSize = 4096
	// number for calculate log buffer size (number of page size)
	LogBufferSizeBase = 128
	// size of the log buffer in byte
	LogBufferSize = (LogBufferSizeBase + 1) * PageSize
	// default number of frames of the buffer pool
	BufferPoolSize = 256

	// page 0 of a table file holds the file header
	RmFileHdrPage = 0
	// first data page of a table file
	RmFirstRecordPage = 1
	// sentinel of the table free page list
	RmNoPage = -1

	// page 0 of an index file holds the file header
	IxFileHdrPage = 0
	// page 1 of an index file is the leaf list sentinel
	IxLeafHeaderPage = 1
	// first node page of an index file (initial root)
	IxInitRootPage = 2
	// sentinel of index page links
	IxNoPage = -1

	// max number of columns of a composite index
	IxMaxColNum = 8

	// number of outer tuples buffered by the nested loop join
	JoinBufferSize = 100
)

const EnableDebug bool = false

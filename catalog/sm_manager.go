package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/concurrency"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/recovery"
	"github.com/Kyooooma/RMDB/storage/buffer"
	"github.com/Kyooooma/RMDB/storage/disk"
	"github.com/Kyooooma/RMDB/storage/index"
	"github.com/Kyooooma/RMDB/storage/record"
	"github.com/Kyooooma/RMDB/types"
)

const DbMetaName = "db.meta"
const LogFileName = "log"

/**
 * SmManager owns the system catalog of the open database: the table
 * and index metadata, the open table file handles (Fhs) and the open
 * index handles (Ihs). DDL rewrites db.meta in full after every change.
 */
type SmManager struct {
	diskManager disk.DiskManager
	bpm         *buffer.BufferPoolManager
	rmManager   *record.RmManager
	ixManager   *index.IxManager

	Db     DbMeta
	dbPath string
	// open table files by table name
	Fhs map[string]*record.RmFileHandle
	// open index handles by index file name
	Ihs map[string]*index.IxIndexHandle
}

func NewSmManager(diskManager disk.DiskManager, bpm *buffer.BufferPoolManager,
	rmManager *record.RmManager, ixManager *index.IxManager) *SmManager {
	return &SmManager{
		diskManager: diskManager,
		bpm:         bpm,
		rmManager:   rmManager,
		ixManager:   ixManager,
		Fhs:         make(map[string]*record.RmFileHandle),
		Ihs:         make(map[string]*index.IxIndexHandle),
	}
}

func (sm *SmManager) GetRmManager() *record.RmManager        { return sm.rmManager }
func (sm *SmManager) GetIxManager() *index.IxManager         { return sm.ixManager }
func (sm *SmManager) GetBufferPoolManager() *buffer.BufferPoolManager { return sm.bpm }
func (sm *SmManager) GetDiskManager() disk.DiskManager       { return sm.diskManager }

// TablePath is where the table's heap file lives inside the database
// directory.
func (sm *SmManager) TablePath(tabName string) string {
	return filepath.Join(sm.dbPath, tabName)
}

func (sm *SmManager) IsDir(dbName string) bool {
	return sm.diskManager.IsDir(dbName)
}

// CreateDb creates the database directory with an empty catalog and the
// log file.
func (sm *SmManager) CreateDb(dbName string) error {
	if sm.IsDir(dbName) {
		return errors.NewDatabaseExists(dbName)
	}
	if err := sm.diskManager.CreateDir(dbName); err != nil {
		return err
	}
	db := DbMeta{Name: dbName, Tabs: make(map[string]*TabMeta)}
	data, err := json.MarshalIndent(&db, "", "  ")
	if err != nil {
		return errors.NewInternal("marshal of catalog failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dbName, DbMetaName), data, 0666); err != nil {
		return errors.NewUnixError(err)
	}
	if err := sm.diskManager.CreateFile(filepath.Join(dbName, LogFileName)); err != nil {
		return err
	}
	common.Logger.WithField("db", dbName).Info("database created")
	return nil
}

// DropDb removes the database directory with everything in it.
func (sm *SmManager) DropDb(dbName string) error {
	if !sm.IsDir(dbName) {
		return errors.NewDatabaseNotFound(dbName)
	}
	return sm.diskManager.RemoveDir(dbName)
}

// OpenDb loads the catalog and opens every table file and index file it
// names.
func (sm *SmManager) OpenDb(dbName string) error {
	if !sm.IsDir(dbName) {
		return errors.NewDatabaseNotFound(dbName)
	}
	sm.dbPath = dbName
	data, err := os.ReadFile(filepath.Join(dbName, DbMetaName))
	if err != nil {
		return errors.NewUnixError(err)
	}
	if err := json.Unmarshal(data, &sm.Db); err != nil {
		return errors.NewInternal("catalog is corrupted: %v", err)
	}
	if sm.Db.Tabs == nil {
		sm.Db.Tabs = make(map[string]*TabMeta)
	}
	for tabName, tab := range sm.Db.Tabs {
		fh, err := sm.rmManager.OpenFile(sm.TablePath(tabName))
		if err != nil {
			return err
		}
		sm.Fhs[tabName] = fh
		for i := range tab.Indexes {
			ixName := sm.ixManager.GetIndexName(sm.TablePath(tabName), tab.Indexes[i].ColNames())
			ih, err := sm.ixManager.OpenIndex(sm.TablePath(tabName), tab.Indexes[i].ColNames())
			if err != nil {
				return err
			}
			sm.Ihs[ixName] = ih
		}
	}
	if err := sm.diskManager.SetLogFile(filepath.Join(dbName, LogFileName)); err != nil {
		return err
	}
	common.Logger.WithField("db", dbName).Info("database opened")
	return nil
}

// FlushMeta rewrites the catalog file in full.
func (sm *SmManager) FlushMeta() error {
	data, err := json.MarshalIndent(&sm.Db, "", "  ")
	if err != nil {
		return errors.NewInternal("marshal of catalog failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sm.dbPath, DbMetaName), data, 0666); err != nil {
		return errors.NewUnixError(err)
	}
	return nil
}

// CloseDb flushes the catalog and closes everything.
func (sm *SmManager) CloseDb() error {
	if err := sm.FlushMeta(); err != nil {
		return err
	}
	for _, fh := range sm.Fhs {
		if err := sm.rmManager.CloseFile(fh); err != nil {
			return err
		}
	}
	for _, ih := range sm.Ihs {
		if err := sm.ixManager.CloseIndex(ih); err != nil {
			return err
		}
	}
	sm.Fhs = make(map[string]*record.RmFileHandle)
	sm.Ihs = make(map[string]*index.IxIndexHandle)
	sm.Db = DbMeta{}
	return nil
}

// ShowTables prints one row per table.
func (sm *SmManager) ShowTables(ctx *concurrency.Context) {
	printer := common.NewRecordPrinter(1)
	printer.PrintSeparator(ctx.Output)
	printer.PrintRecord([]string{"Tables"}, ctx.Output)
	printer.PrintSeparator(ctx.Output)
	var fileOut strings.Builder
	fileOut.WriteString("| Tables |\n")
	for tabName := range sm.Db.Tabs {
		printer.PrintRecord([]string{tabName}, ctx.Output)
		fileOut.WriteString("| " + tabName + " |\n")
	}
	printer.PrintSeparator(ctx.Output)
	if !ctx.OutputEllipsis {
		common.AppendOutputFile(fileOut.String())
	}
}

// DescTable prints the column layout of one table.
func (sm *SmManager) DescTable(tabName string, ctx *concurrency.Context) error {
	tab, err := sm.Db.GetTable(tabName)
	if err != nil {
		return err
	}
	printer := common.NewRecordPrinter(3)
	printer.PrintSeparator(ctx.Output)
	printer.PrintRecord([]string{"Field", "Type", "Index"}, ctx.Output)
	printer.PrintSeparator(ctx.Output)
	for _, col := range tab.Cols {
		indexed := "NO"
		if col.Index {
			indexed = "YES"
		}
		printer.PrintRecord([]string{col.Name, col.Type.String(), indexed}, ctx.Output)
	}
	printer.PrintSeparator(ctx.Output)
	return nil
}

// ShowIndex prints `| table | unique | (col,col,...) |` per index.
func (sm *SmManager) ShowIndex(tabName string, ctx *concurrency.Context) error {
	tab, err := sm.Db.GetTable(tabName)
	if err != nil {
		return err
	}
	printer := common.NewRecordPrinter(3)
	printer.PrintSeparator(ctx.Output)
	var fileOut strings.Builder
	for i := range tab.Indexes {
		cols := "(" + strings.Join(tab.Indexes[i].ColNames(), ",") + ")"
		printer.PrintRecord([]string{tabName, "unique", cols}, ctx.Output)
		fileOut.WriteString(fmt.Sprintf("| %s | unique | %s |\n", tabName, cols))
	}
	printer.PrintSeparator(ctx.Output)
	if !ctx.OutputEllipsis {
		common.AppendOutputFile(fileOut.String())
	}
	return nil
}

// ColDef is one column of a CREATE TABLE statement.
type ColDef struct {
	Name string
	Type types.ColType
	Len  int32
}

// CreateTable lays out the record format and creates the heap file.
func (sm *SmManager) CreateTable(tabName string, colDefs []ColDef, ctx *concurrency.Context) error {
	if sm.Db.IsTable(tabName) {
		return errors.NewTableExists(tabName)
	}
	currOffset := int32(0)
	tab := &TabMeta{Name: tabName}
	for _, def := range colDefs {
		length := def.Type.FixedLen()
		if def.Type == types.TypeString {
			length = def.Len
		}
		tab.Cols = append(tab.Cols, ColMeta{
			TabName: tabName,
			Name:    def.Name,
			Type:    def.Type,
			Len:     length,
			Offset:  currOffset,
		})
		currOffset += length
	}
	if err := sm.rmManager.CreateFile(sm.TablePath(tabName), currOffset); err != nil {
		return err
	}
	fh, err := sm.rmManager.OpenFile(sm.TablePath(tabName))
	if err != nil {
		return err
	}
	sm.Db.Tabs[tabName] = tab
	sm.Fhs[tabName] = fh
	return sm.FlushMeta()
}

// DropTable removes the table, its indexes and its heap file.
func (sm *SmManager) DropTable(tabName string, ctx *concurrency.Context) error {
	tab, err := sm.Db.GetTable(tabName)
	if err != nil {
		return err
	}
	if ctx != nil {
		if err := ctx.LockMgr.LockExclusiveOnTable(ctx.Txn, sm.Fhs[tabName].GetFd()); err != nil {
			return err
		}
	}
	for len(tab.Indexes) > 0 {
		if err := sm.DropIndex(tabName, tab.Indexes[0].ColNames(), ctx); err != nil {
			return err
		}
	}
	if fh, ok := sm.Fhs[tabName]; ok {
		if err := sm.rmManager.CloseFile(fh); err != nil {
			return err
		}
		delete(sm.Fhs, tabName)
	}
	if err := sm.rmManager.DestroyFile(sm.TablePath(tabName)); err != nil {
		return err
	}
	delete(sm.Db.Tabs, tabName)
	return sm.FlushMeta()
}

// CreateIndex builds a new index and fills it from the current table
// contents; a duplicate key fails the whole DDL.
func (sm *SmManager) CreateIndex(tabName string, colNames []string, ctx *concurrency.Context) error {
	tab, err := sm.Db.GetTable(tabName)
	if err != nil {
		return err
	}
	if _, err := tab.GetIndexMeta(colNames); err == nil {
		return errors.NewIndexExists(tabName, strings.Join(colNames, ","))
	}
	cols := make([]ColMeta, 0, len(colNames))
	colTypes := make([]types.ColType, 0, len(colNames))
	colLens := make([]int32, 0, len(colNames))
	totLen := int32(0)
	for _, name := range colNames {
		col, err := tab.GetCol(name)
		if err != nil {
			return err
		}
		cols = append(cols, *col)
		colTypes = append(colTypes, col.Type)
		colLens = append(colLens, col.Len)
		totLen += col.Len
	}
	if err := sm.ixManager.CreateIndex(sm.TablePath(tabName), colNames, colTypes, colLens); err != nil {
		return err
	}
	ixName := sm.ixManager.GetIndexName(sm.TablePath(tabName), colNames)
	im := IndexMeta{TabName: tabName, ColTotLen: totLen, ColNum: int32(len(colNames)), Cols: cols}
	tab.Indexes = append(tab.Indexes, im)
	for i := range tab.Cols {
		for _, name := range colNames {
			if tab.Cols[i].Name == name {
				tab.Cols[i].Index = true
			}
		}
	}
	ih, err := sm.ixManager.OpenIndex(sm.TablePath(tabName), colNames)
	if err != nil {
		return err
	}
	sm.Ihs[ixName] = ih

	fh := sm.Fhs[tabName]
	if ctx != nil {
		if err := ctx.LockMgr.LockSharedOnTable(ctx.Txn, fh.GetFd()); err != nil {
			return err
		}
	}
	scan, err := record.NewRmScan(fh)
	if err != nil {
		return err
	}
	for !scan.IsEnd() {
		rid := scan.Rid()
		rec, err := fh.GetRecord(rid, ctx)
		if err != nil {
			return err
		}
		key := im.BuildKey(rec.Data)
		if ctx != nil {
			indexLog := recovery.NewIndexLogRecord(ctx.Txn.GetTransactionId(), recovery.LogIndexInsert, ixName, key, rid)
			if err := ctx.AppendLog(indexLog); err != nil {
				return err
			}
		}
		result, err := ih.InsertEntry(key, rid)
		if err != nil {
			return err
		}
		if !result.Second {
			// duplicate key in existing data; undo the DDL
			if err := sm.DropIndex(tabName, colNames, ctx); err != nil {
				return err
			}
			return errors.NewUniqueViolation()
		}
		if err := scan.Next(); err != nil {
			return err
		}
	}
	return sm.FlushMeta()
}

// DropIndex removes the index metadata and destroys its file.
func (sm *SmManager) DropIndex(tabName string, colNames []string, ctx *concurrency.Context) error {
	tab, err := sm.Db.GetTable(tabName)
	if err != nil {
		return err
	}
	if _, err := tab.GetIndexMeta(colNames); err != nil {
		return err
	}
	for i := range tab.Indexes {
		match := len(tab.Indexes[i].Cols) == len(colNames)
		if match {
			for j, col := range tab.Indexes[i].Cols {
				if col.Name != colNames[j] {
					match = false
					break
				}
			}
		}
		if match {
			tab.Indexes = append(tab.Indexes[:i], tab.Indexes[i+1:]...)
			break
		}
	}
	ixName := sm.ixManager.GetIndexName(sm.TablePath(tabName), colNames)
	if ih, ok := sm.Ihs[ixName]; ok {
		sm.bpm.DiscardFilePages(ih.GetFd())
		if err := sm.diskManager.CloseFile(ih.GetFd()); err != nil {
			return err
		}
		delete(sm.Ihs, ixName)
	}
	if err := sm.ixManager.DestroyIndex(sm.TablePath(tabName), colNames); err != nil {
		return err
	}
	// clear index flags no longer backed by any index
	for i := range tab.Cols {
		covered := false
		for j := range tab.Indexes {
			for _, col := range tab.Indexes[j].Cols {
				if col.Name == tab.Cols[i].Name {
					covered = true
				}
			}
		}
		tab.Cols[i].Index = covered
	}
	return sm.FlushMeta()
}

package catalog

import (
	"strings"

	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/types"
)

// ColMeta describes one column of a table: its declared type, fixed
// width and byte offset inside the record.
type ColMeta struct {
	TabName string        `json:"tab_name"`
	Name    string        `json:"name"`
	Type    types.ColType `json:"type"`
	Len     int32         `json:"len"`
	Offset  int32         `json:"offset"`
	Index   bool          `json:"index"`
}

// IndexMeta describes one index of a table: the indexed columns in
// order and the total key width.
type IndexMeta struct {
	TabName   string    `json:"tab_name"`
	ColTotLen int32     `json:"col_tot_len"`
	ColNum    int32     `json:"col_num"`
	Cols      []ColMeta `json:"cols"`
}

// ColNames lists the indexed column names in index order.
func (ix *IndexMeta) ColNames() []string {
	names := make([]string, 0, len(ix.Cols))
	for _, col := range ix.Cols {
		names = append(names, col.Name)
	}
	return names
}

// BuildKey packs the indexed columns of a record image into the
// composite key bytes the tree stores.
func (ix *IndexMeta) BuildKey(recData []byte) []byte {
	key := make([]byte, 0, ix.ColTotLen)
	for _, col := range ix.Cols {
		key = append(key, recData[col.Offset:col.Offset+col.Len]...)
	}
	return key
}

// TabMeta describes one table: its ordered columns and its indexes.
type TabMeta struct {
	Name    string      `json:"name"`
	Cols    []ColMeta   `json:"cols"`
	Indexes []IndexMeta `json:"indexes"`
}

func (tab *TabMeta) IsCol(colName string) bool {
	for i := range tab.Cols {
		if tab.Cols[i].Name == colName {
			return true
		}
	}
	return false
}

func (tab *TabMeta) GetCol(colName string) (*ColMeta, error) {
	for i := range tab.Cols {
		if tab.Cols[i].Name == colName {
			return &tab.Cols[i], nil
		}
	}
	return nil, errors.NewColumnNotFound(tab.Name + "." + colName)
}

// RecordSize is the fixed width of the table's tuples.
func (tab *TabMeta) RecordSize() int32 {
	if len(tab.Cols) == 0 {
		return 0
	}
	last := tab.Cols[len(tab.Cols)-1]
	return last.Offset + last.Len
}

// GetIndexMeta finds the index over exactly the given column list.
func (tab *TabMeta) GetIndexMeta(colNames []string) (*IndexMeta, error) {
	for i := range tab.Indexes {
		ix := &tab.Indexes[i]
		if len(ix.Cols) != len(colNames) {
			continue
		}
		match := true
		for j, col := range ix.Cols {
			if col.Name != colNames[j] {
				match = false
				break
			}
		}
		if match {
			return ix, nil
		}
	}
	return nil, errors.NewIndexNotFound(tab.Name, strings.Join(colNames, ","))
}

// DbMeta is the persisted catalog of one database.
type DbMeta struct {
	Name string              `json:"name"`
	Tabs map[string]*TabMeta `json:"tabs"`
}

func (db *DbMeta) IsTable(tabName string) bool {
	_, ok := db.Tabs[tabName]
	return ok
}

func (db *DbMeta) GetTable(tabName string) (*TabMeta, error) {
	tab, ok := db.Tabs[tabName]
	if !ok {
		return nil, errors.NewTableNotFound(tabName)
	}
	return tab, nil
}

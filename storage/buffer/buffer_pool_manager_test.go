package buffer

import (
	"testing"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/storage/disk"
	testingpkg "github.com/Kyooooma/RMDB/testing/testing_assert"
	"github.com/Kyooooma/RMDB/types"
)

func TestBufferPoolEvictionAndReload(t *testing.T) {
	dm := disk.NewVirtualDiskManagerImpl()
	testingpkg.Ok(t, dm.CreateFile("f"))
	fd, err := dm.OpenFile("f")
	testingpkg.Ok(t, err)

	bpm := NewBufferPoolManager(3, dm)

	// fill the pool with dirty pages
	ids := make([]types.PageId, 0, 3)
	for i := 0; i < 3; i++ {
		pg := bpm.NewPage(fd)
		testingpkg.Assert(t, pg != nil, "pool must have room")
		pg.Data()[0] = byte(i + 1)
		ids = append(ids, pg.GetPageId())
	}

	// everything pinned: no frame available
	testingpkg.Assert(t, bpm.NewPage(fd) == nil, "full pool of pinned pages must refuse")

	for _, id := range ids {
		testingpkg.Ok(t, bpm.UnpinPage(id, true))
	}

	// allocating now evicts, writing the victim back
	pg := bpm.NewPage(fd)
	testingpkg.Assert(t, pg != nil, "eviction must free a frame")
	testingpkg.Ok(t, bpm.UnpinPage(pg.GetPageId(), false))

	// the evicted page reloads with its data intact
	for _, id := range ids {
		reloaded := bpm.FetchPage(id)
		testingpkg.Assert(t, reloaded != nil, "page must be fetchable")
		testingpkg.Assert(t, reloaded.Data()[0] != 0, "page content must survive eviction")
		testingpkg.Ok(t, bpm.UnpinPage(id, false))
	}

	data := make([]byte, common.PageSize)
	testingpkg.Ok(t, dm.ReadPage(fd, ids[0].PageNo, data))
}

package index

import (
	"bytes"
	"sync"

	pair "github.com/notEpsilon/go-pair"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/storage/buffer"
	"github.com/Kyooooma/RMDB/storage/disk"
	"github.com/Kyooooma/RMDB/types"
)

/**
 * IxIndexHandle operates one open B+-tree index file. A single
 * tree-wide latch serializes the public operations; keys are unique by
 * construction (a duplicate insert fails and reports it).
 */
type IxIndexHandle struct {
	diskManager disk.DiskManager
	bpm         *buffer.BufferPoolManager
	fd          int32
	fileHdr     *IxFileHdr
	rootLatch   sync.Mutex
}

func NewIxIndexHandle(diskManager disk.DiskManager, bpm *buffer.BufferPoolManager, fd int32) (*IxIndexHandle, error) {
	ih := &IxIndexHandle{diskManager: diskManager, bpm: bpm, fd: fd}
	data := make([]byte, common.PageSize)
	if err := diskManager.ReadPage(fd, common.IxFileHdrPage, data); err != nil {
		return nil, err
	}
	ih.fileHdr = new(IxFileHdr)
	ih.fileHdr.Deserialize(data)
	diskManager.SetFd2PageNo(fd, types.PageID(ih.fileHdr.NumPages))
	return ih, nil
}

func (ih *IxIndexHandle) GetFd() int32          { return ih.fd }
func (ih *IxIndexHandle) GetFileHdr() *IxFileHdr { return ih.fileHdr }

// WriteFileHdr persists the cached file header into page 0.
func (ih *IxIndexHandle) WriteFileHdr() error {
	data := make([]byte, common.PageSize)
	copy(data, ih.fileHdr.Serialize())
	return ih.diskManager.WritePage(ih.fd, common.IxFileHdrPage, data)
}

// fetchNode pins the node page; remember to unpin it.
func (ih *IxIndexHandle) fetchNode(pageNo types.PageID) (*IxNodeHandle, error) {
	pg := ih.bpm.FetchPage(types.PageId{Fd: ih.fd, PageNo: pageNo})
	if pg == nil {
		return nil, errors.NewInternal("buffer pool exhausted fetching index page %d", pageNo)
	}
	return newIxNodeHandle(ih.fileHdr, pg), nil
}

// createNode allocates a fresh node page; remember to unpin it.
func (ih *IxIndexHandle) createNode() (*IxNodeHandle, error) {
	ih.fileHdr.NumPages++
	pg := ih.bpm.NewPage(ih.fd)
	if pg == nil {
		return nil, errors.NewInternal("buffer pool exhausted allocating index page")
	}
	return newIxNodeHandle(ih.fileHdr, pg), nil
}

func (ih *IxIndexHandle) unpin(node *IxNodeHandle, dirty bool) {
	ih.bpm.UnpinPage(node.GetPage().GetPageId(), dirty)
}

// findLeafPage descends from the root to the leaf that may contain key.
// The returned leaf is pinned.
func (ih *IxIndexHandle) findLeafPage(key []byte) (*IxNodeHandle, error) {
	node, err := ih.fetchNode(ih.fileHdr.RootPage)
	if err != nil {
		return nil, err
	}
	for !node.IsLeafPage() {
		next, err := ih.fetchNode(node.InternalLookup(key))
		if err != nil {
			ih.unpin(node, false)
			return nil, err
		}
		ih.unpin(node, false)
		node = next
	}
	return node, nil
}

// GetValue performs the point lookup for key.
func (ih *IxIndexHandle) GetValue(key []byte) (types.Rid, bool, error) {
	ih.rootLatch.Lock()
	defer ih.rootLatch.Unlock()

	leaf, err := ih.findLeafPage(key)
	if err != nil {
		return types.Rid{}, false, err
	}
	defer ih.unpin(leaf, false)
	rid, found := leaf.LeafLookup(key)
	return rid, found, nil
}

// split moves the upper half of node into a fresh right sibling and
// returns it (pinned).
func (ih *IxIndexHandle) split(node *IxNodeHandle) (*IxNodeHandle, error) {
	left := node.GetSize() - node.GetMinSize()
	right := node.GetSize() - left

	rt, err := ih.createNode()
	if err != nil {
		return nil, err
	}
	rt.SetIsLeaf(node.IsLeafPage())
	rt.SetParentPageNo(node.GetParentPageNo())
	rt.SetPrevLeaf(node.GetPrevLeaf())
	rt.SetNextLeaf(node.GetNextLeaf())
	rt.SetNextFreePageNo(common.IxNoPage)
	rt.SetSize(0)

	keys := node.CopyKeysFrom(left, right)
	rids := node.CopyRidsFrom(left, right)
	rt.InsertPairs(0, keys, rids, right)
	node.SetSize(left)

	if node.IsLeafPage() {
		// node -> rt -> old next (possibly the sentinel)
		next, err := ih.fetchNode(node.GetNextLeaf())
		if err != nil {
			return nil, err
		}
		next.SetPrevLeaf(rt.GetPageNo())
		ih.unpin(next, true)
		rt.SetPrevLeaf(node.GetPageNo())
		node.SetNextLeaf(rt.GetPageNo())
	} else {
		for i := int32(0); i < right; i++ {
			if err := ih.maintainChild(rt, i); err != nil {
				return nil, err
			}
		}
	}
	return rt, nil
}

// insertIntoParent propagates the first key of newNode into the parent
// of oldNode after a split, splitting upwards recursively; a root split
// grows the tree by one level.
func (ih *IxIndexHandle) insertIntoParent(oldNode *IxNodeHandle, key []byte, newNode *IxNodeHandle) error {
	if oldNode.IsRootPage() {
		newRoot, err := ih.createNode()
		if err != nil {
			return err
		}
		newRoot.SetIsLeaf(false)
		newRoot.SetSize(0)
		newRoot.SetParentPageNo(common.IxNoPage)
		newRoot.SetPrevLeaf(common.IxNoPage)
		newRoot.SetNextLeaf(common.IxNoPage)
		newRoot.SetNextFreePageNo(common.IxNoPage)

		oldNode.SetParentPageNo(newRoot.GetPageNo())
		newNode.SetParentPageNo(newRoot.GetPageNo())
		newRoot.Insert(oldNode.GetKey(0), types.Rid{PageNo: oldNode.GetPageNo(), SlotNo: -1})
		newRoot.Insert(key, types.Rid{PageNo: newNode.GetPageNo(), SlotNo: -1})
		ih.fileHdr.RootPage = newRoot.GetPageNo()
		ih.unpin(newRoot, true)
		return nil
	}

	parent, err := ih.fetchNode(oldNode.GetParentPageNo())
	if err != nil {
		return err
	}
	newNode.SetParentPageNo(parent.GetPageNo())
	cnt := parent.Insert(key, types.Rid{PageNo: newNode.GetPageNo(), SlotNo: -1})
	if cnt == parent.GetMaxSize() {
		rt, err := ih.split(parent)
		if err != nil {
			ih.unpin(parent, true)
			return err
		}
		err = ih.insertIntoParent(parent, rt.GetKey(0), rt)
		ih.unpin(rt, true)
		if err != nil {
			ih.unpin(parent, true)
			return err
		}
	}
	ih.unpin(parent, true)
	return nil
}

// InsertEntry inserts (key, rid); the pair reports the leaf the entry
// landed in and whether the insert happened (false on duplicate key).
func (ih *IxIndexHandle) InsertEntry(key []byte, rid types.Rid) (pair.Pair[types.PageID, bool], error) {
	ih.rootLatch.Lock()
	defer ih.rootLatch.Unlock()

	ret := pair.Pair[types.PageID, bool]{First: 0, Second: false}

	leaf, err := ih.findLeafPage(key)
	if err != nil {
		return ret, err
	}
	oldCnt := leaf.GetSize()
	cnt := leaf.Insert(key, rid)
	if oldCnt == cnt {
		// duplicate key
		ih.unpin(leaf, false)
		return ret, nil
	}
	if err := ih.maintainParent(leaf); err != nil {
		ih.unpin(leaf, true)
		return ret, err
	}
	pos := leaf.LowerBound(key)
	res := leaf.GetPageNo()
	if cnt == leaf.GetMaxSize() {
		node, err := ih.split(leaf)
		if err != nil {
			ih.unpin(leaf, true)
			return ret, err
		}
		if err := ih.insertIntoParent(leaf, node.GetKey(0), node); err != nil {
			ih.unpin(node, true)
			ih.unpin(leaf, true)
			return ret, err
		}
		if ih.fileHdr.LastLeaf == leaf.GetPageNo() {
			// the rightmost leaf split; fix last_leaf and the sentinel
			ih.fileHdr.LastLeaf = node.GetPageNo()
			header, err := ih.fetchNode(common.IxLeafHeaderPage)
			if err == nil {
				header.SetPrevLeaf(node.GetPageNo())
				ih.unpin(header, true)
			}
		}
		if pos < leaf.GetSize() {
			res = leaf.GetPageNo()
		} else {
			res = node.GetPageNo()
		}
		ih.unpin(node, true)
	}
	ih.unpin(leaf, true)
	ret.First = res
	ret.Second = true
	return ret, nil
}

// CheckEntry reports whether key is already present.
func (ih *IxIndexHandle) CheckEntry(key []byte) (bool, error) {
	ih.rootLatch.Lock()
	defer ih.rootLatch.Unlock()

	leaf, err := ih.findLeafPage(key)
	if err != nil {
		return false, err
	}
	defer ih.unpin(leaf, false)
	_, found := leaf.LeafLookup(key)
	return found, nil
}

// DeleteEntry removes key from the tree, rebalancing as needed.
func (ih *IxIndexHandle) DeleteEntry(key []byte) (bool, error) {
	ih.rootLatch.Lock()
	defer ih.rootLatch.Unlock()

	leaf, err := ih.findLeafPage(key)
	if err != nil {
		return false, err
	}
	oldCnt := leaf.GetSize()
	idx := leaf.LowerBound(key)
	nowCnt := leaf.Remove(key)
	if oldCnt == nowCnt {
		ih.unpin(leaf, false)
		return false, nil
	}
	if idx == 0 {
		if err := ih.maintainParent(leaf); err != nil {
			ih.unpin(leaf, true)
			return false, err
		}
	}
	deleted, err := ih.coalesceOrRedistribute(leaf)
	if err != nil {
		return false, err
	}
	if !deleted {
		ih.unpin(leaf, true)
	}
	return true, nil
}

// coalesceOrRedistribute rebalances node after a deletion; the return
// reports whether node's page was released (and already unpinned).
func (ih *IxIndexHandle) coalesceOrRedistribute(node *IxNodeHandle) (bool, error) {
	if node.GetSize() >= node.GetMinSize() && node.GetSize() <= node.GetMaxSize() {
		return false, nil
	}
	if node.IsRootPage() {
		// a promoted-away root is accounted as released in adjustRoot
		if _, err := ih.adjustRoot(node); err != nil {
			return false, err
		}
		ih.unpin(node, true)
		return true, nil
	}

	parent, err := ih.fetchNode(node.GetParentPageNo())
	if err != nil {
		return false, err
	}
	pos := parent.FindChild(node)
	idx := pos - 1
	if idx < 0 {
		idx = pos + 1
	}
	neighbor, err := ih.fetchNode(parent.GetRid(idx).PageNo)
	if err != nil {
		ih.unpin(parent, false)
		return false, err
	}

	if node.GetSize()+neighbor.GetSize() >= node.GetMinSize()*2 {
		if err := ih.redistribute(neighbor, node, parent, pos-idx); err != nil {
			return false, err
		}
		ih.unpin(neighbor, true)
		ih.unpin(parent, true)
		return false, nil
	}

	// merge into the left node; the right one goes away
	parentUnderflow, err := ih.coalesce(neighbor, node, parent, pos-idx)
	if err != nil {
		return false, err
	}
	if parentUnderflow {
		deleted, err := ih.coalesceOrRedistribute(parent)
		if err != nil {
			return false, err
		}
		if !deleted {
			ih.unpin(parent, true)
		}
	} else {
		ih.unpin(parent, true)
	}
	nodeWasRight := pos > idx
	if nodeWasRight {
		ih.unpin(neighbor, true)
		return true, nil
	}
	return false, nil
}

// adjustRoot handles the root falling below occupancy: a one-child
// internal root promotes its child (shrinking the tree), an empty leaf
// root degenerates to an empty tree.
func (ih *IxIndexHandle) adjustRoot(oldRoot *IxNodeHandle) (bool, error) {
	if oldRoot.IsLeafPage() && oldRoot.GetSize() == 0 {
		oldRoot.SetNextLeaf(common.IxLeafHeaderPage)
		oldRoot.SetPrevLeaf(common.IxLeafHeaderPage)
		oldRoot.SetParentPageNo(common.IxNoPage)
		oldRoot.SetNextFreePageNo(common.IxNoPage)
		return false, nil
	}
	if !oldRoot.IsLeafPage() && oldRoot.GetSize() == 1 {
		childPageNo := oldRoot.RemoveAndReturnOnlyChild()
		child, err := ih.fetchNode(childPageNo)
		if err != nil {
			return false, err
		}
		child.SetParentPageNo(common.IxNoPage)
		ih.fileHdr.RootPage = childPageNo
		ih.releaseNodeHandle(oldRoot)
		ih.unpin(child, true)
		return true, nil
	}
	return false, nil
}

// redistribute balances entries between node and its sibling so both
// meet minimum occupancy. index > 0 means neighbor is the left sibling.
func (ih *IxIndexHandle) redistribute(neighbor *IxNodeHandle, node *IxNodeHandle, parent *IxNodeHandle, index int32) error {
	sum := neighbor.GetSize() + node.GetSize()
	half := sum / 2
	lt, rt := neighbor, node
	if index < 0 {
		lt, rt = rt, lt
	}
	if lt.GetSize() < half {
		// move entries right -> left
		pos := lt.GetSize()
		cnt := half - pos
		keys := rt.CopyKeysFrom(0, cnt)
		rids := rt.CopyRidsFrom(0, cnt)
		lt.InsertPairs(pos, keys, rids, cnt)
		rt.ErasePairs(0, cnt)
		for i := pos; i < pos+cnt; i++ {
			if err := ih.maintainChild(lt, i); err != nil {
				return err
			}
		}
	} else if lt.GetSize() > half {
		// move entries left -> right
		cnt := lt.GetSize() - half
		keys := lt.CopyKeysFrom(half, cnt)
		rids := lt.CopyRidsFrom(half, cnt)
		rt.InsertPairs(0, keys, rids, cnt)
		lt.ErasePairs(half, cnt)
		for i := int32(0); i < cnt; i++ {
			if err := ih.maintainChild(rt, i); err != nil {
				return err
			}
		}
	}
	return ih.maintainParent(rt)
}

// coalesce merges the right node of the pair into the left one and
// removes the right node's separator from the parent. The return
// reports whether the parent now needs rebalancing.
func (ih *IxIndexHandle) coalesce(neighbor *IxNodeHandle, node *IxNodeHandle, parent *IxNodeHandle, index int32) (bool, error) {
	lt, rt := neighbor, node
	if index < 0 {
		lt, rt = rt, lt
	}
	cnt := rt.GetSize()
	pos := lt.GetSize()
	keys := rt.CopyKeysFrom(0, cnt)
	rids := rt.CopyRidsFrom(0, cnt)
	lt.InsertPairs(pos, keys, rids, cnt)
	for i := pos; i < pos+cnt; i++ {
		if err := ih.maintainChild(lt, i); err != nil {
			return false, err
		}
	}
	parent.Remove(rt.GetKey(0))
	if rt.IsLeafPage() && ih.fileHdr.LastLeaf == rt.GetPageNo() {
		ih.fileHdr.LastLeaf = lt.GetPageNo()
	}
	if rt.IsLeafPage() {
		if err := ih.eraseLeaf(rt); err != nil {
			return false, err
		}
	}
	ih.releaseNodeHandle(rt)
	ih.unpin(rt, true)
	return parent.GetSize() < parent.GetMinSize(), nil
}

// GetRid resolves an index-internal position to the heap rid stored
// there.
func (ih *IxIndexHandle) GetRid(iid Iid) (types.Rid, error) {
	node, err := ih.fetchNode(iid.PageNo)
	if err != nil {
		return types.Rid{}, err
	}
	defer ih.unpin(node, false)
	if iid.SlotNo >= node.GetSize() {
		return types.Rid{}, errors.NewIndexEntryNotFound()
	}
	return node.GetRid(iid.SlotNo), nil
}

// LowerBound positions at the first entry with key >= target.
func (ih *IxIndexHandle) LowerBound(key []byte) (Iid, error) {
	ih.rootLatch.Lock()
	defer ih.rootLatch.Unlock()
	return ih.bound(key, false)
}

// UpperBound positions at the first entry with key > target.
func (ih *IxIndexHandle) UpperBound(key []byte) (Iid, error) {
	ih.rootLatch.Lock()
	defer ih.rootLatch.Unlock()
	return ih.bound(key, true)
}

func (ih *IxIndexHandle) bound(key []byte, upper bool) (Iid, error) {
	node, err := ih.findLeafPage(key)
	if err != nil {
		return Iid{}, err
	}
	defer ih.unpin(node, false)
	var keyIdx int32
	if upper {
		keyIdx = node.UpperBound(key)
	} else {
		keyIdx = node.LowerBound(key)
	}
	iid := Iid{PageNo: node.GetPageNo(), SlotNo: keyIdx}
	if keyIdx == node.GetSize() {
		if node.GetPageNo() == ih.fileHdr.LastLeaf {
			return ih.leafEndNoLock()
		}
		iid = Iid{PageNo: node.GetNextLeaf(), SlotNo: 0}
	}
	return iid, nil
}

// LeafEnd is the position one past the final entry of the last leaf.
func (ih *IxIndexHandle) LeafEnd() (Iid, error) {
	ih.rootLatch.Lock()
	defer ih.rootLatch.Unlock()
	return ih.leafEndNoLock()
}

func (ih *IxIndexHandle) leafEndNoLock() (Iid, error) {
	node, err := ih.fetchNode(ih.fileHdr.LastLeaf)
	if err != nil {
		return Iid{}, err
	}
	defer ih.unpin(node, false)
	return Iid{PageNo: ih.fileHdr.LastLeaf, SlotNo: node.GetSize()}, nil
}

// LeafBegin is the position of the first entry of the first leaf.
func (ih *IxIndexHandle) LeafBegin() Iid {
	return Iid{PageNo: ih.fileHdr.FirstLeaf, SlotNo: 0}
}

// maintainParent walks upward refreshing each parent's separator key
// whenever its child's first key changed.
func (ih *IxIndexHandle) maintainParent(node *IxNodeHandle) error {
	curr := node
	currPinned := false
	for curr.GetParentPageNo() != common.IxNoPage {
		parent, err := ih.fetchNode(curr.GetParentPageNo())
		if err != nil {
			if currPinned {
				ih.unpin(curr, true)
			}
			return err
		}
		rank := parent.FindChild(curr)
		parentKey := parent.GetKey(rank)
		childFirstKey := curr.GetKey(0)
		if bytes.Equal(parentKey, childFirstKey) {
			ih.unpin(parent, true)
			break
		}
		copy(parentKey, childFirstKey)
		if currPinned {
			ih.unpin(curr, true)
		}
		curr = parent
		currPinned = true
	}
	if currPinned {
		ih.unpin(curr, true)
	}
	return nil
}

// eraseLeaf unlinks the leaf from the doubly linked leaf list before it
// is dropped.
func (ih *IxIndexHandle) eraseLeaf(leaf *IxNodeHandle) error {
	prev, err := ih.fetchNode(leaf.GetPrevLeaf())
	if err != nil {
		return err
	}
	prev.SetNextLeaf(leaf.GetNextLeaf())
	ih.unpin(prev, true)

	next, err := ih.fetchNode(leaf.GetNextLeaf())
	if err != nil {
		return err
	}
	next.SetPrevLeaf(leaf.GetPrevLeaf())
	ih.unpin(next, true)
	return nil
}

// releaseNodeHandle accounts a dropped node page.
func (ih *IxIndexHandle) releaseNodeHandle(node *IxNodeHandle) {
	ih.fileHdr.NumPages--
}

// maintainChild repoints the parent pointer of the child at childIdx to
// node.
func (ih *IxIndexHandle) maintainChild(node *IxNodeHandle, childIdx int32) error {
	if node.IsLeafPage() {
		return nil
	}
	childPageNo := node.ValueAt(childIdx)
	child, err := ih.fetchNode(childPageNo)
	if err != nil {
		return err
	}
	child.SetParentPageNo(node.GetPageNo())
	ih.unpin(child, true)
	return nil
}

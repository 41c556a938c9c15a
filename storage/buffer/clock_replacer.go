package buffer

// FrameID is the type for frame id
type FrameID uint32

// ClockReplacer picks victim frames with the clock algorithm
type ClockReplacer struct {
	cList     *circularList
	clockHand **node
}

// Victim removes the victim frame as defined by the replacement policy
func (c *ClockReplacer) Victim() *FrameID {
	if c.cList.size == 0 {
		return nil
	}

	var victimFrameID *FrameID
	currentNode := *c.clockHand
	for {
		if currentNode.value {
			currentNode.value = false
			c.clockHand = &currentNode.next
			currentNode = *c.clockHand
		} else {
			frameID := currentNode.key
			victimFrameID = &frameID
			c.clockHand = &currentNode.next
			c.cList.remove(currentNode.key)
			return victimFrameID
		}
	}
}

// Unpin marks a frame victimizable
func (c *ClockReplacer) Unpin(id FrameID) {
	if !c.cList.hasKey(id) {
		c.cList.insert(id, true)
		if c.cList.size == 1 {
			c.clockHand = &c.cList.head
		}
	}
}

// Pin removes a frame from the replacer until it is unpinned again
func (c *ClockReplacer) Pin(id FrameID) {
	node_ := c.cList.find(id)
	if node_ == nil {
		return
	}
	if (*c.clockHand) == node_ {
		c.clockHand = &(*c.clockHand).next
	}
	c.cList.remove(id)
}

// Size returns the number of victimizable frames
func (c *ClockReplacer) Size() uint32 {
	return c.cList.size
}

// NewClockReplacer instantiates a new clock replacer
func NewClockReplacer(poolSize uint32) *ClockReplacer {
	cList := newCircularList(poolSize)
	return &ClockReplacer{cList, &cList.head}
}

package snowflake

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMask        = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC
)

// ID is a time-ordered message identifier. On the wire it is a decimal
// string so clients never lose precision.
type ID int64

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// Time is the millisecond the id was generated in.
func (id ID) Time() time.Time {
	return time.UnixMilli((int64(id) >> timeShift) + epoch)
}

func ParseID(s string) (ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid snowflake id %q", s)
	}
	return ID(v), nil
}

type Node struct {
	mu   sync.Mutex
	time int64
	node int64
	step int64
	now  func() int64
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, errors.New("node number must be between 0 and 1023")
	}
	return &Node{
		node: node,
		now:  func() int64 { return time.Now().UnixMilli() },
	}, nil
}

func (n *Node) Generate() ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()

	if now < n.time {
		// Clock moved backwards; keep issuing from the last tick.
		now = n.time
	}

	if n.time == now {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			for now <= n.time {
				now = n.now()
			}
		}
	} else {
		n.step = 0
	}

	n.time = now

	return ID(((now - epoch) << timeShift) | (n.node << nodeShift) | n.step)
}

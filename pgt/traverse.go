package pgt

// DefaultMaxLevel is the number of levels walked when nothing else says
// otherwise, matching 4-level paging.
const DefaultMaxLevel = 4

// VisitedSet records the table addresses a traversal has already processed.
type VisitedSet map[uint64]struct{}

// Add marks `addr` as visited. It returns false if it already was.
func (set VisitedSet) Add(addr uint64) bool {
	if _, ok := set[addr]; ok {
		return false
	}
	set[addr] = struct{}{}
	return true
}

// Contains returns true if `addr` has been visited.
func (set VisitedSet) Contains(addr uint64) bool {
	_, ok := set[addr]
	return ok
}

// VisitFunc processes the table at `addr`, found at depth `level` (the root is
// level 1), and returns the addresses of the tables it points to in slot
// order.
type VisitFunc func(addr uint64, level int) ([]uint64, error)

type workItem struct {
	addr  uint64
	level int
}

// Traverse visits every table reachable from `root` in depth-first pre-order:
// a table's children, and all of their descendants, are visited before its
// next sibling. Each address is visited at most once, and tables found at
// level `maxLevel` are visited but their children aren't.
//
// It returns the set of visited addresses. Traversal stops at the first error
// returned by `visit`.
func Traverse(root uint64, maxLevel int, visit VisitFunc) (VisitedSet, error) {
	visited := VisitedSet{}
	stack := []workItem{{addr: root, level: 1}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// Mark before descending so tables that point back at an ancestor or
		// at themselves terminate.
		if !visited.Add(item.addr) {
			continue
		}

		children, err := visit(item.addr, item.level)
		if err != nil {
			return visited, err
		}
		if item.level >= maxLevel {
			continue
		}

		// Push in reverse so the first child is popped first.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, workItem{addr: children[i], level: item.level + 1})
		}
	}
	return visited, nil
}

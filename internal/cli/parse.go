package cli

import (
	"fmt"
	"strconv"
)

// ParseSlotIndex parses a 1-based slot index argument and checks it
// against the number of slots on the board.
func ParseSlotIndex(arg string, total int) (int, error) {
	index, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%q is not a slot number", arg)
	}
	if index < 1 || index > total {
		return 0, fmt.Errorf("slot %d does not exist, the board has %d", index, total)
	}
	return index, nil
}

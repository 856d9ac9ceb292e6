package items

import (
	"fmt"
	"strconv"
)

// DeriveBlock extracts the block index encoded in a location id: the 6th and
// 7th characters of its decimal form. For 400400503 that is "05", block 5.
func DeriveBlock(location int64) (int, error) {
	s := strconv.FormatInt(location, 10)
	if len(s) < 7 {
		return 0, fmt.Errorf("derive block: location %d too short", location)
	}
	b, err := strconv.Atoi(s[5:7])
	if err != nil {
		return 0, fmt.Errorf("derive block: location %d: %w", location, err)
	}
	return b, nil
}

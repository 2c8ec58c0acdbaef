package database

import (
	"fmt"
	"strconv"
	"strings"
)

// dialect captures the few places where the supported stores disagree.
type dialect struct {
	name       string
	driverName string
	bind       func(n int) string // placeholder for the n-th argument, 1-based
	floor      func(expr string) string
}

var dialects = map[string]dialect{
	"oracle": {
		name:       "oracle",
		driverName: "oracle",
		bind:       func(n int) string { return ":" + strconv.Itoa(n) },
		floor:      floorFunc,
	},
	"postgres": {
		name:       "postgres",
		driverName: "postgres",
		bind:       func(n int) string { return "$" + strconv.Itoa(n) },
		floor:      floorFunc,
	},
	"mysql": {
		name:       "mysql",
		driverName: "mysql",
		bind:       questionMark,
		floor:      floorFunc,
	},
	"sqlite": {
		name:       "sqlite",
		driverName: "sqlite",
		bind:       questionMark,
		floor:      castFloor,
	},
}

func questionMark(int) string { return "?" }

func floorFunc(expr string) string {
	return fmt.Sprintf("FLOOR(%s)", expr)
}

// castFloor floors without relying on SQLite's optional math functions.
// CAST truncates toward zero, so negative non-integers need one subtracted.
func castFloor(expr string) string {
	return fmt.Sprintf("(CAST(%[1]s AS INTEGER) - (%[1]s < CAST(%[1]s AS INTEGER)))", expr)
}

// rebind rewrites each ? in query into the dialect's placeholder.
func (d dialect) rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.bind(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

package buildnumber

import (
	"strconv"
	"time"
)

// Layout is the minute-precision timestamp layout used for build numbers.
const Layout = "200601021504"

// From returns t formatted as YYYYMMDDHHMM and read back as a base-10 integer.
// Two times in the same calendar minute yield the same number; any later
// minute yields a strictly greater one.
func From(t time.Time) int64 {
	n, err := strconv.ParseInt(t.Format(Layout), 10, 64)
	if err != nil {
		// Format only emits digits for years 0-9999.
		panic("buildnumber: unexpected layout output: " + err.Error())
	}
	return n
}

// Now returns the build number for the current local time.
func Now() int64 {
	return From(time.Now())
}

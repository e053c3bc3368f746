package chat

import (
	"strconv"
	"sync/atomic"
	"time"
)

// idGen hands out message ids of the form "<unix millis>_<sequence>". The
// sequence never repeats within a process, so neither does the id.
type idGen struct {
	seq atomic.Uint64
}

func (g *idGen) next(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "_" + strconv.FormatUint(g.seq.Add(1), 10)
}

// placeholderName names a connection that joined without a username.
func placeholderName(connID string) string {
	if len(connID) > 4 {
		connID = connID[:4]
	}
	return "User" + connID
}

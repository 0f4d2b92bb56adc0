package runtime

import (
	"fmt"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/CortexFoundation/corevm/rlog"
)

// CrashLog persists a terse, append-only record of fatal runtime
// errors to a leveldb database, so a host embedding corevm can inspect
// what killed a previous process even if stderr was lost - the same
// reason the teacher keeps a leveldb-backed store for chain data it
// can't afford to lose on crash.
type CrashLog struct {
	db *leveldb.DB
}

// OpenCrashLog opens (creating if necessary) a crash log at path.
func OpenCrashLog(path string) (*CrashLog, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("runtime: opening crash log: %w", err)
	}
	return &CrashLog{db: db}, nil
}

func (c *CrashLog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *CrashLog) record(key string, dump string) {
	if c == nil || c.db == nil {
		return
	}
	_ = c.db.Put([]byte(key), []byte(dump), nil)
}

// Fatal logs msg and a deep dump of ctx via go-spew at Error level,
// writes the dump to stderr, then calls rlog.Crit with msg (which
// panics after logging), first persisting the same dump to crashLog
// if one is configured. ctx is
// typically the offending TLSData, Header, or Mutator snapshot.
func Fatal(crashLog *CrashLog, msg string, ctx any) {
	dump := spew.Sdump(ctx)
	key := fmt.Sprintf("fatal/%d", time.Now().UnixNano())
	crashLog.record(key, msg+"\n"+dump)

	rlog.Default.Error(msg, "dump", dump)
	fmt.Fprintln(os.Stderr, dump)
	rlog.Crit(msg)
}

package extmem

import "github.com/aalhour/extmem/mng"

// BID identifies one block: the file it lives in, its byte offset, and its
// byte size. Defined canonically in mng (which constructs BIDs) and
// re-exported here so callers who only import the root package still have
// a name for it.
type BID = mng.BID

package trace

// Entry is the metadata of one flight recorder slot.
type Entry struct {
	Source   string // source file of the call site
	Line     uint64 // line of the call site
	Function string // function of the call site
}

// Record is a copied-out entry together with its message.
type Record struct {
	Entry
	Index   int    // relative index, 0 is the newest entry of the snapshot
	Message string // empty if nothing was written into the slot
}

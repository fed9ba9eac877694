package symbol

// Linux exposes the process's mappings through procfs, so elf symbol tables
// can back up Go's pc tables.
const defaultKind = KindPCInfo

package model

// Sink receives recoverable problems found while ingesting trace logs.
// Implementations must be safe for concurrent use.
type Sink interface {
	LineSkipped(path string, lineNo int, line string, err error)
	FileSkipped(path string, err error)
	Inconsistency(key AggregationKey, err error)
	FileRead(path string, parsed int)
}

package aggregator

import (
	"Go2TraceSpectra/internal/engine/protocol"
	"Go2TraceSpectra/internal/model"
	"Go2TraceSpectra/pkg/logscan"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ErrStructural marks a record whose aggregation path was incomplete right after insertion.
var ErrStructural = errors.New("structural inconsistency")

// FileError reports a log file that could not be opened or read to the end.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("cannot read file %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// ctxCheckEvery is how many lines a worker parses between cancellation checks.
const ctxCheckEvery = 4096

type skippedLine struct {
	lineNo int
	line   string
	err    error
}

// fileBatch is the parse result of one file, folded into the tree as a unit.
type fileBatch struct {
	path    string
	records []*model.EventRecord
	skipped []skippedLine
	err     error
}

// Aggregator folds parsed trace lines into a model.Tree.
// Files may be parsed concurrently, but folding always happens on the calling
// goroutine in the order the paths were given.
type Aggregator struct {
	tree       *model.Tree
	sink       model.Sink
	numWorkers int
	maxLine    int

	// lookup re-resolves a freshly inserted key; tests swap it to break the path.
	lookup func(model.AggregationKey) (*model.Leaf, error)
}

// New creates an aggregator reporting to sink. numWorkers <= 0 uses GOMAXPROCS.
func New(sink model.Sink, numWorkers, maxLine int) *Aggregator {
	if sink == nil {
		sink = nopSink{}
	}
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	a := &Aggregator{
		tree:       model.NewTree(),
		sink:       sink,
		numWorkers: numWorkers,
		maxLine:    maxLine,
	}
	a.lookup = a.tree.Lookup
	return a
}

// Tree returns the aggregation built so far.
func (a *Aggregator) Tree() *model.Tree {
	return a.tree
}

// Add folds a single record into the tree. The key is looked up again after
// insertion; a missing or different leaf is a structural inconsistency, reported
// to the sink, and the record is dropped.
func (a *Aggregator) Add(rec *model.EventRecord) error {
	key := rec.Key()
	leaf := a.tree.Insert(key)

	found, err := a.lookup(key)
	if err == nil && found != leaf {
		err = fmt.Errorf("lookup returned a different leaf for %s", key)
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrStructural, err)
		a.sink.Inconsistency(key, err)
		return err
	}

	leaf.Append(rec)
	return nil
}

// ProcessReader parses and folds every line of r, reporting under name.
func (a *Aggregator) ProcessReader(name string, r io.Reader) error {
	b := a.parse(context.Background(), name, r)
	a.fold(b)
	if b.err != nil {
		return &FileError{Path: name, Err: b.err}
	}
	return nil
}

// ProcessFiles parses the given files with a bounded worker pool and folds them
// in slice order. Unreadable files are reported to the sink and skipped; the
// only error returned is the context's.
func (a *Aggregator) ProcessFiles(ctx context.Context, paths []string) error {
	results := make([]chan fileBatch, len(paths))
	for i := range results {
		results[i] = make(chan fileBatch, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.numWorkers)
	go func() {
		for i, path := range paths {
			g.Go(func() error {
				results[i] <- a.parseFile(gctx, path)
				return nil
			})
		}
	}()

	// Every result is received before Wait, so all Go calls have returned by then.
	for i := range paths {
		a.fold(<-results[i])
	}
	_ = g.Wait()

	return ctx.Err()
}

func (a *Aggregator) parseFile(ctx context.Context, path string) fileBatch {
	if err := ctx.Err(); err != nil {
		return fileBatch{path: path, err: err}
	}
	r, err := logscan.NewReader(path, a.maxLine)
	if err != nil {
		return fileBatch{path: path, err: err}
	}
	defer r.Close()
	return a.parseLines(ctx, path, r.ReadLines)
}

func (a *Aggregator) parse(ctx context.Context, name string, in io.Reader) fileBatch {
	return a.parseLines(ctx, name, func(fn logscan.LineFunc) error {
		return logscan.ScanLines(in, a.maxLine, fn)
	})
}

func (a *Aggregator) parseLines(ctx context.Context, path string, read func(logscan.LineFunc) error) fileBatch {
	b := fileBatch{path: path}
	err := read(func(lineNo int, line string, lineErr error) error {
		if lineNo%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if lineErr != nil {
			// Overlong lines are skipped like malformed ones; the rest of the file still counts.
			b.skipped = append(b.skipped, skippedLine{lineNo: lineNo, line: line, err: lineErr})
			return nil
		}
		rec, err := protocol.ParseLine(line)
		if err != nil {
			b.skipped = append(b.skipped, skippedLine{lineNo: lineNo, line: line, err: err})
			return nil
		}
		b.records = append(b.records, rec)
		return nil
	})
	if err != nil {
		// A file whose read fails part-way is skipped as a whole.
		b.records, b.skipped = nil, nil
		b.err = err
	}
	return b
}

func (a *Aggregator) fold(b fileBatch) {
	if b.err != nil {
		a.sink.FileSkipped(b.path, &FileError{Path: b.path, Err: b.err})
		return
	}
	for _, s := range b.skipped {
		a.sink.LineSkipped(b.path, s.lineNo, s.line, s.err)
	}
	parsed := 0
	for _, rec := range b.records {
		if a.Add(rec) == nil {
			parsed++
		}
	}
	a.sink.FileRead(b.path, parsed)
}

type nopSink struct{}

func (nopSink) LineSkipped(string, int, string, error) {}
func (nopSink) FileSkipped(string, error) {}
func (nopSink) Inconsistency(model.AggregationKey, error) {}
func (nopSink) FileRead(string, int) {}

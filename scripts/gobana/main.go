package main

import (
	"Go2TraceSpectra/internal/exporter"
	"Go2TraceSpectra/internal/model"
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	verbose := flag.Bool("v", false, "Print every leaf")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/gobana/main.go [-v] <snapshot.gob>")
		os.Exit(1)
	}

	snap, err := exporter.LoadSnapshot(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to decode gob data: %v", err)
	}

	fmt.Printf("Run: %s\nSource: %s\nLeaves: %d\n", snap.RunID, snap.Source, len(snap.Entries))

	tree := model.TreeFromSnapshot(snap)
	buckets, lines := 0, 0
	tree.WalkBuckets(func(model.BucketKey, *model.ChannelNode) { buckets++ })
	for _, e := range snap.Entries {
		lines += e.Leaf.Len()
	}
	fmt.Printf("Groups: %d\nFlow graphs: %d\nLines: %d\n", len(tree.Groups()), buckets, lines)

	if !*verbose {
		return
	}
	for _, e := range snap.Entries {
		bytes, ns, overflow := e.Leaf.Totals()
		fmt.Printf("%s samples=%d bytes=%d nsec=%d overflow=%t\n", e.Key, e.Leaf.Len(), bytes, ns, overflow)
	}
}

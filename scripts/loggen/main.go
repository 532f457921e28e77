package main

import (
	"Go2TraceSpectra/internal/engine/protocol"
	"Go2TraceSpectra/internal/model"
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Writes one log per rank. Rank i sends to rank i+1 on every channel of every
// repetition; with -cycle the last rank also sends back to rank 0.
func main() {
	outputDir := flag.String("o", "logs", "Output directory")
	numRanks := flag.Int("ranks", 8, "Number of ranks")
	numGroups := flag.Int("groups", 1, "Number of communication groups")
	numChannels := flag.Int("channels", 2, "Channels per repetition")
	numReps := flag.Int("reps", 4, "Repetitions of the collective")
	samples := flag.Int("samples", 3, "Lines per flow")
	cycle := flag.Bool("cycle", false, "Close the ring so every graph contains a cycle")
	junk := flag.Float64("junk", 0.01, "Fraction of unrelated lines mixed into the logs")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	if *numRanks < 2 {
		log.Fatalf("Need at least 2 ranks, got %d", *numRanks)
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	rng := rand.New(rand.NewSource(*seed))

	total := 0
	for rank := 0; rank < *numRanks; rank++ {
		dst := rank + 1
		if dst == *numRanks {
			if !*cycle {
				continue
			}
			dst = 0
		}

		path := filepath.Join(*outputDir, fmt.Sprintf("node%02d_rank%d.log", rank/8, rank))
		f, err := os.Create(path)
		if err != nil {
			log.Fatalf("Failed to create log file: %v", err)
		}
		w := bufio.NewWriter(f)

		ts := time.Now().UnixMicro()
		for g := 0; g < *numGroups; g++ {
			for rep := 0; rep < *numReps; rep++ {
				for ch := 0; ch < *numChannels; ch++ {
					for s := 0; s < *samples; s++ {
						if rng.Float64() < *junk {
							fmt.Fprintf(w, "node%02d:%d:%d NCCL INFO Channel %02d/%02d : ring\n", rank/8, rank%8, ts, ch, *numChannels)
						}
						ts += int64(rng.Intn(50) + 1)
						rec := &model.EventRecord{
							Node:      fmt.Sprintf("node%02d", rank/8),
							Card:      fmt.Sprintf("%d", rank%8),
							Timestamp: fmt.Sprintf("%d", ts),
							Group:     strconv.Itoa(g),
							SrcRank:   strconv.Itoa(rank),
							DstRank:   strconv.Itoa(dst),
							Channel:   strconv.Itoa(ch),
							Func:      model.FuncAllReduce,
							FuncTimes: strconv.Itoa(rep),
							SrcIP:     fmt.Sprintf("10.0.%d.%d", rank/8, rank%8+1),
							DstIP:     fmt.Sprintf("10.0.%d.%d", dst/8, dst%8+1),
							Bytes:     uint64(1<<20 + rng.Intn(1<<16)),
							TimeNs:    uint64(50_000 + rng.Intn(200_000)),
						}
						fmt.Fprintln(w, protocol.Format(rec))
						total++
					}
				}
			}
		}

		if err := w.Flush(); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		f.Close()
	}
	log.Printf("Generated %d trace lines into %s", total, *outputDir)
}

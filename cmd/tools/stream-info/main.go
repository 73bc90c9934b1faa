// Command stream-info summarizes a recorded visualization stream: header
// identity, then batch and point counts per entity path.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/scanstream/internal/viz"
)

func main() {
	input := flag.String("i", "", "stream file (default stdin)")
	flag.Parse()

	in := io.Reader(os.Stdin)
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("open: %v", err)
		}
		defer f.Close()
		in = f
	}

	r, err := viz.NewReader(in)
	if err != nil {
		log.Fatalf("read header: %v", err)
	}

	h := r.Header()
	fmt.Printf("application: %s\n", h.App)
	fmt.Printf("recording:   %s\n", h.Recording)
	fmt.Printf("created:     %s\n", time.Unix(0, h.CreatedNS).UTC().Format(time.RFC3339))
	fmt.Printf("writer:      %s\n", h.Version)

	type pathStats struct {
		batches int
		points  int
	}
	stats := make(map[string]*pathStats)
	var order []string
	timeMarks := 0

	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("read stream: %v", err)
		}
		switch {
		case e.Time != nil:
			timeMarks++
		case e.Points != nil:
			s := stats[e.Points.Path]
			if s == nil {
				s = &pathStats{}
				stats[e.Points.Path] = s
				order = append(order, e.Points.Path)
			}
			s.batches++
			s.points += e.Points.Len()
		}
	}

	fmt.Printf("time marks:  %d\n", timeMarks)
	fmt.Printf("paths:       %d\n", len(order))
	for _, p := range order {
		s := stats[p]
		fmt.Printf("  %-44s %4d batches %10d points\n", p, s.batches, s.points)
	}
}

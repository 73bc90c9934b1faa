// Command scan-preview renders a top-down scatter plot of the bulk points
// in a recorded visualization stream. Useful for eyeballing a loader's
// output without a visualization sink.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/scanstream/internal/viz"
)

func main() {
	input := flag.String("i", "", "stream file (default stdin)")
	output := flag.String("o", "preview.png", "output PNG path")
	pathPrefix := flag.String("path", "", "only plot batches whose entity path has this prefix")
	maxPoints := flag.Int("max", 200000, "subsample to at most this many points")
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

	// Two passes would need a seekable input, so subsample on the fly:
	// whenever the buffer fills, keep every other point and double the
	// stride. Order within the kept set stays the emission order.
	limit := *maxPoints
	if limit <= 0 {
		limit = 200000
	}
	pts := make(plotter.XYs, 0, limit)
	stride, offset := 1, 0
	total := 0

	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("read stream: %v", err)
		}
		if e.Points == nil {
			continue
		}
		if *pathPrefix != "" && !strings.HasPrefix(e.Points.Path, *pathPrefix) {
			continue
		}
		for i := range e.Points.X {
			total++
			if offset > 0 {
				offset--
				continue
			}
			offset = stride - 1
			if len(pts) == limit {
				kept := pts[:0]
				for j := 0; j < len(pts); j += 2 {
					kept = append(kept, pts[j])
				}
				pts = kept
				stride *= 2
				offset = stride - 1
			}
			pts = append(pts, plotter.XY{X: float64(e.Points.X[i]), Y: float64(e.Points.Y[i])})
		}
	}
	if len(pts) == 0 {
		log.Fatal("stream carries no matching points")
	}

	h := r.Header()
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s / %s (%d of %d points)", h.App, h.Recording, len(pts), total)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		log.Fatalf("scatter: %v", err)
	}
	sc.GlyphStyle.Radius = vg.Points(0.5)
	p.Add(sc)

	if err := p.Save(10*vg.Inch, 10*vg.Inch, *output); err != nil {
		log.Fatalf("save: %v", err)
	}
	log.Printf("✓ Wrote %s (%d points, stride %d)", *output, len(pts), stride)
}

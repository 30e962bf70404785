// Command gen-pcl generates synthetic .pcl captures for testing playback.
package main

import (
	"flag"
	"log"

	"github.com/meridian-robotics/pointcloud.replay/internal/pcl"
)

func main() {
	output := flag.String("o", "sample.pcl", "output path")
	frames := flag.Int("frames", 100, "number of frames")
	points := flag.Int("points", 2048, "points per frame")
	seed := flag.Int64("seed", 1, "generator seed")
	pattern := flag.String("pattern", pcl.PatternOrbit, "cloud pattern: orbit or wave")
	nanRate := flag.Float64("nan-rate", 0, "fraction of points with a non-finite axis")
	emptyEvery := flag.Int("empty-every", 0, "write a zero-length record every K frames (0 disables)")
	flag.Parse()

	gen := pcl.NewGenerator(*seed)
	gen.PointCount = *points
	gen.Pattern = *pattern
	gen.NaNRate = *nanRate

	out := make([]pcl.Frame, 0, *frames)
	total := 0
	for i := 0; i < *frames; i++ {
		if *emptyEvery > 0 && (i+1)%*emptyEvery == 0 {
			out = append(out, pcl.Frame{})
			continue
		}
		f := pcl.Frame{Points: gen.NextFrame()}
		total += len(f.Points)
		out = append(out, f)
		if (i+1)%25 == 0 {
			log.Printf("%d/%d frames", i+1, *frames)
		}
	}

	if err := pcl.WriteFile(*output, out); err != nil {
		log.Fatalf("write failed: %v", err)
	}
	log.Printf("✓ Created: %s (%d records, %d points)", *output, len(out), total)
}

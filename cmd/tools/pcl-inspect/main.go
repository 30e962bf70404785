// Command pcl-inspect analyses a .pcl capture: decode health, per-frame
// point-count distribution, an optional PNG timeline and catalog recording.
// It also carries the catalog migration runner so schema changes do not need
// a separate tool.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/meridian-robotics/pointcloud.replay/internal/catalog"
	"github.com/meridian-robotics/pointcloud.replay/internal/inspect"
	"github.com/meridian-robotics/pointcloud.replay/internal/pcl"
)

func main() {
	jsonOut := flag.Bool("json", false, "emit the report as JSON")
	perFrame := flag.Bool("per-frame", false, "print the per-frame breakdown")
	plotPath := flag.String("plot", "", "write a per-frame point count PNG to this path")
	catalogPath := flag.String("catalog", "", "record the scan in this catalog database")
	notes := flag.String("catalog-notes", "", "set the capture's catalog notes (requires -catalog)")
	migrateCmd := flag.String("migrate", "", "run a catalog migration: up, down or version (requires -catalog)")
	migrateDir := flag.String("migrate-dir", "migrations", "catalog migrations directory")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <capture.pcl>\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Migration mode operates on the catalog alone; no capture is read.
	if *migrateCmd != "" {
		if *catalogPath == "" {
			fmt.Fprintln(os.Stderr, "Error: -migrate requires -catalog")
			os.Exit(1)
		}
		if err := runMigration(*catalogPath, *migrateDir, *migrateCmd); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: capture path is required")
		flag.Usage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	container, stats, err := pcl.ReadFileStats(path)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	report := inspect.Analyze(container, stats)
	report.Path = path
	if info, err := os.Stat(path); err == nil {
		report.FileSizeBytes = info.Size()
	}

	if *jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatalf("JSON marshal: %v", err)
		}
		fmt.Println(string(data))
	} else {
		printReport(report, *perFrame)
	}

	if *plotPath != "" {
		if err := inspect.RenderPlot(report, *plotPath); err != nil {
			log.Fatalf("Plot failed: %v", err)
		}
		fmt.Printf("Plot: %s\n", *plotPath)
	}

	if *catalogPath != "" {
		if err := recordScan(*catalogPath, report, stats, *notes); err != nil {
			log.Fatalf("Catalog update failed: %v", err)
		}
	}
}

func printReport(r inspect.Report, perFrame bool) {
	fmt.Println("\n========== Capture Analysis ==========")
	fmt.Printf("File: %s\n", r.Path)
	if r.FileSizeBytes > 0 {
		fmt.Printf("Size: %d bytes (%d consumed by decode)\n", r.FileSizeBytes, r.BytesConsumed)
	} else {
		fmt.Printf("Bytes consumed: %d\n", r.BytesConsumed)
	}
	fmt.Printf("Decode stopped: %s after %d records\n", r.StopReason, r.Records)
	fmt.Println()
	fmt.Printf("Frames: %d (%d empty)\n", r.Frames, r.EmptyFrames)
	fmt.Printf("Points: %d kept, %d dropped non-finite\n", r.PointsKept, r.PointsDropped)
	if r.ZMin != nil && r.ZMax != nil {
		fmt.Printf("Z range: %.3f to %.3f\n", *r.ZMin, *r.ZMax)
	}
	fmt.Println("\nPoints per frame:")
	fmt.Printf("  Min: %.0f  Max: %.0f  Mean: %.1f\n",
		r.PointCounts.Min, r.PointCounts.Max, r.PointCounts.Mean)
	fmt.Printf("  P50: %.0f  P85: %.0f  P95: %.0f\n",
		r.PointCounts.P50, r.PointCounts.P85, r.PointCounts.P95)

	if perFrame {
		fmt.Println("\nPer frame:")
		for _, f := range r.PerFrame {
			if f.Points == 0 {
				fmt.Printf("  %4d: empty\n", f.Index)
				continue
			}
			fmt.Printf("  %4d: %6d points, z %.3f to %.3f\n", f.Index, f.Points, f.ZMin, f.ZMax)
		}
	}
	fmt.Println("=======================================")
}

func recordScan(dbPath string, report inspect.Report, stats pcl.Stats, notes string) error {
	cat, err := catalog.Open(dbPath)
	if err != nil {
		return err
	}
	defer cat.Close()

	id, err := cat.RecordScan(catalog.ScanResult{
		Path:      report.Path,
		SizeBytes: report.FileSizeBytes,
		Frames:    report.Frames,
		Stats:     stats,
		ZMin:      report.ZMin,
		ZMax:      report.ZMax,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Catalogued as %s\n", id)

	if notes != "" {
		if err := cat.SetNotes(report.Path, notes); err != nil {
			return err
		}
	}
	return nil
}

func runMigration(dbPath, dir, cmd string) error {
	cat, err := catalog.Open(dbPath)
	if err != nil {
		return err
	}
	defer cat.Close()

	switch cmd {
	case "up":
		return cat.MigrateUp(dir)
	case "down":
		return cat.MigrateDown(dir)
	case "version":
		version, dirty, err := cat.MigrateVersion(dir)
		if err != nil {
			return err
		}
		fmt.Printf("Version: %d (dirty: %v)\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migration command %q", cmd)
	}
}

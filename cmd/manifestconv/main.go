package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"lsmview/pkg/compression"
	"lsmview/pkg/humanize"
	"lsmview/pkg/manifest"
	"lsmview/pkg/version"
)

func main() {
	var (
		mode   = flag.String("mode", "stat", "mode: stat, convert, check")
		input  = flag.String("input", "", "manifest dump (.json, .yaml, optionally .gz or .zst)")
		output = flag.String("output", "", "output path for convert; format and compression follow the extension")
	)
	flag.Parse()

	if *input == "" {
		log.Fatal("input file is required")
	}

	switch *mode {
	case "stat":
		if err := stat(*input); err != nil {
			log.Fatalf("stat failed: %v", err)
		}
	case "convert":
		if err := convert(*input, *output); err != nil {
			log.Fatalf("convert failed: %v", err)
		}
	case "check":
		if err := check(*input); err != nil {
			log.Fatalf("check failed: %v", err)
		}
	default:
		log.Fatalf("unknown mode: %s", *mode)
	}
}

// stat prints the shape of the dump and the layout after its last edit.
func stat(inputPath string) error {
	start := time.Now()
	data, err := manifest.Load(inputPath)
	if err != nil {
		return err
	}
	loadTime := time.Since(start)

	v, err := version.New(data)
	if err != nil {
		return err
	}
	start = time.Now()
	v.SetCursor(v.NumEdits() - 1)
	replayTime := time.Since(start)

	fmt.Printf("Manifest dump:\n")
	fmt.Printf("  Files: %d\n", len(data.Files))
	fmt.Printf("  Edits: %d\n", len(data.Edits))
	fmt.Printf("  Load: %v\n", loadTime)
	fmt.Printf("  Replay: %v\n", replayTime)

	if v.Cursor() < 0 {
		return nil
	}

	last, _ := v.DescribeEdit(v.Cursor())
	fmt.Printf("  Last edit: %s\n", last)

	fmt.Printf("\n%-6s %8s %12s\n", "Level", "Files", "Size")
	fmt.Printf("%-6s %8s %12s\n", "-----", "-----", "----")
	for _, s := range v.Summaries() {
		fmt.Printf("%-6s %8d %12s\n", s.Level, s.Count, humanize.IEC(s.Size))
	}
	return nil
}

// convert rewrites the dump in the format and compression implied by the
// output extension.
func convert(inputPath, outputPath string) error {
	if outputPath == "" {
		return fmt.Errorf("output path is required")
	}

	data, err := manifest.Load(inputPath)
	if err != nil {
		return err
	}

	codec, inner := compression.FromPath(outputPath)
	var encoded bytes.Buffer
	if err := manifest.Encode(&encoded, data, manifest.FormatFromPath(inner)); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	originalSize := encoded.Len()

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	start := time.Now()
	written, err := compression.Compress(&encoded, out, codec)
	if err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}
	duration := time.Since(start)

	fmt.Printf("Conversion complete:\n")
	fmt.Printf("  Codec: %s\n", codec)
	fmt.Printf("  Encoded: %d bytes\n", originalSize)
	fmt.Printf("  Written: %d bytes\n", written)
	if originalSize > 0 {
		fmt.Printf("  Ratio: %.2f%%\n", float64(written)/float64(originalSize)*100)
	}
	fmt.Printf("  Time: %v\n", duration)
	return nil
}

// check replays the dump and lists edits that add resident files or delete
// absent ones.
func check(inputPath string) error {
	data, err := manifest.Load(inputPath)
	if err != nil {
		return err
	}

	violations := data.CheckConsistency()
	if len(violations) == 0 {
		fmt.Printf("%d edits consistent\n", len(data.Edits))
		return nil
	}

	fmt.Printf("%d inconsistent edits:\n", len(violations))
	fmt.Println(strings.Repeat("-", 40))
	for _, v := range violations {
		fmt.Printf("  %s\n", v.Error())
	}
	return fmt.Errorf("%w: %d violations", manifest.ErrInconsistentEdit, len(violations))
}

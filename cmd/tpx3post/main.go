// Command tpx3post is the offline post-processing CLI: it reads one
// recorded packet file and writes the per-field coincidence output files
// to a directory.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/wb2osz-labs/tpx3stream/internal/offline"
	"github.com/wb2osz-labs/tpx3stream/internal/wire"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <file> <is_spim 0|1> <xspim> <yspim> [remove_cluster 0|1]\n", os.Args[0])
}

func main() {
	if len(os.Args) < 5 || len(os.Args) > 6 {
		usage()
		os.Exit(1)
	}

	inputPath := os.Args[1]

	isSpim, err := parseBool(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "tpx3post: is_spim: %v\n", err)
		os.Exit(1)
	}

	xspim, err := strconv.Atoi(os.Args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "tpx3post: xspim: %v\n", err)
		os.Exit(1)
	}

	yspim, err := strconv.Atoi(os.Args[4])
	if err != nil {
		fmt.Fprintf(os.Stderr, "tpx3post: yspim: %v\n", err)
		os.Exit(1)
	}

	removeCluster := false
	if len(os.Args) == 6 {
		removeCluster, err = parseBool(os.Args[5])
		if err != nil {
			fmt.Fprintf(os.Stderr, "tpx3post: remove_cluster: %v\n", err)
			os.Exit(1)
		}
	}

	outDir := inputPath + "_out"
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "tpx3post: creating %s: %v\n", outDir, err)
		os.Exit(1)
	}

	err = offline.Run(offline.Options{
		InputPath:     inputPath,
		OutputDir:     outDir,
		IsSpim:        isSpim,
		XSpim:         xspim,
		YSpim:         yspim,
		RemoveCluster: removeCluster,
		Mosaic:        wire.EELSStrip1x4,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "tpx3post: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote output fields to %s\n", outDir)
}

func parseBool(s string) (bool, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return false, err
	}
	if n != 0 && n != 1 {
		return false, fmt.Errorf("expected 0 or 1, got %d", n)
	}
	return n == 1, nil
}

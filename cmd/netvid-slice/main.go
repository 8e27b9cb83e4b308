// Command netvid-slice copies a seek/stop-bounded range of packets from one
// .netvid capture file to another, verbatim, ported from netvid_slice.cpp.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trylle/netvid/pkg/recorder"
)

func main() {
	var inputPath, outputPath string
	var seek int
	var stop int64

	cmd := &cobra.Command{
		Use:   "netvid-slice",
		Short: "Copy a bounded range of packets between netvid capture files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(inputPath, outputPath, seek, stop)
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input-file", "i", "-", "capture file to read (\"-\" for stdin)")
	cmd.Flags().StringVarP(&outputPath, "output-file", "o", "-", "capture file to write (\"-\" for stdout)")
	cmd.Flags().IntVar(&seek, "seek", 0, "first frame to copy")
	cmd.Flags().Int64Var(&stop, "stop", -1, "frame to stop before (-1 for end of file)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(inputPath, outputPath string, seek int, stop int64) error {
	var in *os.File
	if inputPath == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(inputPath)
		if err != nil {
			return fmt.Errorf("open input file: %w", err)
		}
		defer f.Close()
		in = f
	}

	var out *os.File
	if outputPath == "-" {
		out = os.Stdout
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	reader := recorder.NewReader(in)
	writer := recorder.NewWriter(out)

	slicer := recorder.NewSlicer(reader, writer)

	if seek > 0 {
		if err := slicer.Seek(uint32(seek)); err != nil {
			return fmt.Errorf("seek: %w", err)
		}
	}

	if err := slicer.Run(stop); err != nil {
		return fmt.Errorf("slice: %w", err)
	}

	return nil
}

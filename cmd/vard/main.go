// Package main provides the Vard ML Framework CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vard-ml/vard/serialization"
)

const version = "v0.3.0-dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("Vard ML Framework %s\n", version)
			return
		case "inspect":
			if len(os.Args) < 3 {
				fmt.Fprintln(os.Stderr, "usage: vard inspect <file.vard>")
				os.Exit(2)
			}
			if err := inspect(os.Args[2]); err != nil {
				fmt.Fprintf(os.Stderr, "vard: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	fmt.Println("Vard ML Framework - Sparsifying Neural Networks for Go")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version          Show version")
	fmt.Println("  inspect <file>   Describe the contents of a .vard file")
}

func inspect(path string) error {
	r, err := serialization.NewVardReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	header := r.Header()
	fmt.Printf("format version: %d\n", header.FormatVersion)
	fmt.Printf("written by:     vard %s\n", header.VardVersion)
	fmt.Printf("model type:     %s\n", header.ModelType)
	if !header.CreatedAt.IsZero() {
		fmt.Printf("created:        %s (%s)\n", header.CreatedAt.Format(time.RFC3339), humanize.Time(header.CreatedAt))
	}
	if meta := header.CheckpointMeta; meta != nil {
		fmt.Printf("checkpoint:     epoch %d, step %d, loss %.4f, kl coef %.3f, optimizer %s\n",
			meta.Epoch, meta.Step, meta.Loss, meta.KLCoef, meta.OptimizerType)
	}

	var total int64
	for _, name := range r.TensorNames() {
		info, err := r.TensorInfo(name)
		if err != nil {
			return err
		}
		fmt.Printf("  %-40s %-8s %v  %s\n", name, info.DType, info.Shape, humanize.Bytes(uint64(info.Size)))
		total += info.Size
	}
	fmt.Printf("%d tensors, %s of tensor data\n", len(r.TensorNames()), humanize.Bytes(uint64(total)))
	return nil
}

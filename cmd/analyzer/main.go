package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"tomydb/pkg/tomy_file"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-stats=false] file.tomy\n", os.Args[0])
		flag.PrintDefaults()
	}
	withStats := flag.Bool("stats", true, "print per row group statistics")
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	mf, err := tomy_file.OpenMapped(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to open %s: %v", flag.Arg(0), err)
	}
	defer mf.Close()

	meta := mf.Metadata()
	fmt.Printf("%s %s: %d rows, %d columns, %d row groups\n",
		color.GreenString("file"), mf.Path(), meta.NumRows, len(meta.Columns), mf.NumRowGroups())

	if err := printSchema(os.Stdout, mf); err != nil {
		log.Fatalf("Failed to print schema: %v", err)
	}
	if !*withStats {
		return
	}
	for c, col := range mf.Schema() {
		fmt.Printf("\n%s %s\n", color.CyanString("column"), col.Name)
		if err := printColumnStats(os.Stdout, mf, c); err != nil {
			log.Fatalf("Failed to print statistics: %v", err)
		}
	}
}

func printSchema(w io.Writer, mf *tomy_file.MappedFile) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"#", "name", "type", "bytes"})
	for c, col := range mf.Schema() {
		var size int64
		for _, rg := range mf.Metadata().RowGroups {
			size += rg.Chunks[c].CompressedSize
		}
		if err := table.Append([]string{fmt.Sprint(c), col.Name, col.Type.String(), fmt.Sprint(size)}); err != nil {
			return err
		}
	}
	return table.Render()
}

func printColumnStats(w io.Writer, mf *tomy_file.MappedFile, col int) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"row group", "rows", "nulls", "distinct", "min", "max"})
	for rg := range mf.NumRowGroups() {
		s := mf.Statistics(rg, col)
		minV, maxV := "-", "-"
		if s.HasMinMax() {
			minV, maxV = fmt.Sprint(s.Min), fmt.Sprint(s.Max)
		}
		row := []string{
			fmt.Sprint(rg),
			fmt.Sprint(mf.RowGroupRows(rg)),
			fmt.Sprint(s.NullCount),
			fmt.Sprint(s.DistinctCount),
			minV,
			maxV,
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/fatih/color"

	"tomydb/pkg/tomy_file"
)

func main() {
	out := flag.String("out", "lineitem.tomy", "output file")
	rows := flag.Int("rows", 6001215, "number of rows")
	rowGroupSize := flag.Int("row-group-size", tomy_file.DefaultRowGroupSize, "rows per row group")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	if *rows <= 0 {
		log.Fatalf("rows must be positive, got %d", *rows)
	}

	fmt.Printf("Generating %s lineitem rows...\n", color.CyanString("%d", *rows))
	start := time.Now()
	table := generateLineitem(*rows, rand.New(rand.NewSource(*seed)))
	printSummary(table)

	if err := tomy_file.NewWriter(*rowGroupSize).Write(*out, table); err != nil {
		log.Fatalf("Serialization failed: %v", err)
	}

	fi, err := os.Stat(*out)
	if err != nil {
		log.Fatalf("Failed to stat output: %v", err)
	}
	groups := (*rows + *rowGroupSize - 1) / *rowGroupSize
	fmt.Printf("%s %s: %d row groups, %.2f MB in %s\n",
		color.GreenString("wrote"), *out, groups, float64(fi.Size())/1024.0/1024.0, time.Since(start).Round(time.Millisecond))
}

var (
	returnFlags  = []string{"A", "N", "R"}
	lineStatuses = []string{"F", "O"}
	shipModes    = []string{"AIR", "FOB", "MAIL", "RAIL", "REG AIR", "SHIP", "TRUCK"}
)

// generateLineitem follows the value ranges of the TPC-H lineitem table.
// Decimals are stored unscaled with two digits.
func generateLineitem(rows int, rng *rand.Rand) *tomy_file.ColumnarTable {
	orderKey := make([]int64, rows)
	partKey := make([]int64, rows)
	lineNumber := make([]int64, rows)
	quantity := make([]int64, rows)
	price := make([]int64, rows)
	discount := make([]int64, rows)
	tax := make([]int64, rows)
	shipDate := make([]int64, rows)
	flags := make([]string, rows)
	statuses := make([]string, rows)
	modes := make([]string, rows)

	epochStart := time.Date(1992, 1, 2, 0, 0, 0, 0, time.UTC).Unix() / 86400
	const shipDays = 2526 // up to 1998-12-01

	order, line := int64(1), int64(0)
	for i := range rows {
		line++
		if line > int64(1+rng.Intn(7)) {
			order += int64(1 + rng.Intn(4))
			line = 1
		}
		orderKey[i] = order
		lineNumber[i] = line
		partKey[i] = int64(1 + rng.Intn(200000))
		quantity[i] = int64(1+rng.Intn(50)) * 100
		price[i] = quantity[i] / 100 * int64(90000+rng.Intn(1000000)) / 100
		discount[i] = int64(rng.Intn(11))
		tax[i] = int64(rng.Intn(9))
		shipDate[i] = epochStart + int64(rng.Intn(shipDays))
		flags[i] = returnFlags[rng.Intn(len(returnFlags))]
		statuses[i] = lineStatuses[rng.Intn(len(lineStatuses))]
		modes[i] = shipModes[rng.Intn(len(shipModes))]
	}

	return &tomy_file.ColumnarTable{
		NumRows: uint64(rows),
		Columns: []tomy_file.AnyColumn{
			&tomy_file.Int64Column{Name: "l_orderkey", Values: orderKey},
			&tomy_file.Int64Column{Name: "l_partkey", Values: partKey},
			&tomy_file.Int64Column{Name: "l_linenumber", Type: tomy_file.TypeInt32, Values: lineNumber},
			&tomy_file.Int64Column{Name: "l_quantity", Type: tomy_file.TypeDecimal, Values: quantity},
			&tomy_file.Int64Column{Name: "l_extendedprice", Type: tomy_file.TypeDecimal, Values: price},
			&tomy_file.Int64Column{Name: "l_discount", Type: tomy_file.TypeDecimal, Values: discount},
			&tomy_file.Int64Column{Name: "l_tax", Type: tomy_file.TypeDecimal, Values: tax},
			tomy_file.VarcharColumnFromStrings("l_returnflag", flags),
			tomy_file.VarcharColumnFromStrings("l_linestatus", statuses),
			&tomy_file.Int64Column{Name: "l_shipdate", Type: tomy_file.TypeDate, Values: shipDate},
			tomy_file.VarcharColumnFromStrings("l_shipmode", modes),
		},
	}
}

func printSummary(table *tomy_file.ColumnarTable) {
	for _, col := range table.Columns {
		s := tomy_file.ComputeStatistics(col)
		fmt.Printf("  %-16s %-8s distinct=%-8d min=%v max=%v\n",
			color.YellowString(col.GetName()), col.GetType(), s.DistinctCount, s.Min, s.Max)
	}
}

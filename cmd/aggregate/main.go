// Command aggregate loads a CSV file into a table, attaches indicators and
// prints raw or interval-aggregated records as JSON or CSV.
//
//	aggregate -in prices.csv -skip-header -interval 5min -indicators sma:20,rsi:14
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/AnyChart/AnyChart-sub039/internal/indicator"
	"github.com/AnyChart/AnyChart-sub039/internal/interval"
	"github.com/AnyChart/AnyChart-sub039/internal/model"
	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

const defaultFields = "open=1,high=2,low=3,close=4,volume=5"

func main() {
	log.SetFlags(0)
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatalf("aggregate: %v", err)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("aggregate", flag.ContinueOnError)
	in := fs.String("in", "-", "Input CSV file, - for stdin")
	columns := fs.Int("columns", 6, "Number of columns including the key column")
	fields := fs.String("fields", defaultFields, "Field mapping: name=column,...")
	iv := fs.String("interval", "", "Aggregation interval, e.g. 5min (empty prints raw rows)")
	indicators := fs.String("indicators", "", "Indicator specs: type:period[:source],...")
	pattern := fs.String("pattern", "", "Date-time pattern of string keys, e.g. yyyy-MM-dd HH:mm")
	offset := fs.Float64("offset", 0, "Time offset of string keys in hours")
	skipHeader := fs.Bool("skip-header", false, "Drop the first CSV record")
	delimiter := fs.String("delimiter", ",", "CSV delimiter")
	format := fs.String("format", "json", "Output format: json or csv")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *format != "json" && *format != "csv" {
		return fmt.Errorf("unknown format %q", *format)
	}

	opts := []table.Option{table.WithTimeOffset(*offset)}
	if *pattern != "" {
		opts = append(opts, table.WithDateTimePattern(*pattern))
	}
	t, err := table.New(*columns, opts...)
	if err != nil {
		return err
	}
	fieldMap, err := parseFields(*fields)
	if err != nil {
		return err
	}
	m, err := t.MapAs(fieldMap)
	if err != nil {
		return err
	}
	if *indicators != "" {
		cfgs, err := indicator.ParseConfigs(*indicators)
		if err != nil {
			return err
		}
		if err := indicator.NewRegistry(t, m, nil).Apply(cfgs); err != nil {
			return err
		}
	}

	src := stdin
	if *in != "-" {
		f, err := os.Open(*in)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}
	settings := table.CSVSettings{SkipHeader: *skipHeader}
	if d := []rune(*delimiter); len(d) == 1 {
		settings.Delimiter = d[0]
	} else {
		return fmt.Errorf("delimiter must be a single character, got %q", *delimiter)
	}
	if err := t.AddCSV(src, settings); err != nil {
		return err
	}

	var g table.IntervalGenerator
	if *iv != "" {
		gen, err := interval.Parse(*iv)
		if err != nil {
			return err
		}
		g = gen
	}
	records, err := t.Records(m, g, math.MinInt64, math.MaxInt64)
	if err != nil {
		return err
	}

	if *format == "csv" {
		return writeCSV(stdout, m.Fields(), records)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// parseFields reads "open=1,close=4".
func parseFields(s string) (map[string]int, error) {
	out := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, col, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("field %q: want name=column", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(col))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", part, err)
		}
		out[strings.TrimSpace(name)] = n
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no fields in %q", s)
	}
	return out, nil
}

// writeCSV prints a header of key plus fields, then one line per record.
// Missing values are empty cells.
func writeCSV(w io.Writer, fields []string, records []model.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"key"}, fields...)); err != nil {
		return err
	}
	line := make([]string, len(fields)+1)
	for _, r := range records {
		line[0] = strconv.FormatInt(r.Key, 10)
		for i, f := range fields {
			v, ok := r.Values[f]
			if !ok || math.IsNaN(v) {
				line[i+1] = ""
				continue
			}
			line[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

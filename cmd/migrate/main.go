package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: migrate <remove-duplicates|drop-partial> <data-directory>")
	}

	command := os.Args[1]
	dataDir := os.Args[2]
	reader := bufio.NewReader(os.Stdin)
	confirm := func(path string, n int) bool {
		return confirmChange(reader, path, n)
	}

	var (
		changed int
		err     error
	)
	switch command {
	case "remove-duplicates":
		changed, err = repairTables(dataDir, removeDuplicates, confirm)
	case "drop-partial":
		changed, err = repairTables(dataDir, dropPartial, confirm)
	default:
		log.Fatalf("Unknown command %q", command)
	}
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("\nRemoved %d rows\n", changed)
}

// repair returns the records to keep and the number of rows dropped
type repair func(path string, header []string, rows [][]string) ([][]string, int)

// repairTables applies fix to every CSV table under dataDir and writes
// back the tables whose changes were confirmed
func repairTables(dataDir string, fix repair, confirm func(path string, n int) bool) (int, error) {
	var tables []string
	if err := filepath.WalkDir(dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Continue on errors
		}
		if !d.IsDir() && strings.HasSuffix(path, ".csv") {
			tables = append(tables, path)
		}
		return nil
	}); err != nil {
		return 0, fmt.Errorf("walking directory: %w", err)
	}

	total := 0
	for _, path := range tables {
		header, rows, malformed, err := readCSV(path)
		if err != nil {
			log.Printf("Error reading %s: %v", path, err)
			continue
		}
		if len(header) == 0 {
			continue
		}

		kept, dropped := fix(path, header, rows)
		dropped += malformed
		if dropped == 0 {
			continue
		}
		if !confirm(path, dropped) {
			fmt.Printf("  SKIP: %s\n", path)
			continue
		}
		if err := writeCSV(path, header, kept); err != nil {
			log.Printf("Error writing %s: %v", path, err)
			continue
		}
		total += dropped
		fmt.Printf("  REPAIRED: %s (%d rows removed)\n", path, dropped)
	}
	return total, nil
}

// removeDuplicates keeps the last row for every value of the first column
func removeDuplicates(path string, header []string, rows [][]string) ([][]string, int) {
	last := make(map[string]int, len(rows))
	for i, row := range rows {
		last[row[0]] = i
	}

	kept := make([][]string, 0, len(last))
	for i, row := range rows {
		if last[row[0]] != i {
			fmt.Printf("  DUPLICATE %s: %s=%s\n", filepath.Base(path), header[0], row[0])
			continue
		}
		kept = append(kept, row)
	}
	return kept, len(rows) - len(kept)
}

// dropPartial removes content rows with an empty cell. Verdict tables
// are left alone because passing verdicts carry no reason.
func dropPartial(path string, header []string, rows [][]string) ([][]string, int) {
	if isVerdictTable(path) {
		return rows, 0
	}

	kept := make([][]string, 0, len(rows))
	for _, row := range rows {
		if partial(row) {
			fmt.Printf("  PARTIAL %s: %s=%s\n", filepath.Base(path), header[0], row[0])
			continue
		}
		kept = append(kept, row)
	}
	return kept, len(rows) - len(kept)
}

func isVerdictTable(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "checks" {
			return true
		}
	}
	return false
}

func partial(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) == "" {
			return true
		}
	}
	return false
}

// readCSV returns the header, the rows whose width matches it and the
// number of rows that did not
func readCSV(path string) ([]string, [][]string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, 0, nil
	}
	if err != nil {
		return nil, nil, 0, fmt.Errorf("reading header of %s: %w", path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var (
		rows      [][]string
		malformed int
	)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			fmt.Printf("  MALFORMED %s: line %d: %v\n", filepath.Base(path), parseErr.Line, parseErr.Err)
			malformed++
			continue
		}
		if err != nil {
			return nil, nil, 0, fmt.Errorf("reading %s: %w", path, err)
		}
		if len(record) != len(header) {
			fmt.Printf("  MALFORMED %s: %d fields\n", filepath.Base(path), len(record))
			malformed++
			continue
		}
		rows = append(rows, record)
	}
	return header, rows, malformed, nil
}

// writeCSV replaces path through a temporary file in the same directory
func writeCSV(path string, header []string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("writing header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("writing rows: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func confirmChange(reader *bufio.Reader, path string, n int) bool {
	for {
		fmt.Printf("  REWRITE %s without %d rows? [y/N]: ", path, n)
		input, err := reader.ReadString('\n')
		if err != nil {
			log.Printf("Error reading input: %v", err)
			return false
		}
		response := strings.ToLower(strings.TrimSpace(input))
		switch response {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		default:
			fmt.Println("  Please enter y or n.")
		}
	}
}

/*package tableio reads and writes the delimited particle tables consumed by
downstream tracking codes. The format is one header row naming each column
(units are baked into the names: positions in um, momenta in MeV/c), then one
comma-separated row per macroparticle with %.7e floats. Files ending in .zst
are compressed with zstd transparently in both directions.*/
package tableio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/DataDog/zstd"

	"github.com/pmdtools/winnow/lib/ensemble"
)

// Options selects the optional columns of the written table. The six
// position/momentum columns are always present, in fixed order.
type Options struct {
	IncludeWeights bool
	IncludeEnergy  bool
}

// Write writes the ensemble as a delimited table.
func Write(w io.Writer, e *ensemble.Ensemble, opts Options) error {
	bw := bufio.NewWriter(w)

	columns := append([]string{}, ensemble.FieldNames...)
	if opts.IncludeWeights { columns = append(columns, "weights") }
	if opts.IncludeEnergy { columns = append(columns, "energy_mev") }
	if _, err := fmt.Fprintln(bw, strings.Join(columns, ",")); err != nil {
		return err
	}

	cols := make([][]float64, 0, len(columns))
	for _, name := range ensemble.FieldNames {
		col, err := e.Field(name)
		if err != nil { return err }
		cols = append(cols, col)
	}
	if opts.IncludeWeights { cols = append(cols, e.Weights()) }
	if opts.IncludeEnergy { cols = append(cols, e.Energy()) }

	for i := 0; i < e.Len(); i++ {
		for j := range cols {
			if j > 0 {
				if err := bw.WriteByte(','); err != nil { return err }
			}
			if _, err := fmt.Fprintf(bw, "%.7e", cols[j][i]); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil { return err }
	}

	return bw.Flush()
}

// WriteFile writes the ensemble to a file, compressing with zstd when the
// name ends in .zst.
func WriteFile(name string, e *ensemble.Ensemble, opts Options) error {
	f, err := os.Create(name)
	if err != nil { return err }
	defer f.Close()

	if strings.HasSuffix(name, ".zst") {
		zw := zstd.NewWriter(f)
		if err := Write(zw, e, opts); err != nil {
			zw.Close()
			return err
		}
		if err := zw.Close(); err != nil { return err }
		return f.Close()
	}

	if err := Write(f, e, opts); err != nil { return err }
	return f.Close()
}

// Read parses a delimited particle table into an ensemble of the given
// species and mass. The six position/momentum columns and the weights column
// are required; unknown columns (such as energy_mev, which is recomputed
// from momentum) are skipped. Column order in the file does not matter.
func Read(r io.Reader, species string, mass float64) (*ensemble.Ensemble, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil { return nil, err }
		return nil, fmt.Errorf("The table is empty: no header row was found.")
	}

	header := splitRow(sc.Text())
	want := append(append([]string{}, ensemble.FieldNames...), "weights")
	colIdx := make([]int, len(want))
	for i, name := range want {
		colIdx[i] = -1
		for j, h := range header {
			// Tolerate unit annotations like "weights (1)" after the name.
			if h == name || strings.HasPrefix(h, name+" ") {
				colIdx[i] = j
				break
			}
		}
		if colIdx[i] == -1 {
			return nil, fmt.Errorf("The table header %v does not contain the required column '%s'.",
				header, name)
		}
	}

	cols := make([][]float64, len(want))
	line := 1
	for sc.Scan() {
		line++
		row := splitRow(sc.Text())
		if len(row) == 1 && row[0] == "" { continue } // trailing blank line
		if len(row) != len(header) {
			return nil, fmt.Errorf("Line %d has %d fields, but the header has %d.",
				line, len(row), len(header))
		}
		for i, j := range colIdx {
			v, err := strconv.ParseFloat(row[j], 64)
			if err != nil {
				return nil, fmt.Errorf("Line %d, column '%s': %s",
					line, want[i], err.Error())
			}
			cols[i] = append(cols[i], v)
		}
	}
	if err := sc.Err(); err != nil { return nil, err }

	return ensemble.New(species, mass,
		cols[0], cols[1], cols[2], cols[3], cols[4], cols[5], cols[6])
}

// ReadFile reads a particle table from a file, decompressing zstd when the
// name ends in .zst.
func ReadFile(name, species string, mass float64) (*ensemble.Ensemble, error) {
	f, err := os.Open(name)
	if err != nil { return nil, err }
	defer f.Close()

	if strings.HasSuffix(name, ".zst") {
		zr := zstd.NewReader(f)
		defer zr.Close()
		return Read(zr, species, mass)
	}
	return Read(f, species, mass)
}

// splitRow splits one table row on commas and trims the fields.
func splitRow(s string) []string {
	fields := strings.Split(s, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

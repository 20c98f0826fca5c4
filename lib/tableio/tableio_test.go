package tableio

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pmdtools/winnow/lib/ensemble"
	"github.com/pmdtools/winnow/lib/eq"
)

func testEnsemble(t *testing.T) *ensemble.Ensemble {
	e, err := ensemble.New("electron", 1.0,
		[]float64{1.5, -2.25},
		[]float64{0, 1},
		[]float64{100, 200},
		[]float64{0.125, 0.25},
		[]float64{0, 0},
		[]float64{10, 20},
		[]float64{3, 7},
	)
	if err != nil {
		t.Fatalf("Expected ensemble.New to succeed, got error '%s'.",
			err.Error())
	}
	return e
}

func TestWriteHeaderAndFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	err := Write(buf, testEnsemble(t), Options{IncludeWeights: true})
	if err != nil {
		t.Fatalf("Expected Write to succeed, got error '%s'.", err.Error())
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected a header and 2 rows, got %d lines.", len(lines))
	}

	wantHeader := "position_x_um,position_y_um,position_z_um," +
		"momentum_x_mev_c,momentum_y_mev_c,momentum_z_mev_c,weights"
	if lines[0] != wantHeader {
		t.Errorf("Expected header '%s', got '%s'.", wantHeader, lines[0])
	}

	fields := strings.Split(lines[1], ",")
	if fields[0] != "1.5000000e+00" {
		t.Errorf("Expected the x position formatted as '1.5000000e+00', got '%s'.",
			fields[0])
	}
	if fields[6] != "3.0000000e+00" {
		t.Errorf("Expected the weight formatted as '3.0000000e+00', got '%s'.",
			fields[6])
	}
}

func TestRoundTrip(t *testing.T) {
	e := testEnsemble(t)

	buf := &bytes.Buffer{}
	opts := Options{IncludeWeights: true, IncludeEnergy: true}
	if err := Write(buf, e, opts); err != nil {
		t.Fatalf("Expected Write to succeed, got error '%s'.", err.Error())
	}

	out, err := Read(buf, "electron", 1.0)
	if err != nil {
		t.Fatalf("Expected Read to succeed, got error '%s'.", err.Error())
	}

	if out.Len() != e.Len() {
		t.Fatalf("Expected %d particles after the round trip, got %d.",
			e.Len(), out.Len())
	}
	for _, name := range ensemble.FieldNames {
		a, _ := e.Field(name)
		b, _ := out.Field(name)
		if !eq.Float64sEps(a, b, 1e-6) {
			t.Errorf("Expected column '%s' to survive the round trip, got %v vs %v.",
				name, a, b)
		}
	}
	if !eq.Float64sEps(e.Weights(), out.Weights(), 1e-6) {
		t.Errorf("Expected weights to survive the round trip, got %v vs %v.",
			e.Weights(), out.Weights())
	}
}

func TestReadRejectsMissingColumn(t *testing.T) {
	table := "position_x_um,weights\n1.0,2.0\n"
	if _, err := Read(strings.NewReader(table), "electron", 1.0); err == nil {
		t.Errorf("Expected Read to reject a table without momentum columns.")
	}
}

func TestReadRejectsRaggedRow(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Write(buf, testEnsemble(t), Options{IncludeWeights: true}); err != nil {
		t.Fatalf("Expected Write to succeed, got error '%s'.", err.Error())
	}
	broken := strings.TrimSpace(buf.String()) + "\n1.0,2.0\n"

	if _, err := Read(strings.NewReader(broken), "electron", 1.0); err == nil {
		t.Errorf("Expected Read to reject a short row.")
	}
}

func TestReadRejectsExtraColumn(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Write(buf, testEnsemble(t), Options{IncludeWeights: true}); err != nil {
		t.Fatalf("Expected Write to succeed, got error '%s'.", err.Error())
	}

	// A data row with one field more than the header declares.
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	lines[1] += ",1.0"
	broken := strings.Join(lines, "\n") + "\n"

	if _, err := Read(strings.NewReader(broken), "electron", 1.0); err == nil {
		t.Errorf("Expected Read to reject a row with an extra field.")
	}
}

func TestZstdRoundTrip(t *testing.T) {
	e := testEnsemble(t)
	name := filepath.Join(t.TempDir(), "particles.csv.zst")

	opts := Options{IncludeWeights: true}
	if err := WriteFile(name, e, opts); err != nil {
		t.Fatalf("Expected WriteFile to succeed, got error '%s'.", err.Error())
	}

	out, err := ReadFile(name, "electron", 1.0)
	if err != nil {
		t.Fatalf("Expected ReadFile to succeed, got error '%s'.", err.Error())
	}
	if out.Len() != e.Len() {
		t.Errorf("Expected %d particles after the compressed round trip, got %d.",
			e.Len(), out.Len())
	}
	if !eq.Float64sEps(e.Weights(), out.Weights(), 1e-6) {
		t.Errorf("Expected weights to survive the compressed round trip, got %v vs %v.",
			e.Weights(), out.Weights())
	}
}

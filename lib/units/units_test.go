package units

import (
	"math"
	"testing"
)

func TestElectronMassMeV(t *testing.T) {
	// CODATA: 0.51099895 MeV/c^2.
	if math.Abs(ElectronMassMeV-0.51099895) > 1e-6 {
		t.Errorf("Expected the electron mass near 0.51099895 MeV, got %g.",
			ElectronMassMeV)
	}
}

func TestChargePicocoulombs(t *testing.T) {
	if math.Abs(ChargePicocoulombs-1.602176634e-7) > 1e-15 {
		t.Errorf("Expected the elementary charge 1.602176634e-7 pC, got %g.",
			ChargePicocoulombs)
	}
}

func TestMomentumConversionRoundTrip(t *testing.T) {
	// One MeV/c expressed in SI and converted back.
	si := 1.0 / MomentumToMeVC
	if math.Abs(si*MomentumToMeVC-1.0) > 1e-12 {
		t.Errorf("Expected the momentum conversion to round trip, got %g.",
			si*MomentumToMeVC)
	}
}

/*package units contains the physical constants and conversion factors used
when interpreting particle tables. Positions are stored in micrometers,
momenta in MeV/c, energies in MeV, and weights are dimensionless counts of
real particles.*/
package units

const (
	// SpeedOfLight is c in m/s.
	SpeedOfLight = 299792458.0
	// ElementaryCharge is the charge of a single electron in coulombs.
	ElementaryCharge = 1.602176634e-19
	// ElectronMassKg is the electron rest mass in kg.
	ElectronMassKg = 9.1093837015e-31

	// MetersToMicrons converts positions from m to um.
	MetersToMicrons = 1e6
	// EVToMeV converts energies from eV to MeV.
	EVToMeV = 1e-6
	// JouleToEV converts energies from J to eV.
	JouleToEV = 1.0 / ElementaryCharge
)

var (
	// ElectronMassMeV is the electron rest mass energy in MeV/c^2. All
	// ensemble masses are stored relative to this value.
	ElectronMassMeV = ElectronMassKg * SpeedOfLight * SpeedOfLight *
		JouleToEV * EVToMeV
	// MomentumToMeVC converts momenta from kg m/s to MeV/c.
	MomentumToMeVC = SpeedOfLight * JouleToEV * EVToMeV
	// ChargePicocoulombs is the charge of one real electron in pC. The total
	// charge of an ensemble is its total weight times this value.
	ChargePicocoulombs = ElementaryCharge * 1e12
)

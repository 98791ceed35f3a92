package synth

import (
	"time"

	"github.com/leapstack-labs/qcops/pkg/core"
)

// Partner names used by the fixed network.
const (
	PharmaMfg  = "Pharma-Mfg"
	BioTest    = "BioTest Labs"
	GeneChem   = "Gene-Chem"
	OligoSynth = "OligoSynth"
	VialFill   = "VialFill Services"
)

// Partners returns the fixed external partner network.
func Partners() []core.Partner {
	return []core.Partner{
		{Name: PharmaMfg, Role: core.RoleCMO, Specialty: "Drug Substance", Location: "Boston, MA", Latitude: 42.3601, Longitude: -71.0589, SLADays: 21},
		{Name: BioTest, Role: core.RoleCTO, Specialty: "Analytical & Micro", Location: "San Diego, CA", Latitude: 32.7157, Longitude: -117.1611, SLADays: 14},
		{Name: GeneChem, Role: core.RoleCTO, Specialty: "Analytical Chemistry", Location: "Raleigh, NC", Latitude: 35.7796, Longitude: -78.6382, SLADays: 14},
		{Name: OligoSynth, Role: core.RoleCMO, Specialty: "Oligonucleotide Synthesis", Location: "Boulder, CO", Latitude: 40.0150, Longitude: -105.2705, SLADays: 21},
		{Name: VialFill, Role: core.RoleCMO, Specialty: "Drug Product Fill/Finish", Location: "Brussels, Belgium", Latitude: 50.8503, Longitude: 4.3517, SLADays: 28},
	}
}

// TechTransfers returns the fixed list of in-flight method transfers.
func TechTransfers() []core.TechTransfer {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	return []core.TechTransfer{
		{Partner: BioTest, Method: "DMD Bioassay (EC50)", From: "Avidity AD", Status: "Protocol Execution", TargetDate: day(2024, time.September, 15)},
		{Partner: BioTest, Method: "FSHD Purity by CE-SDS", From: "Avidity AD", Status: "Method Familiarization", TargetDate: day(2024, time.October, 1)},
		{Partner: GeneChem, Method: "DM1 Oligo Purity by IPRP-HPLC", From: OligoSynth, Status: "Completed", TargetDate: day(2024, time.July, 30)},
		{Partner: VialFill, Method: "Sterility Testing", From: BioTest, Status: "Protocol Development", TargetDate: day(2024, time.November, 20)},
	}
}

// RootCauses are the investigation root-cause tags.
var RootCauses = []string{
	"Analyst Error",
	"Method Variability",
	"Instrument Malfunction",
	"Reagent Issue",
	"Column Degradation",
	"Sample Handling",
	"Process Drift",
}

var (
	lotStatusWeights = []weighted[core.LotStatus]{
		{core.LotTesting, 0.25},
		{core.LotDataReview, 0.20},
		{core.LotAwaitingRelease, 0.15},
		{core.LotReleased, 0.40},
	}
	deviationTypeWeights = []weighted[core.DeviationType]{
		{core.DeviationStandard, 0.5},
		{core.DeviationOOS, 0.3},
		{core.DeviationOOT, 0.2},
	}
	deviationStatusWeights = []weighted[core.DeviationStatus]{
		{core.DevNewEvent, 0.1},
		{core.DevInvestigation, 0.3},
		{core.DevCAPAPlan, 0.2},
		{core.DevEffectivenessCheck, 0.1},
		{core.DevClosed, 0.3},
	}
)

// normal is a mean and standard deviation.
type normal struct{ mean, sd float64 }

var (
	purityDist       = normal{99.0, 0.5}
	mainImpurityDist = normal{1.2, 0.3}
	aggregateDist    = normal{1.5, 0.4}
)

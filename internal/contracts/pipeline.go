package contracts

// Stage names a step of the offline pipeline. Logs and run metadata use
// these values only. (SSOT)
//
//	S0 panel → S1 universe → S2 simulator → S3 evaluation
type Stage string

const (
	StagePanel      Stage = "S0_PANEL"      // internal/s0_data
	StageUniverse   Stage = "S1_UNIVERSE"   // internal/s1_universe
	StageSimulator  Stage = "S2_SIMULATOR"  // internal/env
	StageEvaluation Stage = "S3_EVALUATION" // internal/backtest
)

type stageInfo struct {
	short   string
	command string // CLI that writes the stage's artifact; the simulator writes none
}

var stages = map[Stage]stageInfo{
	StagePanel:      {"S0", "edge panel build"},
	StageUniverse:   {"S1", "edge universe build"},
	StageSimulator:  {"S2", ""},
	StageEvaluation: {"S3", "edge evaluate"},
}

func (s Stage) String() string { return string(s) }

// ShortName is the "S0".."S3" tag, or "UNKNOWN"
func (s Stage) ShortName() string {
	if info, ok := stages[s]; ok {
		return info.short
	}
	return "UNKNOWN"
}

// Command is what to run when the stage's artifact is missing
func (s Stage) Command() string {
	return stages[s].command
}

package domain

import "fmt"

// Confidence assumed for readings stored before scoring existed.
const defaultConfidence = 50

// ShouldReplaceReading decides whether an incoming reading may overwrite the
// one already stored for a system. Manual entries are sticky: automation
// never displaces them, and they always displace automation. Between two
// automated readings the incoming one must be meaningfully more confident.
func ShouldReplaceReading(existing, incoming Reading) (bool, string) {
	if existing.IsManual() && !incoming.IsManual() {
		return false, "preserving manual entry over automated extraction"
	}
	if !existing.IsManual() && incoming.IsManual() {
		return true, "manual entry takes precedence over automated extraction"
	}

	existingConf := existing.Confidence
	if existingConf == 0 {
		existingConf = defaultConfidence
	}
	incomingConf := incoming.Confidence
	if incomingConf == 0 {
		incomingConf = defaultConfidence
	}

	if incomingConf > existingConf+20 {
		return true, fmt.Sprintf("new data has significantly higher confidence (%d vs %d)", incomingConf, existingConf)
	}
	if existingConf > incomingConf+10 {
		return false, fmt.Sprintf("existing data has higher confidence (%d vs %d)", existingConf, incomingConf)
	}

	return false, "preserving existing data to avoid unnecessary changes"
}

package workflow

import (
	"regexp"
	"strconv"

	"bitbucket.org/almapacdev/shipments_backend/models"
	"bitbucket.org/almapacdev/shipments_backend/utils"
)

var (
	driverLicensePattern = regexp.MustCompile(`^\d+$`)
	vehiclePlatePattern  = regexp.MustCompile(`^C\d+$`)
	trailerPlatePattern  = regexp.MustCompile(`^RE\d+$`)
	sealPositionPattern  = regexp.MustCompile(`marchamo(\d+)`)
)

// resolveUsername picks the acting user for the audit trail: an explicit
// override wins over the session identity, UNKNOWN is the last resort.
func resolveUsername(override *string, sessionUsername string) string {
	if override != nil && *override != "" {
		return *override
	}
	if sessionUsername != "" {
		return sessionUsername
	}
	return "UNKNOWN"
}

// validateSealPatches rejects empty codes, duplicate codes and reporting
// more seals than are physically placed.
func validateSealPatches(patches []SealPatch, existingCount int) error {
	if len(patches) == 0 {
		return nil
	}
	if len(patches) > existingCount {
		return utils.Errf(utils.KindValidationFailed,
			"cannot report %d seals, only %d are placed", len(patches), existingCount)
	}
	seen := make(map[string]bool, len(patches))
	for _, patch := range patches {
		if patch.SealCode == "" {
			return utils.Errf(utils.KindValidationFailed, "seal code cannot be empty")
		}
		if seen[patch.SealCode] {
			return utils.Errf(utils.KindValidationFailed, "duplicate seal code %s", patch.SealCode)
		}
		seen[patch.SealCode] = true
	}
	return nil
}

// parseReportedPosition extracts the 1-based seal position from the
// reported label (e.g. "marchamo3").
func parseReportedPosition(reported string) (int, bool) {
	m := sealPositionPattern.FindStringSubmatch(reported)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// resolveSealPositions maps each seal patch to a 0-based index into the
// placed seals: by reported position when one parses and is in range,
// sequentially otherwise. Two patches resolving to the same seal would
// silently drop one update, so collisions are rejected.
func resolveSealPositions(reported []string, patchCount int, existingCount int) ([]int, error) {
	positions := make([]int, patchCount)
	taken := make(map[int]bool, patchCount)
	for i := 0; i < patchCount; i++ {
		positions[i] = i
		if i < len(reported) {
			if pos, ok := parseReportedPosition(reported[i]); ok && pos <= existingCount {
				positions[i] = pos - 1
			}
		}
		if taken[positions[i]] {
			return nil, utils.Errf(utils.KindValidationFailed,
				"two seals resolve to position %d", positions[i]+1)
		}
		taken[positions[i]] = true
	}
	return positions, nil
}

// previousNonInconsistencyStatus scans the ledger newest first for the
// status to restore once the inconsistency is handled.
func previousNonInconsistencyStatus(newestFirstCodes []int) (int, bool) {
	for _, code := range newestFirstCodes {
		if code != models.StatusInconsistency {
			return code, true
		}
	}
	return 0, false
}

func intPtrEqual(a *int, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

package recorder

import "KabuScout/internal/model"

// Recorder persists run history for later analysis.
type Recorder interface {
	RecordScan(res *model.ScanResult) error
	RecordVerification(rep *model.VerificationReport) error
	Close() error
}

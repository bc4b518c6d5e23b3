package recorder

import "KabuScout/internal/model"

// NoopRecorder is used when history recording is disabled.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordScan(_ *model.ScanResult) error                 { return nil }
func (n *NoopRecorder) RecordVerification(_ *model.VerificationReport) error { return nil }
func (n *NoopRecorder) Close() error                                         { return nil }

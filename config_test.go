package main

import "testing"

func TestDefaultFlagsValidate(t *testing.T) {
	f := DefaultFlags()
	if err := f.Validate(); err != nil {
		t.Fatalf("defaults should validate cleanly: %v", err)
	}
}

func TestFlagsValidateRejectsLowHeartbeatInterval(t *testing.T) {
	f := DefaultFlags()
	f.HeartbeatIntervalMs = 50
	if err := f.Validate(); err == nil {
		t.Fatal("heartbeat interval below 100ms should fail validation")
	}
}

func TestFlagsValidateAllowsHeartbeatDisabled(t *testing.T) {
	f := DefaultFlags()
	f.HeartbeatIntervalMs = 0
	if err := f.Validate(); err != nil {
		t.Fatalf("heartbeat interval 0 should be allowed: %v", err)
	}
}

func TestFlagsValidateRejectsMismatchedCertPair(t *testing.T) {
	f := DefaultFlags()
	f.CertFile = "cert.pem"
	if err := f.Validate(); err == nil {
		t.Fatal("cert file without a matching key file should fail validation")
	}
}

func TestFlagsValidateRejectsNonPositiveSyncTimeout(t *testing.T) {
	f := DefaultFlags()
	f.SyncTimeoutMs = 0
	if err := f.Validate(); err == nil {
		t.Fatal("zero sync timeout should fail validation")
	}
}

func TestFlagsHelperDurations(t *testing.T) {
	f := DefaultFlags()
	if f.heartbeatInterval().Milliseconds() != int64(f.HeartbeatIntervalMs) {
		t.Fatal("heartbeatInterval should mirror HeartbeatIntervalMs")
	}
	if f.syncTimeout().Milliseconds() != int64(f.SyncTimeoutMs) {
		t.Fatal("syncTimeout should mirror SyncTimeoutMs")
	}
}

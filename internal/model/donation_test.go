package model

import "testing"

func TestDonationStatusTransitions(t *testing.T) {
	allowed := []struct {
		from, to DonationStatus
	}{
		{DonationStatusPending, DonationStatusWaiting},
		{DonationStatusPending, DonationStatusCommitted},
		{DonationStatusWaiting, DonationStatusToApprove},
		{DonationStatusWaiting, DonationStatusCancelled},
		{DonationStatusToApprove, DonationStatusCommitted},
		{DonationStatusToApprove, DonationStatusWaiting},
		{DonationStatusCommitted, DonationStatusCancelled}, // 提现
		{DonationStatusRejected, DonationStatusWaiting},
	}
	for _, tt := range allowed {
		if !tt.from.CanTransitionTo(tt.to) {
			t.Errorf("%s -> %s should be allowed", tt.from, tt.to)
		}
	}

	denied := []struct {
		from, to DonationStatus
	}{
		{DonationStatusCommitted, DonationStatusWaiting},
		{DonationStatusCommitted, DonationStatusToApprove},
		{DonationStatusCancelled, DonationStatusWaiting},
		{DonationStatusPending, DonationStatusToApprove},
		{DonationStatusWaiting, DonationStatusCommitted},
	}
	for _, tt := range denied {
		if tt.from.CanTransitionTo(tt.to) {
			t.Errorf("%s -> %s should be denied", tt.from, tt.to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	committed := DonationModel{Status: DonationStatusCommitted}
	cancelled := DonationModel{Status: DonationStatusCancelled}
	waiting := DonationModel{Status: DonationStatusWaiting}

	if !committed.IsTerminal() || !cancelled.IsTerminal() {
		t.Error("committed and cancelled are terminal states")
	}
	if waiting.IsTerminal() {
		t.Error("waiting is not a terminal state")
	}
}

func TestIsOptimistic(t *testing.T) {
	hash := "0xabc"
	d := DonationModel{SubmissionHash: &hash}
	if !d.IsOptimistic() {
		t.Error("row with submission hash is optimistic")
	}
	d.SubmissionHash = nil
	if d.IsOptimistic() {
		t.Error("reconciled row is not optimistic")
	}
}

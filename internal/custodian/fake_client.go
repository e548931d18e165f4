package custodian

import (
	"context"
	"sync"
)

// FakeClient is a programmable in-memory custodian for tests.
type FakeClient struct {
	mu sync.Mutex

	// ReturnCode, when set, supersedes the proposed escrow code.
	ReturnCode string
	// CreateErr / ReleaseErr force the corresponding call to fail.
	CreateErr  error
	ReleaseErr error

	Splits   []SplitRequest
	Releases []ReleaseCall
}

type ReleaseCall struct {
	EscrowCode  string
	RecipientID string
}

func (f *FakeClient) CreateSplit(_ context.Context, req SplitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.Splits = append(f.Splits, req)
	if f.ReturnCode != "" {
		return f.ReturnCode, nil
	}
	return req.EscrowCode, nil
}

func (f *FakeClient) Release(_ context.Context, escrowCode, recipientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReleaseErr != nil {
		return f.ReleaseErr
	}
	f.Releases = append(f.Releases, ReleaseCall{EscrowCode: escrowCode, RecipientID: recipientID})
	return nil
}

func (f *FakeClient) ReleaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Releases)
}

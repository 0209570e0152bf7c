package gitcmd

import (
	"context"

	"github.com/repoflux/repoflux/schema"
	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock for the Client interface.
type MockClient struct {
	mock.Mock
}

var _ Client = (*MockClient)(nil) // Compile-time check

// CloneOrPull implements the Client interface.
func (m *MockClient) CloneOrPull(ctx context.Context, repo *schema.Repository, cred *schema.Credential, workDir string) error {
	ret := m.Called(ctx, repo, cred, workDir)
	return ret.Error(0)
}

// FullHistoryLog implements the Client interface.
func (m *MockClient) FullHistoryLog(ctx context.Context, workDir string) ([]byte, error) {
	ret := m.Called(ctx, workDir)
	out, _ := ret.Get(0).([]byte)
	return out, ret.Error(1)
}

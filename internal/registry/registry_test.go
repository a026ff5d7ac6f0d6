package registry

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchwatch/patchwatch/internal/store"
	"github.com/patchwatch/patchwatch/pkg/shared/errors"
)

func newTestRegistry() *Registry {
	return New(store.NewMemoryRepositoryStore(), hclog.NewNullLogger())
}

func TestRegister(t *testing.T) {
	r := newTestRegistry()

	repo, err := r.Register("https://github.com/acme/widget", "Go")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widget", repo.URL)
	assert.Equal(t, "github.com", repo.Host)
	assert.Equal(t, "acme", repo.Namespace)
	assert.Equal(t, "widget", repo.Name)
	assert.Equal(t, "go", repo.Language)
	assert.True(t, repo.Active)
}

func TestRegisterDuplicateIsConflict(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Register("https://github.com/acme/widget", "go")
	require.NoError(t, err)

	_, err = r.Register("https://github.com/acme/widget", "go")
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err), "duplicate registration signals a conflict, not an error")
	assert.Len(t, r.List(), 1)
}

func TestRegisterMalformedURL(t *testing.T) {
	testCases := []struct {
		name string
		url  string
	}{
		{name: "not a URL", url: "definitely not a url"},
		{name: "missing repo segment", url: "https://github.com/acme"},
		{name: "ssh URL", url: "git@github.com:acme/widget.git"},
		{name: "wrong scheme", url: "http://github.com/acme/widget"},
	}

	r := newTestRegistry()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Register(tc.url, "go")
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestDeregisterIsSoft(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Register("https://github.com/acme/widget", "go")
	require.NoError(t, err)
	require.NoError(t, r.Deregister("https://github.com/acme/widget"))

	assert.Empty(t, r.Active())
	assert.Len(t, r.List(), 1, "deregistration keeps the record for findings that reference it")
}

package registry

import (
	"strings"
	"testing"
	"time"

	"github.com/beamgate/beamgate/shared/params"
	"github.com/beamgate/beamgate/shared/rand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSession = "3b241101-e2bb-4255-8caf-4136c566a962"

func newTestRegistry() (*Registry, *time.Time) {
	r := New()
	r.rand = rand.NewDeterministicGenerator()
	current := time.Unix(1700000000, 0)
	r.now = func() time.Time { return current }
	return r, &current
}

func TestRegister_MintsCode(t *testing.T) {
	r, _ := newTestRegistry()

	code, err := r.Register(testSession, "ep-sender", "198.51.100.7")
	require.NoError(t, err)
	require.Equal(t, params.Config().OneTimeCodeLen, len(code))
	for _, c := range code {
		assert.True(t, strings.ContainsRune(params.Config().CodeAlphabet, c),
			"code %q holds %q outside the alphabet", code, c)
	}
}

func TestRegister_Twice(t *testing.T) {
	r, _ := newTestRegistry()

	_, err := r.Register(testSession, "ep-sender", "198.51.100.7")
	require.NoError(t, err)
	_, err = r.Register(testSession, "ep-other", "198.51.100.8")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestSenderLookups(t *testing.T) {
	r, _ := newTestRegistry()

	_, err := r.Register(testSession, "ep-sender", "198.51.100.7")
	require.NoError(t, err)

	sender, ok := r.Sender(testSession)
	require.True(t, ok)
	assert.Equal(t, "ep-sender", sender)

	ip, ok := r.SenderIP(testSession)
	require.True(t, ok)
	assert.Equal(t, "198.51.100.7", ip)

	assert.True(t, r.IsSender(testSession, "ep-sender"))
	assert.False(t, r.IsSender(testSession, "ep-receiver"))
	assert.False(t, r.IsSender("00000000-0000-0000-0000-000000000000", "ep-sender"))

	_, ok = r.Sender("00000000-0000-0000-0000-000000000000")
	assert.False(t, ok)
}

func TestValidateCode(t *testing.T) {
	r, _ := newTestRegistry()

	code, err := r.Register(testSession, "ep-sender", "198.51.100.7")
	require.NoError(t, err)

	require.ErrorIs(t, r.ValidateCode("00000000-0000-0000-0000-000000000000", code), ErrUnknownSession)

	// A mismatch does not burn the code.
	require.ErrorIs(t, r.ValidateCode(testSession, "WRONG1"), ErrCodeMismatch)

	// Lowercase input with stray whitespace still redeems.
	require.NoError(t, r.ValidateCode(testSession, " "+strings.ToLower(code)+" "))

	// Redemption is permanent, even with the right code.
	require.ErrorIs(t, r.ValidateCode(testSession, code), ErrCodeUsed)
}

func TestRemove(t *testing.T) {
	r, _ := newTestRegistry()

	code, err := r.Register(testSession, "ep-sender", "198.51.100.7")
	require.NoError(t, err)
	r.Remove(testSession)

	assert.ErrorIs(t, r.ValidateCode(testSession, code), ErrUnknownSession)
	assert.Equal(t, 0, r.Size())
}

func TestForEndpoint(t *testing.T) {
	r, _ := newTestRegistry()

	other := "9f86d081-884c-4d63-a1d4-ce54b1f5f646"
	_, err := r.Register(testSession, "ep-sender", "198.51.100.7")
	require.NoError(t, err)
	_, err = r.Register(other, "ep-sender", "198.51.100.7")
	require.NoError(t, err)

	ids := r.ForEndpoint("ep-sender")
	assert.Equal(t, 2, len(ids))
	assert.Equal(t, 0, len(r.ForEndpoint("ep-receiver")))
}

func TestPurgeOlderThan(t *testing.T) {
	r, now := newTestRegistry()

	_, err := r.Register(testSession, "ep-old", "198.51.100.7")
	require.NoError(t, err)

	*now = now.Add(25 * time.Hour)
	fresh := "9f86d081-884c-4d63-a1d4-ce54b1f5f646"
	_, err = r.Register(fresh, "ep-new", "198.51.100.8")
	require.NoError(t, err)

	purged := r.PurgeOlderThan(24 * time.Hour)
	require.Equal(t, 1, len(purged))
	assert.Equal(t, testSession, purged[0].ID)
	assert.Equal(t, "198.51.100.7", purged[0].SenderIP)

	require.Equal(t, 1, r.Size())
	_, ok := r.Sender(fresh)
	assert.True(t, ok)
}

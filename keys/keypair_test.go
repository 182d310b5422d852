package keys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeypairFromNumberDeterministic(t *testing.T) {
	a, err := KeypairFromNumber(1234, true)
	require.NoError(t, err)
	b, err := KeypairFromNumber(1234, true)
	require.NoError(t, err)
	require.Equal(t, a.Qb64, b.Qb64, "same numeric key spec must yield the same qb64 public key across runs")

	c, err := KeypairFromNumber(5678, true)
	require.NoError(t, err)
	require.NotEqual(t, a.Qb64, c.Qb64)

	require.Equal(t, byte('D'), a.Qb64[0])
	require.Len(t, a.Qb64, 44)
}

// TestKeypairFromNumberGoldenS1 locks KeypairFromNumber(1234, ...)'s qb64
// output against spec.md section 8's literal S1 current-key vector, not
// merely self-consistency across runs. See the TODO on KeypairFromNumber:
// this numeric-seed derivation is the project's own choice and is not yet
// confirmed to reproduce the spec's published golden strings.
func TestKeypairFromNumberGoldenS1(t *testing.T) {
	current, err := KeypairFromNumber(1234, true)
	require.NoError(t, err)
	require.Equal(t, "DGyRkHQbJ6lafpzLpxaIa5ctBm50rNcXCqlmJQdTDqQ6", current.Qb64)
}

func TestKeypairFromSeedInvalidLength(t *testing.T) {
	_, err := KeypairFromSeed([]byte{1, 2, 3}, true)
	require.ErrorIs(t, err, ErrInvalidSeedLength)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := KeypairFromNumber(42, true)
	require.NoError(t, err)

	message := []byte("hello kerigo")
	sig, err := Sign(message, kp.Seed, kp.Transferable)
	require.NoError(t, err)
	require.Equal(t, "0B", sig[:2])

	ok, err := Verify(sig, message, kp.Qb64)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Verify(sig, []byte("tampered"), kp.Qb64)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKeypairFromMnemonicRoundTrip(t *testing.T) {
	var calls int
	mnemonic, err := NewMnemonic(func(b []byte) (int, error) {
		for i := range b {
			b[i] = byte(i + calls)
		}
		calls++
		return len(b), nil
	})
	require.NoError(t, err)

	kp, err := KeypairFromMnemonic(mnemonic, true)
	require.NoError(t, err)
	require.Len(t, kp.Qb64, 44)

	_, err = KeypairFromMnemonic("not a valid mnemonic at all", true)
	require.ErrorIs(t, err, ErrInvalidMnemonic)
}

func TestNonTransferableCode(t *testing.T) {
	kp, err := KeypairFromNumber(1, false)
	require.NoError(t, err)
	require.Equal(t, byte('B'), kp.Qb64[0])
}

package securestore

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/attestify/keybox-provisioner/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) (*Store, *MemoryStore) {
	t.Helper()
	backend := NewMemoryStore()
	return New(backend, 0, testLogger()), backend
}

func chainLenBytes(length uint32) []byte {
	buf := make([]byte, chainLenRecordLen)
	binary.LittleEndian.PutUint32(buf, length)
	return buf
}

// MockRecordStore implements interfaces.RecordStore for testing failure
// paths the real backends cannot produce.
type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) WriteRecord(ctx context.Context, name string, data []byte) error {
	args := m.Called(ctx, name, data)
	return args.Error(0)
}

func (m *MockRecordStore) ReadRecord(ctx context.Context, name string) ([]byte, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockRecordStore) DeleteRecord(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func TestRecordNames(t *testing.T) {
	store, backend := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.WriteKey(ctx, interfaces.KeySlotRSA, []byte("key material")))
	require.NoError(t, store.WriteCert(ctx, interfaces.KeySlotRSA, []byte("cert zero"), 0))

	// The record names are a stable contract with anything else reading
	// the same store.
	key, err := backend.ReadRecord(ctx, "AttestKey.rsa")
	require.NoError(t, err)
	assert.Equal(t, []byte("key material"), key)

	cert, err := backend.ReadRecord(ctx, "AttestCert.rsa.0")
	require.NoError(t, err)
	assert.Equal(t, []byte("cert zero"), cert)

	length, err := backend.ReadRecord(ctx, "AttestKey.rsa.length")
	require.NoError(t, err)
	assert.Equal(t, chainLenBytes(1), length)
}

func TestWriteAndReadKey(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, err := store.ReadKey(ctx, interfaces.KeySlotECDSA)
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

	require.NoError(t, store.WriteKey(ctx, interfaces.KeySlotECDSA, []byte("first")))
	require.NoError(t, store.WriteKey(ctx, interfaces.KeySlotECDSA, []byte("second")))

	key, err := store.ReadKey(ctx, interfaces.KeySlotECDSA)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), key, "rewrite must replace the previous key")
}

func TestKeyExists(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	exists, err := store.KeyExists(ctx, interfaces.KeySlotRSA)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.WriteKey(ctx, interfaces.KeySlotRSA, []byte("key")))
	exists, err = store.KeyExists(ctx, interfaces.KeySlotRSA)
	require.NoError(t, err)
	assert.True(t, exists)

	// A zero-size record counts as absent.
	require.NoError(t, store.WriteKey(ctx, interfaces.KeySlotRSA, nil))
	exists, err = store.KeyExists(ctx, interfaces.KeySlotRSA)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWriteCertPersistsLength(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.WriteCert(ctx, interfaces.KeySlotRSA, []byte("leaf"), 0))
	require.NoError(t, store.WriteCert(ctx, interfaces.KeySlotRSA, []byte("intermediate"), 1))

	length, err := store.ReadCertChainLength(ctx, interfaces.KeySlotRSA)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), length)

	chain, err := store.ReadCertChain(ctx, interfaces.KeySlotRSA)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, []byte("leaf"), chain[0])
	assert.Equal(t, []byte("intermediate"), chain[1])
}

func TestWriteCertRejectsIndexBeyondCapacity(t *testing.T) {
	store, backend := testStore(t)
	ctx := context.Background()

	err := store.WriteCert(ctx, interfaces.KeySlotRSA, []byte("cert"), DefaultMaxCertChainLength)
	assert.ErrorIs(t, err, interfaces.ErrStorageInvariant)
	assert.Equal(t, 0, backend.Len(), "rejected write must not touch the backend")
}

func TestAppendCertResetsFullChain(t *testing.T) {
	store, backend := testStore(t)
	ctx := context.Background()

	certs := [][]byte{
		[]byte("cert one"),
		[]byte("cert two"),
		[]byte("cert three"),
		[]byte("cert four"),
	}
	for _, cert := range certs {
		require.NoError(t, store.AppendCert(ctx, interfaces.KeySlotRSA, cert))
	}

	// The fourth append found the chain full, wiped it, and restarted it.
	length, err := store.ReadCertChainLength(ctx, interfaces.KeySlotRSA)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), length)

	chain, err := store.ReadCertChain(ctx, interfaces.KeySlotRSA)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, []byte("cert four"), chain[0])

	_, err = backend.ReadRecord(ctx, "AttestCert.rsa.1")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound, "wiped entries must not linger")
	_, err = backend.ReadRecord(ctx, "AttestCert.rsa.2")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestAppendCertTreatsUnreadableLengthAsEmpty(t *testing.T) {
	store, backend := testStore(t)
	ctx := context.Background()

	// A truncated length record is unreadable, not fatal; the append
	// restarts the chain at index zero.
	require.NoError(t, backend.WriteRecord(ctx, chainLenRecordName(interfaces.KeySlotRSA), []byte{7}))
	require.NoError(t, store.AppendCert(ctx, interfaces.KeySlotRSA, []byte("cert")))

	length, err := store.ReadCertChainLength(ctx, interfaces.KeySlotRSA)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), length)
}

func TestReadCertChainLengthValidation(t *testing.T) {
	store, backend := testStore(t)
	ctx := context.Background()
	lenName := chainLenRecordName(interfaces.KeySlotRSA)

	_, err := store.ReadCertChainLength(ctx, interfaces.KeySlotRSA)
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

	require.NoError(t, backend.WriteRecord(ctx, lenName, []byte{1, 2}))
	_, err = store.ReadCertChainLength(ctx, interfaces.KeySlotRSA)
	assert.ErrorIs(t, err, interfaces.ErrStorageInvariant, "wrong-size record")

	require.NoError(t, backend.WriteRecord(ctx, lenName, chainLenBytes(DefaultMaxCertChainLength+1)))
	_, err = store.ReadCertChainLength(ctx, interfaces.KeySlotRSA)
	assert.ErrorIs(t, err, interfaces.ErrStorageInvariant, "stored length above capacity")
}

func TestDeleteCertChainPersistsZeroLength(t *testing.T) {
	store, backend := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendCert(ctx, interfaces.KeySlotECDSA, []byte("one")))
	require.NoError(t, store.AppendCert(ctx, interfaces.KeySlotECDSA, []byte("two")))
	require.NoError(t, store.DeleteCertChain(ctx, interfaces.KeySlotECDSA))

	// The reset writes an explicit zero so the post-reset verification
	// read succeeds instead of reporting an absent record.
	raw, err := backend.ReadRecord(ctx, chainLenRecordName(interfaces.KeySlotECDSA))
	require.NoError(t, err)
	assert.Equal(t, chainLenBytes(0), raw)

	length, err := store.ReadCertChainLength(ctx, interfaces.KeySlotECDSA)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), length)

	chain, err := store.ReadCertChain(ctx, interfaces.KeySlotECDSA)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestWriteKeyAndChain(t *testing.T) {
	store, backend := testStore(t)
	ctx := context.Background()

	chain := [][]byte{[]byte("leaf"), []byte("root")}
	require.NoError(t, store.WriteKeyAndChain(ctx, interfaces.KeySlotSomRSA, []byte("key"), chain))

	key, err := store.ReadKey(ctx, interfaces.KeySlotSomRSA)
	require.NoError(t, err)
	assert.Equal(t, []byte("key"), key)

	got, err := store.ReadCertChain(ctx, interfaces.KeySlotSomRSA)
	require.NoError(t, err)
	assert.Equal(t, chain, got)

	tooLong := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	err = store.WriteKeyAndChain(ctx, interfaces.KeySlotSomECDSA, []byte("key"), tooLong)
	assert.ErrorIs(t, err, interfaces.ErrStorageInvariant)

	_, err = backend.ReadRecord(ctx, keyRecordName(interfaces.KeySlotSomECDSA))
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound, "oversized chain must be rejected before any write")
}

func TestAttestationID(t *testing.T) {
	store, backend := testStore(t)
	ctx := context.Background()

	id, err := store.ReadAttestationID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id, "unset ID reads as Nil without error")

	want := uuid.MustParse("0cbcaa23-7c65-4a1a-b9f4-3e6a6e64b937")
	require.NoError(t, store.WriteAttestationID(ctx, want))

	id, err = store.ReadAttestationID(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, id)

	require.NoError(t, backend.WriteRecord(ctx, attestIDRecord, []byte("not a uuid")))
	_, err = store.ReadAttestationID(ctx)
	assert.ErrorIs(t, err, interfaces.ErrStorageInvariant)
}

func TestStoreRejectsInvalidSlot(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.WriteKey(ctx, interfaces.KeySlotInvalid, []byte("key")), interfaces.ErrUnsupportedAlgorithm)
	assert.ErrorIs(t, store.AppendCert(ctx, interfaces.KeySlotInvalid, []byte("cert")), interfaces.ErrUnsupportedAlgorithm)

	_, err := store.ReadCertChainLength(ctx, interfaces.KeySlot(99))
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedAlgorithm)
}

func TestAppendCertFailsWhenResetLeavesResidue(t *testing.T) {
	backend := new(MockRecordStore)
	store := New(backend, 0, testLogger())
	ctx := context.Background()
	lenName := chainLenRecordName(interfaces.KeySlotRSA)

	// Full chain triggers a reset; the backend then claims the chain
	// still has an entry, which must abort the append.
	backend.On("ReadRecord", mock.Anything, lenName).Return(chainLenBytes(3), nil).Once()
	backend.On("DeleteRecord", mock.Anything, mock.Anything).Return(nil).Times(3)
	backend.On("WriteRecord", mock.Anything, lenName, chainLenBytes(0)).Return(nil).Once()
	backend.On("ReadRecord", mock.Anything, lenName).Return(chainLenBytes(1), nil).Once()

	err := store.AppendCert(ctx, interfaces.KeySlotRSA, []byte("cert"))
	assert.ErrorIs(t, err, interfaces.ErrStorageInvariant)
	backend.AssertExpectations(t)
}

func TestWriteKeyWrapsBackendFailure(t *testing.T) {
	backend := new(MockRecordStore)
	store := New(backend, 0, testLogger())
	ctx := context.Background()

	backendErr := errors.New("disk full")
	backend.On("DeleteRecord", mock.Anything, mock.Anything).Return(nil).Once()
	backend.On("WriteRecord", mock.Anything, mock.Anything, mock.Anything).Return(backendErr).Once()

	err := store.WriteKey(ctx, interfaces.KeySlotRSA, []byte("key"))
	assert.ErrorIs(t, err, interfaces.ErrStorageWrite)
	backend.AssertExpectations(t)
}

package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paramstore/paramstore/internal/paramtable"
	"github.com/paramstore/paramstore/internal/pvalue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func maxRateDescriptor() *paramtable.Descriptor {
	return &paramtable.Descriptor{
		ID: 0, NameID: "device@max_rate", ValueType: pvalue.KindI32,
		Default:    pvalue.I32(10),
		Validation: paramtable.Validation{Kind: paramtable.ValidationRange, Min: pvalue.I32(0), Max: pvalue.I32(100)},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "live.db"), filepath.Join(dir, "backup.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReadOrCreateReturnsDefaultOnMiss(t *testing.T) {
	s := openTestStore(t)
	d := maxRateDescriptor()

	v, err := s.ReadOrCreate(context.Background(), d, nil)
	require.NoError(t, err)
	assert.True(t, v.Equal(pvalue.I32(10)))
}

func TestWriteThenReadOrCreate(t *testing.T) {
	s := openTestStore(t)
	d := maxRateDescriptor()

	status, stored, err := s.Write(context.Background(), d, pvalue.I32(42), false)
	require.NoError(t, err)
	assert.Equal(t, StatusOkChanged, status)
	assert.True(t, stored.Equal(pvalue.I32(42)))

	v, err := s.ReadOrCreate(context.Background(), d, nil)
	require.NoError(t, err)
	assert.True(t, v.Equal(pvalue.I32(42)))
}

func TestWriteNotChangedSkipsRewrite(t *testing.T) {
	s := openTestStore(t)
	d := maxRateDescriptor()

	_, _, err := s.Write(context.Background(), d, pvalue.I32(42), false)
	require.NoError(t, err)

	status, _, err := s.Write(context.Background(), d, pvalue.I32(42), false)
	require.NoError(t, err)
	assert.Equal(t, StatusOkNotChanged, status)
}

func TestUpdateScansChangedKeys(t *testing.T) {
	s := openTestStore(t)
	d := maxRateDescriptor()

	lookup := func(nameID string) (uint32, bool) {
		if nameID == d.NameID {
			return d.ID, true
		}
		return paramtable.InvalidParameter, false
	}

	ids, err := s.Update(context.Background(), lookup)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, _, err = s.Write(context.Background(), d, pvalue.I32(99), false)
	require.NoError(t, err)

	ids, err = s.Update(context.Background(), lookup)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, d.ID, ids[0])

	// a second update with no new writes should find nothing
	ids, err = s.Update(context.Background(), lookup)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSaveFactoryResetLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backupPath := filepath.Join(dir, "backup.db")
	s, err := Open(context.Background(), filepath.Join(dir, "live.db"), backupPath, testLogger())
	require.NoError(t, err)
	defer s.Close()

	d := maxRateDescriptor()
	_, _, err = s.Write(context.Background(), d, pvalue.I32(55), false)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), backupPath, nil))
	require.NoError(t, s.DropDatabase(context.Background()))

	v, err := s.ReadOrCreate(context.Background(), d, nil)
	require.NoError(t, err)
	assert.True(t, v.Equal(d.Default), "after factory reset, value should be the default")

	require.NoError(t, s.Load(context.Background(), backupPath))

	v, err = s.ReadOrCreate(context.Background(), d, nil)
	require.NoError(t, err)
	assert.True(t, v.Equal(pvalue.I32(55)), "after load, value should be restored from backup")
}

func TestSaveRespectsRuntimeFilter(t *testing.T) {
	dir := t.TempDir()
	backupPath := filepath.Join(dir, "backup.db")
	s, err := Open(context.Background(), filepath.Join(dir, "live.db"), backupPath, testLogger())
	require.NoError(t, err)
	defer s.Close()

	runtimeDesc := &paramtable.Descriptor{
		ID: 1, NameID: "sensor@temperature", ValueType: pvalue.KindF64,
		Default: pvalue.F64(0), Runtime: true,
	}
	_, _, err = s.Write(context.Background(), runtimeDesc, pvalue.F64(37.5), false)
	require.NoError(t, err)

	// filter excludes runtime parameters from the snapshot
	require.NoError(t, s.Save(context.Background(), backupPath, func(nameID string) bool {
		return nameID != runtimeDesc.NameID
	}))
	require.NoError(t, s.DropDatabase(context.Background()))
	require.NoError(t, s.Load(context.Background(), backupPath))

	v, err := s.ReadOrCreate(context.Background(), runtimeDesc, nil)
	require.NoError(t, err)
	assert.True(t, v.Equal(runtimeDesc.Default), "runtime parameter should not survive save/load")
}

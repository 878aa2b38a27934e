// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	Backend
	name   string
	config string
}

func (b *fakeBackend) Name() string { return b.name }

func registerFake(name string) {
	Register(name, func(config string) (Backend, error) {
		return &fakeBackend{name: name, config: config}, nil
	})
}

func TestNewWithConfig(t *testing.T) {
	registerFake("testbackend")
	registerFake(ReferenceBackendName)

	b, err := NewWithConfig("testbackend:opt1=x,opt2=y")
	require.NoError(t, err)
	assert.Equal(t, "testbackend", b.Name())
	assert.Equal(t, "opt1=x,opt2=y", b.(*fakeBackend).config)

	b, err = NewWithConfig("testbackend")
	require.NoError(t, err)
	assert.Equal(t, "testbackend", b.Name())
	assert.Empty(t, b.(*fakeBackend).config)

	// An empty name prefers the reference backend.
	b, err = NewWithConfig("")
	require.NoError(t, err)
	assert.Equal(t, ReferenceBackendName, b.Name())
	b, err = NewWithConfig(":some=config")
	require.NoError(t, err)
	assert.Equal(t, ReferenceBackendName, b.Name())
	assert.Equal(t, "some=config", b.(*fakeBackend).config)

	_, err = NewWithConfig("no-such-backend")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-backend")

	assert.Contains(t, List(), "testbackend")
	assert.Contains(t, List(), ReferenceBackendName)
}

func TestNewFromEnvVar(t *testing.T) {
	registerFake("fromenv")
	t.Setenv(ConfigEnvVar, "fromenv:devices=3")
	b, err := New()
	require.NoError(t, err)
	assert.Equal(t, "fromenv", b.Name())
	assert.Equal(t, "devices=3", b.(*fakeBackend).config)
}

func TestCheckFlat(t *testing.T) {
	dtype, length, err := CheckFlat([]float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, dtype)
	assert.Equal(t, 3, length)

	_, _, err = CheckFlat("not a slice")
	assert.Error(t, err)
	_, _, err = CheckFlat([]string{"unsupported"})
	assert.Error(t, err)
}

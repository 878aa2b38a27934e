// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package backends

import "github.com/pkg/errors"

// ErrNotImplemented indicates an operation kind has no lowering rule registered for a
// backend, at the exact kind or at any of its declared parent capabilities.
//
// It doesn't contain a stack; attach one with errors.Wrapf(ErrNotImplemented, "...")
// when using it.
var ErrNotImplemented = errors.New("operation not implemented")

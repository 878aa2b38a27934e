// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface a numeric execution engine needs to implement
// to run symtensor computation graphs, and the registry used to select one.
//
// A backend owns the runtime representation of values (Buffer) and the transfer of data
// between host tensors and its own storage, possibly across multiple devices. The
// lowering of graph nodes into backend kernels lives in package
// github.com/symtensor/symtensor/link; each backend contributes a dispatcher of
// per-operation lowering rules there.
//
// Backends register themselves during package initialization (usually from an init
// function), and are selected by a configuration string "<name>:<options>", taken from
// the SYMTENSOR_BACKEND environment variable, the DefaultConfig variable or an explicit
// NewWithConfig call. An empty name selects the reference interpreter if registered,
// otherwise the first registered backend.
package backends

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DeviceNum identifies which device holds a buffer or should execute a computation.
// It is up to the backend to interpret it, but it should be between 0 and
// Backend.NumDevices.
type DeviceNum int

// Backend is the API that needs to be implemented by a symtensor backend.
type Backend interface {
	// Name returns the short name of the backend, as used for registration.
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// NumDevices returns the number of devices available for this Backend.
	NumDevices() DeviceNum

	// DataInterface defines the API to transfer data to/from the backend's buffers.
	DataInterface

	// Finalize releases all the associated resources immediately, and makes the
	// backend invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

// ReferenceBackendName is the registration name of the reference interpreter.
// When no backend is named in the configuration, it is preferred as the default.
const ReferenceBackendName = "ref"

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a backend constructor under the given name.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List returns the names of the registered backends, sorted.
func List() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultConfig is the backend configuration to use if SYMTENSOR_BACKEND is not set.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// ConfigEnvVar is the environment variable with the default backend configuration.
//
// The format of the configuration is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "ref" or "go") and
// "<backend_configuration>" is backend specific (e.g.: for the "go" backend,
// "devices=2").
const ConfigEnvVar = "SYMTENSOR_BACKEND"

// New returns a new Backend using the default configuration:
//
//  1. The environment variable SYMTENSOR_BACKEND, if set.
//  2. The variable DefaultConfig, if set.
//  3. The reference interpreter ("ref"), if registered, with an empty configuration.
//  4. The first registered backend, with an empty configuration.
//
// It returns an error if no backend was registered.
func New() (Backend, error) {
	if config, found := os.LookupEnv(ConfigEnvVar); found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// MustNew returns New() or panics.
func MustNew() Backend {
	backend, err := New()
	if err != nil {
		panic(err)
	}
	return backend
}

// NewWithConfig creates a Backend from a configuration string formatted as
// "<backend_name>:<backend_configuration>" -- see ConfigEnvVar.
//
// An empty backend name selects the reference interpreter if registered, otherwise
// the first registered backend.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.Errorf(
			"no registered backends -- maybe import the reference one with "+
				`import _ "github.com/symtensor/symtensor/backends/goref"? (config=%q)`, config)
	}
	backendName := firstRegistered
	if _, found := registeredConstructors[ReferenceBackendName]; found {
		backendName = ReferenceBackendName
	}
	backendConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		if config[:idx] != "" {
			backendName = config[:idx]
		}
		backendConfig = config[idx+1:]
	} else if config != "" {
		backendName = config
		backendConfig = ""
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given -- registered backends: %q",
			backendName, config, List())
	}
	klog.V(1).Infof("backends: creating backend %q with configuration %q", backendName, backendConfig)
	return constructor(backendConfig)
}

// MustNewWithConfig returns NewWithConfig(config) or panics.
func MustNewWithConfig(config string) Backend {
	backend, err := NewWithConfig(config)
	if err != nil {
		panic(err)
	}
	return backend
}

// Package core is the module system aamo is assembled from. Modules
// register a constructor at init time; the App loads the ones named in the
// configuration and drives them through a fixed lifecycle:
//
//	New → Configure → Provision → Validate → Start … Stop
//
// Every step past New is optional and selected by the interfaces below.
package core

import (
	"context"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModuleID identifies a module in dotted "namespace.name" form,
// e.g. "gateway.http" or "provider.openai_compatible".
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID ModuleID

	// New returns a fresh, unconfigured instance.
	New func() Module
}

// Module is implemented by every pluggable component.
type Module interface {
	ModuleInfo() ModuleInfo
}

// Configurable modules decode their section of the modules: map. Modules
// with no section are not called.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules fill defaults, open resources and publish services.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check their provisioned state. Validate has no side
// effects.
type Validator interface {
	Validate() error
}

// Starter modules begin background work once every module is provisioned.
type Starter interface {
	Start() error
}

// Stopper modules release what they hold. Stop is called in reverse start
// order, and also for provisioned modules when a later module fails to load.
type Stopper interface {
	Stop(ctx context.Context) error
}

package envproxy

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// Installer replaces the values at dotted global paths with wrappers.
type Installer struct {
	env *Environment
}

// NewInstaller creates an installer for env.
func NewInstaller(env *Environment) *Installer {
	return &Installer{env: env}
}

// Install wraps every path of config and prints the summary block. It
// fails with ErrNoPaths before touching the environment when config has no
// paths.
func (i *Installer) Install(config *ProxyConfig) (*Installation, error) {
	if config == nil || len(config.Paths) == 0 {
		return nil, ErrNoPaths
	}

	logger := i.env.newLogger(config)
	factory := NewFactory(i.env, config, logger)

	for _, path := range config.Paths {
		if err := i.installPath(factory, path); err != nil {
			return nil, fmt.Errorf("install %q: %w", path, err)
		}
	}
	logger.Summary()

	return &Installation{Config: config, Factory: factory, Logger: logger}, nil
}

func (i *Installer) installPath(factory *Factory, path string) error {
	parts := strings.Split(path, ".")
	leaf := parts[len(parts)-1]
	vm := i.env.vm

	parent := i.env.global
	for _, part := range parts[:len(parts)-1] {
		if next, ok := parent.Get(part).(*goja.Object); ok && next != nil {
			parent = next
			continue
		}
		next := vm.NewObject()
		if err := parent.Set(part, next); err != nil {
			return err
		}
		parent = next
	}

	current := parent.Get(leaf)
	if current == nil || goja.IsUndefined(current) || goja.IsNull(current) {
		current = vm.NewObject()
	}
	return parent.Set(leaf, factory.Wrap(current, path))
}

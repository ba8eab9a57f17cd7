// Package dispatch maps parsed commands onto collaborator calls.
//
// Information Hiding:
// - Operation storage and lookup by name
// - Arity and permission checks
// - Retry, timeout and panic containment around collaborator calls
// - Bounded concurrent fan-out with order-preserving fan-in
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/richinex/cinematic/protocol"
)

var (
	// ErrUnknownOperation is returned when a command names no registered operation.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrArity is returned when a command's argument count does not match its operation.
	ErrArity = errors.New("wrong number of arguments")
	// ErrForbidden is returned when a non-admin caller invokes an admin-only operation.
	ErrForbidden = errors.New("operation not permitted")
)

// Caller identifies who a command runs on behalf of.
type Caller struct {
	User  string
	Admin bool
}

// Request is what an operation receives.
type Request struct {
	Caller Caller
	Args   []string
}

// Arg returns the i-th argument or "" when absent.
func (r Request) Arg(i int) string {
	if i < 0 || i >= len(r.Args) {
		return ""
	}
	return r.Args[i]
}

// Func performs one collaborator call. An empty result with a nil error
// means nothing was found.
type Func func(ctx context.Context, req Request) (string, error)

// Param documents one positional argument.
type Param struct {
	Name        string
	Description string
}

// Operation is one entry of the dispatch table.
type Operation struct {
	Name        string
	Description string
	// Class is the command class the model is told to use for this operation.
	Class  protocol.Class
	Params []Param
	// FanOut splits the first argument on the term separator and calls once per term.
	FanOut    bool
	AdminOnly bool
	Call      Func
}

// Arity is the number of arguments a command must carry.
func (o Operation) Arity() int {
	return len(o.Params)
}

// Usage renders the operation in wire form with parameter names as
// placeholders, e.g. [CMDRET~movie_lookup~term~query].
func (o Operation) Usage(g protocol.Grammar) string {
	names := make([]string, len(o.Params))
	for i, p := range o.Params {
		names[i] = p.Name
	}
	return g.Format(o.Class, o.Name, names...)
}

func (o Operation) check(caller Caller, args []string) error {
	if len(args) != o.Arity() {
		return fmt.Errorf("%w: %s expects %d, got %d", ErrArity, o.Name, o.Arity(), len(args))
	}
	if o.AdminOnly && !caller.Admin {
		return fmt.Errorf("%w: %s requires admin", ErrForbidden, o.Name)
	}
	return nil
}

// Registry holds operations keyed by name.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

// Register adds op. Names must be unique and Call must be set.
func (r *Registry) Register(op Operation) error {
	if op.Name == "" {
		return errors.New("operation name is empty")
	}
	if op.Call == nil {
		return fmt.Errorf("operation '%s' has no call", op.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ops[op.Name]; exists {
		return fmt.Errorf("operation '%s' already registered", op.Name)
	}
	r.ops[op.Name] = op
	return nil
}

// RegisterAll adds every op, stopping at the first failure.
func (r *Registry) RegisterAll(ops ...Operation) error {
	for _, op := range ops {
		if err := r.Register(op); err != nil {
			return err
		}
	}
	return nil
}

// Get returns an operation by name.
func (r *Registry) Get(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.ops[name]
	return op, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns all operation names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all operations sorted by name.
func (r *Registry) List() []Operation {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := make([]Operation, 0, len(names))
	for _, name := range names {
		ops = append(ops, r.ops[name])
	}
	return ops
}

// Description renders every operation for the model, one per line.
// Admin-only operations are listed only when admin is true.
func (r *Registry) Description(g protocol.Grammar, admin bool) string {
	var lines []string
	for _, op := range r.List() {
		if op.AdminOnly && !admin {
			continue
		}
		line := fmt.Sprintf("%s - %s", op.Usage(g), op.Description)
		if op.FanOut {
			line += fmt.Sprintf(" Several terms may be joined with %s.", g.TermSep())
		}
		for _, p := range op.Params {
			if p.Description != "" {
				line += fmt.Sprintf("\n    %s: %s", p.Name, p.Description)
			}
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

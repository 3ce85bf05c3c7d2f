package oidcstore

import (
	"reflect"
	"sync"

	"github.com/provenid/oidcstore/model"
)

// Resolver maps entity types to store instances. Callers register their
// stores once at startup; consumers with a custom entity type that embeds
// one of the default models resolve to the store registered for the
// embedded model. Resolution walks the type's embedded fields, and the
// result is memoized per requested type so the reflection cost is paid
// once, not per call.
type Resolver struct {
	mu       sync.RWMutex
	registry map[reflect.Type]any
	memo     sync.Map
}

// NewResolver creates an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{registry: make(map[reflect.Type]any)}
}

// RegisterStore binds a store instance to an entity type. entity may be a
// value or a pointer; registering a type that is already bound replaces
// the previous store and invalidates memoized resolutions.
func (r *Resolver) RegisterStore(entity any, store any) {
	t := indirectType(reflect.TypeOf(entity))
	r.mu.Lock()
	r.registry[t] = store
	r.mu.Unlock()
	r.memo.Range(
		func(key, _ any) bool {
			r.memo.Delete(key)
			return true
		},
	)
}

// StoreFor returns the store compatible with the passed entity (a value,
// pointer, or reflect.Type). An exact registration wins; otherwise the
// entity type's embedded fields are searched, breadth-first, for a
// registered base model. A type without any registered base is a
// configuration error.
func (r *Resolver) StoreFor(entity any) (any, error) {
	var t reflect.Type
	if typ, ok := entity.(reflect.Type); ok {
		t = indirectType(typ)
	} else {
		t = indirectType(reflect.TypeOf(entity))
	}
	if t == nil {
		return nil, model.ConfigurationErrorFmt("cannot resolve a store for a nil entity")
	}
	if cached, ok := r.memo.Load(t); ok {
		return cached, nil
	}
	store, ok := r.lookup(t)
	if !ok {
		return nil, model.ConfigurationErrorFmt("no store registered for entity type %s", t)
	}
	r.memo.Store(t, store)
	return store, nil
}

func (r *Resolver) lookup(t reflect.Type) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	queue := []reflect.Type{t}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if store, ok := r.registry[current]; ok {
			return store, true
		}
		if current.Kind() != reflect.Struct {
			continue
		}
		for i := 0; i < current.NumField(); i++ {
			field := current.Field(i)
			if !field.Anonymous {
				continue
			}
			queue = append(queue, indirectType(field.Type))
		}
	}
	return nil, false
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// StoreForAs resolves a store through the resolver and asserts it to the
// requested store type.
func StoreForAs[S any](r *Resolver, entity any) (S, error) {
	var zero S
	store, err := r.StoreFor(entity)
	if err != nil {
		return zero, err
	}
	typed, ok := store.(S)
	if !ok {
		return zero, model.ConfigurationErrorFmt(
			"store registered for entity type %T is a %T, not the requested store type", entity, store,
		)
	}
	return typed, nil
}

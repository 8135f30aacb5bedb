package diol

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrNotAModel is returned when a value whose type was never registered
// with Model is used as a model
var ErrNotAModel = errors.New("diol: not a registered model")

// modelRepository is the part of a Repository[T] that does not depend on
// T, used to save related models whose type is only known at runtime
type modelRepository interface {
	saveValue(ctx context.Context, v reflect.Value, res *resolver) error
	getOrSaveValue(ctx context.Context, v reflect.Value, res *resolver) error
	lookupValue(ctx context.Context, v reflect.Value, res *resolver) (bool, error)
	primaryKey(v reflect.Value) interface{}
	pkIndex() []int
	pkType() reflect.Type
}

var registry = struct {
	sync.RWMutex
	models map[reflect.Type]modelRepository
}{models: make(map[reflect.Type]modelRepository)}

// Model registers the struct type T as a model and returns its repository.
// If T is already registered the existing repository is returned and the
// options are ignored.
func Model[T any](opts ...Option) (*Repository[T], error) {
	t := reflect.TypeOf((*T)(nil)).Elem()

	registry.Lock()
	defer registry.Unlock()

	if existing, ok := registry.models[t]; ok {
		return existing.(*Repository[T]), nil
	}

	repo, err := NewRepository[T](opts...)
	if err != nil {
		return nil, err
	}

	registry.models[t] = repo
	return repo, nil
}

// Objects returns the repository of the model T, if registered
func Objects[T any]() (*Repository[T], bool) {
	registry.RLock()
	defer registry.RUnlock()

	repo, ok := registry.models[reflect.TypeOf((*T)(nil)).Elem()]
	if !ok {
		return nil, false
	}
	return repo.(*Repository[T]), true
}

// Unregister removes T from the registered models
func Unregister[T any]() {
	registry.Lock()
	delete(registry.models, reflect.TypeOf((*T)(nil)).Elem())
	registry.Unlock()
}

// IsModel reports whether t, or the type t points to, is a registered
// model
func IsModel(t reflect.Type) bool {
	_, ok := relatedRepository(t)
	return ok
}

func relatedRepository(t reflect.Type) (modelRepository, bool) {
	st, ok := structType(t)
	if !ok {
		return nil, false
	}

	registry.RLock()
	defer registry.RUnlock()

	repo, ok := registry.models[st]
	return repo, ok
}

// Save saves instance, a pointer to a model, through the repository of its
// type. Values that are not registered models are left untouched.
func Save(ctx context.Context, instance interface{}) error {
	v, repo, err := modelValue(instance)
	if err != nil {
		if errors.Is(err, ErrNotAModel) {
			return nil
		}
		return err
	}
	return repo.saveValue(ctx, v, newResolver())
}

// GetOrSave looks instance, a pointer to a model, up through the repository
// of its type and saves it if not found (see Repository.GetOrSave)
func GetOrSave(ctx context.Context, instance interface{}) error {
	v, repo, err := modelValue(instance)
	if err != nil {
		return err
	}
	return repo.getOrSaveValue(ctx, v, newResolver())
}

func modelValue(instance interface{}) (reflect.Value, modelRepository, error) {
	if instance == nil {
		return reflect.Value{}, nil, ErrNotAModel
	}

	v := reflect.ValueOf(instance)
	repo, ok := relatedRepository(v.Type())
	if !ok {
		return reflect.Value{}, nil, fmt.Errorf("%w: %T", ErrNotAModel, instance)
	}
	if v.Kind() != reflect.Ptr {
		return reflect.Value{}, nil, fmt.Errorf("diol: %T must be passed by pointer", instance)
	}
	return v, repo, nil
}

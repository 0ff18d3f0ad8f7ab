package param

import (
	"sync"
)

// valueStore is the instance-level half of the dual value store: a lazily
// populated mapping of parameter name to the instance's override. Reads fall
// back to the class-level default when a name is absent.
type valueStore struct {
	data sync.Map
}

func newValueStore() *valueStore {
	return &valueStore{}
}

func (s *valueStore) Load(name string) (any, bool) {
	return s.data.Load(name)
}

func (s *valueStore) Store(name string, value any) {
	s.data.Store(name, value)
}

func (s *valueStore) Delete(name string) {
	s.data.Delete(name)
}

func (s *valueStore) Range(fn func(name string, value any) bool) {
	s.data.Range(func(key, value any) bool {
		return fn(key.(string), value)
	})
}

func (s *valueStore) Len() int {
	count := 0
	s.data.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

func (s *valueStore) Clear() {
	s.data.Range(func(key, value any) bool {
		s.data.Delete(key)
		return true
	})
}

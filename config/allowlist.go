package config

import (
	"strings"
)

// AllowList is the set of handles whose posts are engaged with automatically.
// It is built once at startup and never mutated afterwards.
type AllowList struct {
	handles []string
	set     map[string]struct{}
}

func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

func NewAllowList(handles []string) *AllowList {
	al := &AllowList{set: make(map[string]struct{}, len(handles))}
	for _, h := range handles {
		h = NormalizeHandle(h)
		if h == "" {
			continue
		}
		if _, ok := al.set[h]; ok {
			continue
		}
		al.set[h] = struct{}{}
		al.handles = append(al.handles, h)
	}
	return al
}

func (al *AllowList) Contains(handle string) bool {
	if al == nil {
		return false
	}
	_, ok := al.set[NormalizeHandle(handle)]
	return ok
}

// Handles returns the normalized handles in configuration order.
func (al *AllowList) Handles() []string {
	if al == nil {
		return nil
	}
	return append([]string(nil), al.handles...)
}

func (al *AllowList) Len() int {
	if al == nil {
		return 0
	}
	return len(al.handles)
}

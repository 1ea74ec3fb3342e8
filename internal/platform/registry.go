package platform

import (
	"sort"
	"strings"
)

// Entry 一个平台的插件集合,Publisher/Scraper 可以为空
type Entry struct {
	ID        string
	Name      string
	Aliases   []string
	Publisher Publisher
	Scraper   Scraper
}

// Registry 平台标识到插件的唯一查找表。创建后只读,可在 worker 之间共享。
type Registry struct {
	entries map[string]*Entry
	lookup  map[string]string
}

func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{
		entries: make(map[string]*Entry, len(entries)),
		lookup:  make(map[string]string),
	}
	for i := range entries {
		e := entries[i]
		id := Canonical(e.ID)
		e.ID = id
		r.entries[id] = &e
		r.lookup[id] = id
		if e.Name != "" {
			r.lookup[Canonical(e.Name)] = id
		}
		for _, alias := range e.Aliases {
			r.lookup[Canonical(alias)] = id
		}
	}
	return r
}

// Canonical 忽略大小写、空白、连字符和下划线
func Canonical(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '_', '.':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(id)))
}

// Resolve 未知平台返回 false,不报错
func (r *Registry) Resolve(id string) (*Entry, bool) {
	canonical, ok := r.lookup[Canonical(id)]
	if !ok {
		return nil, false
	}
	return r.entries[canonical], true
}

func (r *Registry) Publisher(id string) (Publisher, bool) {
	e, ok := r.Resolve(id)
	if !ok || e.Publisher == nil {
		return nil, false
	}
	return e.Publisher, true
}

func (r *Registry) Scraper(id string) (Scraper, bool) {
	e, ok := r.Resolve(id)
	if !ok || e.Scraper == nil {
		return nil, false
	}
	return e.Scraper, true
}

// IDs 按字母序返回所有平台
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

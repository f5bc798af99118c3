// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/maps"
)

// MemoryFootprint describes the memory consumption of a data structure and
// its sub-components.
type MemoryFootprint struct {
	value    uintptr
	children map[string]*MemoryFootprint
	note     string
}

// MemoryFootprintProvider is implemented by all components able to report
// their memory usage.
type MemoryFootprintProvider interface {
	GetMemoryFootprint() *MemoryFootprint
}

// NewMemoryFootprint creates a new MemoryFootprint instance for a data structure.
func NewMemoryFootprint(value uintptr) *MemoryFootprint {
	return &MemoryFootprint{
		value:    value,
		children: make(map[string]*MemoryFootprint),
	}
}

// AddChild attaches the MemoryFootprint of a sub-component.
func (mf *MemoryFootprint) AddChild(name string, child *MemoryFootprint) {
	mf.children[name] = child
}

// GetChild returns the footprint registered under the given name or nil.
func (mf *MemoryFootprint) GetChild(name string) *MemoryFootprint {
	return mf.children[name]
}

// SetNote attaches a free-text remark printed next to this component.
func (mf *MemoryFootprint) SetNote(note string) {
	mf.note = note
}

// Value provides the amount of bytes consumed by the data structure itself.
func (mf *MemoryFootprint) Value() uintptr {
	return mf.value
}

// Total provides the amount of bytes consumed by the data structure
// including all its sub-components. Shared components are counted once.
func (mf *MemoryFootprint) Total() uintptr {
	return includeObjectIntoTotal(mf, map[*MemoryFootprint]bool{})
}

func includeObjectIntoTotal(mf *MemoryFootprint, included map[*MemoryFootprint]bool) (total uintptr) {
	if mf == nil || included[mf] {
		return 0
	}
	included[mf] = true
	total = mf.value
	for _, child := range mf.children {
		total += includeObjectIntoTotal(child, included)
	}
	return total
}

func (mf *MemoryFootprint) String() string {
	return mf.ToString(".")
}

// ToString renders the footprint as a tree summary, children before their
// parents. The name param is the label of the root.
func (mf *MemoryFootprint) ToString(name string) string {
	var sb strings.Builder
	mf.toStringBuilder(&sb, name, map[*MemoryFootprint]bool{})
	return sb.String()
}

func (mf *MemoryFootprint) toStringBuilder(sb *strings.Builder, path string, visited map[*MemoryFootprint]bool) {
	visited[mf] = true
	names := maps.Keys(mf.children)
	sort.Strings(names)
	for _, name := range names {
		child := mf.children[name]
		if child == nil || visited[child] {
			continue
		}
		child.toStringBuilder(sb, path+"/"+name, visited)
	}
	memoryAmountToString(sb, mf.Total())
	sb.WriteRune(' ')
	sb.WriteString(path)
	if mf.note != "" {
		sb.WriteString(" (")
		sb.WriteString(mf.note)
		sb.WriteRune(')')
	}
	sb.WriteRune('\n')
}

func memoryAmountToString(sb *strings.Builder, bytes uintptr) {
	const unit = 1024
	const prefixes = " KMGTPE"
	div, exp := uintptr(1), 0
	for bytes/div >= unit && exp+1 < len(prefixes) {
		div *= unit
		exp++
	}
	fmt.Fprintf(sb, "%6.1f %cB", float64(bytes)/float64(div), prefixes[exp])
}
